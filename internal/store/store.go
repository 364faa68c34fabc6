// Package store records pipeline stage runs so past prepare, train and
// predict invocations can be listed and compared.
package store

import (
	"context"

	"github.com/sells-group/credit-risk-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Stage  model.Stage     `json:"stage,omitempty"`
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
}

// Store defines the persistence interface for the run log.
type Store interface {
	StartRun(ctx context.Context, stage model.Stage, configHash string) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, result *model.RunResult) error
	FailRun(ctx context.Context, runID string, runErr error) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Nop is a Store that records nothing. It backs the pipeline when the run
// log is disabled.
type Nop struct{}

var _ Store = Nop{}

func (Nop) StartRun(_ context.Context, stage model.Stage, configHash string) (*model.Run, error) {
	return &model.Run{Stage: stage, Status: model.RunStatusRunning, ConfigHash: configHash}, nil
}

func (Nop) CompleteRun(context.Context, string, *model.RunResult) error { return nil }

func (Nop) FailRun(context.Context, string, error) error { return nil }

func (Nop) GetRun(_ context.Context, runID string) (*model.Run, error) {
	return nil, &NotFoundError{ID: runID}
}

func (Nop) ListRuns(context.Context, RunFilter) ([]model.Run, error) { return nil, nil }

func (Nop) Migrate(context.Context) error { return nil }

func (Nop) Close() error { return nil }
