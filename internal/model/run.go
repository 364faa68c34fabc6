// Package model holds the records shared between the pipeline stages and the
// run log.
package model

import "time"

// Stage names a pipeline entry point.
type Stage string

const (
	StagePrepare Stage = "prepare"
	StageTrain   Stage = "train"
	StagePredict Stage = "predict"
)

// RunStatus represents the current state of a stage run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one invocation of a pipeline stage.
type Run struct {
	ID          string     `json:"id"`
	Stage       Stage      `json:"stage"`
	Status      RunStatus  `json:"status"`
	ConfigHash  string     `json:"config_hash"`
	Result      *RunResult `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Duration returns how long the run took, or zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// RunResult holds what a completed stage produced.
type RunResult struct {
	Rows                    int               `json:"rows,omitempty"`
	TrainRows               int               `json:"train_rows,omitempty"`
	TestRows                int               `json:"test_rows,omitempty"`
	Features                int               `json:"features,omitempty"`
	Accuracy                *float64          `json:"accuracy,omitempty"`
	PreprocessorFingerprint string            `json:"preprocessor_fingerprint,omitempty"`
	ModelFingerprint        string            `json:"model_fingerprint,omitempty"`
	Artifacts               map[string]string `json:"artifacts,omitempty"`
}
