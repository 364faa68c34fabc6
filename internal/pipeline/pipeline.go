// Package pipeline runs the three credit risk stages (prepare, train and
// predict) over the artifact store. Each stage is an independent batch run;
// stages communicate only through persisted artifacts.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/credit-risk-cli/internal/artifact"
	"github.com/sells-group/credit-risk-cli/internal/config"
	"github.com/sells-group/credit-risk-cli/internal/model"
	"github.com/sells-group/credit-risk-cli/internal/store"
)

// PredictionColumn is appended to the input table by Predict.
const PredictionColumn = "prediction"

// Pipeline wires configuration, logging, the artifact store and the run log
// into the stage entry points.
type Pipeline struct {
	cfg       *config.Config
	log       *zap.Logger
	artifacts *artifact.Store
	runs      store.Store
}

// New creates a Pipeline. A nil logger discards output and a nil run log
// records nothing.
func New(cfg *config.Config, log *zap.Logger, runs store.Store) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	if runs == nil {
		runs = store.Nop{}
	}
	return &Pipeline{
		cfg:       cfg,
		log:       log,
		artifacts: artifact.NewStore(log),
		runs:      runs,
	}
}

// track records a stage run in the run log around fn. Run log failures are
// logged and never fail the stage.
func (p *Pipeline) track(ctx context.Context, stage model.Stage, fn func(log *zap.Logger) (*model.RunResult, error)) (*model.RunResult, error) {
	run, err := p.runs.StartRun(ctx, stage, p.cfg.Hash())
	if err != nil {
		p.log.Warn("pipeline: failed to record run start", zap.String("stage", string(stage)), zap.Error(err))
		run = &model.Run{Stage: stage}
	}

	log := p.log.With(zap.String("stage", string(stage)))
	if run.ID != "" {
		log = log.With(zap.String("run_id", run.ID))
	}
	log.Info("pipeline: stage starting")

	start := time.Now()
	result, fnErr := fn(log)
	duration := time.Since(start).Milliseconds()

	if fnErr != nil {
		log.Error("pipeline: stage failed",
			zap.Int64("duration_ms", duration),
			zap.Error(fnErr),
		)
		if run.ID != "" {
			if err := p.runs.FailRun(ctx, run.ID, fnErr); err != nil {
				log.Warn("pipeline: failed to record run failure", zap.Error(err))
			}
		}
		return nil, fnErr
	}

	log.Info("pipeline: stage complete", zap.Int64("duration_ms", duration))
	if run.ID != "" {
		if err := p.runs.CompleteRun(ctx, run.ID, result); err != nil {
			log.Warn("pipeline: failed to record run completion", zap.Error(err))
		}
	}
	return result, nil
}
