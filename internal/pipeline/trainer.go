package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/credit-risk-cli/internal/artifact"
	"github.com/sells-group/credit-risk-cli/internal/classifier"
	"github.com/sells-group/credit-risk-cli/internal/dataset"
	"github.com/sells-group/credit-risk-cli/internal/metrics"
	"github.com/sells-group/credit-risk-cli/internal/model"
	"github.com/sells-group/credit-risk-cli/internal/preprocess"
)

// TrainerState is a step of a training run. A run moves strictly forward
// through Idle, DataLoaded, Fitted, Evaluated and Persisted.
type TrainerState int

const (
	StateIdle TrainerState = iota
	StateDataLoaded
	StateFitted
	StateEvaluated
	StatePersisted
)

func (s TrainerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDataLoaded:
		return "data_loaded"
	case StateFitted:
		return "fitted"
	case StateEvaluated:
		return "evaluated"
	case StatePersisted:
		return "persisted"
	default:
		return "unknown"
	}
}

// StateError reports a trainer transition attempted from the wrong state.
type StateError struct {
	Op   string
	Have TrainerState
	Want TrainerState
}

func (e *StateError) Error() string {
	return fmt.Sprintf("trainer: %s requires state %s, trainer is %s", e.Op, e.Want, e.Have)
}

// IsStateError returns true if err (or any error in its chain) is a StateError.
func IsStateError(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}

// Trainer fits and evaluates a classifier on a processed bundle. A failed
// transition leaves the state unchanged.
type Trainer struct {
	log       *zap.Logger
	artifacts *artifact.Store
	params    classifier.Params

	state  TrainerState
	data   *dataset.Processed
	model  *classifier.LogisticRegression
	report *metrics.Report
}

// NewTrainer returns an idle trainer.
func NewTrainer(log *zap.Logger, artifacts *artifact.Store, params classifier.Params) *Trainer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Trainer{log: log, artifacts: artifacts, params: params}
}

// State returns the current step.
func (t *Trainer) State() TrainerState { return t.state }

// Report returns the evaluation report, or nil before Evaluate.
func (t *Trainer) Report() *metrics.Report { return t.report }

// Model returns the fitted model, or nil before Fit.
func (t *Trainer) Model() *classifier.LogisticRegression { return t.model }

func (t *Trainer) expect(op string, want TrainerState) error {
	if t.state != want {
		return &StateError{Op: op, Have: t.state, Want: want}
	}
	return nil
}

// LoadData reads the processed bundle and checks that it was produced by the
// preprocessor stored at preprocessorPath.
func (t *Trainer) LoadData(ctx context.Context, dataPath, preprocessorPath string) error {
	if err := t.expect("load data", StateIdle); err != nil {
		return err
	}

	var bundle dataset.Processed
	if _, err := t.artifacts.Load(ctx, artifact.KindDataset, dataPath, &bundle); err != nil {
		return eris.Wrap(err, "trainer: load processed data")
	}
	if err := bundle.Validate(); err != nil {
		return eris.Wrap(err, "trainer: processed data")
	}

	var pre preprocess.Preprocessor
	if _, err := t.artifacts.Load(ctx, artifact.KindPreprocessor, preprocessorPath, &pre); err != nil {
		return eris.Wrap(err, "trainer: load preprocessor")
	}
	if err := artifact.CheckPairing(artifact.KindDataset, bundle.PreprocessorFingerprint, pre.Fingerprint()); err != nil {
		return err
	}

	rows, cols := bundle.XTrain.Dims()
	t.log.Info("trainer: loaded processed data",
		zap.Int("train_rows", rows),
		zap.Int("test_rows", len(bundle.YTest)),
		zap.Int("features", cols),
		zap.String("preprocessor_fingerprint", bundle.PreprocessorFingerprint),
	)
	t.data = &bundle
	t.state = StateDataLoaded
	return nil
}

// Fit trains the classifier on the training partition.
func (t *Trainer) Fit(ctx context.Context) error {
	if err := t.expect("fit", StateDataLoaded); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "trainer: fit")
	}

	m := classifier.New(t.params)
	if err := m.Fit(t.data.XTrain, t.data.YTrain); err != nil {
		return eris.Wrap(err, "trainer: fit classifier")
	}
	m.PairWith(t.data.PreprocessorFingerprint)

	for _, c := range m.Convergence() {
		fields := []zap.Field{
			zap.String("positive", c.Positive),
			zap.String("status", c.Status),
			zap.Int("iterations", c.Iterations),
			zap.Float64("loss", c.Loss),
		}
		if c.Warning != "" {
			t.log.Warn("trainer: optimizer stopped early", append(fields, zap.String("warning", c.Warning))...)
			continue
		}
		t.log.Info("trainer: optimizer finished", fields...)
	}

	t.model = m
	t.state = StateFitted
	return nil
}

// Evaluate scores the evaluation partition.
func (t *Trainer) Evaluate(ctx context.Context) (*metrics.Report, error) {
	if err := t.expect("evaluate", StateFitted); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "trainer: evaluate")
	}

	pred, err := t.model.Predict(t.data.XTest)
	if err != nil {
		return nil, eris.Wrap(err, "trainer: predict evaluation partition")
	}
	report, err := metrics.Evaluate(t.data.YTest, pred)
	if err != nil {
		return nil, eris.Wrap(err, "trainer: evaluate")
	}

	t.log.Info("trainer: evaluated", zap.Float64("accuracy", report.Accuracy))
	t.report = report
	t.state = StateEvaluated
	return report, nil
}

// Persist writes the model and the metrics report.
func (t *Trainer) Persist(ctx context.Context, modelPath, metricsPath string) error {
	if err := t.expect("persist", StateEvaluated); err != nil {
		return err
	}
	if err := t.artifacts.Save(ctx, artifact.KindModel, modelPath, t.model); err != nil {
		return eris.Wrap(err, "trainer: persist model")
	}
	if err := t.artifacts.Save(ctx, artifact.KindMetrics, metricsPath, t.report); err != nil {
		return eris.Wrap(err, "trainer: persist metrics")
	}
	t.state = StatePersisted
	return nil
}

// Train runs the trainer through every state and records the run.
func (p *Pipeline) Train(ctx context.Context) (*metrics.Report, error) {
	var report *metrics.Report
	_, err := p.track(ctx, model.StageTrain, func(log *zap.Logger) (*model.RunResult, error) {
		paths := p.cfg.Paths
		tr := NewTrainer(log, p.artifacts, p.cfg.Train)

		if err := tr.LoadData(ctx, paths.ProcessedData, paths.Preprocessor); err != nil {
			return nil, err
		}
		if err := tr.Fit(ctx); err != nil {
			return nil, err
		}
		r, err := tr.Evaluate(ctx)
		if err != nil {
			return nil, err
		}
		if err := tr.Persist(ctx, paths.Model, paths.Metrics); err != nil {
			return nil, err
		}
		report = r

		acc := r.Accuracy
		rows, cols := tr.data.XTrain.Dims()
		return &model.RunResult{
			TrainRows:               rows,
			TestRows:                len(tr.data.YTest),
			Features:                cols,
			Accuracy:                &acc,
			PreprocessorFingerprint: tr.data.PreprocessorFingerprint,
			ModelFingerprint:        tr.model.Fingerprint(),
			Artifacts: map[string]string{
				string(artifact.KindModel):   paths.Model,
				string(artifact.KindMetrics): paths.Metrics,
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
