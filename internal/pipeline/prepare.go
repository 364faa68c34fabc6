package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/credit-risk-cli/internal/artifact"
	"github.com/sells-group/credit-risk-cli/internal/dataset"
	"github.com/sells-group/credit-risk-cli/internal/model"
	"github.com/sells-group/credit-risk-cli/internal/preprocess"
	"github.com/sells-group/credit-risk-cli/internal/schema"
)

// Prepare loads the raw training file, splits it, fits the preprocessor on
// the training partition only, and persists the processed bundle and the
// fitted preprocessor.
func (p *Pipeline) Prepare(ctx context.Context) (*model.RunResult, error) {
	return p.track(ctx, model.StagePrepare, func(log *zap.Logger) (*model.RunResult, error) {
		return p.prepare(ctx, log)
	})
}

func (p *Pipeline) prepare(ctx context.Context, log *zap.Logger) (*model.RunResult, error) {
	sch := p.cfg.Schema
	paths := p.cfg.Paths

	opts := p.cfg.Source.Options(true)
	if sch.Target != sch.TargetCanonical {
		opts.Rename = map[string]string{sch.Target: sch.TargetCanonical}
	}
	raw, err := dataset.Load(ctx, paths.RawData, opts)
	if err != nil {
		return nil, eris.Wrap(err, "prepare: load raw data")
	}
	log.Info("prepare: loaded raw data",
		zap.String("path", paths.RawData),
		zap.Int("rows", raw.Len()),
		zap.Int("columns", len(raw.Columns)),
	)

	if err := schema.Require(raw.Columns, sch.Numeric, sch.Categorical, []string{sch.TargetCanonical}); err != nil {
		return nil, eris.Wrap(err, "prepare: validate raw columns")
	}

	train, test, err := dataset.SplitTable(raw, sch.TargetCanonical, p.cfg.Split)
	if err != nil {
		return nil, eris.Wrap(err, "prepare: split")
	}
	log.Info("prepare: split data",
		zap.Int("train_rows", train.Len()),
		zap.Int("test_rows", test.Len()),
		zap.Float64("test_size", p.cfg.Split.TestSize),
		zap.Int64("seed", p.cfg.Split.Seed),
	)

	pre, err := preprocess.Build(sch)
	if err != nil {
		return nil, eris.Wrap(err, "prepare: build preprocessor")
	}
	if err := pre.Fit(train.Features); err != nil {
		return nil, eris.Wrap(err, "prepare: fit preprocessor")
	}
	if rem := pre.Remainder(); len(rem) > 0 {
		log.Info("prepare: passing through undeclared columns", zap.Strings("remainder", rem))
	}

	xTrain, err := pre.Transform(train.Features)
	if err != nil {
		return nil, eris.Wrap(err, "prepare: transform training partition")
	}
	xTest, err := pre.Transform(test.Features)
	if err != nil {
		return nil, eris.Wrap(err, "prepare: transform evaluation partition")
	}

	bundle := &dataset.Processed{
		XTrain:                  xTrain,
		XTest:                   xTest,
		YTrain:                  train.Labels,
		YTest:                   test.Labels,
		FeatureNames:            pre.FeatureNames(),
		PreprocessorFingerprint: pre.Fingerprint(),
	}
	if err := bundle.Validate(); err != nil {
		return nil, eris.Wrap(err, "prepare: processed bundle")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.artifacts.Save(gctx, artifact.KindPreprocessor, paths.Preprocessor, pre)
	})
	g.Go(func() error {
		return p.artifacts.Save(gctx, artifact.KindDataset, paths.ProcessedData, bundle)
	})
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "prepare: persist artifacts")
	}

	return &model.RunResult{
		Rows:                    raw.Len(),
		TrainRows:               train.Len(),
		TestRows:                test.Len(),
		Features:                pre.OutputWidth(),
		PreprocessorFingerprint: pre.Fingerprint(),
		Artifacts: map[string]string{
			string(artifact.KindPreprocessor): paths.Preprocessor,
			string(artifact.KindDataset):      paths.ProcessedData,
		},
	}, nil
}
