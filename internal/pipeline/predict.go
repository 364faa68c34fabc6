package pipeline

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/credit-risk-cli/internal/artifact"
	"github.com/sells-group/credit-risk-cli/internal/classifier"
	"github.com/sells-group/credit-risk-cli/internal/dataset"
	"github.com/sells-group/credit-risk-cli/internal/model"
	"github.com/sells-group/credit-risk-cli/internal/preprocess"
)

// Transformer turns raw records into a model input matrix.
type Transformer interface {
	Transform(t *dataset.Table) (*mat.Dense, error)
	Fingerprint() string
}

// Predictor assigns a class label to each row of a model input matrix.
type Predictor interface {
	Predict(X mat.Matrix) ([]string, error)
	PreprocessorFingerprint() string
}

var (
	_ Transformer = (*preprocess.Preprocessor)(nil)
	_ Predictor   = (*classifier.LogisticRegression)(nil)
)

// Score returns in with a prediction column appended. The input table is
// left untouched.
func Score(in *dataset.Table, tf Transformer, pr Predictor) (*dataset.Table, error) {
	if err := artifact.CheckPairing(artifact.KindModel, pr.PreprocessorFingerprint(), tf.Fingerprint()); err != nil {
		return nil, err
	}
	X, err := tf.Transform(in)
	if err != nil {
		return nil, eris.Wrap(err, "predict: transform")
	}
	labels, err := pr.Predict(X)
	if err != nil {
		return nil, eris.Wrap(err, "predict: classify")
	}
	out, err := in.WithColumn(PredictionColumn, labels)
	if err != nil {
		return nil, eris.Wrap(err, "predict: append predictions")
	}
	return out, nil
}

// LoadModel reads the preprocessor and model artifacts concurrently.
func (p *Pipeline) LoadModel(ctx context.Context) (*preprocess.Preprocessor, *classifier.LogisticRegression, error) {
	var (
		pre preprocess.Preprocessor
		clf classifier.LogisticRegression
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := p.artifacts.Load(gctx, artifact.KindPreprocessor, p.cfg.Paths.Preprocessor, &pre)
		return err
	})
	g.Go(func() error {
		_, err := p.artifacts.Load(gctx, artifact.KindModel, p.cfg.Paths.Model, &clf)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, eris.Wrap(err, "predict: load artifacts")
	}
	return &pre, &clf, nil
}

// Predict scores the raw file at inputPath and writes the input columns plus
// a prediction column to outputPath. Inference input is read without column
// drops or renames so the output mirrors it exactly.
func (p *Pipeline) Predict(ctx context.Context, inputPath, outputPath string) (*model.RunResult, error) {
	return p.track(ctx, model.StagePredict, func(log *zap.Logger) (*model.RunResult, error) {
		pre, clf, err := p.LoadModel(ctx)
		if err != nil {
			return nil, err
		}

		in, err := dataset.Load(ctx, inputPath, p.cfg.Source.Options(false))
		if err != nil {
			return nil, eris.Wrap(err, "predict: load input")
		}
		log.Info("predict: loaded input",
			zap.String("path", inputPath),
			zap.Int("rows", in.Len()),
		)

		out, err := Score(in, pre, clf)
		if err != nil {
			return nil, err
		}

		if err := artifact.WriteAtomic(outputPath, func(w io.Writer) error {
			return out.WriteCSV(w)
		}); err != nil {
			return nil, eris.Wrap(err, "predict: write predictions")
		}
		log.Info("predict: wrote predictions", zap.String("path", outputPath), zap.Int("rows", out.Len()))

		return &model.RunResult{
			Rows:                    in.Len(),
			PreprocessorFingerprint: pre.Fingerprint(),
			ModelFingerprint:        clf.Fingerprint(),
			Artifacts:               map[string]string{"predictions": outputPath},
		}, nil
	})
}
