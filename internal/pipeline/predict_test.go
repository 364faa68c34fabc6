package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/credit-risk-cli/internal/artifact"
	"github.com/sells-group/credit-risk-cli/internal/dataset"
	"github.com/sells-group/credit-risk-cli/internal/model"
	"github.com/sells-group/credit-risk-cli/internal/schema"
	"github.com/sells-group/credit-risk-cli/internal/store"
)

// newDataRows returns unlabeled records; the last one has a purpose never
// seen in training.
func newDataRows() ([]string, [][]string) {
	var rows [][]string
	for i := 500; i < 505; i++ {
		rows = append(rows, creditRow(i))
	}
	header, rows := dropColumn(creditHeader, rows, "Risk")
	purpose := 0
	for i, h := range header {
		if h == "Purpose" {
			purpose = i
		}
	}
	rows[len(rows)-1][purpose] = "vacation"
	return header, rows
}

func TestPredict_AppendsPredictionColumn(t *testing.T) {
	p, cfg := newTestPipeline(t)
	prepareAndTrain(t, p)

	header, rows := newDataRows()
	writeCSV(t, cfg.Paths.NewData, header, rows)

	res, err := p.Predict(context.Background(), cfg.Paths.NewData, cfg.Paths.Predictions)
	require.NoError(t, err)
	assert.Equal(t, len(rows), res.Rows)

	out := readCSV(t, cfg.Paths.Predictions)
	require.Len(t, out, len(rows)+1)
	assert.Len(t, out[0], len(header)+1)
	assert.Equal(t, header, out[0][:len(header)])
	assert.Equal(t, PredictionColumn, out[0][len(header)])

	for i, row := range rows {
		got := out[i+1]
		assert.Equal(t, row, got[:len(header)], "row %d keeps its original cells and order", i)
		assert.Contains(t, []string{"good", "bad"}, got[len(header)])
	}
}

func TestPredict_Deterministic(t *testing.T) {
	p, cfg := newTestPipeline(t)
	prepareAndTrain(t, p)

	header, rows := newDataRows()
	writeCSV(t, cfg.Paths.NewData, header, rows)

	second := filepath.Join(t.TempDir(), "again.csv")
	_, err := p.Predict(context.Background(), cfg.Paths.NewData, cfg.Paths.Predictions)
	require.NoError(t, err)
	_, err = p.Predict(context.Background(), cfg.Paths.NewData, second)
	require.NoError(t, err)
	assert.Equal(t, readCSV(t, cfg.Paths.Predictions), readCSV(t, second))
}

func TestPredict_SchemaMismatch(t *testing.T) {
	p, cfg := newTestPipeline(t)
	prepareAndTrain(t, p)

	header, rows := newDataRows()
	header, rows = dropColumn(header, rows, "Age")
	writeCSV(t, cfg.Paths.NewData, header, rows)

	_, err := p.Predict(context.Background(), cfg.Paths.NewData, cfg.Paths.Predictions)
	require.Error(t, err)
	assert.True(t, schema.IsMismatch(err))
	assert.Contains(t, err.Error(), `"Age"`)
}

func TestPredict_MissingModel(t *testing.T) {
	p, cfg := newTestPipeline(t)
	_, err := p.Prepare(context.Background())
	require.NoError(t, err)

	header, rows := newDataRows()
	writeCSV(t, cfg.Paths.NewData, header, rows)

	_, err = p.Predict(context.Background(), cfg.Paths.NewData, cfg.Paths.Predictions)
	require.Error(t, err)
	assert.True(t, artifact.IsNotFound(err))
	assert.Contains(t, err.Error(), cfg.Paths.Model)
}

func TestPredict_InputNotFound(t *testing.T) {
	p, cfg := newTestPipeline(t)
	prepareAndTrain(t, p)

	_, err := p.Predict(context.Background(), cfg.Paths.NewData, cfg.Paths.Predictions)
	require.Error(t, err)
	assert.True(t, dataset.IsSourceNotFound(err))
}

func TestPredict_RejectsRefitPreprocessor(t *testing.T) {
	runs := newTestRunLog(t)
	cfg := testConfig(t.TempDir())
	writeCreditData(t, cfg.Paths.RawData, 200)
	p := New(cfg, nil, runs)
	prepareAndTrain(t, p)

	// Preparing again with a new seed overwrites the preprocessor the model
	// was trained against.
	cfg.Split.Seed = 99
	_, err := p.Prepare(context.Background())
	require.NoError(t, err)

	header, rows := newDataRows()
	writeCSV(t, cfg.Paths.NewData, header, rows)
	_, err = p.Predict(context.Background(), cfg.Paths.NewData, cfg.Paths.Predictions)
	require.Error(t, err)
	assert.True(t, artifact.IsMismatch(err))

	failed, err := runs.ListRuns(context.Background(), store.RunFilter{Stage: model.StagePredict, Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Error, "artifact mismatch")
}

type stubTransformer struct {
	fp string
}

func (s stubTransformer) Transform(t *dataset.Table) (*mat.Dense, error) {
	return mat.NewDense(t.Len(), 1, nil), nil
}

func (s stubTransformer) Fingerprint() string { return s.fp }

type stubPredictor struct {
	fp    string
	label string
}

func (s stubPredictor) Predict(X mat.Matrix) ([]string, error) {
	r, _ := X.Dims()
	out := make([]string, r)
	for i := range out {
		out[i] = s.label
	}
	return out, nil
}

func (s stubPredictor) PreprocessorFingerprint() string { return s.fp }

func TestScore(t *testing.T) {
	in, err := dataset.NewTable([]string{"a", "b"}, [][]string{{"1", "x"}, {"2", "y"}})
	require.NoError(t, err)

	out, err := Score(in, stubTransformer{fp: "f"}, stubPredictor{fp: "f", label: "good"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "prediction"}, out.Columns)
	assert.Equal(t, [][]string{{"1", "x", "good"}, {"2", "y", "good"}}, out.Rows)
	assert.Equal(t, []string{"a", "b"}, in.Columns, "input is not modified")

	_, err = Score(in, stubTransformer{fp: "f"}, stubPredictor{fp: "g"})
	assert.True(t, artifact.IsMismatch(err))
}

func TestScore_ExistingPredictionColumn(t *testing.T) {
	in, err := dataset.NewTable([]string{"a", PredictionColumn}, [][]string{{"1", "bad"}})
	require.NoError(t, err)

	_, err = Score(in, stubTransformer{fp: "f"}, stubPredictor{fp: "f", label: "good"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestPredict_EchoesInputCellsVerbatim(t *testing.T) {
	p, cfg := newTestPipeline(t)
	prepareAndTrain(t, p)

	header, rows := newDataRows()
	purpose := 0
	for i, h := range header {
		if h == "Purpose" {
			purpose = i
		}
	}
	// Decomposed "e" + combining acute must come back unchanged.
	rows[0][purpose] = "cafe\u0301"
	writeCSV(t, cfg.Paths.NewData, header, rows)

	_, err := p.Predict(context.Background(), cfg.Paths.NewData, cfg.Paths.Predictions)
	require.NoError(t, err)

	out := readCSV(t, cfg.Paths.Predictions)
	assert.Equal(t, "cafe\u0301", out[1][purpose])
}
