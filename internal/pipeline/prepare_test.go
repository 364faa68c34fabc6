package pipeline

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/credit-risk-cli/internal/artifact"
	"github.com/sells-group/credit-risk-cli/internal/dataset"
	"github.com/sells-group/credit-risk-cli/internal/model"
	"github.com/sells-group/credit-risk-cli/internal/preprocess"
	"github.com/sells-group/credit-risk-cli/internal/schema"
	"github.com/sells-group/credit-risk-cli/internal/store"
)

func loadBundle(t *testing.T, path string) *dataset.Processed {
	t.Helper()
	var b dataset.Processed
	_, err := artifact.NewStore(zap.NewNop()).Load(context.Background(), artifact.KindDataset, path, &b)
	require.NoError(t, err)
	return &b
}

func TestPrepare_WritesArtifacts(t *testing.T) {
	p, cfg := newTestPipeline(t)

	res, err := p.Prepare(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 200, res.Rows)
	assert.Equal(t, 140, res.TrainRows)
	assert.Equal(t, 60, res.TestRows)
	assert.Len(t, res.PreprocessorFingerprint, 32)

	hdr, err := artifact.Inspect(cfg.Paths.Preprocessor)
	require.NoError(t, err)
	assert.Equal(t, artifact.KindPreprocessor, hdr.Kind)
	assert.Equal(t, res.PreprocessorFingerprint, hdr.Fingerprint)

	bundle := loadBundle(t, cfg.Paths.ProcessedData)
	assert.Equal(t, res.PreprocessorFingerprint, bundle.PreprocessorFingerprint)
	rows, cols := bundle.XTrain.Dims()
	assert.Equal(t, 140, rows)
	assert.Equal(t, res.Features, cols)
	assert.Len(t, bundle.FeatureNames, cols)
	assert.Equal(t, "num__Duration", bundle.FeatureNames[0])

	// 3 numeric + Job(4) + Housing(3) + Sex(2) + Saving(4) + Checking(3) + Purpose(5).
	assert.Equal(t, 3+4+3+2+4+3+5, cols)
}

func TestPrepare_StratifiesLabels(t *testing.T) {
	p, cfg := newTestPipeline(t)
	_, err := p.Prepare(context.Background())
	require.NoError(t, err)

	bundle := loadBundle(t, cfg.Paths.ProcessedData)
	count := func(labels []string, want string) int {
		n := 0
		for _, l := range labels {
			if l == want {
				n++
			}
		}
		return n
	}
	totalBad := count(bundle.YTrain, "bad") + count(bundle.YTest, "bad")
	expected := float64(totalBad) * 0.3
	assert.InDelta(t, expected, float64(count(bundle.YTest, "bad")), 1.0)
}

func TestPrepare_Deterministic(t *testing.T) {
	a, cfgA := newTestPipeline(t)
	b, cfgB := newTestPipeline(t)

	_, err := a.Prepare(context.Background())
	require.NoError(t, err)
	_, err = b.Prepare(context.Background())
	require.NoError(t, err)

	ba := loadBundle(t, cfgA.Paths.ProcessedData)
	bb := loadBundle(t, cfgB.Paths.ProcessedData)
	assert.True(t, mat.Equal(ba.XTrain, bb.XTrain))
	assert.True(t, mat.Equal(ba.XTest, bb.XTest))
	assert.Equal(t, ba.YTest, bb.YTest)
	assert.Equal(t, ba.Fingerprint(), bb.Fingerprint())
}

func TestPrepare_PreprocessorRoundTrip(t *testing.T) {
	p, cfg := newTestPipeline(t)
	_, err := p.Prepare(context.Background())
	require.NoError(t, err)

	var pre preprocess.Preprocessor
	_, err = artifact.NewStore(nil).Load(context.Background(), artifact.KindPreprocessor, cfg.Paths.Preprocessor, &pre)
	require.NoError(t, err)

	raw, err := dataset.Load(context.Background(), cfg.Paths.RawData, cfg.Source.Options(true))
	require.NoError(t, err)
	sample := raw.Subset([]int{0, 1, 2, 3, 4})

	out, err := pre.Transform(sample)
	require.NoError(t, err)
	_, cols := out.Dims()
	assert.Equal(t, pre.OutputWidth(), cols)
	assert.Empty(t, pre.Remainder())
}

func TestPrepare_SourceNotFound(t *testing.T) {
	p, cfg := newTestPipeline(t)
	require.NoError(t, os.Remove(cfg.Paths.RawData))

	_, err := p.Prepare(context.Background())
	require.Error(t, err)
	assert.True(t, dataset.IsSourceNotFound(err))
	assert.Contains(t, err.Error(), cfg.Paths.RawData)

	_, statErr := os.Stat(cfg.Paths.Preprocessor)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPrepare_MissingTarget(t *testing.T) {
	cfg := testConfig(t.TempDir())
	rows := make([][]string, 50)
	for i := range rows {
		rows[i] = creditRow(i)
	}
	header, rows := dropColumn(creditHeader, rows, "Risk")
	writeCSV(t, cfg.Paths.RawData, header, rows)

	_, err := New(cfg, nil, nil).Prepare(context.Background())
	require.Error(t, err)
	assert.True(t, schema.IsMismatch(err))
	assert.Contains(t, err.Error(), `"target"`)
}

func TestPrepare_MissingFeature(t *testing.T) {
	cfg := testConfig(t.TempDir())
	rows := make([][]string, 50)
	for i := range rows {
		rows[i] = creditRow(i)
	}
	header, rows := dropColumn(creditHeader, rows, "Purpose")
	writeCSV(t, cfg.Paths.RawData, header, rows)

	_, err := New(cfg, nil, nil).Prepare(context.Background())
	require.Error(t, err)
	assert.True(t, schema.IsMismatch(err))
	assert.Contains(t, err.Error(), `"Purpose"`)
}

func TestPrepare_InsufficientClass(t *testing.T) {
	cfg := testConfig(t.TempDir())
	rows := make([][]string, 20)
	for i := range rows {
		rows[i] = creditRow(i)
		rows[i][len(rows[i])-1] = "good"
	}
	rows[3][len(rows[3])-1] = "bad"
	writeCSV(t, cfg.Paths.RawData, creditHeader, rows)

	_, err := New(cfg, nil, nil).Prepare(context.Background())
	require.Error(t, err)
	assert.True(t, dataset.IsInsufficientData(err))
	assert.Contains(t, err.Error(), `"bad"`)
}

func TestPrepare_RecordsRun(t *testing.T) {
	runs := newTestRunLog(t)
	cfg := testConfig(t.TempDir())
	writeCreditData(t, cfg.Paths.RawData, 100)
	p := New(cfg, zap.NewNop(), runs)

	_, err := p.Prepare(context.Background())
	require.NoError(t, err)
	require.NoError(t, os.Remove(cfg.Paths.RawData))
	_, err = p.Prepare(context.Background())
	require.Error(t, err)

	list, err := runs.ListRuns(context.Background(), store.RunFilter{Stage: model.StagePrepare})
	require.NoError(t, err)
	require.Len(t, list, 2)

	byStatus := map[model.RunStatus]model.Run{}
	for _, r := range list {
		byStatus[r.Status] = r
	}
	done := byStatus[model.RunStatusComplete]
	require.NotNil(t, done.Result)
	assert.Equal(t, 100, done.Result.Rows)
	assert.Equal(t, cfg.Hash(), done.ConfigHash)

	failed := byStatus[model.RunStatusFailed]
	assert.Contains(t, failed.Error, "source data not found")
}
