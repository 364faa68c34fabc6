package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/credit-risk-cli/internal/classifier"
	"github.com/sells-group/credit-risk-cli/internal/config"
	"github.com/sells-group/credit-risk-cli/internal/dataset"
	"github.com/sells-group/credit-risk-cli/internal/schema"
	"github.com/sells-group/credit-risk-cli/internal/store"
)

var creditHeader = []string{
	"", "Age", "Sex", "Job", "Housing", "Saving accounts", "Checking account",
	"Credit amount", "Duration", "Purpose", "Risk",
}

// creditRow builds a deterministic German-credit-shaped record. Long loans
// and every seventh applicant are bad risks.
func creditRow(i int) []string {
	duration := 6 * (i%8 + 1)
	risk := "good"
	if duration >= 36 || i%7 == 0 {
		risk = "bad"
	}
	return []string{
		fmt.Sprint(i),
		fmt.Sprint(20 + i%50),
		[]string{"male", "female"}[i%2],
		fmt.Sprint(i % 4),
		[]string{"own", "rent", "free"}[i%3],
		[]string{"little", "moderate", "rich", "quite rich"}[i%4],
		[]string{"little", "moderate", "rich"}[i%3],
		fmt.Sprint(1000 + (i*37)%5000),
		fmt.Sprint(duration),
		[]string{"car", "radio/TV", "education", "business", "furniture/equipment"}[i%5],
		risk,
	}
}

func writeCSV(t *testing.T, path string, header []string, rows [][]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	require.NoError(t, w.Write(header))
	require.NoError(t, w.WriteAll(rows))
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func writeCreditData(t *testing.T, path string, n int) {
	t.Helper()
	rows := make([][]string, n)
	for i := range rows {
		rows[i] = creditRow(i)
	}
	writeCSV(t, path, creditHeader, rows)
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		Paths: config.PathsConfig{
			RawData:       filepath.Join(dir, "data", "raw", "german_credit_data.csv"),
			ProcessedData: filepath.Join(dir, "processed", "processed_data.gob"),
			Preprocessor:  filepath.Join(dir, "model", "preprocessor.gob"),
			Model:         filepath.Join(dir, "model", "model.gob"),
			Metrics:       filepath.Join(dir, "model", "metrics.json"),
			NewData:       filepath.Join(dir, "data", "new", "new_data.csv"),
			Predictions:   filepath.Join(dir, "predictions.csv"),
		},
		Source: config.SourceConfig{
			Delimiter:   ",",
			Encoding:    "utf-8",
			DropColumns: []string{"Unnamed: 0", ""},
		},
		Schema: schema.Default(),
		Split:  dataset.DefaultSplitOptions(),
		Train:  classifier.DefaultParams(),
	}
}

// newTestPipeline returns a pipeline rooted in a temp dir holding 200 raw rows.
func newTestPipeline(t *testing.T) (*Pipeline, *config.Config) {
	t.Helper()
	cfg := testConfig(t.TempDir())
	writeCreditData(t, cfg.Paths.RawData, 200)
	return New(cfg, zap.NewNop(), nil), cfg
}

func newTestRunLog(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func prepareAndTrain(t *testing.T, p *Pipeline) {
	t.Helper()
	ctx := context.Background()
	_, err := p.Prepare(ctx)
	require.NoError(t, err)
	_, err = p.Train(ctx)
	require.NoError(t, err)
}

// dropColumn removes name from a header and its rows.
func dropColumn(header []string, rows [][]string, name string) ([]string, [][]string) {
	idx := -1
	for i, h := range header {
		if strings.EqualFold(h, name) {
			idx = i
		}
	}
	if idx < 0 {
		return header, rows
	}
	cut := func(r []string) []string {
		out := append([]string(nil), r[:idx]...)
		return append(out, r[idx+1:]...)
	}
	outRows := make([][]string, len(rows))
	for i, r := range rows {
		outRows[i] = cut(r)
	}
	return cut(header), outRows
}
