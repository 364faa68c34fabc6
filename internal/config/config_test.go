package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data/raw/german_credit_data.csv", cfg.Paths.RawData)
	assert.Equal(t, "processed/processed_data.gob", cfg.Paths.ProcessedData)
	assert.Equal(t, "model/preprocessor.gob", cfg.Paths.Preprocessor)
	assert.Equal(t, "model/model.gob", cfg.Paths.Model)
	assert.Equal(t, "model/metrics.json", cfg.Paths.Metrics)
	assert.Equal(t, "predictions.csv", cfg.Paths.Predictions)
	assert.Equal(t, ",", cfg.Source.Delimiter)
	assert.Equal(t, []string{"Unnamed: 0", ""}, cfg.Source.DropColumns)
	assert.Equal(t, []string{"Duration", "Credit amount", "Age"}, cfg.Schema.Numeric)
	assert.Len(t, cfg.Schema.Categorical, 6)
	assert.Equal(t, "Risk", cfg.Schema.Target)
	assert.Equal(t, "target", cfg.Schema.TargetCanonical)
	assert.InDelta(t, 0.3, cfg.Split.TestSize, 1e-12)
	assert.Equal(t, int64(42), cfg.Split.Seed)
	assert.Equal(t, 500, cfg.Train.MaxIter)
	assert.InDelta(t, 1.0, cfg.Train.C, 1e-12)
	assert.True(t, cfg.RunLog.Enabled)
	assert.Equal(t, "model/runs.db", cfg.RunLog.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	for _, mode := range []string{"prepare", "train", "predict", "runs", "schema"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
paths:
  raw_data: in/credit.xlsx
source:
  delimiter: ";"
  encoding: latin1
schema:
  numeric: [Age]
  categorical: [Sex]
split:
  test_size: 0.25
  seed: 7
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "in/credit.xlsx", cfg.Paths.RawData)
	assert.Equal(t, ";", cfg.Source.Delimiter)
	assert.Equal(t, "latin1", cfg.Source.Encoding)
	assert.Equal(t, []string{"Age"}, cfg.Schema.Numeric)
	assert.Equal(t, []string{"Sex"}, cfg.Schema.Categorical)
	assert.InDelta(t, 0.25, cfg.Split.TestSize, 1e-12)
	assert.Equal(t, int64(7), cfg.Split.Seed)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, "model/model.gob", cfg.Paths.Model)
	assert.Equal(t, "Risk", cfg.Schema.Target)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
split:
  seed: 7
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("CREDITRISK_SPLIT_SEED", "99")
	t.Setenv("CREDITRISK_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, int64(99), cfg.Split.Seed)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("CREDITRISK_PATHS_MODEL", "out/m.gob")
	t.Setenv("CREDITRISK_RUNLOG_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "out/m.gob", cfg.Paths.Model)
	assert.False(t, cfg.RunLog.Enabled)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("paths: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	logger, err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, logger)
	assert.Same(t, logger, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	logger, err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	_, err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config loaded with defaults for validation tests.
func validDefaults(t *testing.T) *Config {
	t.Helper()
	chdirTemp(t)
	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestValidatePrepare_BadSplit(t *testing.T) {
	cfg := validDefaults(t)
	cfg.Split.TestSize = 1.5

	err := cfg.Validate("prepare")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "split.test_size must be in (0, 1)")
}

func TestValidatePrepare_MissingPathsAndDelimiter(t *testing.T) {
	cfg := validDefaults(t)
	cfg.Paths.RawData = ""
	cfg.Source.Delimiter = ";;"

	err := cfg.Validate("prepare")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paths.raw_data is required")
	assert.Contains(t, err.Error(), "source.delimiter must be a single character")
}

func TestValidatePrepare_BadSchema(t *testing.T) {
	cfg := validDefaults(t)
	cfg.Schema.Categorical = append(cfg.Schema.Categorical, "Age")

	err := cfg.Validate("prepare")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"Age"`)
}

func TestValidateTrain_BadParams(t *testing.T) {
	cfg := validDefaults(t)
	cfg.Train.C = 0

	err := cfg.Validate("train")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "c must be > 0")
}

func TestValidateRunLogPath(t *testing.T) {
	cfg := validDefaults(t)
	cfg.RunLog.Path = ""

	err := cfg.Validate("predict")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runlog.path is required")

	cfg.RunLog.Enabled = false
	assert.NoError(t, cfg.Validate("predict"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults(t)
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestSourceOptions(t *testing.T) {
	src := SourceConfig{Delimiter: ";", Encoding: "latin1", DropColumns: []string{"Unnamed: 0"}}

	train := src.Options(true)
	assert.Equal(t, ';', train.Delimiter)
	assert.Equal(t, "latin1", train.Encoding)
	assert.Equal(t, []string{"Unnamed: 0"}, train.DropColumns)

	infer := src.Options(false)
	assert.Empty(t, infer.DropColumns)
}

func TestHash(t *testing.T) {
	cfg := validDefaults(t)
	h := cfg.Hash()
	assert.Len(t, h, 32)

	moved := *cfg
	moved.Paths.Model = "elsewhere/model.gob"
	moved.Log.Level = "debug"
	assert.Equal(t, h, moved.Hash())

	reseeded := *cfg
	reseeded.Split.Seed = 1
	assert.NotEqual(t, h, reseeded.Hash())
}
