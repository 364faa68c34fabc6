package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/credit-risk-cli/internal/classifier"
	"github.com/sells-group/credit-risk-cli/internal/dataset"
	"github.com/sells-group/credit-risk-cli/internal/schema"
)

// Config holds the full application configuration.
type Config struct {
	Paths  PathsConfig          `yaml:"paths" mapstructure:"paths"`
	Source SourceConfig         `yaml:"source" mapstructure:"source"`
	Schema schema.Schema        `yaml:"schema" mapstructure:"schema"`
	Split  dataset.SplitOptions `yaml:"split" mapstructure:"split"`
	Train  classifier.Params    `yaml:"train" mapstructure:"train"`
	RunLog RunLogConfig         `yaml:"runlog" mapstructure:"runlog"`
	Log    LogConfig            `yaml:"log" mapstructure:"log"`
}

// PathsConfig locates the pipeline's inputs and artifacts.
type PathsConfig struct {
	RawData       string `yaml:"raw_data" mapstructure:"raw_data"`
	ProcessedData string `yaml:"processed_data" mapstructure:"processed_data"`
	Preprocessor  string `yaml:"preprocessor" mapstructure:"preprocessor"`
	Model         string `yaml:"model" mapstructure:"model"`
	Metrics       string `yaml:"metrics" mapstructure:"metrics"`
	NewData       string `yaml:"new_data" mapstructure:"new_data"`
	Predictions   string `yaml:"predictions" mapstructure:"predictions"`
}

// SourceConfig describes how raw files are read.
type SourceConfig struct {
	Delimiter   string   `yaml:"delimiter" mapstructure:"delimiter"`
	Encoding    string   `yaml:"encoding" mapstructure:"encoding"`
	Sheet       string   `yaml:"sheet" mapstructure:"sheet"`
	DropColumns []string `yaml:"drop_columns" mapstructure:"drop_columns"`
}

// Options converts the source settings for the given stage. Column drops
// apply to training data only; inference input is read as-is.
func (s SourceConfig) Options(dropColumns bool) dataset.SourceOptions {
	opts := dataset.SourceOptions{
		Encoding: s.Encoding,
		Sheet:    s.Sheet,
	}
	if r, _ := utf8.DecodeRuneInString(s.Delimiter); r != utf8.RuneError {
		opts.Delimiter = r
	}
	if dropColumns {
		opts.DropColumns = s.DropColumns
	}
	return opts
}

// RunLogConfig configures the SQLite run log.
type RunLogConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CREDITRISK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	def := schema.Default()
	split := dataset.DefaultSplitOptions()
	train := classifier.DefaultParams()
	v.SetDefault("paths.raw_data", "data/raw/german_credit_data.csv")
	v.SetDefault("paths.processed_data", "processed/processed_data.gob")
	v.SetDefault("paths.preprocessor", "model/preprocessor.gob")
	v.SetDefault("paths.model", "model/model.gob")
	v.SetDefault("paths.metrics", "model/metrics.json")
	v.SetDefault("paths.new_data", "data/new/new_data.csv")
	v.SetDefault("paths.predictions", "predictions.csv")
	v.SetDefault("source.delimiter", ",")
	v.SetDefault("source.encoding", "utf-8")
	v.SetDefault("source.sheet", "")
	v.SetDefault("source.drop_columns", []string{"Unnamed: 0", ""})
	v.SetDefault("schema.numeric", def.Numeric)
	v.SetDefault("schema.categorical", def.Categorical)
	v.SetDefault("schema.target", def.Target)
	v.SetDefault("schema.target_canonical", def.TargetCanonical)
	v.SetDefault("split.test_size", split.TestSize)
	v.SetDefault("split.seed", split.Seed)
	v.SetDefault("train.max_iter", train.MaxIter)
	v.SetDefault("train.c", train.C)
	v.SetDefault("train.tolerance", train.Tolerance)
	v.SetDefault("runlog.enabled", true)
	v.SetDefault("runlog.path", "model/runs.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is the command name.
func (c *Config) Validate(mode string) error {
	var problems []string
	require := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	switch mode {
	case "prepare":
		require(c.Paths.RawData != "", "paths.raw_data is required")
		require(c.Paths.ProcessedData != "", "paths.processed_data is required")
		require(c.Paths.Preprocessor != "", "paths.preprocessor is required")
		require(c.Split.TestSize > 0 && c.Split.TestSize < 1, "split.test_size must be in (0, 1)")
		require(utf8.RuneCountInString(c.Source.Delimiter) == 1, "source.delimiter must be a single character")
		if err := c.Schema.Check(); err != nil {
			problems = append(problems, err.Error())
		}
	case "train":
		require(c.Paths.ProcessedData != "", "paths.processed_data is required")
		require(c.Paths.Preprocessor != "", "paths.preprocessor is required")
		require(c.Paths.Model != "", "paths.model is required")
		require(c.Paths.Metrics != "", "paths.metrics is required")
		if err := c.Train.Validate(); err != nil {
			problems = append(problems, err.Error())
		}
	case "predict":
		require(c.Paths.Preprocessor != "", "paths.preprocessor is required")
		require(c.Paths.Model != "", "paths.model is required")
		require(c.Paths.Predictions != "", "paths.predictions is required")
		require(utf8.RuneCountInString(c.Source.Delimiter) == 1, "source.delimiter must be a single character")
	case "runs":
		require(c.RunLog.Path != "", "runlog.path is required")
	case "schema":
		if err := c.Schema.Check(); err != nil {
			problems = append(problems, err.Error())
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.RunLog.Enabled && mode != "schema" {
		require(c.RunLog.Path != "", "runlog.path is required when runlog.enabled is true")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Hash returns a short fingerprint of the settings that affect pipeline
// output. Paths and logging are excluded so moving a workspace keeps the hash.
func (c *Config) Hash() string {
	data, err := json.Marshal(struct {
		Source SourceConfig
		Schema schema.Schema
		Split  dataset.SplitOptions
		Train  classifier.Params
	}{c.Source, c.Schema, c.Split, c.Train})
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:16])
}

// InitLogger builds the logger described by cfg and installs it as the zap
// global.
func InitLogger(cfg LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return logger, nil
}
