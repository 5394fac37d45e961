package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"loanml/pkg/dataprep"
)

// Config holds all loanml configuration.
type Config struct {
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Training  TrainingConfig  `yaml:"training"`
	Server    ServerConfig    `yaml:"server"`
	Journal   JournalConfig   `yaml:"journal"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ArtifactsConfig locates the model and schema files.
type ArtifactsConfig struct {
	Dir string `yaml:"dir" envconfig:"ARTIFACT_DIR"`
}

// TrainingConfig configures the Schema Builder.
type TrainingConfig struct {
	Dataset   string  `yaml:"dataset" envconfig:"TRAIN_DATASET"`
	Impute    string  `yaml:"impute" envconfig:"TRAIN_IMPUTE"` // ffill or stats
	TestRatio float64 `yaml:"test_ratio" envconfig:"TRAIN_TEST_RATIO"`
	Seed      int64   `yaml:"seed" envconfig:"TRAIN_SEED"`

	// Forest hyperparameters. Zero MaxDepth and MaxFeatures mean no limit.
	Trees               int     `yaml:"trees" envconfig:"TRAIN_TREES"`
	MaxDepth            int     `yaml:"max_depth" envconfig:"TRAIN_MAX_DEPTH"`
	MaxFeatures         int     `yaml:"max_features" envconfig:"TRAIN_MAX_FEATURES"`
	MinSamplesLeaf      int     `yaml:"min_samples_leaf" envconfig:"TRAIN_MIN_SAMPLES_LEAF"`
	MinImpurityDecrease float64 `yaml:"min_impurity_decrease" envconfig:"TRAIN_MIN_IMPURITY_DECREASE"`
	Criterion           string  `yaml:"criterion" envconfig:"TRAIN_CRITERION"` // gini or entropy
	Bootstrap           bool    `yaml:"bootstrap" envconfig:"TRAIN_BOOTSTRAP"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string        `yaml:"addr" envconfig:"SERVER_ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SERVER_SHUTDOWN_TIMEOUT"`
}

// JournalConfig configures the optional prediction journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"JOURNAL_ENABLED"`
	Path    string `yaml:"path" envconfig:"JOURNAL_PATH"`
}

// TelemetryConfig configures OTLP metric export.
type TelemetryConfig struct {
	Enabled  bool          `yaml:"enabled" envconfig:"OTEL_ENABLED"`
	Endpoint string        `yaml:"endpoint" envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure bool          `yaml:"insecure" envconfig:"OTEL_INSECURE"`
	Interval time.Duration `yaml:"interval" envconfig:"OTEL_EXPORT_INTERVAL"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" envconfig:"LOG_FORMAT"` // json or console
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Artifacts: ArtifactsConfig{Dir: "artifacts"},
		Training: TrainingConfig{
			Impute:         string(dataprep.ImputeForwardFill),
			TestRatio:      0.2,
			Seed:           42,
			Trees:          100,
			MinSamplesLeaf: 1,
			Criterion:      "gini",
			Bootstrap:      true,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Journal:   JournalConfig{Path: "predictions.db"},
		Telemetry: TelemetryConfig{Interval: 30 * time.Second},
		Logging:   LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads path over the defaults, then applies LOANML_* environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	sections := []struct {
		name   string
		target any
	}{
		{"artifacts", &c.Artifacts},
		{"training", &c.Training},
		{"server", &c.Server},
		{"journal", &c.Journal},
		{"telemetry", &c.Telemetry},
		{"logging", &c.Logging},
	}
	for _, s := range sections {
		if err := envconfig.Process("loanml", s.target); err != nil {
			return fmt.Errorf("env overrides (%s): %w", s.name, err)
		}
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Artifacts.Dir == "" {
		errs = append(errs, errors.New("artifacts.dir is required"))
	}
	if _, err := dataprep.ParseImputeStrategy(c.Training.Impute); err != nil {
		errs = append(errs, fmt.Errorf("training.impute: %w", err))
	}
	if c.Training.TestRatio < 0 || c.Training.TestRatio >= 1 {
		errs = append(errs, fmt.Errorf("training.test_ratio %v outside [0,1)", c.Training.TestRatio))
	}
	if c.Training.Trees <= 0 {
		errs = append(errs, fmt.Errorf("training.trees must be positive, got %d", c.Training.Trees))
	}
	if c.Training.MaxDepth < 0 {
		errs = append(errs, fmt.Errorf("training.max_depth must not be negative, got %d", c.Training.MaxDepth))
	}
	if c.Training.MaxFeatures < 0 {
		errs = append(errs, fmt.Errorf("training.max_features must not be negative, got %d", c.Training.MaxFeatures))
	}
	if c.Training.MinSamplesLeaf < 1 {
		errs = append(errs, fmt.Errorf("training.min_samples_leaf must be at least 1, got %d", c.Training.MinSamplesLeaf))
	}
	if c.Training.MinImpurityDecrease < 0 {
		errs = append(errs, fmt.Errorf("training.min_impurity_decrease must not be negative, got %v", c.Training.MinImpurityDecrease))
	}
	switch c.Training.Criterion {
	case "gini", "entropy":
	default:
		errs = append(errs, fmt.Errorf("training.criterion %q is not gini or entropy", c.Training.Criterion))
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, errors.New("journal.path is required when the journal is enabled"))
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		errs = append(errs, errors.New("telemetry.endpoint is required when telemetry is enabled"))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not json or console", c.Logging.Format))
	}
	return errors.Join(errs...)
}
