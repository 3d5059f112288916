package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix prefixes every environment override, e.g. CARPREP_PIPELINE_SOURCE_DIR.
const EnvPrefix = "CARPREP"

// Config represents the complete application configuration
type Config struct {
	Pipeline PipelineConfig `yaml:"pipeline" envconfig:"PIPELINE"`
	State    StateConfig    `yaml:"state" envconfig:"STATE"`
	Metrics  MetricsConfig  `yaml:"metrics" envconfig:"METRICS"`
	Mirror   MirrorConfig   `yaml:"mirror" envconfig:"MIRROR"`
	Watch    WatchConfig    `yaml:"watch" envconfig:"WATCH"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
}

// PipelineConfig controls the preparation run itself
type PipelineConfig struct {
	SourceDir      string `yaml:"source_dir" envconfig:"SOURCE_DIR" validate:"required"`
	OutputPath     string `yaml:"output_path" envconfig:"OUTPUT_PATH" validate:"required"`
	ReferenceYear  int    `yaml:"reference_year" envconfig:"REFERENCE_YEAR" validate:"min=1900,max=3000"`
	ImputeFallback string `yaml:"impute_fallback" envconfig:"IMPUTE_FALLBACK" validate:"oneof=fail zero"`
	PreviewRows    int    `yaml:"preview_rows" envconfig:"PREVIEW_ROWS" validate:"min=0"`
}

// StateConfig locates the run history database. Empty disables history.
type StateConfig struct {
	DBPath string `yaml:"db_path" envconfig:"DB_PATH"`
}

// MetricsConfig locates the Prometheus text file. Empty disables export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" envconfig:"TEXTFILE"`
}

// MirrorConfig optionally copies the cleaned dataset into a database
type MirrorConfig struct {
	Driver   string `yaml:"driver" envconfig:"DRIVER" validate:"omitempty,oneof=sqlite postgres mysql mongo"`
	DSN      string `yaml:"dsn" envconfig:"DSN" validate:"required_with=Driver"`
	Database string `yaml:"database" envconfig:"DATABASE"`
	Table    string `yaml:"table" envconfig:"TABLE" validate:"required_with=Driver"`
}

// WatchConfig controls re-runs in watch mode
type WatchConfig struct {
	Schedule string        `yaml:"schedule" envconfig:"SCHEDULE"`
	Debounce time.Duration `yaml:"debounce" envconfig:"DEBOUNCE" validate:"min=0"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Pipeline: PipelineConfig{
			SourceDir:      ".",
			OutputPath:     "cleaned_car_data.csv",
			ReferenceYear:  2025,
			ImputeFallback: "fail",
			PreviewRows:    5,
		},
		Mirror:  MirrorConfig{Table: "cleaned_car_data"},
		Watch:   WatchConfig{Debounce: 500 * time.Millisecond},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (if path is non-empty), then CARPREP_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Only variables that are set override; no default tags so file values survive.
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// loadFromFile overlays the YAML file onto cfg
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, cfg)
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}
