package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Pipeline  PipelineConfig  `yaml:"pipeline" envconfig:"PIPELINE"`
	Storage   StorageConfig   `yaml:"storage" envconfig:"STORAGE"`
	Schedule  ScheduleConfig  `yaml:"schedule" envconfig:"SCHEDULE"`
	History   HistoryConfig   `yaml:"history" envconfig:"HISTORY"`
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// PipelineConfig describes the source snapshot and the publish namespace
type PipelineConfig struct {
	SourcePath string `yaml:"source_path" envconfig:"SOURCE_PATH" validate:"required"`
	Namespace  string `yaml:"namespace" envconfig:"NAMESPACE" validate:"required"`
	// DateLayouts overrides the accepted admission/discharge date formats
	DateLayouts []string `yaml:"date_layouts" envconfig:"DATE_LAYOUTS"`
	// Sheet selects the worksheet of xlsx sources; empty means the first
	Sheet string `yaml:"sheet" envconfig:"SHEET"`
}

// StorageConfig selects and configures the object storage sink
type StorageConfig struct {
	Backend         string        `yaml:"backend" envconfig:"BACKEND" validate:"oneof=file gcs memory"`
	Dir             string        `yaml:"dir" envconfig:"DIR" validate:"required_if=Backend file"`
	Bucket          string        `yaml:"bucket" envconfig:"BUCKET" validate:"required_if=Backend gcs"`
	CredentialsFile string        `yaml:"credentials_file" envconfig:"CREDENTIALS_FILE"`
	Endpoint        string        `yaml:"endpoint" envconfig:"ENDPOINT" validate:"omitempty,url"`
	Timeout         time.Duration `yaml:"timeout" envconfig:"TIMEOUT" validate:"gt=0"`
}

// ScheduleConfig configures the daily trigger and whole-run retry policy
type ScheduleConfig struct {
	Spec       string        `yaml:"spec" envconfig:"SPEC" validate:"required"`
	Timezone   string        `yaml:"timezone" envconfig:"TIMEZONE" validate:"required"`
	RunTimeout time.Duration `yaml:"run_timeout" envconfig:"RUN_TIMEOUT" validate:"gt=0"`
	Retry      RetryConfig   `yaml:"retry" envconfig:"RETRY"`
	// WatchSource also triggers a run when the source file is rewritten
	WatchSource   bool          `yaml:"watch_source" envconfig:"WATCH_SOURCE"`
	WatchDebounce time.Duration `yaml:"watch_debounce" envconfig:"WATCH_DEBOUNCE" validate:"gte=0"`
}

// RetryConfig defines retry behavior for whole runs
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS" validate:"min=1,max=10"`
	InitialDelay time.Duration `yaml:"initial_delay" envconfig:"INITIAL_DELAY" validate:"gte=0"`
	MaxDelay     time.Duration `yaml:"max_delay" envconfig:"MAX_DELAY" validate:"gtefield=InitialDelay"`
	Multiplier   float64       `yaml:"multiplier" envconfig:"MULTIPLIER" validate:"gte=1"`
}

// HistoryConfig configures the run history database; an empty driver disables it
type HistoryConfig struct {
	Driver string `yaml:"driver" envconfig:"DRIVER" validate:"omitempty,oneof=sqlite postgres mysql"`
	DSN    string `yaml:"dsn" envconfig:"DSN" validate:"required_with=Driver"`
}

// ServerConfig contains admin HTTP server configuration
type ServerConfig struct {
	Enabled         bool            `yaml:"enabled" envconfig:"ENABLED"`
	Addr            string          `yaml:"addr" envconfig:"ADDR" validate:"required_if=Enabled true"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	// AllowedOrigins restricts websocket upgrades; empty allows any origin
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" validate:"gt=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" validate:"gt=0"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Format   string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// TelemetryConfig contains OpenTelemetry configuration
type TelemetryConfig struct {
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=stdout none"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" validate:"oneof=prometheus none"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" validate:"gte=0,lte=1"`
}

// Load resolves defaults, the YAML file at path (or the default file when path
// is empty and it exists) and environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = getConfigFilePath()
	}
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Fields without a matching variable keep their current value
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// getConfigFilePath returns the default config file if present
func getConfigFilePath() string {
	locations := []string{
		DefaultConfigFile,
		"configs/" + DefaultConfigFile,
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid schedule timezone %q: %w", c.Schedule.Timezone, err)
	}

	if (c.Logging.Output == "file" || c.Logging.Output == "both") && c.Logging.FilePath == "" {
		return fmt.Errorf("logging file path is required for output %q", c.Logging.Output)
	}

	return nil
}

// Location returns the time zone runs are dated in
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Schedule.Timezone)
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			SourcePath: DefaultSourcePath,
			Namespace:  DefaultNamespace,
		},
		Storage: StorageConfig{
			Backend: "file",
			Dir:     DefaultOutputDir,
			Timeout: DefaultStorageTimeout,
		},
		Schedule: ScheduleConfig{
			Spec:          DefaultScheduleSpec,
			Timezone:      DefaultTimezone,
			RunTimeout:    DefaultRunTimeout,
			WatchDebounce: DefaultWatchDebounce,
			Retry: RetryConfig{
				MaxAttempts:  DefaultRetryAttempts,
				InitialDelay: DefaultRetryDelay,
				MaxDelay:     DefaultRetryMaxDelay,
				Multiplier:   DefaultRetryMultiplier,
			},
		},
		History: HistoryConfig{
			Driver: "sqlite",
			DSN:    DefaultHistoryDSN,
		},
		Server: ServerConfig{
			Enabled:         true,
			Addr:            ":8080",
			ReadTimeout:     DefaultHTTPReadTimeout,
			WriteTimeout:    DefaultHTTPWriteTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     10,
				Burst:   20,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: DefaultLogFile,
		},
		Telemetry: TelemetryConfig{
			Environment:    "development",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
		},
	}
}
