package config

import "time"

// Application constants
const (
	AppName = "healthetl"

	// EnvPrefix namespaces every environment variable
	EnvPrefix = "HEALTHETL"

	// DefaultConfigFile is searched for in the working directory
	DefaultConfigFile = "healthetl.yaml"
)

// Pipeline defaults
const (
	DefaultSourcePath = "data/healthcare_dataset.csv"
	DefaultNamespace  = "healthcare_data"
	DefaultOutputDir  = "data/output"
	DefaultHistoryDSN = "data/healthetl.db"
	DefaultLogFile    = "logs/healthetl.log"
)

// Scheduling defaults
const (
	DefaultScheduleSpec     = "@daily"
	DefaultTimezone         = "UTC"
	DefaultRunTimeout       = 30 * time.Minute
	DefaultRetryAttempts    = 3
	DefaultRetryDelay       = 1 * time.Minute
	DefaultRetryMaxDelay    = 10 * time.Minute
	DefaultRetryMultiplier  = 2.0
	DefaultWatchDebounce    = 2 * time.Second
	DefaultStorageTimeout   = 2 * time.Minute
	DefaultShutdownTimeout  = 30 * time.Second
	DefaultHTTPReadTimeout  = 15 * time.Second
	DefaultHTTPWriteTimeout = 15 * time.Second
)
