// Package config provides centralized configuration management for healthetl.
// It loads configuration from multiple sources, validates it, and exposes a
// type-safe struct to the rest of the application.
//
// # Configuration Sources
//
// Configuration is resolved in the following order, later sources winning:
//
//	1. Default values (Default)
//	2. YAML configuration file (healthetl.yaml or the -config flag)
//	3. Environment variables (highest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern HEALTHETL_<SECTION>_<FIELD>:
//
//	HEALTHETL_PIPELINE_SOURCE_PATH=/opt/data/healthcare_dataset.csv
//	HEALTHETL_STORAGE_BACKEND=gcs
//	HEALTHETL_STORAGE_BUCKET=healthcare-etl
//	HEALTHETL_SCHEDULE_SPEC=@daily
//	HEALTHETL_HISTORY_DRIVER=postgres
//	HEALTHETL_LOGGING_LEVEL=debug
//
// # Validation
//
// Struct tags are checked with go-playground/validator, followed by a few
// cross-field checks (time zone names, backend specific settings).
package config
