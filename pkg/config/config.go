package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all pipeline configuration
type Config struct {
	Environment string
	Database    DatabaseConfig
	Redis       RedisConfig
	OTEL        OTELConfig
	Sources     SourcesConfig
	Pipeline    PipelineConfig
}

// DatabaseConfig holds warehouse database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig holds Redis configuration for the pipeline event bus
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Enabled  bool
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// SourcesConfig holds the input file locations for the four source systems
type SourcesConfig struct {
	PatientsCSV     string
	EncountersJSON  string
	LabResultsCSV   string
	AppointmentsCSV string
}

// PipelineConfig holds tuning knobs for a pipeline run
type PipelineConfig struct {
	Workers            int
	CompletenessWeight float64
	ValidityWeight     float64
	MinRecordDate      time.Time
	LoadTimeout        time.Duration
	RejectsParquet     string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	minDate, err := time.Parse("2006-01-02", getEnv("PIPELINE_MIN_RECORD_DATE", "1900-01-01"))
	if err != nil {
		return nil, fmt.Errorf("invalid PIPELINE_MIN_RECORD_DATE: %w", err)
	}

	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "nhs_warehouse"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "nhs-data-integration"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
		Sources: SourcesConfig{
			PatientsCSV:     getEnv("SOURCE_PAS_CSV", "data/sources/pas/patients.csv"),
			EncountersJSON:  getEnv("SOURCE_EHR_JSON", "data/sources/ehr/encounters.json"),
			LabResultsCSV:   getEnv("SOURCE_LIMS_CSV", "data/sources/lims/lab_results.csv"),
			AppointmentsCSV: getEnv("SOURCE_APPOINTMENTS_CSV", "data/sources/appointments/appointments.csv"),
		},
		Pipeline: PipelineConfig{
			Workers:            getEnvAsInt("PIPELINE_WORKERS", 4),
			CompletenessWeight: getEnvAsFloat("QUALITY_COMPLETENESS_WEIGHT", 0.5),
			ValidityWeight:     getEnvAsFloat("QUALITY_VALIDITY_WEIGHT", 0.5),
			MinRecordDate:      minDate,
			LoadTimeout:        time.Duration(getEnvAsInt("LOAD_TIMEOUT_SECONDS", 60)) * time.Second,
			RejectsParquet:     getEnv("REJECTS_PARQUET_PATH", ""),
		},
	}, nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
