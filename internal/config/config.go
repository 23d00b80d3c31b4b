// Package config defines the configuration structure for upkeep binaries.
// Configuration is loaded once at process start and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> Secret files (_FILE) -> AWS SSM (_SSM_PARAM)
//
// Any missing required value or invalid format fails startup immediately.
package config

import (
	"time"

	"upkeep/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the subset they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"upkeep"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	Schedule      ScheduleConfig
	Notify        NotifyConfig
	Email         EmailConfig
	Security      SecurityConfig
	Observability ObservabilityConfig
	AWS           AWSConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
}

// DatabaseConfig selects the storage backend and tunes the Postgres pool.
type DatabaseConfig struct {
	Driver string       `envconfig:"STORE_DRIVER" default:"postgres" validate:"oneof=postgres memory"`
	URL    SecretString `envconfig:"DATABASE_URL" validate:"required_if=Driver postgres"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10" validate:"min=1"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2" validate:"min=0"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
	AutoMigrate       bool          `envconfig:"DB_AUTO_MIGRATE" default:"false"`
}

// ScheduleConfig drives template generation and housekeeping jobs.
type ScheduleConfig struct {
	// Timezone is the IANA zone in which "today" is evaluated.
	Timezone              string        `envconfig:"SCHEDULE_TIMEZONE" default:"UTC" validate:"timezone"`
	GenerationCron        string        `envconfig:"GENERATION_CRON" default:"1 0 * * *"`
	CleanupCron           string        `envconfig:"CLEANUP_CRON" default:"30 3 * * *"`
	JobLockTTL            time.Duration `envconfig:"JOB_LOCK_TTL" default:"1h"`
	NotificationRetention time.Duration `envconfig:"NOTIFICATION_RETENTION" default:"720h"`
}

// Location resolves Timezone. LoadConfig has already validated it.
func (s ScheduleConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NotifyConfig tunes the notification queue worker.
type NotifyConfig struct {
	PollInterval time.Duration `envconfig:"NOTIFY_POLL_INTERVAL" default:"60s"`
	MaxAttempts  int           `envconfig:"NOTIFY_MAX_ATTEMPTS" default:"3" validate:"min=1"`
	BatchSize    int           `envconfig:"NOTIFY_BATCH_SIZE" default:"25" validate:"min=1"`
	Concurrency  int           `envconfig:"NOTIFY_CONCURRENCY" default:"4" validate:"min=1"`
	BaseDelay    time.Duration `envconfig:"NOTIFY_BASE_DELAY" default:"1m"`
}

// EmailConfig holds email delivery provider settings.
type EmailConfig struct {
	Provider       string       `envconfig:"EMAIL_PROVIDER" default:"log" validate:"oneof=sendgrid log"`
	SendGridAPIKey SecretString `envconfig:"SENDGRID_API_KEY" validate:"required_if=Provider sendgrid"`
	SendGridURL    string       `envconfig:"SENDGRID_BASE_URL" default:"https://api.sendgrid.com" validate:"url"`
	FromAddress    string       `envconfig:"EMAIL_FROM_ADDRESS" default:"maintenance@upkeep.local" validate:"email"`
	FromName       string       `envconfig:"EMAIL_FROM_NAME" default:"Upkeep"`
}

// SecurityConfig holds the bootstrap admin key, CORS and rate limiting.
type SecurityConfig struct {
	AdminAPIKey        SecretString `envconfig:"ADMIN_API_KEY"`
	CorsAllowedOrigins []string     `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	RateLimitRPS       float64      `envconfig:"RATE_LIMIT_RPS" default:"10" validate:"gt=0"`
	RateLimitBurst     int          `envconfig:"RATE_LIMIT_BURST" default:"20" validate:"min=1"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricsEnabled  bool   `envconfig:"METRICS_ENABLED" default:"false"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Upkeep"`
}

// AWSConfig holds regional configuration for CloudWatch and SSM.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSecretResolution indicates a failure when reading a secret file or
	// fetching a parameter from AWS SSM.
	ErrSecretResolution ConfigErrorType = "SECRET_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
