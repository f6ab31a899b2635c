// Package config loads the learner daemon configuration from LEARNER_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the daemon configuration.
type Config struct {
	ServiceName string     `env:"LEARNER_SERVICE_NAME" envDefault:"learnerd"`
	Environment string     `env:"LEARNER_ENVIRONMENT" envDefault:"dev"`
	LogLevel    slog.Level `env:"LEARNER_LOG_LEVEL" envDefault:"INFO"`

	DBPath string `env:"LEARNER_DB_PATH" envDefault:"learners.db"`

	// NATSURL selects an external server. Empty runs an embedded one.
	NATSURL       string `env:"LEARNER_NATS_URL"`
	NATSPort      int    `env:"LEARNER_NATS_PORT" envDefault:"4222"`
	NATSStoreDir  string `env:"LEARNER_NATS_STORE_DIR"`
	EventStream   string `env:"LEARNER_EVENT_STREAM" envDefault:"LEARNER_EVENTS"`
	CommandPrefix string `env:"LEARNER_COMMAND_PREFIX" envDefault:"learner.commands"`
	LessonSubject string `env:"LEARNER_LESSON_SUBJECT" envDefault:"lessons.find"`

	// Sealed NATS credentials. Both URLs empty disables authentication.
	NATSCredentialsKeeper string `env:"LEARNER_NATS_CREDENTIALS_KEEPER"`
	NATSCredentialsURL    string `env:"LEARNER_NATS_CREDENTIALS_URL"`
	NATSCredentialsKey    string `env:"LEARNER_NATS_CREDENTIALS_KEY" envDefault:"nats-credentials.sealed"`

	CatalogURL string `env:"LEARNER_CATALOG_URL,required"`
	CatalogKey string `env:"LEARNER_CATALOG_KEY" envDefault:"lessons.yaml"`

	// TelemetryDBPath stores spans and metrics in SQLite. Empty disables export.
	TelemetryDBPath    string        `env:"LEARNER_TELEMETRY_DB_PATH"`
	TelemetryRetention time.Duration `env:"LEARNER_TELEMETRY_RETENTION" envDefault:"168h"`
	TraceSampleRate    float64       `env:"LEARNER_TRACE_SAMPLE_RATE" envDefault:"1"`
	MetricInterval     time.Duration `env:"LEARNER_METRIC_INTERVAL" envDefault:"30s"`

	LookupTimeout      time.Duration `env:"LEARNER_LOOKUP_TIMEOUT" envDefault:"2s"`
	MaxConflictRetries int           `env:"LEARNER_MAX_CONFLICT_RETRIES" envDefault:"3"`
	ShutdownTimeout    time.Duration `env:"LEARNER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("LEARNER_DB_PATH must not be empty"))
	}
	if c.MaxConflictRetries < 0 {
		errs = append(errs, errors.New("LEARNER_MAX_CONFLICT_RETRIES must not be negative"))
	}
	if c.LookupTimeout <= 0 {
		errs = append(errs, errors.New("LEARNER_LOOKUP_TIMEOUT must be positive"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("LEARNER_SHUTDOWN_TIMEOUT must be positive"))
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		errs = append(errs, errors.New("LEARNER_TRACE_SAMPLE_RATE must be between 0 and 1"))
	}
	if c.TelemetryDBPath != "" && c.MetricInterval <= 0 {
		errs = append(errs, errors.New("LEARNER_METRIC_INTERVAL must be positive"))
	}
	if (c.NATSCredentialsKeeper == "") != (c.NATSCredentialsURL == "") {
		errs = append(errs, errors.New("LEARNER_NATS_CREDENTIALS_KEEPER and LEARNER_NATS_CREDENTIALS_URL must be set together"))
	}
	return errors.Join(errs...)
}

// Embedded reports whether the daemon runs its own NATS server.
func (c Config) Embedded() bool {
	return c.NATSURL == ""
}

// Authenticated reports whether sealed NATS credentials are configured.
func (c Config) Authenticated() bool {
	return c.NATSCredentialsKeeper != ""
}
