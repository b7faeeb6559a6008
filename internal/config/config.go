// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"dev"`
	Port   int    `env:"PORT" envDefault:"8080"`
	// DBURL is optional. When empty the service runs fully in-memory: job
	// status, audit trail and agent tasks are kept in process memory only.
	DBURL string `env:"DB_URL" envDefault:""`

	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"agent-orchestrator"`

	// Processor configuration
	MaxConcurrency         int  `env:"MAX_CONCURRENCY" envDefault:"2"`
	MaxQueueSize           int  `env:"MAX_QUEUE_SIZE" envDefault:"100"`
	EnablePrioritization   bool `env:"ENABLE_PRIORITIZATION" envDefault:"true"`
	ShutdownTimeoutSeconds int  `env:"SHUTDOWN_TIMEOUT_SECONDS" envDefault:"30"`

	// Retry configuration
	RetryEnabled         bool    `env:"RETRY_ENABLED" envDefault:"true"`
	RetryMaxRetries      int     `env:"RETRY_MAX_RETRIES" envDefault:"3"`
	RetryBackoffStrategy string  `env:"RETRY_BACKOFF_STRATEGY" envDefault:"exponential"`
	RetryBaseDelayMs     int     `env:"RETRY_BASE_DELAY_MS" envDefault:"5000"`
	RetryMaxDelayMs      int     `env:"RETRY_MAX_DELAY_MS" envDefault:"300000"`
	RetryMinJitter       float64 `env:"RETRY_MIN_JITTER" envDefault:"0.0"`
	RetryMaxJitter       float64 `env:"RETRY_MAX_JITTER" envDefault:"0.2"`

	// Handler timeouts. Zero disables the per-type timeout; the job then runs
	// until the handler returns or shutdown cancels it.
	PlanTimeoutSeconds      int `env:"PLAN_TIMEOUT_SECONDS" envDefault:"0"`
	ExecutionTimeoutSeconds int `env:"EXECUTION_TIMEOUT_SECONDS" envDefault:"0"`
	// HandlerTimeoutsFile optionally points at a YAML file mapping job types to
	// timeouts, overriding the per-type env settings above.
	HandlerTimeoutsFile string `env:"HANDLER_TIMEOUTS_FILE" envDefault:""`

	// Audit retention
	AuditRetentionDays   int           `env:"AUDIT_RETENTION_DAYS" envDefault:"90"`
	AuditCleanupInterval time.Duration `env:"AUDIT_CLEANUP_INTERVAL" envDefault:"24h"`

	// Stuck-job recovery, only active with a durable status store. A crash can
	// strand records in processing; the sweeper fails them after this age.
	StuckJobMaxAge        time.Duration `env:"STUCK_JOB_MAX_AGE" envDefault:"15m"`
	StuckJobSweepInterval time.Duration `env:"STUCK_JOB_SWEEP_INTERVAL" envDefault:"1m"`

	// Operator auth for the /jobs surface. Disabled unless both are set.
	// OpsPasswordHash is an argon2id PHC string.
	OpsUsername     string `env:"OPS_USERNAME"`
	OpsPasswordHash string `env:"OPS_PASSWORD_HASH"`

	CORSAllowOrigins      string        `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	RateLimitPerMin       int           `env:"RATE_LIMIT_PER_MIN" envDefault:"30"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }

// OpsAuthEnabled returns true if the operator endpoints require basic auth.
func (c Config) OpsAuthEnabled() bool {
	return c.OpsUsername != "" && c.OpsPasswordHash != ""
}

// ShutdownTimeout returns the processor drain budget as a duration.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// HandlerTimeouts resolves the per-job-type timeout table. The YAML file, when
// configured, wins over the individual env settings.
func (c Config) HandlerTimeouts() (map[string]time.Duration, error) {
	out := map[string]time.Duration{}
	if c.PlanTimeoutSeconds > 0 {
		out["GeneratePlan"] = time.Duration(c.PlanTimeoutSeconds) * time.Second
	}
	if c.ExecutionTimeoutSeconds > 0 {
		out["ExecutePlan"] = time.Duration(c.ExecutionTimeoutSeconds) * time.Second
	}
	if c.HandlerTimeoutsFile == "" {
		return out, nil
	}
	raw, err := os.ReadFile(c.HandlerTimeoutsFile)
	if err != nil {
		return nil, fmt.Errorf("op=config.HandlerTimeouts: %w", err)
	}
	var file struct {
		Timeouts map[string]string `yaml:"timeouts"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("op=config.HandlerTimeouts: parse %s: %w", c.HandlerTimeoutsFile, err)
	}
	for jobType, v := range file.Timeouts {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("op=config.HandlerTimeouts: timeout for %q: %w", jobType, err)
		}
		if d > 0 {
			out[jobType] = d
		}
	}
	return out, nil
}
