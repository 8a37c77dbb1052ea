package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g.
// LABELD_JOB_SOURCE_BASE_URL.
const EnvPrefix = "LABELD_"

type Config struct {
	Service   ServiceConfig   `yaml:"service" envPrefix:"SERVICE_"`
	JobSource JobSourceConfig `yaml:"job_source" envPrefix:"JOB_SOURCE_"`
	Dispatch  DispatchConfig  `yaml:"dispatch" envPrefix:"DISPATCH_"`
	Printers  PrintersConfig  `yaml:"printers" envPrefix:"PRINTERS_"`
	Mail      MailConfig      `yaml:"mail" envPrefix:"MAIL_"`
	Health    HealthConfig    `yaml:"health" envPrefix:"HEALTH_"`
	Audit     AuditConfig     `yaml:"audit" envPrefix:"AUDIT_"`
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Control   ControlConfig   `yaml:"control" envPrefix:"CONTROL_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"LOGGING_"`
}

type ServiceConfig struct {
	Title               string `yaml:"title" env:"TITLE"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds" env:"POLL_INTERVAL_SECONDS"`
	WorkDir             string `yaml:"work_dir" env:"WORK_DIR"`
}

const (
	SourceOData = "odata"
	SourceSQL   = "sql"
)

type JobSourceConfig struct {
	Kind    string        `yaml:"kind" env:"KIND"`
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	Driver  string        `yaml:"driver" env:"DRIVER"`
	DSN     string        `yaml:"dsn" env:"DSN"`
}

type DispatchConfig struct {
	MaxWorkers int `yaml:"max_workers" env:"MAX_WORKERS"`
}

type PrintersConfig struct {
	Port              int           `yaml:"port" env:"PORT"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout" env:"CONNECTION_TIMEOUT"`
}

type MailConfig struct {
	SMTPHost      string `yaml:"smtp_host" env:"SMTP_HOST"`
	SMTPPort      int    `yaml:"smtp_port" env:"SMTP_PORT"`
	From          string `yaml:"from" env:"FROM"`
	Username      string `yaml:"username" env:"USERNAME"`
	Password      string `yaml:"password" env:"PASSWORD"`
	Subject       string `yaml:"subject" env:"SUBJECT"`
	RatePerMinute int    `yaml:"rate_per_minute" env:"RATE_PER_MINUTE"`
}

type HealthConfig struct {
	WebhookURL        string        `yaml:"webhook_url" env:"WEBHOOK_URL"`
	WebhookSecret     string        `yaml:"webhook_secret" env:"WEBHOOK_SECRET"`
	WebhookMaxRetries int           `yaml:"webhook_max_retries" env:"WEBHOOK_MAX_RETRIES"`
	WebhookRetryDelay time.Duration `yaml:"webhook_retry_delay" env:"WEBHOOK_RETRY_DELAY"`
	WebhookTimeout    time.Duration `yaml:"webhook_timeout" env:"WEBHOOK_TIMEOUT"`
	PublishTimeout    time.Duration `yaml:"publish_timeout" env:"PUBLISH_TIMEOUT"`
	RedisAddr         string        `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword     string        `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB           int           `yaml:"redis_db" env:"REDIS_DB"`
	RedisKey          string        `yaml:"redis_key" env:"REDIS_KEY"`
	RedisTTL          time.Duration `yaml:"redis_ttl" env:"REDIS_TTL"`
}

// AuditConfig selects the audit store. An empty DSN keeps recent audit
// entries in memory only.
type AuditConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"`
	DSN    string `yaml:"dsn" env:"DSN"`
	// RetentionDays bounds how long stored entries are kept. Zero keeps
	// them forever.
	RetentionDays int `yaml:"retention_days" env:"RETENTION_DAYS"`
}

type ServerConfig struct {
	Enabled      bool          `yaml:"enabled" env:"ENABLED"`
	Port         int           `yaml:"port" env:"PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
}

type ControlConfig struct {
	Username     string        `yaml:"username" env:"USERNAME"`
	PasswordHash string        `yaml:"password_hash" env:"PASSWORD_HASH"`
	JWTSecret    string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	TokenTTL     time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

func defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Title:               "Label Dispatch",
			PollIntervalSeconds: 10,
			WorkDir:             os.TempDir(),
		},
		JobSource: JobSourceConfig{
			Kind:    SourceOData,
			Timeout: 30 * time.Second,
			Driver:  "sqlite3",
		},
		Printers: PrintersConfig{
			Port:              9100,
			ConnectionTimeout: 10 * time.Second,
		},
		Mail: MailConfig{
			SMTPPort:      25,
			Subject:       "Label",
			RatePerMinute: 30,
		},
		Health: HealthConfig{
			WebhookMaxRetries: 3,
			WebhookRetryDelay: 500 * time.Millisecond,
			WebhookTimeout:    2 * time.Second,
			PublishTimeout:    5 * time.Second,
			RedisKey:          "labeldispatch:health",
			RedisTTL:          5 * time.Minute,
		},
		Audit: AuditConfig{
			Driver:        "sqlite3",
			RetentionDays: 30,
		},
		Server: ServerConfig{
			Enabled:      true,
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Control: ControlConfig{
			Username: "admin",
			TokenTTL: 12 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the YAML file over the defaults and then applies LABELD_*
// environment overrides. A missing file is not an error.
func Load(configPath string) (*Config, error) {
	cfg := defaults()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	return cfg, nil
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Service.PollIntervalSeconds) * time.Second
}

// Endpoint names where jobs come from, for health reporting.
func (c *Config) Endpoint() string {
	if c.JobSource.Kind == SourceSQL {
		return c.JobSource.Driver + ":" + c.JobSource.DSN
	}
	return c.JobSource.BaseURL
}

// FieldError reports which setting failed validation.
type FieldError struct {
	Field string
	Msg   string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Msg
}

func fieldErr(field, format string, args ...any) error {
	return &FieldError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

var validDrivers = map[string]bool{
	"sqlite3": true,
	"pgx":     true,
}

func (c *Config) Validate() error {
	if c.Service.PollIntervalSeconds <= 0 {
		return fieldErr("service.poll_interval_seconds", "must be positive, got %d", c.Service.PollIntervalSeconds)
	}

	if c.Service.WorkDir == "" {
		return fieldErr("service.work_dir", "is required")
	}

	switch c.JobSource.Kind {
	case SourceOData:
		if c.JobSource.BaseURL == "" {
			return fieldErr("job_source.base_url", "is required for the odata source")
		}
	case SourceSQL:
		if !validDrivers[c.JobSource.Driver] {
			return fieldErr("job_source.driver", "unsupported driver %q (valid: sqlite3, pgx)", c.JobSource.Driver)
		}
		if c.JobSource.DSN == "" {
			return fieldErr("job_source.dsn", "is required for the sql source")
		}
	default:
		return fieldErr("job_source.kind", "invalid kind %q (valid: odata, sql)", c.JobSource.Kind)
	}

	if c.JobSource.Timeout < 0 {
		return fieldErr("job_source.timeout", "must be non-negative")
	}

	if c.Dispatch.MaxWorkers < 0 {
		return fieldErr("dispatch.max_workers", "must be non-negative")
	}

	if c.Printers.Port < 1 || c.Printers.Port > 65535 {
		return fieldErr("printers.port", "must be between 1 and 65535, got %d", c.Printers.Port)
	}

	if c.Printers.ConnectionTimeout < 0 {
		return fieldErr("printers.connection_timeout", "must be non-negative")
	}

	if c.Mail.RatePerMinute < 0 {
		return fieldErr("mail.rate_per_minute", "must be non-negative")
	}

	if c.Health.WebhookMaxRetries < 0 {
		return fieldErr("health.webhook_max_retries", "must be non-negative")
	}
	if c.Health.PublishTimeout <= 0 {
		return fieldErr("health.publish_timeout", "must be positive")
	}

	if c.Audit.DSN != "" && !validDrivers[c.Audit.Driver] {
		return fieldErr("audit.driver", "unsupported driver %q (valid: sqlite3, pgx)", c.Audit.Driver)
	}
	if c.Audit.RetentionDays < 0 {
		return fieldErr("audit.retention_days", "must be non-negative")
	}

	if c.Server.Enabled {
		if c.Server.Port < 1 || c.Server.Port > 65535 {
			return fieldErr("server.port", "must be between 1 and 65535, got %d", c.Server.Port)
		}
		if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
			return fieldErr("server", "timeouts must be non-negative")
		}
		if c.Control.PasswordHash != "" && c.Control.JWTSecret == "" {
			return fieldErr("control.jwt_secret", "is required when a control password is set")
		}
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fieldErr("logging.level", "invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json":  true,
		"text":  true,
		"plain": true,
	}

	if !validFormats[c.Logging.Format] {
		return fieldErr("logging.format", "invalid log format: %s (valid: json, text, plain)", c.Logging.Format)
	}

	return nil
}
