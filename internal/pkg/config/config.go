package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ManuelReschke/CreditFox/internal/pkg/env"
)

// Config is the process configuration assembled from the environment.
type Config struct {
	AppHost string `validate:"required"`
	AppPort string `validate:"required,numeric"`

	DBUser     string `validate:"required"`
	DBPassword string
	DBHost     string `validate:"required"`
	DBPort     string `validate:"required,numeric"`
	DBName     string `validate:"required"`

	CacheHost     string
	CachePort     string `validate:"omitempty,numeric"`
	CachePassword string
	CacheDB       int `validate:"gte=0,lte=15"`

	ProcessorAPIBaseURL    string        `validate:"required,url"`
	ProcessorSecretKey     string        `validate:"required"`
	ProcessorWebhookSecret string        `validate:"required"`
	ProcessorTimeout       time.Duration `validate:"gt=0"`
	WebhookTolerance       time.Duration `validate:"gte=0"`
	CheckoutSuccessURL     string        `validate:"required,url"`
	CheckoutCancelURL      string        `validate:"required,url"`

	NotifyURL     string        `validate:"omitempty,url"`
	NotifyTimeout time.Duration `validate:"gt=0"`

	SMTPHost     string
	SMTPPort     string `validate:"omitempty,numeric"`
	SMTPUsername string
	SMTPPassword string
	SMTPSender   string `validate:"omitempty,email"`

	DBWriteTimeout   time.Duration `validate:"gt=0"`
	ReconcileLockTTL time.Duration `validate:"gte=0"`

	InternalAPIToken string `validate:"required,min=16"`
	MetricsUser      string `validate:"required"`
	MetricsPassword  string `validate:"required"`
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		AppHost: env.GetEnv("APP_HOST", "localhost"),
		AppPort: env.GetEnv("APP_PORT", "4000"),

		DBUser:     env.GetEnv("DB_USER", ""),
		DBPassword: env.GetEnv("DB_PASSWORD", ""),
		DBHost:     env.GetEnv("DB_HOST", "127.0.0.1"),
		DBPort:     env.GetEnv("DB_PORT", "3306"),
		DBName:     env.GetEnv("DB_NAME", ""),

		CacheHost:     env.GetEnv("CACHE_HOST", ""),
		CachePort:     env.GetEnv("CACHE_PORT", "6379"),
		CachePassword: env.GetEnv("CACHE_PASSWORD", ""),
		CacheDB:       env.GetEnvInt("CACHE_DB", 0),

		ProcessorAPIBaseURL:    env.GetEnv("PROCESSOR_API_BASE_URL", "https://api.stripe.com"),
		ProcessorSecretKey:     env.GetEnv("PROCESSOR_SECRET_KEY", ""),
		ProcessorWebhookSecret: env.GetEnv("PROCESSOR_WEBHOOK_SECRET", ""),
		ProcessorTimeout:       env.GetEnvDuration("PROCESSOR_TIMEOUT", 15*time.Second),
		WebhookTolerance:       env.GetEnvDuration("PROCESSOR_WEBHOOK_TOLERANCE", 5*time.Minute),
		CheckoutSuccessURL:     env.GetEnv("CHECKOUT_SUCCESS_URL", ""),
		CheckoutCancelURL:      env.GetEnv("CHECKOUT_CANCEL_URL", ""),

		NotifyURL:     env.GetEnv("NOTIFY_URL", ""),
		NotifyTimeout: env.GetEnvDuration("NOTIFY_TIMEOUT", 5*time.Second),

		SMTPHost:     env.GetEnv("SMTP_HOST", ""),
		SMTPPort:     env.GetEnv("SMTP_PORT", "587"),
		SMTPUsername: env.GetEnv("SMTP_USERNAME", ""),
		SMTPPassword: env.GetEnv("SMTP_PASSWORD", ""),
		SMTPSender:   env.GetEnv("SMTP_SENDER", ""),

		DBWriteTimeout:   env.GetEnvDuration("DB_WRITE_TIMEOUT", 10*time.Second),
		ReconcileLockTTL: env.GetEnvDuration("RECONCILE_LOCK_TTL", 30*time.Second),

		InternalAPIToken: env.GetEnv("INTERNAL_API_TOKEN", ""),
		MetricsUser:      env.GetEnv("METRICS_USER", "admin"),
		MetricsPassword:  env.GetEnv("METRICS_PASSWORD", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ListenAddr is the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%s", c.AppHost, c.AppPort)
}

// MailEnabled reports whether notifications can fall back to SMTP.
func (c *Config) MailEnabled() bool {
	return c.SMTPHost != ""
}

// CacheEnabled reports whether a Redis endpoint was configured.
func (c *Config) CacheEnabled() bool {
	return c.CacheHost != ""
}
