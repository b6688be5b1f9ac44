package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
)

// Email provider names accepted in EMAIL_PROVIDER
const (
	EmailProviderResend = "resend"
	EmailProviderSMTP   = "smtp"
)

type Config struct {
	ServerPort  string `envconfig:"SERVER_PORT" default:"8080"`
	DBPath      string `envconfig:"DB_PATH" default:"db/app.db"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Turso (remote libsql). When set, DBPath is ignored.
	TursoDatabaseURL string `envconfig:"TURSO_DATABASE_URL"`
	TursoAuthToken   string `envconfig:"TURSO_AUTH_TOKEN"`

	// Used only to build links inside email bodies
	FrontendURL string `envconfig:"FRONTEND_URL" default:"http://localhost:3000"`

	// Email
	EmailProvider      string  `envconfig:"EMAIL_PROVIDER" default:"resend"`
	ResendAPIKey       string  `envconfig:"RESEND_API_KEY"`
	SMTPHost           string  `envconfig:"SMTP_HOST"`
	SMTPPort           int     `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername       string  `envconfig:"SMTP_USERNAME"`
	SMTPPassword       string  `envconfig:"SMTP_PASSWORD"`
	EmailFrom          string  `envconfig:"EMAIL_FROM" default:"noreply@lawflow.app"`
	EmailFromName      string  `envconfig:"EMAIL_FROM_NAME" default:"Law Flow"`
	EmailTestMode      bool    `envconfig:"EMAIL_TEST_MODE" default:"true"` // log instead of sending
	EmailRatePerSecond float64 `envconfig:"EMAIL_RATE_PER_SECOND" default:"2"`

	// Delivery retry
	RetryMaxRetries  int `envconfig:"RETRY_MAX_RETRIES" default:"3"`
	RetryBaseDelayMs int `envconfig:"RETRY_BASE_DELAY_MS" default:"1000"`
	RetryMaxDelayMs  int `envconfig:"RETRY_MAX_DELAY_MS" default:"10000"`

	// Notification pipeline
	DispatchWorkers   int `envconfig:"DISPATCH_WORKERS" default:"4"`
	DispatchQueueSize int `envconfig:"DISPATCH_QUEUE_SIZE" default:"256"`

	// Scheduled jobs
	InactivityDaysThreshold  int    `envconfig:"INACTIVITY_DAYS_THRESHOLD" default:"21"`
	NotificationThrottleDays int    `envconfig:"NOTIFICATION_THROTTLE_DAYS" default:"7"`
	InactivityScanSchedule   string `envconfig:"INACTIVITY_SCAN_SCHEDULE" default:"0 9 * * *"`
	WeeklyDigestSchedule     string `envconfig:"WEEKLY_DIGEST_SCHEDULE" default:"0 8 * * 1"`
	SchedulerTimezone        string `envconfig:"SCHEDULER_TIMEZONE" default:"UTC"`
}

// Load reads .env (if present) and the process environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	cfg.EmailProvider = strings.ToLower(strings.TrimSpace(cfg.EmailProvider))
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail much later at runtime.
func (c *Config) Validate() error {
	if c.RetryMaxRetries < 0 {
		return fmt.Errorf("RETRY_MAX_RETRIES must not be negative")
	}
	if c.RetryBaseDelayMs <= 0 || c.RetryMaxDelayMs <= 0 {
		return fmt.Errorf("retry delays must be positive")
	}
	if c.RetryMaxDelayMs < c.RetryBaseDelayMs {
		return fmt.Errorf("RETRY_MAX_DELAY_MS (%d) is lower than RETRY_BASE_DELAY_MS (%d)", c.RetryMaxDelayMs, c.RetryBaseDelayMs)
	}
	if c.InactivityDaysThreshold <= 0 {
		return fmt.Errorf("INACTIVITY_DAYS_THRESHOLD must be positive")
	}
	if c.NotificationThrottleDays <= 0 {
		return fmt.Errorf("NOTIFICATION_THROTTLE_DAYS must be positive")
	}
	if c.DispatchWorkers <= 0 || c.DispatchQueueSize <= 0 {
		return fmt.Errorf("dispatch workers and queue size must be positive")
	}
	switch c.EmailProvider {
	case EmailProviderResend, EmailProviderSMTP:
	default:
		return fmt.Errorf("unknown EMAIL_PROVIDER %q", c.EmailProvider)
	}
	for name, spec := range map[string]string{
		"INACTIVITY_SCAN_SCHEDULE": c.InactivityScanSchedule,
		"WEEKLY_DIGEST_SCHEDULE":   c.WeeklyDigestSchedule,
	} {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, spec, err)
		}
	}
	if _, err := time.LoadLocation(c.SchedulerTimezone); err != nil {
		return fmt.Errorf("invalid SCHEDULER_TIMEZONE %q: %w", c.SchedulerTimezone, err)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelayMs) * time.Millisecond
}

// SchedulerLocation returns the configured cron timezone, UTC when unset or invalid.
func (c *Config) SchedulerLocation() *time.Location {
	loc, err := time.LoadLocation(c.SchedulerTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
