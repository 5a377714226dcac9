// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Custody provider
	CustodyURL     string // Base URL of the custody provider API
	CustodyAPIKey  string
	CustodyTimeout time.Duration

	// Deposit confirmation
	ConfirmationThreshold int           // Confirmations required before a deposit counts
	PollInterval          time.Duration // Deposit poll fallback interval
	PollGrace             time.Duration // How long to rely on webhooks before polling an address

	// Escrow lifecycle
	EscrowWindow     time.Duration // Time from escrow creation to expiry
	SweepInterval    time.Duration // Dispute/timeout supervisor interval
	ReleaseTolerance string        // Acceptable shortfall on release (asset units)

	// Release retry policy
	ReleaseMaxAttempts int
	ReleaseRetryBase   time.Duration

	// Security
	WebhookSecret string // HMAC secret for custody webhook ingress
	AdminSecret   string // Arbitration/admin API secret
	RateLimitRPM  int

	// Observability
	OTLPEndpoint string
}

// Defaults.
const (
	DefaultPort                  = "8080"
	DefaultEnv                   = "development"
	DefaultLogLevel              = "info"
	DefaultCustodyTimeout        = 15 * time.Second
	DefaultConfirmationThreshold = 2
	DefaultPollInterval          = 30 * time.Second
	DefaultPollGrace             = 2 * time.Minute
	DefaultEscrowWindow          = 30 * time.Minute
	DefaultSweepInterval         = 60 * time.Second
	DefaultReleaseMaxAttempts    = 5
	DefaultReleaseRetryBase      = 2 * time.Second
	DefaultRateLimit             = 120
)

// Load reads configuration from environment variables.
// It loads a .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", DefaultPort),
		Env:                   getEnv("ENV", DefaultEnv),
		LogLevel:              getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		CustodyURL:            os.Getenv("CUSTODY_URL"),
		CustodyAPIKey:         os.Getenv("CUSTODY_API_KEY"),
		CustodyTimeout:        getEnvDuration("CUSTODY_TIMEOUT", DefaultCustodyTimeout),
		ConfirmationThreshold: getEnvInt("CONFIRMATION_THRESHOLD", DefaultConfirmationThreshold),
		PollInterval:          getEnvDuration("POLL_INTERVAL", DefaultPollInterval),
		PollGrace:             getEnvDuration("POLL_GRACE", DefaultPollGrace),
		EscrowWindow:          getEnvDuration("ESCROW_WINDOW", DefaultEscrowWindow),
		SweepInterval:         getEnvDuration("SWEEP_INTERVAL", DefaultSweepInterval),
		ReleaseTolerance:      getEnv("RELEASE_TOLERANCE", "0"),
		ReleaseMaxAttempts:    getEnvInt("RELEASE_MAX_ATTEMPTS", DefaultReleaseMaxAttempts),
		ReleaseRetryBase:      getEnvDuration("RELEASE_RETRY_BASE", DefaultReleaseRetryBase),
		WebhookSecret:         os.Getenv("WEBHOOK_SECRET"),
		AdminSecret:           os.Getenv("ADMIN_SECRET"),
		RateLimitRPM:          getEnvInt("RATE_LIMIT_RPM", DefaultRateLimit),
		OTLPEndpoint:          os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and sane.
func (c *Config) Validate() error {
	if c.CustodyURL == "" {
		return fmt.Errorf("CUSTODY_URL is required")
	}
	if c.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required (unsigned deposit webhooks cannot be trusted)")
	}
	if c.ConfirmationThreshold < 1 {
		return fmt.Errorf("CONFIRMATION_THRESHOLD must be at least 1")
	}
	if c.EscrowWindow <= 0 {
		return fmt.Errorf("ESCROW_WINDOW must be positive")
	}
	if c.ReleaseMaxAttempts < 1 {
		return fmt.Errorf("RELEASE_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
