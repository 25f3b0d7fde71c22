// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/hub28/connect/internal/security"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Channel sender (WhatsApp gateway)
	GatewayURL    string // HTTP endpoint of the message gateway; empty disables delivery
	GatewaySecret string // HMAC secret for signing gateway requests
	SendTimeout   time.Duration

	// Delivery scheduler
	MaxAttempts       int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	SchedulerInterval time.Duration
	SchedulerWorkers  int

	// Trial lifecycle
	TrialPeriod        time.Duration
	TrialSweepInterval time.Duration

	// Billing (optional)
	StripeAPIKey          string
	StripeProPriceID      string
	StripeEnterprisePrice string
	PublicBaseURL         string // Where Stripe sends the browser back after checkout

	// Security
	AdminSecret  string // Admin API secret; required outside development
	RateLimitRPM int

	// Observability
	OTLPEndpoint string
}

// Defaults
const (
	DefaultPort               = "8080"
	DefaultEnv                = "development"
	DefaultLogLevel           = "info"
	DefaultMaxAttempts        = 5
	DefaultRetryBaseDelay     = 30 * time.Second
	DefaultRetryMaxDelay      = 30 * time.Minute
	DefaultSchedulerInterval  = 10 * time.Second
	DefaultSchedulerWorkers   = 8
	DefaultSendTimeout        = 15 * time.Second
	DefaultTrialPeriod        = 7 * 24 * time.Hour
	DefaultTrialSweepInterval = time.Minute
	DefaultRateLimit          = 120
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", DefaultPort),
		Env:                   getEnv("ENV", DefaultEnv),
		LogLevel:              getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:           os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		GatewayURL:            os.Getenv("GATEWAY_URL"),
		GatewaySecret:         os.Getenv("GATEWAY_SECRET"),
		SendTimeout:           getEnvDuration("SEND_TIMEOUT", DefaultSendTimeout),
		MaxAttempts:           getEnvInt("MAX_ATTEMPTS", DefaultMaxAttempts),
		RetryBaseDelay:        getEnvDuration("RETRY_BASE_DELAY", DefaultRetryBaseDelay),
		RetryMaxDelay:         getEnvDuration("RETRY_MAX_DELAY", DefaultRetryMaxDelay),
		SchedulerInterval:     getEnvDuration("SCHEDULER_INTERVAL", DefaultSchedulerInterval),
		SchedulerWorkers:      getEnvInt("SCHEDULER_WORKERS", DefaultSchedulerWorkers),
		TrialPeriod:           getEnvDuration("TRIAL_PERIOD", DefaultTrialPeriod),
		TrialSweepInterval:    getEnvDuration("TRIAL_SWEEP_INTERVAL", DefaultTrialSweepInterval),
		StripeAPIKey:          os.Getenv("STRIPE_API_KEY"),
		StripeProPriceID:      os.Getenv("STRIPE_PRO_PRICE_ID"),
		StripeEnterprisePrice: os.Getenv("STRIPE_ENTERPRISE_PRICE_ID"),
		PublicBaseURL:         getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		AdminSecret:           os.Getenv("ADMIN_SECRET"),
		RateLimitRPM:          getEnvInt("RATE_LIMIT_RPM", DefaultRateLimit),
		OTLPEndpoint:          os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("MAX_ATTEMPTS must be at least 1")
	}
	if c.RetryBaseDelay <= 0 {
		return fmt.Errorf("RETRY_BASE_DELAY must be positive")
	}
	if c.RetryMaxDelay < c.RetryBaseDelay {
		return fmt.Errorf("RETRY_MAX_DELAY must not be smaller than RETRY_BASE_DELAY")
	}
	if c.SchedulerWorkers < 1 {
		return fmt.Errorf("SCHEDULER_WORKERS must be at least 1")
	}
	if c.IsProduction() && c.AdminSecret == "" {
		return fmt.Errorf("ADMIN_SECRET is required in production")
	}
	// Development gateways commonly run on localhost, so only enforce
	// the SSRF guard once traffic is real.
	if c.IsProduction() && c.GatewayURL != "" {
		if err := security.ValidateEndpointURL(c.GatewayURL); err != nil {
			return fmt.Errorf("GATEWAY_URL: %w", err)
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

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
