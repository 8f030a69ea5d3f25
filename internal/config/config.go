package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	NumWorkers  int
	QueueSize   int

	StripeWebhookSecret string
	SignatureTolerance  time.Duration

	MaxAttempts      int
	RetryBaseDelay   time.Duration
	DedupeTTL        time.Duration
	MaxBodyBytes     int64
	IngressRateLimit int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", ""),
		NumWorkers:          getEnvInt("NUM_WORKERS", 8),
		QueueSize:           getEnvInt("QUEUE_SIZE", 1000),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		SignatureTolerance:  getEnvDuration("STRIPE_SIGNATURE_TOLERANCE", 5*time.Minute),
		MaxAttempts:         getEnvInt("MAX_ATTEMPTS", 5),
		RetryBaseDelay:      getEnvDuration("RETRY_BASE_DELAY", time.Second),
		DedupeTTL:           getEnvDuration("DEDUPE_TTL", 72*time.Hour),
		MaxBodyBytes:        int64(getEnvInt("MAX_BODY_BYTES", 64*1024)),
		IngressRateLimit:    getEnvInt("INGRESS_RATE_LIMIT", 0),
	}

	if cfg.StripeWebhookSecret == "" {
		return nil, fmt.Errorf("STRIPE_WEBHOOK_SECRET is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.NumWorkers < 1 {
		return nil, fmt.Errorf("NUM_WORKERS must be at least 1, got %d", cfg.NumWorkers)
	}
	if cfg.QueueSize < 1 {
		return nil, fmt.Errorf("QUEUE_SIZE must be at least 1, got %d", cfg.QueueSize)
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("MAX_ATTEMPTS must be at least 1, got %d", cfg.MaxAttempts)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}
