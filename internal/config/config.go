// Package config provides centralized configuration loaded from environment
// variables. Shared by every subcommand of cmd/pricehawk.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Stream + DLQ names — single source of truth
// --------------------------------------------------------------------------

const (
	StreamAnomalyDetected  = "anomaly.detected"
	StreamAnomalyConfirmed = "anomaly.confirmed"
	StreamAnomalyNotified  = "anomaly.notified"

	ConsumerGroupValidator  = "validator"
	ConsumerGroupDispatcher = "dispatcher"

	DelayQueueNotify = "notify"
)

// --------------------------------------------------------------------------
// Config struct — populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Redis (Bus + KV)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Postgres (subscriber directory + analytics cold storage)
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// lmstfy (delay queue)
	LmstfyHost      string
	LmstfyPort      int
	LmstfyNamespace string
	LmstfyToken     string

	// Admin/metrics API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	Debug       bool

	// CORS
	CORSAllowOrigins []string

	// Rate limiting (inbound, admin API)
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Stream Consumer Framework (§4.1)
	StreamBatchSize      int
	StreamPollInterval   time.Duration
	StreamMaxRetries     int
	GracefulShutdownTime time.Duration

	// Weighted Model Router (§4.2)
	EnableSOTAModels       bool
	CircuitBreakerThresh   int
	CircuitBreakerWindow   time.Duration
	ModelEndpointURL       string
	ModelEndpointAPIKey    string

	// Tiered Notification Dispatcher (§4.4)
	NotifyDedupTTL      time.Duration
	DispatchConcurrency int

	// Channel provider credentials — each provider reads its own, per §6.
	EmailAPIKey       string
	EmailFromAddress  string
	ChatWebhookURL    string
	SMSAccountSID     string
	SMSAuthToken      string
	SMSFromNumber     string
	IMBotToken        string
	RichMessageAPIKey string
	WebhookSigningKey string
	PriorityAPIKey    string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	dbURL := envOr("DATABASE_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set")
	}

	return &Config{
		RedisAddr:     envOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword: envOr("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),

		DatabaseURL:    dbURL,
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		LmstfyHost:      envOr("LMSTFY_HOST", "localhost"),
		LmstfyPort:      envInt("LMSTFY_PORT", 7777),
		LmstfyNamespace: envOr("LMSTFY_NAMESPACE", "pricehawk"),
		LmstfyToken:     envOr("LMSTFY_TOKEN", ""),

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		StreamBatchSize:      envInt("STREAM_BATCH_SIZE", 50),
		StreamPollInterval:   time.Duration(envInt("STREAM_POLL_INTERVAL_MS", 2000)) * time.Millisecond,
		StreamMaxRetries:     envInt("STREAM_MAX_RETRIES", 5),
		GracefulShutdownTime: time.Duration(envInt("GRACEFUL_SHUTDOWN_TIMEOUT", 30000)) * time.Millisecond,

		EnableSOTAModels:     envBool("ENABLE_SOTA_MODELS", false),
		CircuitBreakerThresh: envInt("CIRCUIT_BREAKER_THRESHOLD", 3),
		CircuitBreakerWindow: time.Duration(envInt("CIRCUIT_BREAKER_WINDOW_MS", 300000)) * time.Millisecond,
		ModelEndpointURL:     envOr("MODEL_ENDPOINT_URL", "https://api.openai.com/v1"),
		ModelEndpointAPIKey:  envOr("MODEL_ENDPOINT_API_KEY", ""),

		NotifyDedupTTL:      time.Duration(envInt("NOTIFY_DEDUP_TTL_SECONDS", 86400)) * time.Second,
		DispatchConcurrency: envInt("DISPATCH_CONCURRENCY", 4),

		EmailAPIKey:       envOr("EMAIL_API_KEY", ""),
		EmailFromAddress:  envOr("EMAIL_FROM_ADDRESS", ""),
		ChatWebhookURL:    envOr("CHAT_WEBHOOK_URL", ""),
		SMSAccountSID:     envOr("SMS_ACCOUNT_SID", ""),
		SMSAuthToken:      envOr("SMS_AUTH_TOKEN", ""),
		SMSFromNumber:     envOr("SMS_FROM_NUMBER", ""),
		IMBotToken:        envOr("IM_BOT_TOKEN", ""),
		RichMessageAPIKey: envOr("RICH_MESSAGE_API_KEY", ""),
		WebhookSigningKey: envOr("WEBHOOK_SIGNING_KEY", ""),
		PriorityAPIKey:    envOr("PRIORITY_API_KEY", ""),
	}, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
