// Package config loads process configuration from environment variables for
// cmd/api and cmd/cache-refresher; cmd/migrate reads DATABASE_URL directly.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	CORSAllowedOrigins []string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// WebhookAPIKey authenticates the voice-agent-facing webhook surface.
	WebhookAPIKey  string
	AdminJWTSecret string

	// PMS client tuning.
	PMSBaseURL           string
	PMSRequestsPerSecond float64
	PMSBurst             int
	PMSTimeout           time.Duration
	PMSMaxRetries        int

	// FanOutConcurrency is loaded from FAN_OUT_CONCURRENCY but is not passed
	// to the availability engine; the engine's parallel PMS calls are bounded
	// by the PMS client's per-clinic in-flight limit.
	FanOutConcurrency int

	// WebhookDeadline bounds how long a single webhook request may run
	// before the core gives up and returns a voice-friendly timeout error.
	WebhookDeadline time.Duration

	// CacheRefresherInterval is how often cmd/cache-refresher sweeps for
	// stale/expired availability entries and old rejection/failure records.
	CacheRefresherInterval time.Duration
}

// Load reads configuration from environment variables.
func Load() *Config {
	corsAllowedOrigins := []string{}
	if raw := strings.TrimSpace(getEnv("CORS_ALLOWED_ORIGINS", "")); raw != "" {
		for _, origin := range strings.Split(raw, ",") {
			origin = strings.TrimSpace(origin)
			if origin == "" {
				continue
			}
			corsAllowedOrigins = append(corsAllowedOrigins, origin)
		}
	}

	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: corsAllowedOrigins,

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		WebhookAPIKey:  getEnv("WEBHOOK_API_KEY", ""),
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		PMSBaseURL:           getEnv("PMS_BASE_URL", ""),
		PMSRequestsPerSecond: getEnvAsFloat("PMS_REQUESTS_PER_SECOND", 2),
		PMSBurst:             getEnvAsInt("PMS_BURST", 4),
		PMSTimeout:           getEnvAsDuration("PMS_TIMEOUT", 10*time.Second),
		PMSMaxRetries:        getEnvAsInt("PMS_MAX_RETRIES", 3),

		FanOutConcurrency: getEnvAsInt("FAN_OUT_CONCURRENCY", 8),
		WebhookDeadline:   getEnvAsDuration("WEBHOOK_DEADLINE", 25*time.Second),

		CacheRefresherInterval: getEnvAsDuration("CACHE_REFRESHER_INTERVAL", 5*time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
