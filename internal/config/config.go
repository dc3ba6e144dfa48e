package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Storage backends. When UseMemoryStores is true the service runs
	// entirely in-process (no Postgres/Redis), which is how local
	// development and most tests operate.
	UseMemoryStores bool
	DatabaseURL     string
	RedisAddr       string
	RedisPassword   string
	RedisTLS        bool

	// Session lifecycle
	SessionIdleTimeout   time.Duration
	SessionSweepInterval time.Duration

	// Schedule search policy
	ScheduleSearchDays int
	MaxOptions         int

	// LLM provider (OpenAI-compatible chat completions endpoint)
	LLMAPIKey      string
	LLMBaseURL     string
	LLMModel       string
	LLMTimeout     time.Duration
	LLMTemperature float64
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		UseMemoryStores: getEnvAsBool("USE_MEMORY_STORES", false),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		RedisAddr:       getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisTLS:        getEnvAsBool("REDIS_TLS", false),

		SessionIdleTimeout:   getEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		SessionSweepInterval: getEnvAsDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),

		ScheduleSearchDays: getEnvAsInt("SCHEDULE_SEARCH_DAYS", 7),
		MaxOptions:         getEnvAsInt("MAX_OPTIONS", 5),

		LLMAPIKey:      getEnv("LLM_API_KEY", ""),
		LLMBaseURL:     strings.TrimSuffix(getEnv("LLM_BASE_URL", ""), "/"),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMTimeout:     getEnvAsDuration("LLM_TIMEOUT", 20*time.Second),
		LLMTemperature: getEnvAsFloat("LLM_TEMPERATURE", 0.2),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
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
