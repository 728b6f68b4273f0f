package app

import (
	"os"
	"strconv"
	"time"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

type Config struct {
	BaseURL string // ESB API base URL (default: http://localhost:8080)

	StoreDriver        string        // Session store driver: sqlite, redis, memory (default: sqlite)
	StoreFile          string        // Optional: SQLite file for the sqlite driver (default: ./console.db)
	StoreRedisAddr     string        // Optional: redis address for the redis driver (default: localhost:6379)
	StoreRedisPassword string        // Optional: redis password
	StoreRedisDB       int           // Optional: redis database number (default: 0)
	StoreRedisTTL      time.Duration // Optional: expiry applied to redis keys (default: 24h)
	StoreKeyPath       string        // Optional: master key file; enables sealed storage

	IdleTimeout           time.Duration // Inactivity lock timeout (default: 1h)
	IdleThrottle          time.Duration // Minimum gap between counted activity signals (default: 300ms)
	TokenRefreshThreshold time.Duration // Refresh tokens this close to expiry (default: 5m)
	SessionTimeout        time.Duration // Log out after this long without activity (default: 60m)
	CacheMaxAge           time.Duration // Discard cached sessions older than this (default: 24h)
	KeeperInterval        time.Duration // Session keeper tick (default: 1m)
	RequestTimeout        time.Duration // Standard API call timeout (default: 30s)
	ReportTimeout         time.Duration // Report and log export timeout (default: 120s)

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: text)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 5s)
}

func LoadConfig() Config {
	cfg := Config{
		BaseURL: getEnvOrDefault("ESB_BASE_URL", "http://localhost:8080"),

		StoreDriver:        getEnvOrDefault("STORE_DRIVER", DriverSQLite),
		StoreFile:          getEnvOrDefault("STORE_FILE", "console.db"),
		StoreRedisAddr:     getEnvOrDefault("STORE_REDIS_ADDR", "localhost:6379"),
		StoreRedisPassword: os.Getenv("STORE_REDIS_PASSWORD"),
		StoreRedisDB:       getEnvIntOrDefault("STORE_REDIS_DB", 0),
		StoreRedisTTL:      getEnvDurationOrDefault("STORE_REDIS_TTL", 24*time.Hour),
		StoreKeyPath:       os.Getenv("STORE_KEY_PATH"), // Optional

		IdleTimeout:           getEnvDurationOrDefault("IDLE_TIMEOUT", time.Hour),
		IdleThrottle:          getEnvDurationOrDefault("IDLE_THROTTLE", 300*time.Millisecond),
		TokenRefreshThreshold: getEnvDurationOrDefault("TOKEN_REFRESH_THRESHOLD", 5*time.Minute),
		SessionTimeout:        getEnvDurationOrDefault("SESSION_TIMEOUT", 60*time.Minute),
		CacheMaxAge:           getEnvDurationOrDefault("CACHE_MAX_AGE", 24*time.Hour),
		KeeperInterval:        getEnvDurationOrDefault("KEEPER_INTERVAL", time.Minute),
		RequestTimeout:        getEnvDurationOrDefault("REQUEST_TIMEOUT", 30*time.Second),
		ReportTimeout:         getEnvDurationOrDefault("REPORT_TIMEOUT", 120*time.Second),

		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "text"),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 5*time.Second),
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
