package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseFile string // Optional: path to SQLite database file (default: ./onboard.db)
	PepperFile   string // Optional: path to pepper file for password hashing (default: ./pepper)

	SetupOperatorToken string // Optional: if set, required to mint setup tokens
	SessionSecret      string // Required in prod: HMAC secret for session tokens
	SessionIssuer      string // Optional: issuer claim for session tokens

	BaseURL string // Public application origin used in emails (default: http://localhost:8080)
	AppName string // Product name used in emails (default: CampusKeep)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
	QueueInterval        time.Duration // Email delivery worker tick (default: 5s)
}

func LoadConfig() Config {
	return Config{
		DatabaseFile:         getEnvOrDefault("ONBOARD_DATABASE_FILE", "onboard.db"),
		PepperFile:           getEnvOrDefault("ONBOARD_PEPPER_FILE", "pepper"),
		SetupOperatorToken:   os.Getenv("SETUP_OPERATOR_TOKEN"),
		SessionSecret:        os.Getenv("SESSION_SECRET"),
		SessionIssuer:        getEnvOrDefault("SESSION_ISSUER", "campuskeep-onboard"),
		BaseURL:              getEnvOrDefault("BASE_URL", "http://localhost:8080"),
		AppName:              getEnvOrDefault("APP_NAME", "CampusKeep"),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
		QueueInterval:        getEnvDurationOrDefault("QUEUE_INTERVAL", 5*time.Second),
	}
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

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Integer seconds for convenience in container environments.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
