package app

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Issuer        string // Required: issuer claim for access tokens
	Audience      string // Required: audience claim for access tokens
	SigningSecret string // Required: symmetric key for access token signatures

	AccessTokenTTL    time.Duration // Access token lifetime (default: 15m, allowed: 5m-60m)
	RefreshTTL        time.Duration // Standard refresh lifetime (default: 7 days)
	RememberMeTTL     time.Duration // Remember-me refresh lifetime (default: 30 days, max: 90)
	Retention         time.Duration // How long revoked records are kept (default: 30 days, max: 365)
	MaxActivePerUser  int           // Advisory cap on concurrent grants per user (default: 5)
	MaxActivePerAdmin int           // Advisory cap for admin accounts (default: 10)

	DatabaseFile  string        // Path to SQLite database file (default: ./tokens.db)
	Env           string        // Environment (dev, staging, prod) (default: dev)
	LogLevel      string        // Log level (debug, info, warn, error) (default: info)
	LogFormat     string        // Log format (json, text) (default: json)
	SweepInterval time.Duration // Retention sweeper interval (default: 1h)
}

func LoadConfig() Config {
	return Config{
		Issuer:        getEnvOrDefault("AUTH_ISSUER", "shop-auth"),
		Audience:      getEnvOrDefault("AUTH_AUDIENCE", "shop-api"),
		SigningSecret: os.Getenv("AUTH_SIGNING_SECRET"),

		AccessTokenTTL:    getEnvDurationOrDefault("AUTH_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:        getEnvDurationOrDefault("AUTH_REFRESH_TTL", 7*24*time.Hour),
		RememberMeTTL:     getEnvDurationOrDefault("AUTH_REMEMBER_ME_TTL", 30*24*time.Hour),
		Retention:         getEnvDurationOrDefault("AUTH_RETENTION", 30*24*time.Hour),
		MaxActivePerUser:  getEnvIntOrDefault("AUTH_MAX_ACTIVE_TOKENS", 5),
		MaxActivePerAdmin: getEnvIntOrDefault("AUTH_MAX_ACTIVE_TOKENS_ADMIN", 10),

		DatabaseFile:  getEnvOrDefault("AUTH_DATABASE_FILE", "tokens.db"),
		Env:           getEnvOrDefault("ENV", "dev"),
		LogLevel:      getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:     getEnvOrDefault("LOG_FORMAT", "json"),
		SweepInterval: getEnvDurationOrDefault("AUTH_SWEEP_INTERVAL", 1*time.Hour),
	}
}

// Validate enforces the deployment constraints at startup so a misconfigured
// service refuses to boot instead of issuing weak or unusable tokens.
func (c Config) Validate() error {
	if c.Issuer == "" {
		return fmt.Errorf("config: issuer is required")
	}
	if len(c.SigningSecret) < 32 {
		return fmt.Errorf("config: signing secret must be at least 32 bytes, got %d", len(c.SigningSecret))
	}
	if c.AccessTokenTTL < 5*time.Minute || c.AccessTokenTTL > 60*time.Minute {
		return fmt.Errorf("config: access token lifetime must be between 5m and 60m, got %s", c.AccessTokenTTL)
	}
	if c.RefreshTTL <= 0 {
		return fmt.Errorf("config: refresh lifetime must be positive, got %s", c.RefreshTTL)
	}
	if c.RememberMeTTL < c.RefreshTTL {
		return fmt.Errorf("config: remember-me lifetime %s is shorter than the standard lifetime %s",
			c.RememberMeTTL, c.RefreshTTL)
	}
	if c.RememberMeTTL > 90*24*time.Hour {
		return fmt.Errorf("config: remember-me lifetime must not exceed 90 days, got %s", c.RememberMeTTL)
	}
	if c.Retention < 0 || c.Retention > 365*24*time.Hour {
		return fmt.Errorf("config: retention window must be between 0 and 365 days, got %s", c.Retention)
	}
	if c.MaxActivePerUser < 0 || c.MaxActivePerAdmin < 0 {
		return fmt.Errorf("config: active token caps must not be negative")
	}
	return nil
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

	// Fall back to integer minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
