package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Browser  BrowserConfig
	Checker  CheckerConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	MaxConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

type BrowserConfig struct {
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	Locale         string
	TimezoneID     string
}

// CheckerConfig is the availability-check policy. The bulk orchestrator
// snapshots these values once per run.
type CheckerConfig struct {
	HeadlessEnabled      bool
	ManualVerification   bool
	SessionTTLDays       int
	NotificationsEnabled bool
	PreferredCurrency    string
	CheckDelay           time.Duration
	FetchTimeout         time.Duration
	BackgroundEnabled    bool
	BackgroundInterval   time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getIntOrDefault("SERVER_PORT", 8080),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "restockd"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_NOTIFICATION_STREAM", "restockd.notifications"),
		},
		Browser: BrowserConfig{
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-US"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Europe/Berlin"),
		},
		Checker: CheckerConfig{
			HeadlessEnabled:      getBoolOrDefault("CHECKER_HEADLESS_ENABLED", true),
			ManualVerification:   getBoolOrDefault("CHECKER_MANUAL_VERIFICATION", false),
			SessionTTLDays:       getIntOrDefault("CHECKER_SESSION_TTL_DAYS", 7),
			NotificationsEnabled: getBoolOrDefault("CHECKER_NOTIFICATIONS_ENABLED", true),
			PreferredCurrency:    getEnvOrDefault("CHECKER_PREFERRED_CURRENCY", "EUR"),
			CheckDelay:           getDurationOrDefault("CHECKER_CHECK_DELAY", 3*time.Second),
			FetchTimeout:         getDurationOrDefault("CHECKER_FETCH_TIMEOUT", 20*time.Second),
			BackgroundEnabled:    getBoolOrDefault("CHECKER_BACKGROUND_ENABLED", true),
			BackgroundInterval:   getDurationOrDefault("CHECKER_BACKGROUND_INTERVAL", 60*time.Minute),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Checker.SessionTTLDays < 1 {
		return fmt.Errorf("CHECKER_SESSION_TTL_DAYS must be at least 1")
	}

	if c.Checker.PreferredCurrency == "" {
		return fmt.Errorf("CHECKER_PREFERRED_CURRENCY must not be empty")
	}

	if c.Checker.BackgroundInterval < time.Minute {
		return fmt.Errorf("CHECKER_BACKGROUND_INTERVAL must be at least one minute")
	}

	if c.Database.MaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be at least 1")
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
