package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	applog "spendbook/internal/log"
)

type Config struct {
	// Storage
	DBPath       string
	SettingsPath string
	BackupDir    string

	// Logging
	LogLevel  string
	LogFormat string

	// CLI
	WatchDebounce time.Duration
	RecentMonths  int
}

func Load() *Config {
	cfg := &Config{
		DBPath:       getEnv("SPENDBOOK_DB_PATH", "./data/expenses.db"),
		SettingsPath: getEnv("SPENDBOOK_SETTINGS_PATH", "./data/settings.json"),
		BackupDir:    getEnv("SPENDBOOK_BACKUP_DIR", "./data/backups"),

		LogLevel:  getEnv("LOG_LEVEL", "warn"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		WatchDebounce: getEnvDuration("SPENDBOOK_WATCH_DEBOUNCE", 250*time.Millisecond),
		RecentMonths:  getEnvInt("SPENDBOOK_RECENT_MONTHS", 6),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate storage paths
	if c.DBPath == "" {
		errors = append(errors, "database path cannot be empty")
	} else if dir := filepath.Dir(c.DBPath); dir != "." && dir != "" {
		if info, err := os.Stat(dir); err == nil && !info.IsDir() {
			errors = append(errors, fmt.Sprintf("database directory '%s' is not a directory", dir))
		}
	}
	if c.SettingsPath == "" {
		errors = append(errors, "settings path cannot be empty")
	}
	if c.DBPath != "" && c.SettingsPath != "" && filepath.Clean(c.DBPath) == filepath.Clean(c.SettingsPath) {
		errors = append(errors, "settings path must differ from database path")
	}

	// Validate logging
	if _, err := applog.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of [debug info warn error]", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of [text json]", c.LogFormat))
	}

	// Validate CLI tuning
	if c.WatchDebounce < 10*time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid watch debounce %v: must be at least 10ms", c.WatchDebounce))
	} else if c.WatchDebounce > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid watch debounce %v: must be at most 1 minute", c.WatchDebounce))
	}
	if c.RecentMonths < 1 || c.RecentMonths > 12 {
		errors = append(errors, fmt.Sprintf("invalid recent months %d: must be between 1 and 12", c.RecentMonths))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Logger builds the application logger from the logging settings.
func (c *Config) Logger() *applog.Logger {
	level, err := applog.ParseLevel(c.LogLevel)
	if err != nil {
		level = applog.DefaultConfig().Level
	}
	cfg := applog.DefaultConfig()
	cfg.Level = level
	cfg.Format = c.LogFormat
	return applog.New(cfg)
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
