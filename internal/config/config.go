// Package config loads server settings.
//
// Sources, later ones winning:
//  1. Defaults
//  2. TOML file named by TASKMASTER_CONFIG (optional)
//  3. Environment variables
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ConfigFileEnv names the environment variable holding the TOML file path.
const ConfigFileEnv = "TASKMASTER_CONFIG"

// Storage backends.
const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// Defaults.
const (
	DefaultPort             = 8080
	DefaultDBPath           = "data/taskmaster.db"
	DefaultLogLevel         = "info"
	DefaultBcryptCost       = 12
	DefaultReminderDelay    = time.Second
	DefaultReminderInterval = 5 * time.Minute
)

// Config is the full server configuration. The toml tags are the keys
// accepted in the config file.
type Config struct {
	Port             int           `toml:"port"`
	DBPath           string        `toml:"db_path"`
	Storage          string        `toml:"storage"`
	JWTSecret        string        `toml:"jwt_secret"`
	LogLevel         string        `toml:"log_level"`
	BcryptCost       int           `toml:"bcrypt_cost"`
	ReminderDelay    time.Duration `toml:"reminder_delay"`
	ReminderInterval time.Duration `toml:"reminder_interval"`
}

// Load builds a Config from defaults, the optional file and the environment,
// then validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	setDefaults(cfg)

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := loadConfigFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	cfg.Port = DefaultPort
	cfg.DBPath = DefaultDBPath
	cfg.Storage = StorageSQLite
	cfg.LogLevel = DefaultLogLevel
	cfg.BcryptCost = DefaultBcryptCost
	cfg.ReminderDelay = DefaultReminderDelay
	cfg.ReminderInterval = DefaultReminderInterval
}

func loadConfigFile(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown keys: %v", undecoded)
	}
	return nil
}

func loadFromEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Port = port
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("STORAGE"); v != "" {
		cfg.Storage = strings.ToLower(v)
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("BCRYPT_COST"); v != "" {
		cost, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid BCRYPT_COST %q: %w", v, err)
		}
		cfg.BcryptCost = cost
	}
	if v := os.Getenv("REMINDER_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid REMINDER_DELAY %q: %w", v, err)
		}
		cfg.ReminderDelay = d
	}
	if v := os.Getenv("REMINDER_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid REMINDER_INTERVAL %q: %w", v, err)
		}
		cfg.ReminderInterval = d
	}
	return nil
}

// Validate checks value ranges. It does not check the JWT secret length;
// auth.NewTokenService does that.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	switch c.Storage {
	case StorageSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("db_path is required for sqlite storage")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("storage must be %q or %q, got %q", StorageSQLite, StorageMemory, c.Storage)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.ReminderDelay < 0 {
		return fmt.Errorf("reminder_delay must not be negative")
	}
	if c.ReminderInterval < time.Second {
		return fmt.Errorf("reminder_interval must be at least 1s, got %s", c.ReminderInterval)
	}
	if c.ReminderInterval%time.Second != 0 {
		return fmt.Errorf("reminder_interval must be whole seconds, got %s", c.ReminderInterval)
	}
	return nil
}

// SlogLevel maps LogLevel to a slog.Level.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
}
