package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds the appspec CLI configuration.
// Priority: flags > env vars > settings.json > defaults.
type Config struct {
	MetaSchema string `json:"meta_schema"`
	BaseURI    string `json:"base_uri"`
	DBPath     string `json:"db_path"`
	LogLevel   string `json:"log_level"`
	PoolSize   int    `json:"pool_size"`
	Manifest   string `json:"manifest"`

	// VaultPassphrase is read from the environment only, never from disk.
	VaultPassphrase string `json:"-"`
}

func defaultConfig() Config {
	return Config{
		DBPath:   filepath.Join(appspecDir(), "appspec.db"),
		LogLevel: "info",
		PoolSize: 4,
	}
}

func appspecDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".appspec"
	}
	return filepath.Join(home, ".appspec")
}

func settingsPath() string {
	return filepath.Join(appspecDir(), "settings.json")
}

func loadConfig() (Config, error) {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", settingsPath(), err)
		}
	}

	// Layer 3: env vars override.
	if v := os.Getenv("APPSPEC_META_SCHEMA"); v != "" {
		cfg.MetaSchema = v
	}
	if v := os.Getenv("APPSPEC_BASE_URI"); v != "" {
		cfg.BaseURI = v
	}
	if v := os.Getenv("APPSPEC_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("APPSPEC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("APPSPEC_POOL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("APPSPEC_POOL_SIZE: %w", err)
		}
		cfg.PoolSize = n
	}
	if v := os.Getenv("APPSPEC_MANIFEST"); v != "" {
		cfg.Manifest = v
	}
	cfg.VaultPassphrase = os.Getenv("APPSPEC_VAULT_PASSPHRASE")

	return cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// saltPath is where the vault salt lives, next to the database.
func (c Config) saltPath() string {
	return c.DBPath + ".salt"
}
