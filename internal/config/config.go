// Package config loads the kitetrader YAML configuration and applies
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"kitetrader/internal/throttle"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the kitetrader client.
type Config struct {
	API      API            `yaml:"api"`
	Throttle ThrottleConfig `yaml:"throttle"`
	Storage  Storage        `yaml:"storage"`
	Logging  Logging        `yaml:"logging"`
	Archive  ArchiveConfig  `yaml:"archive"`
}

// API holds endpoints and credentials for the Kite API.
type API struct {
	BaseURL        string `yaml:"base_url"`
	LoginURL       string `yaml:"login_url"`
	APIKey         string `yaml:"api_key"`
	AccessToken    string `yaml:"access_token"`
	UserID         string `yaml:"user_id"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// ThrottleConfig holds the per-category rate ceilings and the global
// penalty ceiling.
type ThrottleConfig struct {
	MaxPenaltyCount uint            `yaml:"max_penalty_count"`
	Categories      throttle.Config `yaml:"categories"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ArchiveConfig holds parameters for the historical candle archiver.
type ArchiveConfig struct {
	Instruments []int  `yaml:"instruments"`
	Interval    string `yaml:"interval"`
	StartDate   string `yaml:"start_date"`
	BatchDays   int    `yaml:"batch_days"`
}

// ---------------------------------------------------------------------------
// Defaults and loading
// ---------------------------------------------------------------------------

// Default returns the configuration used when no file is supplied. The
// throttle table matches the published Kite API limits.
func Default() *Config {
	return &Config{
		API: API{
			BaseURL:        "https://api.kite.trade",
			LoginURL:       "https://kite.zerodha.com",
			TimeoutSeconds: 15,
		},
		Throttle: ThrottleConfig{
			MaxPenaltyCount: 15,
			Categories: throttle.Config{
				"quote":      {RequestsPerSecond: 1},
				"historical": {RequestsPerSecond: 3},
				"order":      {RequestsPerSecond: 8, RequestsPerMinute: 180},
				"default":    {RequestsPerSecond: 8},
			},
		},
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "kitetrader.db",
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Archive: ArchiveConfig{
			Interval:  "day",
			BatchDays: 60,
		},
	}
}

// Load reads the YAML configuration file at the given path on top of the
// defaults, then applies environment variable overrides. An empty path
// yields the defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KITE_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("KITE_LOGIN_URL"); v != "" {
		cfg.API.LoginURL = v
	}
	if v := os.Getenv("KITE_API_KEY"); v != "" {
		cfg.API.APIKey = v
	}
	if v := os.Getenv("KITE_ACCESS_TOKEN"); v != "" {
		cfg.API.AccessToken = v
	}
	if v := os.Getenv("KITE_USER_ID"); v != "" {
		cfg.API.UserID = v
	}
	if v := os.Getenv("KITE_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.API.TimeoutSeconds = n
		}
	}

	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// validate rejects configurations the throttle would refuse at runtime.
func validate(cfg *Config) error {
	if len(cfg.Throttle.Categories) == 0 {
		return fmt.Errorf("throttle: at least one category is required")
	}
	for name, limit := range cfg.Throttle.Categories {
		if limit.RequestsPerSecond == 0 {
			return fmt.Errorf("throttle category %q: rps must be positive", name)
		}
	}
	if cfg.API.TimeoutSeconds <= 0 {
		return fmt.Errorf("api: timeout_seconds must be positive")
	}
	return nil
}
