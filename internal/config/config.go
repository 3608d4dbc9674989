// Package config provides configuration management for the option tools.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "upstox-options/internal/errors"
	"upstox-options/internal/models"
)

// Config holds all application configuration.
type Config struct {
	Upstox      UpstoxConfig  `mapstructure:"upstox"`
	Options     OptionsConfig `mapstructure:"options"`
	Store       StoreConfig   `mapstructure:"store"`
	Logging     LoggingConfig `mapstructure:"logging"`
	Credentials Credentials   `mapstructure:"-"` // Loaded separately
}

// UpstoxConfig holds broker API settings.
type UpstoxConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// OptionsConfig holds option-chain and margin settings.
type OptionsConfig struct {
	LotSize       int           `mapstructure:"lot_size"`
	MarginTimeout time.Duration `mapstructure:"margin_timeout"`
	IndexPrefix   string        `mapstructure:"index_prefix"`
	OptionPrefix  string        `mapstructure:"option_prefix"`
}

// StoreConfig holds snapshot store settings.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       bool   `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// Credentials holds API credentials.
type Credentials struct {
	Upstox UpstoxCredentials `mapstructure:"upstox"`
}

// UpstoxCredentials holds the Upstox access token, or where to find it.
type UpstoxCredentials struct {
	AccessToken string `mapstructure:"access_token"`
	RedisURL    string `mapstructure:"redis_url"`
	TokenKey    string `mapstructure:"token_key"`
}

// Defaults
const (
	DefaultBaseURL       = "https://api.upstox.com"
	DefaultLotSize       = 50
	DefaultTimeout       = 15 * time.Second
	DefaultMarginTimeout = 10 * time.Second
	DefaultTokenKey      = "access_token"
)

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/upstox-options"
	}
	return filepath.Join(home, ".config", "upstox-options")
}

// Default returns a configuration populated with defaults only.
func Default() *Config {
	return &Config{
		Upstox: UpstoxConfig{
			BaseURL: DefaultBaseURL,
			Timeout: DefaultTimeout,
		},
		Options: OptionsConfig{
			LotSize:       DefaultLotSize,
			MarginTimeout: DefaultMarginTimeout,
			IndexPrefix:   models.DefaultIndexPrefix,
			OptionPrefix:  models.DefaultOptionPrefix,
		},
		Store: StoreConfig{
			Path: filepath.Join(DefaultConfigDir(), "snapshots.db"),
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       true,
			MaxSize:    100,
			MaxBackups: 7,
			MaxAge:     30,
		},
		Credentials: Credentials{
			Upstox: UpstoxCredentials{TokenKey: DefaultTokenKey},
		},
	}
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// A .env in the working directory is optional.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()
	cfg.Store.Path = filepath.Join(configDir, "snapshots.db")

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	v.SetDefault("upstox.base_url", cfg.Upstox.BaseURL)
	v.SetDefault("upstox.timeout", cfg.Upstox.Timeout)
	v.SetDefault("options.lot_size", cfg.Options.LotSize)
	v.SetDefault("options.margin_timeout", cfg.Options.MarginTimeout)
	v.SetDefault("options.index_prefix", cfg.Options.IndexPrefix)
	v.SetDefault("options.option_prefix", cfg.Options.OptionPrefix)
	v.SetDefault("store.path", cfg.Store.Path)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.max_size", cfg.Logging.MaxSize)
	v.SetDefault("logging.max_backups", cfg.Logging.MaxBackups)
	v.SetDefault("logging.max_age", cfg.Logging.MaxAge)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		// Config file not found, create template and keep defaults
		if err := createTemplate(configDir, "config", configTemplate, 0644); err != nil {
			return err
		}
	}

	return v.Unmarshal(cfg)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	v.SetDefault("upstox.token_key", DefaultTokenKey)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		if err := createTemplate(configDir, "credentials", credentialsTemplate, 0600); err != nil {
			return err
		}
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	// Upstox credentials. API_ACCESS_TOKEN is what the older scripts read.
	if v := os.Getenv("API_ACCESS_TOKEN"); v != "" {
		cfg.Credentials.Upstox.AccessToken = v
	}
	if v := os.Getenv("UPSTOX_ACCESS_TOKEN"); v != "" {
		cfg.Credentials.Upstox.AccessToken = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Credentials.Upstox.RedisURL = v
	}

	if v := os.Getenv("UPSTOX_BASE_URL"); v != "" {
		cfg.Upstox.BaseURL = v
	}
	if v := os.Getenv("UPSTOX_LOT_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Options.LotSize = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Upstox.BaseURL == "" {
		return apperrors.NewValidationError("upstox.base_url", c.Upstox.BaseURL, "must not be empty")
	}
	if c.Upstox.Timeout < 0 {
		return apperrors.NewValidationError("upstox.timeout", c.Upstox.Timeout, "must be non-negative")
	}
	if c.Options.LotSize <= 0 {
		return apperrors.NewValidationError("options.lot_size", c.Options.LotSize, "must be positive")
	}
	if c.Options.MarginTimeout < 0 {
		return apperrors.NewValidationError("options.margin_timeout", c.Options.MarginTimeout, "must be non-negative")
	}
	if c.Options.IndexPrefix == "" || c.Options.OptionPrefix == "" {
		return apperrors.NewValidationError("options.prefix", c.Options.IndexPrefix+"/"+c.Options.OptionPrefix, "prefixes must not be empty")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error", "disabled":
	default:
		return apperrors.NewValidationError("logging.level", c.Logging.Level, "must be debug, info, warn, error or disabled")
	}

	return nil
}

// HasTokenSource reports whether an access token or a token store is configured.
func (c *Config) HasTokenSource() bool {
	return c.Credentials.Upstox.AccessToken != "" || c.Credentials.Upstox.RedisURL != ""
}
