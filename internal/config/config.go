// Package config provides configuration management for the trading journal.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Journal     JournalConfig    `mapstructure:"journal"`
	Classifier  ClassifierConfig `mapstructure:"classifier"`
	Insights    InsightsConfig   `mapstructure:"insights"`
	UI          UIConfig         `mapstructure:"ui"`
	Credentials Credentials      `mapstructure:"-"` // Loaded separately
}

// JournalConfig holds core journal configuration.
type JournalConfig struct {
	UserID          string   `mapstructure:"user_id"`
	DatabasePath    string   `mapstructure:"database_path"`
	DefaultExchange string   `mapstructure:"default_exchange"` // NSE, BSE
	DefaultProduct  string   `mapstructure:"default_product"`  // MIS, CNC, NRML
	SyncBrokers     []string `mapstructure:"sync_brokers"`
}

// ClassifierConfig holds pattern classifier configuration.
type ClassifierConfig struct {
	ArtifactPath      string  `mapstructure:"artifact_path"`
	DistanceThreshold float64 `mapstructure:"distance_threshold"`
	MinObservations   int     `mapstructure:"min_observations"`
	Workers           int     `mapstructure:"workers"`
}

// InsightsConfig holds LLM insights configuration.
type InsightsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Model   string `mapstructure:"model"`
}

// UIConfig holds UI-related configuration.
type UIConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled"`
	DateFormat   string `mapstructure:"date_format"`
	TimeFormat   string `mapstructure:"time_format"`
}

// Credentials holds API credentials.
type Credentials struct {
	Zerodha  ZerodhaCredentials  `mapstructure:"zerodha"`
	Dhan     DhanCredentials     `mapstructure:"dhan"`
	AngelOne AngelOneCredentials `mapstructure:"angelone"`
	OpenAI   OpenAICredentials   `mapstructure:"openai"`
}

// ZerodhaCredentials holds Zerodha Kite Connect credentials.
type ZerodhaCredentials struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	UserID    string `mapstructure:"user_id"`
}

// DhanCredentials holds Dhan API credentials.
type DhanCredentials struct {
	ClientID    string `mapstructure:"client_id"`
	AccessToken string `mapstructure:"access_token"`
}

// AngelOneCredentials holds AngelOne SmartAPI credentials.
type AngelOneCredentials struct {
	APIKey     string `mapstructure:"api_key"`
	ClientCode string `mapstructure:"client_code"`
	PIN        string `mapstructure:"pin"`
	TOTPSecret string `mapstructure:"totp_secret"`
}

// OpenAICredentials holds OpenAI API credentials.
type OpenAICredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/trade-journal"
	}
	return filepath.Join(home, ".config", "trade-journal")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

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

func loadConfigFile(configDir string, target *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	v.SetDefault("journal.user_id", "default")
	v.SetDefault("journal.database_path", filepath.Join(configDir, "journal.db"))
	v.SetDefault("journal.default_exchange", "NSE")
	v.SetDefault("journal.default_product", "CNC")
	v.SetDefault("classifier.artifact_path", filepath.Join(configDir, "patterns.json"))
	v.SetDefault("classifier.distance_threshold", 5.0)
	v.SetDefault("classifier.min_observations", 20)
	v.SetDefault("classifier.workers", 4)
	v.SetDefault("insights.enabled", true)
	v.SetDefault("insights.model", "gpt-4o-mini")
	v.SetDefault("ui.color_enabled", true)
	v.SetDefault("ui.date_format", "02-Jan-2006")
	v.SetDefault("ui.time_format", "15:04:05")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		if err := createTemplateConfig(configDir); err != nil {
			return err
		}
	}

	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ZERODHA_API_KEY"); v != "" {
		cfg.Credentials.Zerodha.APIKey = v
	}
	if v := os.Getenv("ZERODHA_API_SECRET"); v != "" {
		cfg.Credentials.Zerodha.APISecret = v
	}
	if v := os.Getenv("DHAN_CLIENT_ID"); v != "" {
		cfg.Credentials.Dhan.ClientID = v
	}
	if v := os.Getenv("DHAN_ACCESS_TOKEN"); v != "" {
		cfg.Credentials.Dhan.AccessToken = v
	}
	if v := os.Getenv("ANGELONE_API_KEY"); v != "" {
		cfg.Credentials.AngelOne.APIKey = v
	}
	if v := os.Getenv("ANGELONE_TOTP_SECRET"); v != "" {
		cfg.Credentials.AngelOne.TOTPSecret = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Credentials.OpenAI.APIKey = v
	}
	if v := os.Getenv("JOURNAL_USER_ID"); v != "" {
		cfg.Journal.UserID = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Journal.UserID == "" {
		return fmt.Errorf("journal.user_id must not be empty")
	}

	switch c.Journal.DefaultExchange {
	case "NSE", "BSE", "NFO", "CDS", "MCX":
	default:
		return fmt.Errorf("invalid default exchange: %s", c.Journal.DefaultExchange)
	}

	switch c.Journal.DefaultProduct {
	case "MIS", "CNC", "NRML":
	default:
		return fmt.Errorf("invalid default product: %s", c.Journal.DefaultProduct)
	}

	if c.Classifier.DistanceThreshold <= 0 {
		return fmt.Errorf("classifier.distance_threshold must be positive")
	}
	if c.Classifier.MinObservations < 20 {
		return fmt.Errorf("classifier.min_observations must be at least 20 (rolling windows need 20 daily observations)")
	}

	for _, b := range c.Journal.SyncBrokers {
		switch b {
		case "ZERODHA", "DHAN", "ANGELONE":
		default:
			return fmt.Errorf("unknown sync broker: %s", b)
		}
	}

	return nil
}
