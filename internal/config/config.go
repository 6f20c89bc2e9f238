// Package config provides configuration management for the trading engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/viper"

	"fusion-trader/internal/models"
)

// Config holds all application configuration.
type Config struct {
	Trading  TradingConfig  `mapstructure:"trading"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Backtest BacktestConfig `mapstructure:"backtest"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

// TradingConfig holds the decision-loop parameters.
type TradingConfig struct {
	Pair            string  `mapstructure:"pair"`
	Lookback        int     `mapstructure:"lookback"`
	IntervalMinutes int     `mapstructure:"interval_minutes"`
	TradePercent    float64 `mapstructure:"trade_percent"`
	SentimentWeight float64 `mapstructure:"sentiment_weight"`
	TargetValue     float64 `mapstructure:"target_value"`
	InitialBalance  float64 `mapstructure:"initial_balance"`
}

// RiskConfig holds circuit-breaker settings.
type RiskConfig struct {
	MaxDailyLossPercent  float64 `mapstructure:"max_daily_loss_percent"`
	MaxConsecutiveLosses int     `mapstructure:"max_consecutive_losses"`
	MinConfidenceToTrade float64 `mapstructure:"min_confidence_to_trade"`
}

// BacktestConfig holds replay parameters.
type BacktestConfig struct {
	InitialCapital float64 `mapstructure:"initial_capital"`
	TradeAmount    float64 `mapstructure:"trade_amount"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	DatabasePath string `mapstructure:"database_path"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/fusion-trader"
	}
	return filepath.Join(home, ".config", "fusion-trader")
}

// Load loads configuration from the specified directory. If configDir is
// empty, the default directory is used; a missing config file is created as
// a template with defaults.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}
	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Init writes the template config file into configDir, creating the
// directory when needed. An existing file is left untouched.
func Init(configDir string) (string, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := createTemplateConfig(configDir, "config"); err != nil {
		return "", err
	}
	return path, nil
}

func loadConfigFile(configDir, name string, target *Config) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if err := createTemplateConfig(configDir, name); err != nil {
				return err
			}
			return v.Unmarshal(target)
		}
		return err
	}

	return v.Unmarshal(target)
}

func setDefaults(v *viper.Viper, configDir string) {
	risk := models.DefaultRiskSettings()

	v.SetDefault("trading.pair", "BTC-USDC")
	v.SetDefault("trading.lookback", 200)
	v.SetDefault("trading.interval_minutes", 60)
	v.SetDefault("trading.trade_percent", 25.0)
	v.SetDefault("trading.sentiment_weight", 0.4)
	v.SetDefault("trading.target_value", 0.0)
	v.SetDefault("trading.initial_balance", 1000.0)

	v.SetDefault("risk.max_daily_loss_percent", risk.MaxDailyLossPercent)
	v.SetDefault("risk.max_consecutive_losses", risk.MaxConsecutiveLosses)
	v.SetDefault("risk.min_confidence_to_trade", risk.MinConfidenceToTrade)

	v.SetDefault("backtest.initial_capital", 1000.0)
	v.SetDefault("backtest.trade_amount", 0.0)

	v.SetDefault("storage.database_path", filepath.Join(configDir, "memory.db"))
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FUSION_TRADER_PAIR"); v != "" {
		cfg.Trading.Pair = v
	}
	if v := os.Getenv("FUSION_TRADER_DB"); v != "" {
		cfg.Storage.DatabasePath = v
	}
	if v := os.Getenv("FUSION_TRADER_SENTIMENT_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Trading.SentimentWeight = w
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Trading.Pair == "" {
		return fmt.Errorf("trading.pair must be set")
	}
	if c.Trading.Lookback < 2 {
		return fmt.Errorf("trading.lookback must be at least 2")
	}
	if c.Trading.TradePercent <= 0 || c.Trading.TradePercent > 100 {
		return fmt.Errorf("trading.trade_percent must be in (0, 100]")
	}
	if c.Trading.SentimentWeight < 0 || c.Trading.SentimentWeight > 1 {
		return fmt.Errorf("trading.sentiment_weight must be between 0 and 1")
	}
	if c.Risk.MaxDailyLossPercent <= 0 {
		return fmt.Errorf("risk.max_daily_loss_percent must be positive")
	}
	if c.Risk.MaxConsecutiveLosses < 1 {
		return fmt.Errorf("risk.max_consecutive_losses must be at least 1")
	}
	if c.Risk.MinConfidenceToTrade < 0 || c.Risk.MinConfidenceToTrade > 100 {
		return fmt.Errorf("risk.min_confidence_to_trade must be between 0 and 100")
	}
	if c.Backtest.InitialCapital <= 0 {
		return fmt.Errorf("backtest.initial_capital must be positive")
	}
	return nil
}

// RiskSettings converts the risk section to the engine's settings type.
func (c *Config) RiskSettings() models.RiskSettings {
	return models.RiskSettings{
		MaxDailyLossPercent:  c.Risk.MaxDailyLossPercent,
		MaxConsecutiveLosses: c.Risk.MaxConsecutiveLosses,
		MinConfidenceToTrade: c.Risk.MinConfidenceToTrade,
	}
}

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return err
	}

	template := `# fusion-trader configuration

[trading]
pair = "BTC-USDC"
lookback = 200
interval_minutes = 60
trade_percent = 25.0
sentiment_weight = 0.4
target_value = 0.0
initial_balance = 1000.0

[risk]
max_daily_loss_percent = 10.0
max_consecutive_losses = 3
min_confidence_to_trade = 50.0

[backtest]
initial_capital = 1000.0
trade_amount = 0.0

[storage]
# database_path = "~/.config/fusion-trader/memory.db"
`
	path := filepath.Join(configDir, name+".toml")
	return os.WriteFile(path, []byte(template), 0o644)
}
