package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// Config holds all configuration for the application.
type Config struct {
	Binance  Binance  `mapstructure:"binance"`
	Strategy Strategy `mapstructure:"strategy"`
	Backtest Backtest `mapstructure:"backtest"`
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
}

// Binance holds the configuration for the Binance futures API.
type Binance struct {
	ApiKey         string  `mapstructure:"apiKey"`
	SecretKey      string  `mapstructure:"secretKey"`
	Testnet        bool    `mapstructure:"testnet"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	RecvWindow     int     `mapstructure:"recv_window"`
}

// Strategy holds the tuning of the live strategies.
type Strategy struct {
	QuantityPrecision int32         `mapstructure:"quantity_precision"`
	PricePrecision    int32         `mapstructure:"price_precision"`
	ValidateFilters   bool          `mapstructure:"validate_filters"`
	OCOPollInterval   time.Duration `mapstructure:"oco_poll_interval"`
	OCOTimeout        time.Duration `mapstructure:"oco_timeout"`
}

// Backtest holds the inputs and cost model of the simulators.
type Backtest struct {
	DataPath         string   `mapstructure:"data_path"`
	OutputDir        string   `mapstructure:"output_dir"`
	SlippagePct      float64  `mapstructure:"slippage_pct"`
	FeePct           float64  `mapstructure:"fee_pct"`
	TimestampColumn  string   `mapstructure:"timestamp_column"`
	PriceColumn      string   `mapstructure:"price_column"`
	TimestampLayouts []string `mapstructure:"timestamp_layouts"`
}

// Server holds the configuration for the dashboard server.
type Server struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// ErrMissingCredentials is returned by RequireCredentials when no API key pair is configured.
var ErrMissingCredentials = errors.New("API keys not found: set BINANCE_API_KEY and BINANCE_API_SECRET (see .env.example)")

// LoadConfig reads configuration from path/config.yml, a .env file and environment variables.
// A missing config file is not an error; defaults and the environment are enough to run.
func LoadConfig(path string) (config Config, err error) {
	// The .env file is optional.
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Names used by the .env contract.
	_ = v.BindEnv("binance.apiKey", "BINANCE_API_KEY")
	_ = v.BindEnv("binance.secretKey", "BINANCE_API_SECRET")
	_ = v.BindEnv("binance.testnet", "USE_TESTNET")

	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to parse config: %w", err)
	}

	err = config.Validate()
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("binance.testnet", false)
	v.SetDefault("binance.rate_limit", 20)      // requests per second
	v.SetDefault("binance.rate_limit_burst", 5) // burst size
	v.SetDefault("binance.recv_window", 5000)

	v.SetDefault("strategy.quantity_precision", 3)
	v.SetDefault("strategy.price_precision", 5)
	v.SetDefault("strategy.validate_filters", false)
	v.SetDefault("strategy.oco_poll_interval", "2s")
	v.SetDefault("strategy.oco_timeout", "300s")

	v.SetDefault("backtest.data_path", "data/historical_data.csv")
	v.SetDefault("backtest.output_dir", "data")
	v.SetDefault("backtest.slippage_pct", 0.02)
	v.SetDefault("backtest.fee_pct", 0.04)
	v.SetDefault("backtest.timestamp_column", "Timestamp IST")
	v.SetDefault("backtest.price_column", "Execution Price")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.file", "bot.log")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("database.dsn", "data/bot.db")
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var err error

	if c.Binance.RateLimit <= 0 {
		err = multierr.Append(err, errors.New("binance.rate_limit must be positive"))
	}
	if c.Binance.RateLimitBurst < 1 {
		err = multierr.Append(err, errors.New("binance.rate_limit_burst must be at least 1"))
	}
	if c.Strategy.QuantityPrecision < 0 || c.Strategy.QuantityPrecision > 16 {
		err = multierr.Append(err, errors.New("strategy.quantity_precision must be within [0,16]"))
	}
	if c.Strategy.PricePrecision < 0 || c.Strategy.PricePrecision > 16 {
		err = multierr.Append(err, errors.New("strategy.price_precision must be within [0,16]"))
	}
	if c.Strategy.OCOPollInterval <= 0 {
		err = multierr.Append(err, errors.New("strategy.oco_poll_interval must be positive"))
	}
	if c.Strategy.OCOTimeout <= 0 {
		err = multierr.Append(err, errors.New("strategy.oco_timeout must be positive"))
	}
	if c.Backtest.SlippagePct < 0 {
		err = multierr.Append(err, errors.New("backtest.slippage_pct must not be negative"))
	}
	if c.Backtest.FeePct < 0 {
		err = multierr.Append(err, errors.New("backtest.fee_pct must not be negative"))
	}
	if c.Backtest.TimestampColumn == "" || c.Backtest.PriceColumn == "" {
		err = multierr.Append(err, errors.New("backtest.timestamp_column and backtest.price_column are required"))
	}
	switch c.Logger.Format {
	case "json", "console":
	default:
		err = multierr.Append(err, fmt.Errorf("logger.format %q must be json or console", c.Logger.Format))
	}
	if c.Database.DSN == "" {
		err = multierr.Append(err, errors.New("database.dsn is required"))
	}

	return err
}

// RequireCredentials fails when the API key pair needed for signed requests is missing.
func (b Binance) RequireCredentials() error {
	if b.ApiKey == "" || b.SecretKey == "" {
		return ErrMissingCredentials
	}
	return nil
}
