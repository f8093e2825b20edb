// Package config loads service configuration from config.yaml and the
// environment. Environment variables win over the file; a missing file is
// fine in containerized deployments.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	JWT         JWTConfig       `mapstructure:"jwt"`
	Payment     PaymentConfig   `mapstructure:"payment"`
	Valuation   ValuationConfig `mapstructure:"valuation"`
	Positions   PositionsConfig `mapstructure:"positions"`
}

type ServerConfig struct {
	Port            int      `mapstructure:"port"`
	Host            string   `mapstructure:"host"`
	ReadTimeout     int      `mapstructure:"read_timeout"`
	WriteTimeout    int      `mapstructure:"write_timeout"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	RateLimitPerMin int      `mapstructure:"rate_limit_per_min"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string `mapstructure:"migrations_path"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Addr returns the host:port address for the redis client
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type JWTConfig struct {
	Secret    string `mapstructure:"secret"`
	AccessTTL int    `mapstructure:"access_token_ttl"`
	Issuer    string `mapstructure:"issuer"`
}

// PaymentConfig holds the per-channel processor configuration
type PaymentConfig struct {
	Card   CardConfig   `mapstructure:"card"`
	Wallet WalletConfig `mapstructure:"wallet"`
	Crypto CryptoConfig `mapstructure:"crypto"`
	Wire   WireConfig   `mapstructure:"wire"`
}

type CardConfig struct {
	APIKey        string `mapstructure:"api_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	BaseURL       string `mapstructure:"base_url"`
	TimeoutSecs   int    `mapstructure:"timeout_secs"`
}

type WalletConfig struct {
	APIKey        string `mapstructure:"api_key"`
	APISecret     string `mapstructure:"api_secret"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	BaseURL       string `mapstructure:"base_url"`
	TimeoutSecs   int    `mapstructure:"timeout_secs"`
}

type CryptoConfig struct {
	DepositAddress string `mapstructure:"deposit_address"`
	Network        string `mapstructure:"network"`
}

type WireConfig struct {
	BankName      string `mapstructure:"bank_name"`
	AccountName   string `mapstructure:"account_name"`
	AccountNumber string `mapstructure:"account_number"`
	RoutingNumber string `mapstructure:"routing_number"`
}

// ValuationConfig controls the revaluation sweep
type ValuationConfig struct {
	Schedule       string `mapstructure:"schedule"`
	PendingTTLDays int    `mapstructure:"pending_ttl_days"`
}

// PendingTTL returns how long a pending position may wait for payment
func (c ValuationConfig) PendingTTL() time.Duration {
	return time.Duration(c.PendingTTLDays) * 24 * time.Hour
}

// PositionsConfig controls position lifecycle rules
type PositionsConfig struct {
	HoldingWindowDays int `mapstructure:"holding_window_days"`
}

// HoldingWindow returns the minimum time a position must stay active before
// early withdrawal
func (c PositionsConfig) HoldingWindow() time.Duration {
	return time.Duration(c.HoldingWindowDays) * 24 * time.Hour
}

// Load reads configuration from config.yaml and the environment
func Load() (*Config, error) {
	// Missing .env is not an error in deployed environments.
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.Environment == "production" {
		if c.Payment.Card.WebhookSecret == "" || c.Payment.Wallet.WebhookSecret == "" {
			return fmt.Errorf("webhook secrets are required in production")
		}
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.rate_limit_per_min", 120)

	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 300)
	viper.SetDefault("database.migrations_path", "migrations")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)

	viper.SetDefault("jwt.access_token_ttl", 604800) // 7 days
	viper.SetDefault("jwt.issuer", "vestra_service")

	viper.SetDefault("payment.card.base_url", "https://api.cardrail.example.com")
	viper.SetDefault("payment.card.timeout_secs", 15)
	viper.SetDefault("payment.wallet.base_url", "https://api.walletpay.example.com")
	viper.SetDefault("payment.wallet.timeout_secs", 15)
	viper.SetDefault("payment.crypto.network", "TRC20")

	viper.SetDefault("valuation.schedule", "@every 1h")
	viper.SetDefault("valuation.pending_ttl_days", 14)

	viper.SetDefault("positions.holding_window_days", 7)
}
