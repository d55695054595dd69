// Package config loads service configuration from an optional YAML file with
// environment-variable overrides for deployment-sensitive values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ProxyConfig holds optional SOCKS5 proxy settings applied to all outbound
// API calls.
type ProxyConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Enabled reports whether a proxy is configured.
func (p ProxyConfig) Enabled() bool {
	return p.Host != "" && p.Port > 0
}

// Addr returns the host:port dial address.
func (p ProxyConfig) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// SyncConfig configures one scheduled sync type.
type SyncConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron" validate:"required"`
}

// Config is the full service configuration.
type Config struct {
	DatabaseDSN string `yaml:"database_dsn" validate:"required"`
	ListenAddr  string `yaml:"listen_addr" validate:"required"`
	LogLevel    string `yaml:"log_level"`
	LogPretty   bool   `yaml:"log_pretty"`

	AccountSync  SyncConfig `yaml:"account_sync"`
	TransferSync SyncConfig `yaml:"transfer_sync"`
	RateSync     SyncConfig `yaml:"rate_sync"`

	// Lookback windows for transfer ingestion. Deposits and withdrawals may
	// trail by different lengths.
	DepositLookbackDays    int `yaml:"deposit_lookback_days" validate:"min=1"`
	WithdrawalLookbackDays int `yaml:"withdrawal_lookback_days" validate:"min=1"`

	BatchSize    int `yaml:"batch_size" validate:"min=1"`
	BackfillDays int `yaml:"backfill_days" validate:"min=1"`

	// TrackedCurrencies is the fixed symbol set the rate sync keeps fresh.
	TrackedCurrencies []string `yaml:"tracked_currencies" validate:"min=1"`

	// RateSource selects the upstream quote provider: "cryptocompare" or
	// "coingecko".
	RateSource string `yaml:"rate_source" validate:"oneof=cryptocompare coingecko"`

	// BackfillRequestDelay spaces per-date backfill requests as rate-limit
	// courtesy to the quote API.
	BackfillRequestDelay time.Duration `yaml:"backfill_request_delay"`

	Proxy ProxyConfig `yaml:"proxy"`
}

func defaults() Config {
	return Config{
		ListenAddr:             ":8080",
		LogLevel:               "info",
		AccountSync:            SyncConfig{Enabled: true, Cron: "0 2 * * *"},
		TransferSync:           SyncConfig{Enabled: true, Cron: "30 2 * * *"},
		RateSync:               SyncConfig{Enabled: true, Cron: "0 1 * * *"},
		DepositLookbackDays:    3,
		WithdrawalLookbackDays: 7,
		BatchSize:              500,
		BackfillDays:           30,
		TrackedCurrencies:      []string{"BTC", "ETH", "USDC", "USDT"},
		RateSource:             "cryptocompare",
		BackfillRequestDelay:   500 * time.Millisecond,
	}
}

// Load reads the YAML file at path (skipped when path is empty or missing),
// applies environment overrides, validates the result and returns it.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnv(&cfg)

	if cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = buildDSNFromEnv()
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("DATABASE_DSN")); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("RATE_SOURCE")); v != "" {
		cfg.RateSource = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("TRACKED_CURRENCIES")); v != "" {
		parts := strings.Split(v, ",")
		symbols := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.ToUpper(strings.TrimSpace(p)); s != "" {
				symbols = append(symbols, s)
			}
		}
		if len(symbols) > 0 {
			cfg.TrackedCurrencies = symbols
		}
	}
	if v := strings.TrimSpace(os.Getenv("PROXY_HOST")); v != "" {
		cfg.Proxy.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("PROXY_PORT")); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Proxy.Port = port
		}
	}
	if v := strings.TrimSpace(os.Getenv("PROXY_USERNAME")); v != "" {
		cfg.Proxy.Username = v
	}
	if v := strings.TrimSpace(os.Getenv("PROXY_PASSWORD")); v != "" {
		cfg.Proxy.Password = v
	}
}

// buildDSNFromEnv assembles a lib/pq connection string from individual
// DB_* variables, the Docker-friendly fallback when DATABASE_DSN is unset.
func buildDSNFromEnv() string {
	get := func(key, def string) string {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
		return def
	}

	host := get("DB_HOST", "localhost")
	port := get("DB_PORT", "5432")
	user := get("DB_USER", "postgres")
	password := get("DB_PASSWORD", "postgres")
	dbname := get("DB_NAME", "backoffice")

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)
}
