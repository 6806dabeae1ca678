// Package config defines the top-level configuration for walletrecon and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/walletrecon/internal/bundle"
	"github.com/alanyoungcy/walletrecon/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by WALLETRECON_* environment variables.
type Config struct {
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
	Log      LogConfig      `toml:"log"`
	Trace    TraceConfig    `toml:"trace"`
	DeBank   DeBankConfig   `toml:"debank"`
	Subgraph SubgraphConfig `toml:"subgraph"`
	Bundle   bundle.Config  `toml:"bundle"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	SQLite   SQLiteConfig   `toml:"sqlite"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Report   ReportConfig   `toml:"report"`
}

// LogConfig controls the optional rotating log file. Stdout logging is
// always on.
type LogConfig struct {
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// TraceConfig toggles OpenTelemetry spans around collector work.
type TraceConfig struct {
	Enabled bool `toml:"enabled"`
	// File receives the exported spans; empty means stdout.
	File string `toml:"file"`
}

// DeBankConfig holds the wallet history API settings.
type DeBankConfig struct {
	BaseURL       string   `toml:"base_url"`
	AccessKey     string   `toml:"access_key"`
	RatePerSecond float64  `toml:"rate_per_second"`
	Burst         int      `toml:"burst"`
	Retries       int      `toml:"retries"`
	Timeout       duration `toml:"timeout"`
	MaxPages      int      `toml:"max_pages"`
}

// SubgraphConfig holds the protocol indexer endpoints.
type SubgraphConfig struct {
	GMXURL   string `toml:"gmx_url"`
	GMXChain string `toml:"gmx_chain"`
	// UniswapURLs maps a history chain id ("eth", "arb") to the Uniswap v3
	// subgraph indexing it.
	UniswapURLs   map[string]string `toml:"uniswap_urls"`
	APIKey        string            `toml:"api_key"`
	RatePerSecond float64           `toml:"rate_per_second"`
	// CollectorTimeout bounds one collector's whole fetch.
	CollectorTimeout duration `toml:"collector_timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters for the manual
// curation stores.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled     bool     `toml:"enabled"`
	Addr        string   `toml:"addr"`
	Password    string   `toml:"password"`
	DB          int      `toml:"db"`
	PoolSize    int      `toml:"pool_size"`
	MaxRetries  int      `toml:"max_retries"`
	TLSEnabled  bool     `toml:"tls_enabled"`
	RegistryTTL duration `toml:"registry_ttl"`
	PriceTTL    duration `toml:"price_ttl"`
	LockTTL     duration `toml:"lock_ttl"`
}

// SQLiteConfig holds the local history cache location.
type SQLiteConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// S3Config holds S3-compatible object storage parameters for report
// archives.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port         int      `toml:"port"`
	CORSOrigins  []string `toml:"cors_origins"`
	APIKey       string   `toml:"api_key"`
	RateLimit    int      `toml:"rate_limit"`
	RateWindow   duration `toml:"rate_window"`
	WriteTimeout duration `toml:"write_timeout"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ReportConfig drives the one-shot report mode.
type ReportConfig struct {
	Wallet      string `toml:"wallet"`
	Since       string `toml:"since"`
	Archive     bool   `toml:"archive"`
	Refresh     bool   `toml:"refresh"`
	BundleLimit int    `toml:"bundle_limit"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Mode:     "server",
		LogLevel: "info",
		Log: LogConfig{
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		DeBank: DeBankConfig{
			BaseURL:       "https://pro-openapi.debank.com/v1",
			RatePerSecond: 5,
			Burst:         5,
			Retries:       3,
			Timeout:       duration{30 * time.Second},
			MaxPages:      100,
		},
		Subgraph: SubgraphConfig{
			GMXURL:   "https://subgraph.satsuma-prod.com/3b2ced13c8d9/gmx/synthetics-arbitrum-stats/api",
			GMXChain: "arb",
			UniswapURLs: map[string]string{
				"eth": "https://gateway.thegraph.com/api/subgraphs/id/5zvR82QoaXYFyDEKLZ9t6v9adgnptxYpKpSbxtgVENFV",
			},
			RatePerSecond:    10,
			CollectorTimeout: duration{45 * time.Second},
		},
		Bundle: bundle.DefaultConfig(),
		Postgres: PostgresConfig{
			Enabled:       true,
			Host:          "localhost",
			Port:          5432,
			Database:      "walletrecon",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:     true,
			Addr:        "localhost:6379",
			PoolSize:    20,
			MaxRetries:  3,
			RegistryTTL: duration{5 * time.Minute},
			PriceTTL:    duration{15 * time.Minute},
			LockTTL:     duration{2 * time.Minute},
		},
		SQLite: SQLiteConfig{
			Enabled: true,
			Path:    "data/history.db",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "walletrecon-reports",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:         8000,
			CORSOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:    120,
			RateWindow:   duration{time.Minute},
			WriteTimeout: duration{2 * time.Minute},
		},
		Report: ReportConfig{
			Since:       "all",
			BundleLimit: 50,
		},
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server": true,
	"report": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, report)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// DeBank
	if c.DeBank.AccessKey == "" {
		errs = append(errs, "debank: access_key must be set")
	}
	if c.DeBank.RatePerSecond < 0 {
		errs = append(errs, "debank: rate_per_second must be >= 0")
	}
	if c.DeBank.MaxPages < 1 {
		errs = append(errs, "debank: max_pages must be >= 1")
	}

	// Subgraphs: at least one collector must be configured.
	if c.Subgraph.GMXURL == "" && len(c.Subgraph.UniswapURLs) == 0 {
		errs = append(errs, "subgraph: set gmx_url or at least one uniswap_urls entry")
	}
	if c.Subgraph.GMXURL != "" && c.Subgraph.GMXChain == "" {
		errs = append(errs, "subgraph: gmx_chain must not be empty when gmx_url is set")
	}
	for chain, url := range c.Subgraph.UniswapURLs {
		if url == "" {
			errs = append(errs, fmt.Sprintf("subgraph: uniswap_urls.%s must not be empty", chain))
		}
	}
	if c.Subgraph.CollectorTimeout.Duration <= 0 {
		errs = append(errs, "subgraph: collector_timeout must be > 0")
	}

	// Bundling thresholds
	if c.Bundle.OrderPairWindowSec <= 0 || c.Bundle.ApprovalWindowSec <= 0 {
		errs = append(errs, "bundle: order_pair_window_sec and approval_window_sec must be > 0")
	}
	if c.Bundle.GasRefundMaxAmount <= 0 {
		errs = append(errs, "bundle: gas_refund_max_amount must be > 0")
	}
	if c.Bundle.OverheadThresholdUSD < 0 {
		errs = append(errs, "bundle: overhead_threshold_usd must be >= 0")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	} else if c.Mode == "server" {
		errs = append(errs, "postgres: must be enabled in server mode (manual curation stores)")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// SQLite
	if c.SQLite.Enabled && c.SQLite.Path == "" {
		errs = append(errs, "sqlite: path must not be empty")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Server
	if c.Mode == "server" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && !c.Redis.Enabled {
			errs = append(errs, "server: rate_limit needs redis to be enabled (set rate_limit = 0 to disable)")
		}
	}

	// Report
	if c.Mode == "report" {
		if _, err := domain.NormalizeWallet(c.Report.Wallet); err != nil {
			errs = append(errs, fmt.Sprintf("report: wallet %q is not a valid address", c.Report.Wallet))
		}
		if c.Report.Archive && !c.S3.Enabled {
			errs = append(errs, "report: archive needs s3 to be enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
