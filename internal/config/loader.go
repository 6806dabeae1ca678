package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies WALLETRECON_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known WALLETRECON_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Top-level ──
	setStr(&cfg.Mode, "WALLETRECON_MODE")
	setStr(&cfg.LogLevel, "WALLETRECON_LOG_LEVEL")
	setStr(&cfg.Log.File, "WALLETRECON_LOG_FILE")
	setBool(&cfg.Trace.Enabled, "WALLETRECON_TRACE_ENABLED")

	// ── DeBank ──
	setStr(&cfg.DeBank.BaseURL, "WALLETRECON_DEBANK_BASE_URL")
	setStr(&cfg.DeBank.AccessKey, "WALLETRECON_DEBANK_ACCESS_KEY")
	setFloat64(&cfg.DeBank.RatePerSecond, "WALLETRECON_DEBANK_RATE_PER_SECOND")
	setInt(&cfg.DeBank.MaxPages, "WALLETRECON_DEBANK_MAX_PAGES")
	setDuration(&cfg.DeBank.Timeout, "WALLETRECON_DEBANK_TIMEOUT")

	// ── Subgraphs ──
	setStr(&cfg.Subgraph.GMXURL, "WALLETRECON_SUBGRAPH_GMX_URL")
	setStr(&cfg.Subgraph.APIKey, "WALLETRECON_SUBGRAPH_API_KEY")
	setDuration(&cfg.Subgraph.CollectorTimeout, "WALLETRECON_SUBGRAPH_COLLECTOR_TIMEOUT")
	setStringMap(&cfg.Subgraph.UniswapURLs, "WALLETRECON_SUBGRAPH_UNISWAP_URLS")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "WALLETRECON_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "WALLETRECON_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "WALLETRECON_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "WALLETRECON_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "WALLETRECON_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "WALLETRECON_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "WALLETRECON_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "WALLETRECON_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "WALLETRECON_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "WALLETRECON_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "WALLETRECON_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "WALLETRECON_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "WALLETRECON_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "WALLETRECON_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.RegistryTTL, "WALLETRECON_REDIS_REGISTRY_TTL")

	// ── SQLite ──
	setBool(&cfg.SQLite.Enabled, "WALLETRECON_SQLITE_ENABLED")
	setStr(&cfg.SQLite.Path, "WALLETRECON_SQLITE_PATH")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "WALLETRECON_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "WALLETRECON_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "WALLETRECON_S3_REGION")
	setStr(&cfg.S3.Bucket, "WALLETRECON_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "WALLETRECON_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "WALLETRECON_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "WALLETRECON_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "WALLETRECON_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "WALLETRECON_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "WALLETRECON_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "WALLETRECON_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "WALLETRECON_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "WALLETRECON_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "WALLETRECON_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "WALLETRECON_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "WALLETRECON_NOTIFY_EVENTS")

	// ── Report ──
	setStr(&cfg.Report.Wallet, "WALLETRECON_REPORT_WALLET")
	setStr(&cfg.Report.Since, "WALLETRECON_REPORT_SINCE")
	setBool(&cfg.Report.Archive, "WALLETRECON_REPORT_ARCHIVE")
	setBool(&cfg.Report.Refresh, "WALLETRECON_REPORT_REFRESH")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

// setStringMap parses "k1=v1,k2=v2" and replaces dst wholesale.
func setStringMap(dst *map[string]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(v, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || strings.TrimSpace(k) == "" {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(val)
	}
	if len(out) > 0 {
		*dst = out
	}
}
