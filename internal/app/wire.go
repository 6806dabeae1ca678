package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	s3blob "github.com/alanyoungcy/walletrecon/internal/blob/s3"
	"github.com/alanyoungcy/walletrecon/internal/bundle"
	"github.com/alanyoungcy/walletrecon/internal/cache/redis"
	"github.com/alanyoungcy/walletrecon/internal/collector"
	"github.com/alanyoungcy/walletrecon/internal/config"
	"github.com/alanyoungcy/walletrecon/internal/domain"
	"github.com/alanyoungcy/walletrecon/internal/notify"
	"github.com/alanyoungcy/walletrecon/internal/platform/debank"
	"github.com/alanyoungcy/walletrecon/internal/platform/subgraph"
	"github.com/alanyoungcy/walletrecon/internal/registry"
	"github.com/alanyoungcy/walletrecon/internal/server/handler"
	"github.com/alanyoungcy/walletrecon/internal/service"
	"github.com/alanyoungcy/walletrecon/internal/store/postgres"
	"github.com/alanyoungcy/walletrecon/internal/store/sqlite"
)

// subgraphBurst is the token bucket depth of every subgraph client.
const subgraphBurst = 5

// Dependencies bundles everything the operating modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
// Optional collaborators are nil when their backend is disabled.
type Dependencies struct {
	// Services
	Recon  *service.ReconService
	Manual *service.ManualService

	// Stores
	StrategyStore     domain.StrategyStore
	UserPositionStore domain.UserPositionStore
	HiddenTxStore     domain.HiddenTxStore
	HistoryCache      domain.HistoryCache

	// Caches
	RateLimiter domain.RateLimiter

	// Health checks by dependency name.
	Pingers map[string]handler.Pinger

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Pingers: make(map[string]handler.Pinger)}
	recon := service.ReconDeps{}

	// --- PostgreSQL (manual curation) ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		deps.StrategyStore = postgres.NewStrategyStore(pool)
		deps.UserPositionStore = postgres.NewUserPositionStore(pool)
		deps.HiddenTxStore = postgres.NewHiddenTxStore(pool)
		deps.Pingers["postgres"] = pgClient.Ping
		recon.Hidden = deps.HiddenTxStore
	}

	// --- Redis ---
	var prices domain.PriceCache
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		prices = redis.NewPriceCache(redisClient, cfg.Redis.PriceTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Pingers["redis"] = redisClient.Ping
		recon.Cache = redis.NewRegistryCache(redisClient)
		recon.Locks = redis.NewLockManager(redisClient)
	}

	// --- SQLite history cache ---
	if cfg.SQLite.Enabled {
		hc, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return fail(fmt.Errorf("wire: sqlite: %w", err))
		}
		closers = append(closers, func() { _ = hc.Close() })
		deps.HistoryCache = hc
	}

	// --- S3 report archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		recon.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client))
		deps.Pingers["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	recon.Notifier = deps.Notifier

	// --- Upstreams and reconciliation core ---
	source := debank.NewClient(cfg.DeBank.BaseURL, cfg.DeBank.AccessKey,
		debank.WithRateLimit(cfg.DeBank.RatePerSecond, cfg.DeBank.Burst),
		debank.WithRetry(cfg.DeBank.Retries, time.Second),
		debank.WithTimeout(cfg.DeBank.Timeout.Duration),
		debank.WithMaxPages(cfg.DeBank.MaxPages),
	)
	recon.History = service.NewHistoryService(source, deps.HistoryCache, prices, logger)
	recon.Builder = registry.NewBuilder(buildCollectors(cfg.Subgraph, logger), cfg.Subgraph.CollectorTimeout.Duration, logger)
	recon.Engine = bundle.NewEngine(cfg.Bundle)

	deps.Recon = service.NewReconService(recon, service.ReconConfig{
		RegistryTTL: cfg.Redis.RegistryTTL.Duration,
		LockTTL:     cfg.Redis.LockTTL.Duration,
	}, logger)
	if deps.StrategyStore != nil {
		deps.Manual = service.NewManualService(deps.StrategyStore, deps.UserPositionStore, deps.HiddenTxStore)
	}

	return deps, cleanup, nil
}

// buildCollectors creates one collector per configured protocol. Uniswap
// chains are ordered by chain id so positions come back in a stable order.
func buildCollectors(cfg config.SubgraphConfig, logger *slog.Logger) []collector.Collector {
	newClient := func(url string) *subgraph.Client {
		opts := []subgraph.Option{}
		if cfg.RatePerSecond > 0 {
			opts = append(opts, subgraph.WithRateLimit(cfg.RatePerSecond, subgraphBurst))
		}
		return subgraph.NewClient(url, cfg.APIKey, opts...)
	}

	var collectors []collector.Collector
	if cfg.GMXURL != "" {
		collectors = append(collectors, collector.NewGMXCollector(
			newClient(cfg.GMXURL), cfg.GMXChain, collector.DefaultGMXTables(), logger,
		))
	}
	if len(cfg.UniswapURLs) > 0 {
		chains := make([]string, 0, len(cfg.UniswapURLs))
		for chain := range cfg.UniswapURLs {
			chains = append(chains, chain)
		}
		sort.Strings(chains)
		uni := make([]collector.UniswapChain, 0, len(chains))
		for _, chain := range chains {
			uni = append(uni, collector.UniswapChain{Chain: chain, Client: newClient(cfg.UniswapURLs[chain])})
		}
		collectors = append(collectors, collector.NewUniswapCollector(uni, logger))
	}
	return collectors
}
