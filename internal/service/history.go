package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/walletrecon/internal/domain"
)

// HistorySource fetches wallet history newer than since (0 = everything);
// *debank.Client satisfies it.
type HistorySource interface {
	History(ctx context.Context, wallet string, since int64) (domain.HistoryPage, error)
}

// HistoryService loads wallet history through the local cache, fetching
// only what is newer than the newest cached transaction. cache and prices
// are optional.
type HistoryService struct {
	source HistorySource
	cache  domain.HistoryCache
	prices domain.PriceCache
	logger *slog.Logger
}

// NewHistoryService creates a HistoryService.
func NewHistoryService(source HistorySource, cache domain.HistoryCache, prices domain.PriceCache, logger *slog.Logger) *HistoryService {
	return &HistoryService{
		source: source,
		cache:  cache,
		prices: prices,
		logger: logger.With(slog.String("component", "history_service")),
	}
}

// Load returns the wallet's full history newest first. refresh drops the
// cache and refetches everything.
func (s *HistoryService) Load(ctx context.Context, wallet string, refresh bool) (domain.HistoryPage, domain.HistoryCacheStats, error) {
	wallet = strings.ToLower(wallet)
	if s.cache == nil {
		page, err := s.source.History(ctx, wallet, 0)
		if err != nil {
			return domain.HistoryPage{}, domain.HistoryCacheStats{}, fmt.Errorf("history: fetch: %w", err)
		}
		s.fillPrices(ctx, page.Tokens)
		stats := domain.HistoryCacheStats{Wallet: wallet, Transactions: len(page.Transactions), Tokens: len(page.Tokens)}
		return page, stats, nil
	}

	if refresh {
		if err := s.cache.Clear(ctx, wallet); err != nil {
			return domain.HistoryPage{}, domain.HistoryCacheStats{}, fmt.Errorf("history: clear cache: %w", err)
		}
	}
	newest, err := s.cache.NewestAt(ctx, wallet)
	if err != nil {
		return domain.HistoryPage{}, domain.HistoryCacheStats{}, fmt.Errorf("history: newest cached: %w", err)
	}

	fresh, err := s.source.History(ctx, wallet, newest)
	if err != nil {
		if newest == 0 {
			return domain.HistoryPage{}, domain.HistoryCacheStats{}, fmt.Errorf("history: fetch: %w", err)
		}
		// Serve the stale cache rather than nothing.
		s.logger.WarnContext(ctx, "history: incremental fetch failed, serving cache",
			slog.String("wallet", wallet),
			slog.String("error", err.Error()),
		)
	} else {
		if err := s.cache.Save(ctx, wallet, fresh); err != nil {
			return domain.HistoryPage{}, domain.HistoryCacheStats{}, fmt.Errorf("history: save cache: %w", err)
		}
		s.logger.DebugContext(ctx, "history: synced",
			slog.String("wallet", wallet),
			slog.Int64("since", newest),
			slog.Int("new_transactions", len(fresh.Transactions)),
		)
	}

	page, err := s.cache.Load(ctx, wallet, 0)
	if err != nil {
		return domain.HistoryPage{}, domain.HistoryCacheStats{}, fmt.Errorf("history: load cache: %w", err)
	}
	stats, err := s.cache.Stats(ctx, wallet)
	if err != nil {
		return domain.HistoryPage{}, domain.HistoryCacheStats{}, fmt.Errorf("history: cache stats: %w", err)
	}
	s.fillPrices(ctx, page.Tokens)
	return page, stats, nil
}

// fillPrices publishes known prices to the shared price cache and fills
// unpriced tokens from it. Price cache errors only cost accuracy, so they
// are logged and swallowed.
func (s *HistoryService) fillPrices(ctx context.Context, tokens domain.TokenBook) {
	if s.prices == nil || len(tokens) == 0 {
		return
	}
	if err := s.prices.SetPrices(ctx, tokens); err != nil {
		s.logger.WarnContext(ctx, "history: publish prices failed", slog.String("error", err.Error()))
	}

	var missing []string
	for id, meta := range tokens {
		if meta.Price == nil {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return
	}
	cached, err := s.prices.GetPrices(ctx, missing)
	if err != nil {
		s.logger.WarnContext(ctx, "history: read cached prices failed", slog.String("error", err.Error()))
		return
	}
	for id, price := range cached {
		meta := tokens[id]
		meta.Price = domain.Float(price)
		tokens[id] = meta
	}
}
