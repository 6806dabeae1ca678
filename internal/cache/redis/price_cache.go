package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/walletrecon/internal/domain"
)

// DefaultPriceTTL bounds how stale a cached token price may be.
const DefaultPriceTTL = 15 * time.Minute

// PriceCache implements domain.PriceCache. Each token's USD price is a
// plain string key so it can expire independently.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ domain.PriceCache = (*PriceCache)(nil)

// NewPriceCache creates a PriceCache; ttl <= 0 uses DefaultPriceTTL.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	if ttl <= 0 {
		ttl = DefaultPriceTTL
	}
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

// SetPrices stores every priced token in tokens. Unpriced tokens are
// skipped so they never overwrite a known price with zero.
func (pc *PriceCache) SetPrices(ctx context.Context, tokens domain.TokenBook) error {
	pipe := pc.rdb.Pipeline()
	n := 0
	for id, meta := range tokens {
		if meta.Price == nil {
			continue
		}
		pipe.Set(ctx, key("price", id), strconv.FormatFloat(*meta.Price, 'f', -1, 64), pc.ttl)
		n++
	}
	if n == 0 {
		return nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set prices: %w", err)
	}
	return nil
}

// GetPrices returns the cached prices for tokenIDs. Tokens without a cached
// price are omitted.
func (pc *PriceCache) GetPrices(ctx context.Context, tokenIDs []string) (map[string]float64, error) {
	result := make(map[string]float64, len(tokenIDs))
	if len(tokenIDs) == 0 {
		return result, nil
	}

	keys := make([]string, len(tokenIDs))
	for i, id := range tokenIDs {
		keys[i] = key("price", id)
	}
	vals, err := pc.rdb.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices: %w", err)
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		price, err := strconv.ParseFloat(s, 64)
		if err != nil {
			continue
		}
		result[tokenIDs[i]] = price
	}
	return result, nil
}
