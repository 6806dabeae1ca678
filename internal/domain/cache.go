package domain

import (
	"context"
	"time"
)

// RegistryCache keeps recently built registries per wallet.
type RegistryCache interface {
	Get(ctx context.Context, wallet string) (RegistrySnapshot, error)
	Set(ctx context.Context, snap RegistrySnapshot, ttl time.Duration) error
	Invalidate(ctx context.Context, wallet string) error
}

// PriceCache provides fast access to the latest token prices.
type PriceCache interface {
	SetPrices(ctx context.Context, tokens TokenBook) error
	GetPrices(ctx context.Context, tokenIDs []string) (map[string]float64, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
