package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/walletrecon/internal/domain"
)

// DefaultRegistryTTL is how long a built registry is reused.
const DefaultRegistryTTL = 5 * time.Minute

// RegistryCache implements domain.RegistryCache, storing each wallet's
// snapshot as JSON.
type RegistryCache struct {
	rdb *redis.Client
}

var _ domain.RegistryCache = (*RegistryCache)(nil)

// NewRegistryCache creates a RegistryCache backed by c.
func NewRegistryCache(c *Client) *RegistryCache {
	return &RegistryCache{rdb: c.Underlying()}
}

func registryKey(wallet string) string { return key("registry", strings.ToLower(wallet)) }

// Get returns domain.ErrNotFound on a miss.
func (rc *RegistryCache) Get(ctx context.Context, wallet string) (domain.RegistrySnapshot, error) {
	data, err := rc.rdb.Get(ctx, registryKey(wallet)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.RegistrySnapshot{}, domain.ErrNotFound
		}
		return domain.RegistrySnapshot{}, fmt.Errorf("redis: get registry %s: %w", wallet, err)
	}
	var snap domain.RegistrySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.RegistrySnapshot{}, fmt.Errorf("redis: decode registry %s: %w", wallet, err)
	}
	return snap, nil
}

func (rc *RegistryCache) Set(ctx context.Context, snap domain.RegistrySnapshot, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultRegistryTTL
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: encode registry %s: %w", snap.Wallet, err)
	}
	if err := rc.rdb.Set(ctx, registryKey(snap.Wallet), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set registry %s: %w", snap.Wallet, err)
	}
	return nil
}

func (rc *RegistryCache) Invalidate(ctx context.Context, wallet string) error {
	if err := rc.rdb.Del(ctx, registryKey(wallet)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate registry %s: %w", wallet, err)
	}
	return nil
}
