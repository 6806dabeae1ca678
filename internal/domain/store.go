package domain

import (
	"context"
)

// StrategyStore persists user-defined strategies keyed by (wallet, id).
type StrategyStore interface {
	Get(ctx context.Context, wallet, id string) (Strategy, error)
	Put(ctx context.Context, s Strategy) error
	List(ctx context.Context, wallet string) ([]Strategy, error)
	Delete(ctx context.Context, wallet, id string) error
}

// UserPositionStore persists manually assembled positions keyed by
// (wallet, id).
type UserPositionStore interface {
	Get(ctx context.Context, wallet, id string) (UserPosition, error)
	Put(ctx context.Context, p UserPosition) error
	List(ctx context.Context, wallet string) ([]UserPosition, error)
	Delete(ctx context.Context, wallet, id string) error
}

// HiddenTxStore persists the set of transactions a wallet owner has hidden.
type HiddenTxStore interface {
	List(ctx context.Context, wallet string) ([]TxKey, error)
	Hide(ctx context.Context, wallet string, key TxKey) error
	Unhide(ctx context.Context, wallet string, key TxKey) error
}

// HistoryCacheStats describes what the local history cache holds for a
// wallet.
type HistoryCacheStats struct {
	Wallet       string `json:"wallet"`
	Transactions int    `json:"transactions"`
	Tokens       int    `json:"tokens"`
	OldestAt     int64  `json:"oldest_at,omitempty"`
	NewestAt     int64  `json:"newest_at,omitempty"`
}

// HistoryCache stores fetched wallet history locally so repeat requests
// only fetch what is new.
type HistoryCache interface {
	Save(ctx context.Context, wallet string, page HistoryPage) error
	Load(ctx context.Context, wallet string, since int64) (HistoryPage, error)
	NewestAt(ctx context.Context, wallet string) (int64, error)
	Stats(ctx context.Context, wallet string) (HistoryCacheStats, error)
	Clear(ctx context.Context, wallet string) error
}
