package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/walletrecon/internal/domain"
)

// HiddenTxStore implements domain.HiddenTxStore using PostgreSQL.
type HiddenTxStore struct {
	pool *pgxpool.Pool
}

var _ domain.HiddenTxStore = (*HiddenTxStore)(nil)

// NewHiddenTxStore creates a new HiddenTxStore backed by pool.
func NewHiddenTxStore(pool *pgxpool.Pool) *HiddenTxStore {
	return &HiddenTxStore{pool: pool}
}

// List returns the wallet's hidden transactions, most recently hidden first.
func (s *HiddenTxStore) List(ctx context.Context, wallet string) ([]domain.TxKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT chain, tx_id FROM hidden_transactions WHERE wallet = $1 ORDER BY hidden_at DESC, chain, tx_id`, wallet)
	if err != nil {
		return nil, fmt.Errorf("postgres: list hidden transactions: %w", err)
	}
	defer rows.Close()

	keys := []domain.TxKey{}
	for rows.Next() {
		var k domain.TxKey
		if err := rows.Scan(&k.Chain, &k.ID); err != nil {
			return nil, fmt.Errorf("postgres: scan hidden transaction: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list hidden transactions rows: %w", err)
	}
	return keys, nil
}

// Hide is idempotent.
func (s *HiddenTxStore) Hide(ctx context.Context, wallet string, key domain.TxKey) error {
	key = domain.NewTxKey(key.Chain, key.ID)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO hidden_transactions (wallet, chain, tx_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (wallet, chain, tx_id) DO NOTHING`,
		wallet, key.Chain, key.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: hide %s: %w", key, err)
	}
	return nil
}

// Unhide returns domain.ErrNotFound when the transaction was not hidden.
func (s *HiddenTxStore) Unhide(ctx context.Context, wallet string, key domain.TxKey) error {
	key = domain.NewTxKey(key.Chain, key.ID)
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM hidden_transactions WHERE wallet = $1 AND chain = $2 AND tx_id = $3`,
		wallet, key.Chain, key.ID)
	if err != nil {
		return fmt.Errorf("postgres: unhide %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
