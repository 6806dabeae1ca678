// Package sqlite is a local, file-backed cache of fetched wallet history so
// that repeat requests only pull transactions newer than the cache.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/alanyoungcy/walletrecon/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
    wallet  TEXT    NOT NULL,
    chain   TEXT    NOT NULL,
    tx_id   TEXT    NOT NULL,
    time_at INTEGER NOT NULL,
    payload TEXT    NOT NULL,
    PRIMARY KEY (wallet, chain, tx_id)
);

CREATE TABLE IF NOT EXISTS tokens (
    wallet   TEXT NOT NULL,
    token_id TEXT NOT NULL,
    payload  TEXT NOT NULL,
    PRIMARY KEY (wallet, token_id)
);

CREATE INDEX IF NOT EXISTS idx_tx_wallet_time ON transactions(wallet, time_at DESC);
`

// HistoryCache implements domain.HistoryCache on SQLite.
type HistoryCache struct {
	db *sql.DB
}

var _ domain.HistoryCache = (*HistoryCache)(nil)

// Open opens (or creates) the database at path and applies the schema.
// ":memory:" gives a throwaway cache.
func Open(path string) (*HistoryCache, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir for %q: %w", path, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	// SQLite is single-writer; one connection also keeps :memory: shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &HistoryCache{db: db}, nil
}

// Close releases the database.
func (c *HistoryCache) Close() error { return c.db.Close() }

// Save upserts every transaction and token in page.
func (c *HistoryCache) Save(ctx context.Context, wallet string, page domain.HistoryPage) error {
	wallet = strings.ToLower(wallet)
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: save: begin: %w", err)
	}
	defer tx.Rollback()

	txStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (wallet, chain, tx_id, time_at, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (wallet, chain, tx_id) DO UPDATE SET
			time_at = excluded.time_at,
			payload = excluded.payload`)
	if err != nil {
		return fmt.Errorf("sqlite: save: prepare transactions: %w", err)
	}
	defer txStmt.Close()

	for _, t := range page.Transactions {
		payload, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("sqlite: save: encode %s: %w", t.Key(), err)
		}
		key := t.Key()
		if _, err := txStmt.ExecContext(ctx, wallet, key.Chain, key.ID, t.TimeAt, string(payload)); err != nil {
			return fmt.Errorf("sqlite: save: upsert %s: %w", key, err)
		}
	}

	tokStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tokens (wallet, token_id, payload)
		VALUES (?, ?, ?)
		ON CONFLICT (wallet, token_id) DO UPDATE SET payload = excluded.payload`)
	if err != nil {
		return fmt.Errorf("sqlite: save: prepare tokens: %w", err)
	}
	defer tokStmt.Close()

	for id, meta := range page.Tokens {
		payload, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("sqlite: save: encode token %s: %w", id, err)
		}
		if _, err := tokStmt.ExecContext(ctx, wallet, id, string(payload)); err != nil {
			return fmt.Errorf("sqlite: save: upsert token %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: save: commit: %w", err)
	}
	return nil
}

// Load returns cached history newest first. since > 0 keeps only
// transactions at or after that unix time. The full token book is always
// returned.
func (c *HistoryCache) Load(ctx context.Context, wallet string, since int64) (domain.HistoryPage, error) {
	wallet = strings.ToLower(wallet)
	page := domain.HistoryPage{Transactions: []domain.Transaction{}, Tokens: domain.TokenBook{}}

	rows, err := c.db.QueryContext(ctx, `
		SELECT payload FROM transactions
		WHERE wallet = ? AND time_at >= ?
		ORDER BY time_at DESC, chain, tx_id`, wallet, since)
	if err != nil {
		return page, fmt.Errorf("sqlite: load transactions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return page, fmt.Errorf("sqlite: scan transaction: %w", err)
		}
		var t domain.Transaction
		if err := json.Unmarshal([]byte(payload), &t); err != nil {
			return page, fmt.Errorf("sqlite: decode transaction: %w", err)
		}
		page.Transactions = append(page.Transactions, t)
	}
	if err := rows.Err(); err != nil {
		return page, fmt.Errorf("sqlite: load transactions: %w", err)
	}

	tokRows, err := c.db.QueryContext(ctx, `SELECT token_id, payload FROM tokens WHERE wallet = ?`, wallet)
	if err != nil {
		return page, fmt.Errorf("sqlite: load tokens: %w", err)
	}
	defer tokRows.Close()
	for tokRows.Next() {
		var id, payload string
		if err := tokRows.Scan(&id, &payload); err != nil {
			return page, fmt.Errorf("sqlite: scan token: %w", err)
		}
		var meta domain.TokenMeta
		if err := json.Unmarshal([]byte(payload), &meta); err != nil {
			return page, fmt.Errorf("sqlite: decode token %s: %w", id, err)
		}
		page.Tokens[id] = meta
	}
	if err := tokRows.Err(); err != nil {
		return page, fmt.Errorf("sqlite: load tokens: %w", err)
	}
	return page, nil
}

// NewestAt returns the newest cached transaction time, or 0 when the wallet
// has nothing cached.
func (c *HistoryCache) NewestAt(ctx context.Context, wallet string) (int64, error) {
	var newest sql.NullInt64
	err := c.db.QueryRowContext(ctx,
		`SELECT MAX(time_at) FROM transactions WHERE wallet = ?`, strings.ToLower(wallet),
	).Scan(&newest)
	if err != nil {
		return 0, fmt.Errorf("sqlite: newest: %w", err)
	}
	return newest.Int64, nil
}

// Stats describes the cached history of wallet.
func (c *HistoryCache) Stats(ctx context.Context, wallet string) (domain.HistoryCacheStats, error) {
	wallet = strings.ToLower(wallet)
	stats := domain.HistoryCacheStats{Wallet: wallet}
	var oldest, newest sql.NullInt64
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(time_at), MAX(time_at) FROM transactions WHERE wallet = ?`, wallet,
	).Scan(&stats.Transactions, &oldest, &newest)
	if err != nil {
		return stats, fmt.Errorf("sqlite: stats: %w", err)
	}
	stats.OldestAt = oldest.Int64
	stats.NewestAt = newest.Int64

	if err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tokens WHERE wallet = ?`, wallet,
	).Scan(&stats.Tokens); err != nil {
		return stats, fmt.Errorf("sqlite: stats tokens: %w", err)
	}
	return stats, nil
}

// Clear drops everything cached for wallet.
func (c *HistoryCache) Clear(ctx context.Context, wallet string) error {
	wallet = strings.ToLower(wallet)
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: clear: begin: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE wallet = ?`, wallet); err != nil {
		return fmt.Errorf("sqlite: clear transactions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tokens WHERE wallet = ?`, wallet); err != nil {
		return fmt.Errorf("sqlite: clear tokens: %w", err)
	}
	return tx.Commit()
}
