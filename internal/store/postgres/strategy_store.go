package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/walletrecon/internal/domain"
)

// StrategyStore implements domain.StrategyStore using PostgreSQL.
type StrategyStore struct {
	pool *pgxpool.Pool
}

var _ domain.StrategyStore = (*StrategyStore)(nil)

// NewStrategyStore creates a new StrategyStore backed by pool.
func NewStrategyStore(pool *pgxpool.Pool) *StrategyStore {
	return &StrategyStore{pool: pool}
}

const strategyColumns = `id, wallet, name, description, status, position_ids, created_at, updated_at`

func scanStrategy(row pgx.Row) (domain.Strategy, error) {
	var s domain.Strategy
	var status string
	if err := row.Scan(&s.ID, &s.Wallet, &s.Name, &s.Description, &status,
		&s.PositionIDs, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return domain.Strategy{}, err
	}
	s.Status = domain.StrategyStatus(status)
	if s.PositionIDs == nil {
		s.PositionIDs = []string{}
	}
	return s, nil
}

// Get returns one strategy or domain.ErrNotFound.
func (s *StrategyStore) Get(ctx context.Context, wallet, id string) (domain.Strategy, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+strategyColumns+` FROM strategies WHERE wallet = $1 AND id = $2`, wallet, id)
	st, err := scanStrategy(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Strategy{}, domain.ErrNotFound
		}
		return domain.Strategy{}, fmt.Errorf("postgres: get strategy %s: %w", id, err)
	}
	return st, nil
}

// Put inserts or replaces a strategy. created_at is kept on update.
func (s *StrategyStore) Put(ctx context.Context, st domain.Strategy) error {
	ids := st.PositionIDs
	if ids == nil {
		ids = []string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO strategies (`+strategyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (wallet, id) DO UPDATE SET
			name         = EXCLUDED.name,
			description  = EXCLUDED.description,
			status       = EXCLUDED.status,
			position_ids = EXCLUDED.position_ids,
			updated_at   = EXCLUDED.updated_at`,
		st.ID, st.Wallet, st.Name, st.Description, string(st.Status), ids, st.CreatedAt, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put strategy %s: %w", st.ID, err)
	}
	return nil
}

// List returns a wallet's strategies, most recently updated first.
func (s *StrategyStore) List(ctx context.Context, wallet string) ([]domain.Strategy, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+strategyColumns+` FROM strategies WHERE wallet = $1 ORDER BY updated_at DESC, id`, wallet)
	if err != nil {
		return nil, fmt.Errorf("postgres: list strategies: %w", err)
	}
	defer rows.Close()

	out := []domain.Strategy{}
	for rows.Next() {
		st, err := scanStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan strategy: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list strategies rows: %w", err)
	}
	return out, nil
}

// Delete removes a strategy; a missing row is domain.ErrNotFound.
func (s *StrategyStore) Delete(ctx context.Context, wallet, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM strategies WHERE wallet = $1 AND id = $2`, wallet, id)
	if err != nil {
		return fmt.Errorf("postgres: delete strategy %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
