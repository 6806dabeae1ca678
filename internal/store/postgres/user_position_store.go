package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/walletrecon/internal/domain"
)

// UserPositionStore implements domain.UserPositionStore using PostgreSQL.
type UserPositionStore struct {
	pool *pgxpool.Pool
}

var _ domain.UserPositionStore = (*UserPositionStore)(nil)

// NewUserPositionStore creates a new UserPositionStore backed by pool.
func NewUserPositionStore(pool *pgxpool.Pool) *UserPositionStore {
	return &UserPositionStore{pool: pool}
}

const userPositionColumns = `id, wallet, name, description, status, transaction_ids, created_at, updated_at`

func scanUserPosition(row pgx.Row) (domain.UserPosition, error) {
	var p domain.UserPosition
	var status string
	if err := row.Scan(&p.ID, &p.Wallet, &p.Name, &p.Description, &status,
		&p.TransactionIDs, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.UserPosition{}, err
	}
	p.Status = domain.PositionStatus(status)
	if p.TransactionIDs == nil {
		p.TransactionIDs = []string{}
	}
	return p, nil
}

func (s *UserPositionStore) Get(ctx context.Context, wallet, id string) (domain.UserPosition, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userPositionColumns+` FROM user_positions WHERE wallet = $1 AND id = $2`, wallet, id)
	p, err := scanUserPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserPosition{}, domain.ErrNotFound
		}
		return domain.UserPosition{}, fmt.Errorf("postgres: get user position %s: %w", id, err)
	}
	return p, nil
}

func (s *UserPositionStore) Put(ctx context.Context, p domain.UserPosition) error {
	ids := p.TransactionIDs
	if ids == nil {
		ids = []string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_positions (`+userPositionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (wallet, id) DO UPDATE SET
			name            = EXCLUDED.name,
			description     = EXCLUDED.description,
			status          = EXCLUDED.status,
			transaction_ids = EXCLUDED.transaction_ids,
			updated_at      = EXCLUDED.updated_at`,
		p.ID, p.Wallet, p.Name, p.Description, string(p.Status), ids, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put user position %s: %w", p.ID, err)
	}
	return nil
}

func (s *UserPositionStore) List(ctx context.Context, wallet string) ([]domain.UserPosition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+userPositionColumns+` FROM user_positions WHERE wallet = $1 ORDER BY updated_at DESC, id`, wallet)
	if err != nil {
		return nil, fmt.Errorf("postgres: list user positions: %w", err)
	}
	defer rows.Close()

	out := []domain.UserPosition{}
	for rows.Next() {
		p, err := scanUserPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan user position: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list user positions rows: %w", err)
	}
	return out, nil
}

func (s *UserPositionStore) Delete(ctx context.Context, wallet, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM user_positions WHERE wallet = $1 AND id = $2`, wallet, id)
	if err != nil {
		return fmt.Errorf("postgres: delete user position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
