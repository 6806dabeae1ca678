package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/walletrecon/internal/domain"
)

// ManualService manages the data a wallet owner curates by hand:
// strategies, user-assembled positions and hidden transactions.
type ManualService struct {
	strategies domain.StrategyStore
	positions  domain.UserPositionStore
	hidden     domain.HiddenTxStore
	now        func() time.Time
	newID      func() string
}

// NewManualService creates a ManualService.
func NewManualService(strategies domain.StrategyStore, positions domain.UserPositionStore, hidden domain.HiddenTxStore) *ManualService {
	return &ManualService{
		strategies: strategies,
		positions:  positions,
		hidden:     hidden,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), domain.ErrInvalidInput)
}

// --- strategies ---

func (s *ManualService) Strategy(ctx context.Context, wallet, id string) (domain.Strategy, error) {
	wallet, err := domain.NormalizeWallet(wallet)
	if err != nil {
		return domain.Strategy{}, err
	}
	return s.strategies.Get(ctx, wallet, id)
}

func (s *ManualService) Strategies(ctx context.Context, wallet string) ([]domain.Strategy, error) {
	wallet, err := domain.NormalizeWallet(wallet)
	if err != nil {
		return nil, err
	}
	return s.strategies.List(ctx, wallet)
}

// SaveStrategy creates st when its ID is empty or unknown and replaces it
// otherwise, keeping the original creation time.
func (s *ManualService) SaveStrategy(ctx context.Context, wallet string, st domain.Strategy) (domain.Strategy, error) {
	wallet, err := domain.NormalizeWallet(wallet)
	if err != nil {
		return domain.Strategy{}, err
	}
	st.Name = strings.TrimSpace(st.Name)
	if st.Name == "" {
		return domain.Strategy{}, invalid("strategy name is required")
	}
	switch st.Status {
	case "":
		st.Status = domain.StrategyDraft
	case domain.StrategyDraft, domain.StrategyActive, domain.StrategyArchived:
	default:
		return domain.Strategy{}, invalid("strategy status %q", st.Status)
	}

	now := s.now().UTC()
	st.Wallet = wallet
	st.PositionIDs = dedupe(st.PositionIDs, false)
	st.CreatedAt, st.UpdatedAt = now, now
	if st.ID == "" {
		st.ID = s.newID()
	} else if prev, err := s.strategies.Get(ctx, wallet, st.ID); err == nil {
		st.CreatedAt = prev.CreatedAt
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Strategy{}, err
	}

	if err := s.strategies.Put(ctx, st); err != nil {
		return domain.Strategy{}, err
	}
	return st, nil
}

func (s *ManualService) DeleteStrategy(ctx context.Context, wallet, id string) error {
	wallet, err := domain.NormalizeWallet(wallet)
	if err != nil {
		return err
	}
	return s.strategies.Delete(ctx, wallet, id)
}

// --- user positions ---

func (s *ManualService) UserPosition(ctx context.Context, wallet, id string) (domain.UserPosition, error) {
	wallet, err := domain.NormalizeWallet(wallet)
	if err != nil {
		return domain.UserPosition{}, err
	}
	return s.positions.Get(ctx, wallet, id)
}

func (s *ManualService) UserPositions(ctx context.Context, wallet string) ([]domain.UserPosition, error) {
	wallet, err := domain.NormalizeWallet(wallet)
	if err != nil {
		return nil, err
	}
	return s.positions.List(ctx, wallet)
}

// SaveUserPosition creates or replaces p. Transaction hashes are stored
// lower-cased and de-duplicated.
func (s *ManualService) SaveUserPosition(ctx context.Context, wallet string, p domain.UserPosition) (domain.UserPosition, error) {
	wallet, err := domain.NormalizeWallet(wallet)
	if err != nil {
		return domain.UserPosition{}, err
	}
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return domain.UserPosition{}, invalid("position name is required")
	}
	switch p.Status {
	case "":
		p.Status = domain.PositionStatusOpen
	case domain.PositionStatusOpen, domain.PositionStatusClosed:
	default:
		return domain.UserPosition{}, invalid("position status %q", p.Status)
	}

	now := s.now().UTC()
	p.Wallet = wallet
	p.TransactionIDs = dedupe(p.TransactionIDs, true)
	p.CreatedAt, p.UpdatedAt = now, now
	if p.ID == "" {
		p.ID = s.newID()
	} else if prev, err := s.positions.Get(ctx, wallet, p.ID); err == nil {
		p.CreatedAt = prev.CreatedAt
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.UserPosition{}, err
	}

	if err := s.positions.Put(ctx, p); err != nil {
		return domain.UserPosition{}, err
	}
	return p, nil
}

func (s *ManualService) DeleteUserPosition(ctx context.Context, wallet, id string) error {
	wallet, err := domain.NormalizeWallet(wallet)
	if err != nil {
		return err
	}
	return s.positions.Delete(ctx, wallet, id)
}

// AddTransaction attaches txID to a user position; adding twice is a no-op.
func (s *ManualService) AddTransaction(ctx context.Context, wallet, positionID, txID string) (domain.UserPosition, error) {
	return s.editTransactions(ctx, wallet, positionID, txID, func(ids []string, tx string) []string {
		if slices.Contains(ids, tx) {
			return ids
		}
		return append(ids, tx)
	})
}

// RemoveTransaction detaches txID; a missing hash is domain.ErrNotFound.
func (s *ManualService) RemoveTransaction(ctx context.Context, wallet, positionID, txID string) (domain.UserPosition, error) {
	var missing bool
	p, err := s.editTransactions(ctx, wallet, positionID, txID, func(ids []string, tx string) []string {
		i := slices.Index(ids, tx)
		if i < 0 {
			missing = true
			return ids
		}
		return slices.Delete(ids, i, i+1)
	})
	if err == nil && missing {
		return domain.UserPosition{}, fmt.Errorf("transaction %s: %w", txID, domain.ErrNotFound)
	}
	return p, err
}

func (s *ManualService) editTransactions(ctx context.Context, wallet, positionID, txID string, edit func([]string, string) []string) (domain.UserPosition, error) {
	wallet, err := domain.NormalizeWallet(wallet)
	if err != nil {
		return domain.UserPosition{}, err
	}
	tx := strings.ToLower(strings.TrimSpace(txID))
	if tx == "" {
		return domain.UserPosition{}, invalid("transaction id is required")
	}
	p, err := s.positions.Get(ctx, wallet, positionID)
	if err != nil {
		return domain.UserPosition{}, err
	}
	before := len(p.TransactionIDs)
	p.TransactionIDs = edit(slices.Clone(p.TransactionIDs), tx)
	if len(p.TransactionIDs) == before {
		return p, nil
	}
	p.UpdatedAt = s.now().UTC()
	if err := s.positions.Put(ctx, p); err != nil {
		return domain.UserPosition{}, err
	}
	return p, nil
}

// --- hidden transactions ---

func (s *ManualService) Hidden(ctx context.Context, wallet string) ([]domain.TxKey, error) {
	wallet, err := domain.NormalizeWallet(wallet)
	if err != nil {
		return nil, err
	}
	return s.hidden.List(ctx, wallet)
}

func (s *ManualService) Hide(ctx context.Context, wallet, chain, txID string) error {
	wallet, key, err := hiddenKey(wallet, chain, txID)
	if err != nil {
		return err
	}
	return s.hidden.Hide(ctx, wallet, key)
}

func (s *ManualService) Unhide(ctx context.Context, wallet, chain, txID string) error {
	wallet, key, err := hiddenKey(wallet, chain, txID)
	if err != nil {
		return err
	}
	return s.hidden.Unhide(ctx, wallet, key)
}

func hiddenKey(wallet, chain, txID string) (string, domain.TxKey, error) {
	wallet, err := domain.NormalizeWallet(wallet)
	if err != nil {
		return "", domain.TxKey{}, err
	}
	chain = strings.TrimSpace(chain)
	txID = strings.TrimSpace(txID)
	if chain == "" || txID == "" {
		return "", domain.TxKey{}, invalid("chain and transaction id are required")
	}
	return wallet, domain.NewTxKey(chain, txID), nil
}

// dedupe drops empty and repeated ids, keeping first-seen order.
func dedupe(ids []string, lower bool) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if lower {
			id = strings.ToLower(id)
		}
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
