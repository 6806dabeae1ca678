package domain

import "time"

// StrategyStatus is the lifecycle state of a user-defined strategy.
type StrategyStatus string

const (
	StrategyDraft    StrategyStatus = "draft"
	StrategyActive   StrategyStatus = "active"
	StrategyArchived StrategyStatus = "archived"
)

// Strategy is a manually curated group of protocol positions.
type Strategy struct {
	ID          string         `json:"id"`
	Wallet      string         `json:"wallet"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Status      StrategyStatus `json:"status"`
	PositionIDs []string       `json:"position_ids"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// UserPosition is a manually assembled position made of raw transactions
// the registry could not attribute.
type UserPosition struct {
	ID             string         `json:"id"`
	Wallet         string         `json:"wallet"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	Status         PositionStatus `json:"status"`
	TransactionIDs []string       `json:"transaction_ids"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
