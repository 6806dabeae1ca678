package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/walletrecon/internal/domain"
)

// ManualService defines the curation operations the manual handlers
// require; *service.ManualService satisfies it.
type ManualService interface {
	Strategy(ctx context.Context, wallet, id string) (domain.Strategy, error)
	Strategies(ctx context.Context, wallet string) ([]domain.Strategy, error)
	SaveStrategy(ctx context.Context, wallet string, st domain.Strategy) (domain.Strategy, error)
	DeleteStrategy(ctx context.Context, wallet, id string) error

	UserPosition(ctx context.Context, wallet, id string) (domain.UserPosition, error)
	UserPositions(ctx context.Context, wallet string) ([]domain.UserPosition, error)
	SaveUserPosition(ctx context.Context, wallet string, p domain.UserPosition) (domain.UserPosition, error)
	DeleteUserPosition(ctx context.Context, wallet, id string) error
	AddTransaction(ctx context.Context, wallet, positionID, txID string) (domain.UserPosition, error)
	RemoveTransaction(ctx context.Context, wallet, positionID, txID string) (domain.UserPosition, error)

	Hidden(ctx context.Context, wallet string) ([]domain.TxKey, error)
	Hide(ctx context.Context, wallet, chain, txID string) error
	Unhide(ctx context.Context, wallet, chain, txID string) error
}

// ManualHandler serves the data a wallet owner curates by hand.
type ManualHandler struct {
	manual ManualService
	logger *slog.Logger
}

// NewManualHandler creates a ManualHandler with the given service and logger.
func NewManualHandler(manual ManualService, logger *slog.Logger) *ManualHandler {
	return &ManualHandler{manual: manual, logger: logger}
}

// strategyRequest is the writable part of a strategy.
type strategyRequest struct {
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Status      domain.StrategyStatus `json:"status"`
	PositionIDs []string              `json:"position_ids"`
}

// ListStrategies returns every strategy of the wallet.
// GET /api/wallets/{wallet}/strategies
func (h *ManualHandler) ListStrategies(w http.ResponseWriter, r *http.Request) {
	list, err := h.manual.Strategies(r.Context(), r.PathValue("wallet"))
	if err != nil {
		writeServiceError(w, r, h.logger, "list strategies", err)
		return
	}
	if list == nil {
		list = []domain.Strategy{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"strategies": list})
}

// GetStrategy returns one strategy.
// GET /api/wallets/{wallet}/strategies/{id}
func (h *ManualHandler) GetStrategy(w http.ResponseWriter, r *http.Request) {
	st, err := h.manual.Strategy(r.Context(), r.PathValue("wallet"), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get strategy", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// CreateStrategy stores a new strategy under a generated id.
// POST /api/wallets/{wallet}/strategies
func (h *ManualHandler) CreateStrategy(w http.ResponseWriter, r *http.Request) {
	h.saveStrategy(w, r, "", http.StatusCreated)
}

// PutStrategy creates or replaces the strategy with the path id.
// PUT /api/wallets/{wallet}/strategies/{id}
func (h *ManualHandler) PutStrategy(w http.ResponseWriter, r *http.Request) {
	h.saveStrategy(w, r, r.PathValue("id"), http.StatusOK)
}

func (h *ManualHandler) saveStrategy(w http.ResponseWriter, r *http.Request, id string, status int) {
	var req strategyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "save strategy", err)
		return
	}
	st, err := h.manual.SaveStrategy(r.Context(), r.PathValue("wallet"), domain.Strategy{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
		PositionIDs: req.PositionIDs,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "save strategy", err)
		return
	}
	writeJSON(w, status, st)
}

// DeleteStrategy removes a strategy.
// DELETE /api/wallets/{wallet}/strategies/{id}
func (h *ManualHandler) DeleteStrategy(w http.ResponseWriter, r *http.Request) {
	if err := h.manual.DeleteStrategy(r.Context(), r.PathValue("wallet"), r.PathValue("id")); err != nil {
		writeServiceError(w, r, h.logger, "delete strategy", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
