package handler

import (
	"net/http"

	"github.com/alanyoungcy/walletrecon/internal/domain"
)

type userPositionRequest struct {
	Name           string                `json:"name"`
	Description    string                `json:"description"`
	Status         domain.PositionStatus `json:"status"`
	TransactionIDs []string              `json:"transaction_ids"`
}

// ListUserPositions returns the wallet's manually assembled positions.
// GET /api/wallets/{wallet}/user-positions
func (h *ManualHandler) ListUserPositions(w http.ResponseWriter, r *http.Request) {
	list, err := h.manual.UserPositions(r.Context(), r.PathValue("wallet"))
	if err != nil {
		writeServiceError(w, r, h.logger, "list user positions", err)
		return
	}
	if list == nil {
		list = []domain.UserPosition{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": list})
}

// GET /api/wallets/{wallet}/user-positions/{id}
func (h *ManualHandler) GetUserPosition(w http.ResponseWriter, r *http.Request) {
	p, err := h.manual.UserPosition(r.Context(), r.PathValue("wallet"), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get user position", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// POST /api/wallets/{wallet}/user-positions
func (h *ManualHandler) CreateUserPosition(w http.ResponseWriter, r *http.Request) {
	h.saveUserPosition(w, r, "", http.StatusCreated)
}

// PUT /api/wallets/{wallet}/user-positions/{id}
func (h *ManualHandler) PutUserPosition(w http.ResponseWriter, r *http.Request) {
	h.saveUserPosition(w, r, r.PathValue("id"), http.StatusOK)
}

func (h *ManualHandler) saveUserPosition(w http.ResponseWriter, r *http.Request, id string, status int) {
	var req userPositionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "save user position", err)
		return
	}
	p, err := h.manual.SaveUserPosition(r.Context(), r.PathValue("wallet"), domain.UserPosition{
		ID:             id,
		Name:           req.Name,
		Description:    req.Description,
		Status:         req.Status,
		TransactionIDs: req.TransactionIDs,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "save user position", err)
		return
	}
	writeJSON(w, status, p)
}

// DELETE /api/wallets/{wallet}/user-positions/{id}
func (h *ManualHandler) DeleteUserPosition(w http.ResponseWriter, r *http.Request) {
	if err := h.manual.DeleteUserPosition(r.Context(), r.PathValue("wallet"), r.PathValue("id")); err != nil {
		writeServiceError(w, r, h.logger, "delete user position", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddTransaction attaches a transaction to a user position.
// PUT /api/wallets/{wallet}/user-positions/{id}/transactions/{tx}
func (h *ManualHandler) AddTransaction(w http.ResponseWriter, r *http.Request) {
	p, err := h.manual.AddTransaction(r.Context(), r.PathValue("wallet"), r.PathValue("id"), r.PathValue("tx"))
	if err != nil {
		writeServiceError(w, r, h.logger, "add transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// RemoveTransaction detaches a transaction from a user position.
// DELETE /api/wallets/{wallet}/user-positions/{id}/transactions/{tx}
func (h *ManualHandler) RemoveTransaction(w http.ResponseWriter, r *http.Request) {
	p, err := h.manual.RemoveTransaction(r.Context(), r.PathValue("wallet"), r.PathValue("id"), r.PathValue("tx"))
	if err != nil {
		writeServiceError(w, r, h.logger, "remove transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
