package handler

import (
	"net/http"

	"github.com/alanyoungcy/walletrecon/internal/domain"
)

// ListHidden returns the transactions the owner hid from bundling.
// GET /api/wallets/{wallet}/hidden
func (h *ManualHandler) ListHidden(w http.ResponseWriter, r *http.Request) {
	keys, err := h.manual.Hidden(r.Context(), r.PathValue("wallet"))
	if err != nil {
		writeServiceError(w, r, h.logger, "list hidden transactions", err)
		return
	}
	if keys == nil {
		keys = []domain.TxKey{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"hidden": keys})
}

// Hide is idempotent.
// PUT /api/wallets/{wallet}/hidden/{chain}/{tx}
func (h *ManualHandler) Hide(w http.ResponseWriter, r *http.Request) {
	if err := h.manual.Hide(r.Context(), r.PathValue("wallet"), r.PathValue("chain"), r.PathValue("tx")); err != nil {
		writeServiceError(w, r, h.logger, "hide transaction", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/wallets/{wallet}/hidden/{chain}/{tx}
func (h *ManualHandler) Unhide(w http.ResponseWriter, r *http.Request) {
	if err := h.manual.Unhide(r.Context(), r.PathValue("wallet"), r.PathValue("chain"), r.PathValue("tx")); err != nil {
		writeServiceError(w, r, h.logger, "unhide transaction", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
