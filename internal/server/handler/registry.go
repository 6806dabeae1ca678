package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/walletrecon/internal/domain"
	"github.com/alanyoungcy/walletrecon/internal/registry"
	"github.com/alanyoungcy/walletrecon/internal/service"
)

// ReconService defines the reconciliation operations the wallet handlers
// require; *service.ReconService satisfies it.
type ReconService interface {
	Registry(ctx context.Context, wallet string, refresh bool) (service.RegistryResult, error)
	Match(ctx context.Context, wallet, txID string) (domain.ProtocolPosition, error)
	Bundles(ctx context.Context, wallet string, opts service.HistoryOptions) (service.BundleView, error)
	Categorized(ctx context.Context, wallet string, opts service.HistoryOptions) (service.CategorizedView, error)
	Report(ctx context.Context, wallet string, opts service.HistoryOptions) (service.Report, error)
	Archive(ctx context.Context, wallet string, opts service.HistoryOptions) (domain.BlobInfo, error)
	Archives(ctx context.Context, wallet string) ([]domain.BlobInfo, error)
	ArchivedReport(ctx context.Context, wallet, key string) (service.Report, error)
}

// WalletHandler serves the registry, matching and transaction views of a
// wallet.
type WalletHandler struct {
	recon  ReconService
	logger *slog.Logger
	now    func() time.Time
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(recon ReconService, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{recon: recon, logger: logger, now: time.Now}
}

type registryResponse struct {
	Wallet    string               `json:"wallet"`
	Cached    bool                 `json:"cached"`
	Positions int                  `json:"position_count"`
	Registry  *registry.Registry   `json:"registry"`
	Build     registry.BuildReport `json:"build"`
	Failed    []domain.Protocol    `json:"failed_collectors"`
}

// Registry returns the wallet's position registry.
// GET /api/wallets/{wallet}/registry?refresh=true
func (h *WalletHandler) Registry(w http.ResponseWriter, r *http.Request) {
	res, err := h.recon.Registry(r.Context(), r.PathValue("wallet"), queryBool(r, "refresh"))
	if err != nil {
		writeServiceError(w, r, h.logger, "build registry", err)
		return
	}
	failed := res.Report.Failed()
	if failed == nil {
		failed = []domain.Protocol{}
	}
	writeJSON(w, http.StatusOK, registryResponse{
		Wallet:    res.Report.Wallet,
		Cached:    res.Cached,
		Positions: res.Registry.Len(),
		Registry:  res.Registry,
		Build:     res.Report,
		Failed:    failed,
	})
}

// Conflicts lists transaction hashes claimed by more than one position.
// GET /api/wallets/{wallet}/registry/conflicts
func (h *WalletHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	res, err := h.recon.Registry(r.Context(), r.PathValue("wallet"), false)
	if err != nil {
		writeServiceError(w, r, h.logger, "build registry", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conflicts": res.Registry.Conflicts()})
}

// Match resolves one transaction hash to its position.
// GET /api/wallets/{wallet}/match/{tx}
func (h *WalletHandler) Match(w http.ResponseWriter, r *http.Request) {
	pos, err := h.recon.Match(r.Context(), r.PathValue("wallet"), r.PathValue("tx"))
	if err != nil {
		writeServiceError(w, r, h.logger, "match transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// Bundles returns the bundled history, newest first.
// GET /api/wallets/{wallet}/transactions/bundles?since=3m
func (h *WalletHandler) Bundles(w http.ResponseWriter, r *http.Request) {
	opts, err := historyOpts(r, h.now())
	if err != nil {
		writeServiceError(w, r, h.logger, "bundle transactions", err)
		return
	}
	view, err := h.recon.Bundles(r.Context(), r.PathValue("wallet"), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "bundle transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Categorized splits history into matched and unmatched transactions.
// GET /api/wallets/{wallet}/transactions/categorized
func (h *WalletHandler) Categorized(w http.ResponseWriter, r *http.Request) {
	opts, err := historyOpts(r, h.now())
	if err != nil {
		writeServiceError(w, r, h.logger, "categorize transactions", err)
		return
	}
	view, err := h.recon.Categorized(r.Context(), r.PathValue("wallet"), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "categorize transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Report returns the full reconciliation document without archiving it.
// GET /api/wallets/{wallet}/report
func (h *WalletHandler) Report(w http.ResponseWriter, r *http.Request) {
	opts, err := historyOpts(r, h.now())
	if err != nil {
		writeServiceError(w, r, h.logger, "build report", err)
		return
	}
	rep, err := h.recon.Report(r.Context(), r.PathValue("wallet"), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "build report", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Archive builds a report and stores it in object storage.
// POST /api/wallets/{wallet}/archives
func (h *WalletHandler) Archive(w http.ResponseWriter, r *http.Request) {
	opts, err := historyOpts(r, h.now())
	if err != nil {
		writeServiceError(w, r, h.logger, "archive report", err)
		return
	}
	info, err := h.recon.Archive(r.Context(), r.PathValue("wallet"), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "archive report", err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// Archives lists archived reports, newest first.
// GET /api/wallets/{wallet}/archives
func (h *WalletHandler) Archives(w http.ResponseWriter, r *http.Request) {
	infos, err := h.recon.Archives(r.Context(), r.PathValue("wallet"))
	if err != nil {
		writeServiceError(w, r, h.logger, "list archives", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": infos})
}

// ArchivedReport handles GET /api/wallets/{wallet}/archives/{key...}, where
// key is a path returned by Archives.
func (h *WalletHandler) ArchivedReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.recon.ArchivedReport(r.Context(), r.PathValue("wallet"), r.PathValue("key"))
	if err != nil {
		writeServiceError(w, r, h.logger, "load archived report", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
