package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/walletrecon/internal/bundle"
	"github.com/alanyoungcy/walletrecon/internal/domain"
	"github.com/alanyoungcy/walletrecon/internal/registry"
	"github.com/alanyoungcy/walletrecon/internal/server/handler"
	"github.com/alanyoungcy/walletrecon/internal/service"
)

const wallet = "0x1111111111111111111111111111111111111111"

type staticBuilder struct{}

func (staticBuilder) Build(_ context.Context, w string) (*registry.Registry, registry.BuildReport, error) {
	reg := registry.New([]domain.ProtocolPosition{
		{ID: "gmx-1", Protocol: domain.ProtocolGMXV2, Chain: "arb", TxIDs: []string{"0xaa"}},
	}, time.Unix(1700000000, 0))
	return reg, registry.BuildReport{Wallet: w}, nil
}

type staticHistory struct{}

func (staticHistory) History(context.Context, string, int64) (domain.HistoryPage, error) {
	return domain.HistoryPage{
		Transactions: []domain.Transaction{
			{ID: "0xaa", Chain: "arb", ProjectID: "gmx", TimeAt: 1700000100},
			{ID: "0xbb", Chain: "arb", TimeAt: 1700000000},
		},
		Tokens: domain.TokenBook{},
	}, nil
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string, int, time.Duration) (bool, error) { return false, nil }

func newTestHandler(cfg Config, limiter domain.RateLimiter) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recon := service.NewReconService(service.ReconDeps{
		Builder: staticBuilder{},
		Engine:  bundle.NewEngine(bundle.DefaultConfig()),
		History: service.NewHistoryService(staticHistory{}, nil, nil, logger),
	}, service.ReconConfig{}, logger)
	manual := service.NewManualService(nil, nil, nil)
	return NewHandler(cfg, Handlers{
		Health: handler.NewHealthHandler(nil, logger),
		Wallet: handler.NewWalletHandler(recon, logger),
		Manual: handler.NewManualHandler(manual, logger),
	}, limiter, logger)
}

func get(h http.Handler, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoutesEndToEnd(t *testing.T) {
	h := newTestHandler(Config{}, nil)

	rec := get(h, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(h, "/api/wallets/"+wallet+"/match/0xAA", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pos domain.ProtocolPosition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pos))
	assert.Equal(t, "gmx-1", pos.ID)

	rec = get(h, "/api/wallets/"+wallet+"/transactions/bundles", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view service.BundleView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Len(t, view.Bundles, 2)
	assert.Equal(t, "0xaa", view.Bundles[0].ID)

	rec = get(h, "/api/wallets/"+wallet+"/transactions/categorized", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(h, "/api/wallets/not-a-wallet/registry", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(h, "/api/wallets/"+wallet+"/archives", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "no archiver configured")

	rec = get(h, "/api/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthAndRateLimitWiring(t *testing.T) {
	h := newTestHandler(Config{APIKey: "k"}, nil)
	assert.Equal(t, http.StatusOK, get(h, "/api/health", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, get(h, "/api/wallets/"+wallet+"/registry", nil).Code)
	assert.Equal(t, http.StatusOK, get(h, "/api/wallets/"+wallet+"/registry", map[string]string{"X-API-Key": "k"}).Code)

	limited := newTestHandler(Config{RateLimit: 1}, denyAll{})
	assert.Equal(t, http.StatusTooManyRequests, get(limited, "/api/health", nil).Code)
}
