// Package server exposes the reconciliation API over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/walletrecon/internal/domain"
	"github.com/alanyoungcy/walletrecon/internal/server/handler"
	"github.com/alanyoungcy/walletrecon/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit is requests per RateWindow per client; 0 disables it.
	RateLimit  int
	RateWindow time.Duration
	// WriteTimeout must cover a cold registry build plus a full history sync.
	WriteTimeout time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health *handler.HealthHandler
	Wallet *handler.WalletHandler
	Manual *handler.ManualHandler
}

// Server is the headless HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// limiter may be nil, which disables rate limiting.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 2 * time.Minute
	}
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewHandler(cfg, handlers, limiter, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg Config, handlers Handlers, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Registry and transaction views.
	wh := handlers.Wallet
	mux.HandleFunc("GET /api/wallets/{wallet}/registry", wh.Registry)
	mux.HandleFunc("GET /api/wallets/{wallet}/registry/conflicts", wh.Conflicts)
	mux.HandleFunc("GET /api/wallets/{wallet}/match/{tx}", wh.Match)
	mux.HandleFunc("GET /api/wallets/{wallet}/transactions/bundles", wh.Bundles)
	mux.HandleFunc("GET /api/wallets/{wallet}/transactions/categorized", wh.Categorized)
	mux.HandleFunc("GET /api/wallets/{wallet}/report", wh.Report)
	mux.HandleFunc("GET /api/wallets/{wallet}/archives", wh.Archives)
	mux.HandleFunc("POST /api/wallets/{wallet}/archives", wh.Archive)
	mux.HandleFunc("GET /api/wallets/{wallet}/archives/{key...}", wh.ArchivedReport)

	// Manual curation.
	mh := handlers.Manual
	mux.HandleFunc("GET /api/wallets/{wallet}/strategies", mh.ListStrategies)
	mux.HandleFunc("POST /api/wallets/{wallet}/strategies", mh.CreateStrategy)
	mux.HandleFunc("GET /api/wallets/{wallet}/strategies/{id}", mh.GetStrategy)
	mux.HandleFunc("PUT /api/wallets/{wallet}/strategies/{id}", mh.PutStrategy)
	mux.HandleFunc("DELETE /api/wallets/{wallet}/strategies/{id}", mh.DeleteStrategy)

	mux.HandleFunc("GET /api/wallets/{wallet}/user-positions", mh.ListUserPositions)
	mux.HandleFunc("POST /api/wallets/{wallet}/user-positions", mh.CreateUserPosition)
	mux.HandleFunc("GET /api/wallets/{wallet}/user-positions/{id}", mh.GetUserPosition)
	mux.HandleFunc("PUT /api/wallets/{wallet}/user-positions/{id}", mh.PutUserPosition)
	mux.HandleFunc("DELETE /api/wallets/{wallet}/user-positions/{id}", mh.DeleteUserPosition)
	mux.HandleFunc("PUT /api/wallets/{wallet}/user-positions/{id}/transactions/{tx}", mh.AddTransaction)
	mux.HandleFunc("DELETE /api/wallets/{wallet}/user-positions/{id}/transactions/{tx}", mh.RemoveTransaction)

	mux.HandleFunc("GET /api/wallets/{wallet}/hidden", mh.ListHidden)
	mux.HandleFunc("PUT /api/wallets/{wallet}/hidden/{chain}/{tx}", mh.Hide)
	mux.HandleFunc("DELETE /api/wallets/{wallet}/hidden/{chain}/{tx}", mh.Unhide)

	// Build the middleware chain; the outermost runs first.
	var h http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window, logger)(h)
	}
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
