package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/walletrecon/internal/report"
	"github.com/alanyoungcy/walletrecon/internal/server"
	"github.com/alanyoungcy/walletrecon/internal/server/handler"
	"github.com/alanyoungcy/walletrecon/internal/service"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// ServerMode serves the reconciliation API until ctx is cancelled.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	if deps.Manual == nil {
		return fmt.Errorf("server mode: manual curation stores are not wired (enable postgres)")
	}

	srv := server.NewServer(server.Config{
		Port:         a.cfg.Server.Port,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		APIKey:       a.cfg.Server.APIKey,
		RateLimit:    a.cfg.Server.RateLimit,
		RateWindow:   a.cfg.Server.RateWindow.Duration,
		WriteTimeout: a.cfg.Server.WriteTimeout.Duration,
	}, server.Handlers{
		Health: handler.NewHealthHandler(deps.Pingers, a.logger),
		Wallet: handler.NewWalletHandler(deps.Recon, a.logger),
		Manual: handler.NewManualHandler(deps.Manual, a.logger),
	}, deps.RateLimiter, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// ReportMode builds one wallet's report, prints it and optionally archives
// it.
func (a *App) ReportMode(ctx context.Context, deps *Dependencies) error {
	wallet := a.cfg.Report.Wallet
	since, err := service.ParseSince(a.cfg.Report.Since, time.Now())
	if err != nil {
		return fmt.Errorf("report mode: %w", err)
	}
	opts := service.HistoryOptions{Since: since, Refresh: a.cfg.Report.Refresh}

	a.logger.InfoContext(ctx, "starting report mode",
		slog.String("wallet", wallet),
		slog.String("since", a.cfg.Report.Since),
	)

	r, err := deps.Recon.Report(ctx, wallet, opts)
	if err != nil {
		return fmt.Errorf("report mode: %w", err)
	}
	if err := report.NewConsole(a.out, a.cfg.Report.BundleLimit).Render(r); err != nil {
		return fmt.Errorf("report mode: render: %w", err)
	}

	if a.cfg.Report.Archive {
		info, err := deps.Recon.Archive(ctx, wallet, opts)
		if err != nil {
			return fmt.Errorf("report mode: archive: %w", err)
		}
		a.logger.InfoContext(ctx, "report archived",
			slog.String("path", info.Path),
			slog.Int64("size", info.Size),
		)
	}
	return nil
}
