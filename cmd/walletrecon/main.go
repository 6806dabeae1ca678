// Command walletrecon is the entry point for the wallet reconciliation
// engine. It loads configuration, validates it, sets up logging and signal
// handling, and runs either the HTTP server or a one-shot console report.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/alanyoungcy/walletrecon/internal/app"
	"github.com/alanyoungcy/walletrecon/internal/config"
	"github.com/alanyoungcy/walletrecon/internal/trace"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	mode := flag.String("mode", "", "override mode (server, report)")
	wallet := flag.String("wallet", "", "wallet to report on (report mode)")
	since := flag.String("since", "", "report window: all, 7d, 30d, 90d, 6m, 1y")
	archive := flag.Bool("archive", false, "archive the report to object storage (report mode)")
	refresh := flag.Bool("refresh", false, "refetch wallet history from scratch (report mode)")
	flag.Parse()

	// Bootstrap logger until the configured level is known.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// Command-line flags win over file and environment.
	if *mode != "" {
		cfg.Mode = *mode
	}
	if *wallet != "" {
		cfg.Report.Wallet = *wallet
	}
	if *since != "" {
		cfg.Report.Since = *since
	}
	if *archive {
		cfg.Report.Archive = true
	}
	if *refresh {
		cfg.Report.Refresh = true
	}

	logOut, closeLog := logWriter(cfg)
	defer closeLog()
	logger = slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	traceOut, closeTrace, err := traceWriter(cfg.Trace)
	if err != nil {
		logger.Error("failed to open trace output", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeTrace()
	if err := trace.Init(cfg.Trace.Enabled, version, traceOut); err != nil {
		logger.Error("failed to initialise tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = trace.Shutdown(ctx)
	}()

	logger.Info("walletrecon starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.String("version", version),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	// Create the application.
	application := app.New(cfg, logger)
	defer application.Close()

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run the application.
	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			application.Close()
			os.Exit(1)
		}
	}

	logger.Info("walletrecon stopped")
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// logWriter returns stderr, plus a rotating file when log.file is set.
// Report mode owns stdout, so logs never go there.
func logWriter(cfg *config.Config) (io.Writer, func()) {
	if cfg.Log.File == "" {
		return os.Stderr, func() {}
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "log directory %s: %v; logging to stderr only\n", cfg.Log.File, err)
		return os.Stderr, func() {}
	}
	file := &lumberjack.Logger{
		Filename:   cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}
	return io.MultiWriter(os.Stderr, file), func() { _ = file.Close() }
}

// traceWriter opens trace.file, falling back to stderr.
func traceWriter(cfg config.TraceConfig) (io.Writer, func(), error) {
	if !cfg.Enabled || cfg.File == "" {
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}
