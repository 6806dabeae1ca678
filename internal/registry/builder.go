package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/walletrecon/internal/collector"
	"github.com/alanyoungcy/walletrecon/internal/domain"
	"github.com/alanyoungcy/walletrecon/internal/trace"
)

// DefaultCollectorTimeout bounds a single collector when the caller sets
// no timeout.
const DefaultCollectorTimeout = 30 * time.Second

// CollectorResult is the outcome of one collector during a build.
type CollectorResult struct {
	Protocol  domain.Protocol `json:"protocol"`
	Positions int             `json:"positions"`
	Duration  time.Duration   `json:"duration"`
	Err       string          `json:"error,omitempty"`
}

// BuildReport describes how a registry was assembled.
type BuildReport struct {
	Wallet     string            `json:"wallet"`
	Collectors []CollectorResult `json:"collectors"`
}

// Failed lists the protocols whose collector errored or timed out.
func (r BuildReport) Failed() []domain.Protocol {
	var out []domain.Protocol
	for _, c := range r.Collectors {
		if c.Err != "" {
			out = append(out, c.Protocol)
		}
	}
	return out
}

// Builder runs every collector concurrently and indexes the union of their
// positions.
type Builder struct {
	collectors []collector.Collector
	timeout    time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewBuilder creates a Builder. Collector order fixes position order in the
// resulting registry and therefore which position wins a collision.
func NewBuilder(collectors []collector.Collector, timeout time.Duration, logger *slog.Logger) *Builder {
	if timeout <= 0 {
		timeout = DefaultCollectorTimeout
	}
	return &Builder{
		collectors: collectors,
		timeout:    timeout,
		logger:     logger.With(slog.String("component", "registry_builder")),
		now:        time.Now,
	}
}

// Build fetches positions for wallet from every collector. A collector that
// fails or exceeds the timeout contributes nothing; the build itself only
// fails on an invalid wallet address.
func (b *Builder) Build(ctx context.Context, wallet string) (*Registry, BuildReport, error) {
	wallet, err := domain.NormalizeWallet(wallet)
	if err != nil {
		return nil, BuildReport{}, fmt.Errorf("registry: build: %w", err)
	}

	ctx, span := trace.StartSpan(ctx, "registry.Build", attribute.String("wallet", wallet))
	defer span.End()

	results := make([][]domain.ProtocolPosition, len(b.collectors))
	report := BuildReport{Wallet: wallet, Collectors: make([]CollectorResult, len(b.collectors))}

	var g errgroup.Group
	for i, c := range b.collectors {
		g.Go(func() error {
			results[i], report.Collectors[i] = b.collect(ctx, c, wallet)
			return nil
		})
	}
	_ = g.Wait()

	var positions []domain.ProtocolPosition
	for _, ps := range results {
		positions = append(positions, ps...)
	}

	reg := New(positions, b.now().UTC())
	if conflicts := reg.Conflicts(); len(conflicts) > 0 {
		b.logger.WarnContext(ctx, "registry: ambiguous transaction ownership",
			slog.String("wallet", wallet),
			slog.Int("conflicts", len(conflicts)),
			slog.String("first_tx", conflicts[0].TxID),
		)
	}
	span.SetAttributes(attribute.Int("positions", reg.Len()))

	b.logger.InfoContext(ctx, "registry: built",
		slog.String("wallet", wallet),
		slog.Int("positions", reg.Len()),
		slog.Int("indexed_txs", len(reg.index)),
		slog.Int("failed_collectors", len(report.Failed())),
	)
	return reg, report, nil
}

func (b *Builder) collect(ctx context.Context, c collector.Collector, wallet string) ([]domain.ProtocolPosition, CollectorResult) {
	res := CollectorResult{Protocol: c.Protocol()}
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	ctx, span := trace.StartSpan(ctx, "collector.Fetch", attribute.String("protocol", string(c.Protocol())))
	defer span.End()

	positions, err := safeFetch(ctx, c, wallet)
	res.Duration = time.Since(start)
	if err != nil {
		trace.RecordError(span, err)
		res.Err = err.Error()
		b.logger.WarnContext(ctx, "registry: collector failed",
			slog.String("protocol", string(c.Protocol())),
			slog.String("wallet", wallet),
			slog.String("error", err.Error()),
		)
		return nil, res
	}

	res.Positions = len(positions)
	return positions, res
}

type fetchResult struct {
	positions []domain.ProtocolPosition
	err       error
}

// safeFetch returns when Fetch does or when ctx ends, whichever is first. A
// collector that ignores cancellation is abandoned; its goroutine finishes
// into a buffered channel nobody reads.
func safeFetch(ctx context.Context, c collector.Collector, wallet string) ([]domain.ProtocolPosition, error) {
	done := make(chan fetchResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fetchResult{err: fmt.Errorf("collector %s panicked: %v", c.Protocol(), p)}
			}
		}()
		positions, err := c.Fetch(ctx, wallet)
		done <- fetchResult{positions: positions, err: err}
	}()

	select {
	case r := <-done:
		return r.positions, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("collector %s: %w", c.Protocol(), ctx.Err())
	}
}
