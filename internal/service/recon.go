// Package service composes collectors, history, bundling and the manual
// curation stores into the operations the API and report modes expose.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/walletrecon/internal/bundle"
	"github.com/alanyoungcy/walletrecon/internal/domain"
	"github.com/alanyoungcy/walletrecon/internal/grouping"
	"github.com/alanyoungcy/walletrecon/internal/notify"
	"github.com/alanyoungcy/walletrecon/internal/registry"
)

const (
	defaultRegistryTTL = 5 * time.Minute
	defaultLockTTL     = 2 * time.Minute
	lockPollInterval   = 250 * time.Millisecond
	defaultLockWait    = 10 * time.Second
)

// RegistryBuilder builds a wallet's registry; *registry.Builder satisfies it.
type RegistryBuilder interface {
	Build(ctx context.Context, wallet string) (*registry.Registry, registry.BuildReport, error)
}

// ReportArchiver stores and lists archived reports; *s3blob.Archiver
// satisfies it.
type ReportArchiver interface {
	Archive(ctx context.Context, wallet string, at time.Time, report any) (domain.BlobInfo, error)
	List(ctx context.Context, wallet string) ([]domain.BlobInfo, error)
	Open(ctx context.Context, wallet, key string, out any) error
}

// ReconDeps are the collaborators of a ReconService. Builder, Engine and
// History are required; the rest may be nil.
type ReconDeps struct {
	Builder  RegistryBuilder
	Engine   *bundle.Engine
	History  *HistoryService
	Hidden   domain.HiddenTxStore
	Cache    domain.RegistryCache
	Locks    domain.LockManager
	Archiver ReportArchiver
	Notifier *notify.Notifier
}

// ReconConfig tunes caching and locking.
type ReconConfig struct {
	RegistryTTL time.Duration
	LockTTL     time.Duration
	LockWait    time.Duration
}

// ReconService answers reconciliation questions for a wallet.
type ReconService struct {
	deps   ReconDeps
	cfg    ReconConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewReconService creates a ReconService; zero config values take defaults.
func NewReconService(deps ReconDeps, cfg ReconConfig, logger *slog.Logger) *ReconService {
	if cfg.RegistryTTL <= 0 {
		cfg.RegistryTTL = defaultRegistryTTL
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = defaultLockWait
	}
	return &ReconService{
		deps:   deps,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "recon_service")),
		now:    time.Now,
	}
}

// RegistryResult is a registry plus how it was obtained.
type RegistryResult struct {
	Registry *registry.Registry
	Report   registry.BuildReport
	Cached   bool
}

// Registry returns wallet's registry from the cache when fresh, building it
// otherwise. Concurrent builds for one wallet are serialised through the
// lock manager; a waiter picks up the winner's cached result.
func (s *ReconService) Registry(ctx context.Context, wallet string, refresh bool) (RegistryResult, error) {
	wallet, err := domain.NormalizeWallet(wallet)
	if err != nil {
		return RegistryResult{}, err
	}
	if !refresh {
		if res, ok := s.cachedRegistry(ctx, wallet); ok {
			return res, nil
		}
	}

	if s.deps.Locks != nil {
		unlock, err := s.acquireBuildLock(ctx, wallet)
		switch {
		case err == nil:
			defer unlock()
		case errors.Is(err, domain.ErrLockHeld):
			if res, ok := s.waitForBuild(ctx, wallet); ok {
				return res, nil
			}
			s.logger.WarnContext(ctx, "recon: build lock wait expired, building anyway", slog.String("wallet", wallet))
		default:
			s.logger.WarnContext(ctx, "recon: build lock unavailable", slog.String("error", err.Error()))
		}
	}

	reg, report, err := s.deps.Builder.Build(ctx, wallet)
	if err != nil {
		return RegistryResult{}, fmt.Errorf("recon: build registry: %w", err)
	}

	if s.deps.Cache != nil {
		if err := s.deps.Cache.Set(ctx, reg.Snapshot(wallet), s.cfg.RegistryTTL); err != nil {
			s.logger.WarnContext(ctx, "recon: cache registry failed", slog.String("error", err.Error()))
		}
	}
	s.alert(ctx, wallet, reg, report)
	return RegistryResult{Registry: reg, Report: report}, nil
}

func (s *ReconService) cachedRegistry(ctx context.Context, wallet string) (RegistryResult, bool) {
	if s.deps.Cache == nil {
		return RegistryResult{}, false
	}
	snap, err := s.deps.Cache.Get(ctx, wallet)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "recon: registry cache read failed", slog.String("error", err.Error()))
		}
		return RegistryResult{}, false
	}
	return RegistryResult{
		Registry: registry.FromSnapshot(snap),
		Report:   registry.BuildReport{Wallet: wallet},
		Cached:   true,
	}, true
}

func (s *ReconService) acquireBuildLock(ctx context.Context, wallet string) (func(), error) {
	return s.deps.Locks.Acquire(ctx, "build:"+wallet, s.cfg.LockTTL)
}

// waitForBuild polls the cache while another replica builds.
func (s *ReconService) waitForBuild(ctx context.Context, wallet string) (RegistryResult, bool) {
	deadline := time.NewTimer(s.cfg.LockWait)
	defer deadline.Stop()
	tick := time.NewTicker(lockPollInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return RegistryResult{}, false
		case <-deadline.C:
			return RegistryResult{}, false
		case <-tick.C:
			if res, ok := s.cachedRegistry(ctx, wallet); ok {
				return res, true
			}
		}
	}
}

func (s *ReconService) alert(ctx context.Context, wallet string, reg *registry.Registry, report registry.BuildReport) {
	if conflicts := reg.Conflicts(); len(conflicts) > 0 {
		owners := make(map[string][]string, len(conflicts))
		for _, c := range conflicts {
			owners[c.TxID] = c.Claimants
		}
		if err := s.deps.Notifier.RegistryConflicts(ctx, wallet, owners); err != nil {
			s.logger.WarnContext(ctx, "recon: conflict alert failed", slog.String("error", err.Error()))
		}
	}
	failures := make(map[string]string)
	for _, c := range report.Collectors {
		if c.Err != "" {
			failures[string(c.Protocol)] = c.Err
		}
	}
	if err := s.deps.Notifier.CollectorsFailed(ctx, wallet, failures); err != nil {
		s.logger.WarnContext(ctx, "recon: collector alert failed", slog.String("error", err.Error()))
	}
}

// Match resolves one transaction hash to its position.
func (s *ReconService) Match(ctx context.Context, wallet, txID string) (domain.ProtocolPosition, error) {
	res, err := s.Registry(ctx, wallet, false)
	if err != nil {
		return domain.ProtocolPosition{}, err
	}
	pos, ok := registry.MatchTransaction(txID, res.Registry)
	if !ok {
		return domain.ProtocolPosition{}, fmt.Errorf("recon: match %s: %w", txID, domain.ErrNotFound)
	}
	return pos, nil
}

// HistoryOptions selects which history a view covers.
type HistoryOptions struct {
	// Since is a unix cutoff; 0 keeps everything.
	Since int64
	// Refresh refetches history from scratch.
	Refresh bool
	// IncludeHidden keeps transactions the owner hid.
	IncludeHidden bool
}

// history is the filtered transaction set a view is computed over.
type history struct {
	txs    []domain.Transaction
	tokens domain.TokenBook
	hidden int
	cache  domain.HistoryCacheStats
}

func (s *ReconService) loadHistory(ctx context.Context, wallet string, opts HistoryOptions) (history, error) {
	page, stats, err := s.deps.History.Load(ctx, wallet, opts.Refresh)
	if err != nil {
		return history{}, err
	}

	hidden := map[domain.TxKey]bool{}
	if s.deps.Hidden != nil && !opts.IncludeHidden {
		keys, err := s.deps.Hidden.List(ctx, wallet)
		if err != nil {
			return history{}, fmt.Errorf("recon: hidden transactions: %w", err)
		}
		for _, k := range keys {
			hidden[domain.NewTxKey(k.Chain, k.ID)] = true
		}
	}

	h := history{tokens: page.Tokens, cache: stats, txs: make([]domain.Transaction, 0, len(page.Transactions))}
	for _, tx := range page.Transactions {
		if opts.Since > 0 && tx.TimeAt < opts.Since {
			continue
		}
		if hidden[tx.Key()] {
			h.hidden++
			continue
		}
		h.txs = append(h.txs, tx)
	}
	return h, nil
}

// BundleView is the bundled transaction history of a wallet.
type BundleView struct {
	Wallet  string                     `json:"wallet"`
	Bundles []domain.TransactionBundle `json:"bundles"`
	Stats   bundle.Stats               `json:"stats"`
	Summary domain.HistorySummary      `json:"summary"`
	Hidden  int                        `json:"hidden"`
	Cache   domain.HistoryCacheStats   `json:"cache"`
}

// Bundles groups wallet's history into bundles, newest first. Hidden
// transactions are left out of bundling entirely.
func (s *ReconService) Bundles(ctx context.Context, wallet string, opts HistoryOptions) (BundleView, error) {
	wallet, err := domain.NormalizeWallet(wallet)
	if err != nil {
		return BundleView{}, err
	}
	h, err := s.loadHistory(ctx, wallet, opts)
	if err != nil {
		return BundleView{}, err
	}
	return s.bundleView(wallet, h), nil
}

func (s *ReconService) bundleView(wallet string, h history) BundleView {
	bundles := s.deps.Engine.Bundle(h.txs, h.tokens)
	return BundleView{
		Wallet:  wallet,
		Bundles: bundles,
		Stats:   bundle.Summarize(bundles),
		Summary: domain.Summarize(h.txs),
		Hidden:  h.hidden,
		Cache:   h.cache,
	}
}

// CategorizedView splits history into registry-matched and unmatched
// transactions. Inferred groups the unmatched ones into heuristic positions.
type CategorizedView struct {
	Wallet     string                        `json:"wallet"`
	Matched    []registry.MatchedTransaction `json:"matched"`
	Unmatched  []domain.Transaction          `json:"unmatched"`
	ByPosition map[string]int                `json:"by_position"`
	Inferred   []grouping.Group              `json:"inferred"`
}

// Categorized matches every history transaction against the registry.
func (s *ReconService) Categorized(ctx context.Context, wallet string, opts HistoryOptions) (CategorizedView, error) {
	wallet, err := domain.NormalizeWallet(wallet)
	if err != nil {
		return CategorizedView{}, err
	}
	res, err := s.Registry(ctx, wallet, false)
	if err != nil {
		return CategorizedView{}, err
	}
	h, err := s.loadHistory(ctx, wallet, opts)
	if err != nil {
		return CategorizedView{}, err
	}
	cat := registry.Categorize(h.txs, res.Registry)
	counts := make(map[string]int)
	for id, txs := range cat.ByPosition() {
		counts[id] = len(txs)
	}
	return CategorizedView{
		Wallet:     wallet,
		Matched:    cat.Matched,
		Unmatched:  cat.Unmatched,
		ByPosition: counts,
		Inferred:   inferPositions(cat.Unmatched, h.tokens),
	}, nil
}

// Report is the full reconciliation of a wallet at one point in time.
type Report struct {
	Wallet      string                    `json:"wallet"`
	GeneratedAt time.Time                 `json:"generated_at"`
	Positions   []domain.ProtocolPosition `json:"positions"`
	Conflicts   []registry.Conflict       `json:"conflicts"`
	Build       registry.BuildReport      `json:"build"`
	Matched     int                       `json:"matched"`
	Unmatched   int                       `json:"unmatched"`
	Inferred    []grouping.Group          `json:"inferred"`
	Bundles     BundleView                `json:"bundles"`
}

// Report assembles registry, matching and bundling into one document.
func (s *ReconService) Report(ctx context.Context, wallet string, opts HistoryOptions) (Report, error) {
	wallet, err := domain.NormalizeWallet(wallet)
	if err != nil {
		return Report{}, err
	}
	res, err := s.Registry(ctx, wallet, opts.Refresh)
	if err != nil {
		return Report{}, err
	}
	h, err := s.loadHistory(ctx, wallet, opts)
	if err != nil {
		return Report{}, err
	}
	cat := registry.Categorize(h.txs, res.Registry)

	return Report{
		Wallet:      wallet,
		GeneratedAt: s.now().UTC(),
		Positions:   res.Registry.Positions(),
		Conflicts:   res.Registry.Conflicts(),
		Build:       res.Report,
		Matched:     len(cat.Matched),
		Unmatched:   len(cat.Unmatched),
		Inferred:    inferPositions(cat.Unmatched, h.tokens),
		Bundles:     s.bundleView(wallet, h),
	}, nil
}

func inferPositions(txs []domain.Transaction, tokens domain.TokenBook) []grouping.Group {
	groups := grouping.Infer(txs, tokens)
	if groups == nil {
		groups = []grouping.Group{}
	}
	return groups
}

// Archive builds a report and stores it through the archiver.
func (s *ReconService) Archive(ctx context.Context, wallet string, opts HistoryOptions) (domain.BlobInfo, error) {
	if s.deps.Archiver == nil {
		return domain.BlobInfo{}, fmt.Errorf("recon: archive: %w", domain.ErrNotConfigured)
	}
	rep, err := s.Report(ctx, wallet, opts)
	if err != nil {
		return domain.BlobInfo{}, err
	}
	info, err := s.deps.Archiver.Archive(ctx, rep.Wallet, rep.GeneratedAt, rep)
	if err != nil {
		if nerr := s.deps.Notifier.Notify(ctx, notify.EventArchiveFailed, "Report archive failed",
			fmt.Sprintf("wallet %s: %v", rep.Wallet, err)); nerr != nil {
			s.logger.WarnContext(ctx, "recon: archive alert failed", slog.String("error", nerr.Error()))
		}
		return domain.BlobInfo{}, fmt.Errorf("recon: archive: %w", err)
	}
	s.logger.InfoContext(ctx, "recon: report archived",
		slog.String("wallet", rep.Wallet),
		slog.String("path", info.Path),
	)
	return info, nil
}

// Archives lists wallet's archived reports, newest first.
func (s *ReconService) Archives(ctx context.Context, wallet string) ([]domain.BlobInfo, error) {
	if s.deps.Archiver == nil {
		return nil, fmt.Errorf("recon: archives: %w", domain.ErrNotConfigured)
	}
	wallet, err := domain.NormalizeWallet(wallet)
	if err != nil {
		return nil, err
	}
	infos, err := s.deps.Archiver.List(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("recon: archives: %w", err)
	}
	return infos, nil
}

// ArchivedReport loads one archived report by the key Archives listed.
func (s *ReconService) ArchivedReport(ctx context.Context, wallet, key string) (Report, error) {
	if s.deps.Archiver == nil {
		return Report{}, fmt.Errorf("recon: archived report: %w", domain.ErrNotConfigured)
	}
	wallet, err := domain.NormalizeWallet(wallet)
	if err != nil {
		return Report{}, err
	}
	var rep Report
	if err := s.deps.Archiver.Open(ctx, wallet, key, &rep); err != nil {
		return Report{}, fmt.Errorf("recon: archived report: %w", err)
	}
	return rep, nil
}
