package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/walletrecon/internal/domain"
)

const (
	uniswapMaxPages = 5
	// snapshotBatch bounds the position ids sent in one position_in filter.
	snapshotBatch = 100
)

const uniswapPositionsQuery = `
	query Positions($owner: String!, $first: Int!, $skip: Int!) {
		positions(where: { owner: $owner }, first: $first, skip: $skip, orderBy: id) {
			id
			liquidity
			pool { id feeTier }
			token0 { symbol }
			token1 { symbol }
			transaction { id timestamp }
		}
	}
`

const uniswapSnapshotsQuery = `
	query Snapshots($ids: [String!]!, $first: Int!, $skip: Int!) {
		positionSnapshots(
			where: { position_in: $ids }
			orderBy: timestamp
			orderDirection: asc
			first: $first
			skip: $skip
		) {
			position { id }
			timestamp
			transaction { id }
		}
	}
`

type uniPosition struct {
	ID        string `json:"id"`
	Liquidity bigNum `json:"liquidity"`
	Pool      struct {
		ID      string `json:"id"`
		FeeTier bigNum `json:"feeTier"`
	} `json:"pool"`
	Token0      uniToken `json:"token0"`
	Token1      uniToken `json:"token1"`
	Transaction struct {
		ID        string `json:"id"`
		Timestamp bigNum `json:"timestamp"`
	} `json:"transaction"`
}

type uniToken struct {
	Symbol string `json:"symbol"`
}

type uniSnapshot struct {
	Position struct {
		ID string `json:"id"`
	} `json:"position"`
	Timestamp   bigNum `json:"timestamp"`
	Transaction struct {
		ID string `json:"id"`
	} `json:"transaction"`
}

// UniswapChain binds a history chain id to the subgraph that indexes it.
type UniswapChain struct {
	Chain  string
	Client Querier
}

// UniswapCollector reconstructs Uniswap v3 LP positions across chains.
// Every chain is fetched concurrently; a failing chain is logged and
// skipped.
type UniswapCollector struct {
	chains []UniswapChain
	logger *slog.Logger
}

// NewUniswapCollector creates a collector over chains.
func NewUniswapCollector(chains []UniswapChain, logger *slog.Logger) *UniswapCollector {
	return &UniswapCollector{
		chains: chains,
		logger: logger.With(slog.String("component", "uniswap_collector")),
	}
}

var _ Collector = (*UniswapCollector)(nil)

func (c *UniswapCollector) Protocol() domain.Protocol { return domain.ProtocolUniswapV3 }

// Fetch returns one position per LP NFT. It errors only when every chain
// failed.
func (c *UniswapCollector) Fetch(ctx context.Context, wallet string) ([]domain.ProtocolPosition, error) {
	owner := strings.ToLower(wallet)
	results := make([][]domain.ProtocolPosition, len(c.chains))
	errs := make([]error, len(c.chains))

	var g errgroup.Group
	for i, ch := range c.chains {
		g.Go(func() error {
			positions, err := c.fetchChain(ctx, ch, owner)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", ch.Chain, err)
				c.logger.WarnContext(ctx, "uniswap: chain fetch failed",
					slog.String("chain", ch.Chain),
					slog.String("error", err.Error()),
				)
				return nil
			}
			results[i] = positions
			return nil
		})
	}
	_ = g.Wait()

	var out []domain.ProtocolPosition
	failed := 0
	for i := range c.chains {
		if errs[i] != nil {
			failed++
			continue
		}
		out = append(out, results[i]...)
	}
	if len(c.chains) > 0 && failed == len(c.chains) {
		return nil, fmt.Errorf("uniswap: every chain failed: %w", errors.Join(errs...))
	}
	return out, nil
}

func (c *UniswapCollector) fetchChain(ctx context.Context, ch UniswapChain, owner string) ([]domain.ProtocolPosition, error) {
	raw, err := c.fetchPositions(ctx, ch.Client, owner)
	if err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	ids := make([]string, len(raw))
	for i, p := range raw {
		ids[i] = p.ID
	}
	snaps, err := c.fetchSnapshots(ctx, ch.Client, ids)
	if err != nil {
		return nil, fmt.Errorf("snapshots: %w", err)
	}

	byPosition := make(map[string][]uniSnapshot, len(raw))
	for _, s := range snaps {
		byPosition[s.Position.ID] = append(byPosition[s.Position.ID], s)
	}

	positions := make([]domain.ProtocolPosition, 0, len(raw))
	for _, p := range raw {
		positions = append(positions, toLPPosition(ch.Chain, p, byPosition[p.ID]))
	}
	sort.SliceStable(positions, func(i, j int) bool {
		return positions[i].OpenedAt.Before(positions[j].OpenedAt)
	})
	return positions, nil
}

func (c *UniswapCollector) fetchPositions(ctx context.Context, q Querier, owner string) ([]uniPosition, error) {
	var all []uniPosition
	for page := 0; page < uniswapMaxPages; page++ {
		var out struct {
			Positions []uniPosition `json:"positions"`
		}
		vars := map[string]any{"owner": owner, "first": pageSize, "skip": page * pageSize}
		if err := q.Query(ctx, uniswapPositionsQuery, vars, &out); err != nil {
			return nil, err
		}
		all = append(all, out.Positions...)
		if len(out.Positions) < pageSize {
			break
		}
	}
	return all, nil
}

func (c *UniswapCollector) fetchSnapshots(ctx context.Context, q Querier, ids []string) ([]uniSnapshot, error) {
	var all []uniSnapshot
	for start := 0; start < len(ids); start += snapshotBatch {
		end := min(start+snapshotBatch, len(ids))
		for page := 0; page < uniswapMaxPages; page++ {
			var out struct {
				Snapshots []uniSnapshot `json:"positionSnapshots"`
			}
			vars := map[string]any{"ids": ids[start:end], "first": pageSize, "skip": page * pageSize}
			if err := q.Query(ctx, uniswapSnapshotsQuery, vars, &out); err != nil {
				return nil, err
			}
			all = append(all, out.Snapshots...)
			if len(out.Snapshots) < pageSize {
				break
			}
		}
	}
	return all, nil
}

// toLPPosition folds an NFT position and its snapshots into a position. The
// position is closed exactly when its liquidity is zero.
func toLPPosition(chain string, p uniPosition, snaps []uniSnapshot) domain.ProtocolPosition {
	first := p.Transaction.Timestamp.Int64()
	last := first
	seen := make(map[string]bool)
	var txIDs []string
	add := func(id string) {
		id = strings.ToLower(id)
		if id != "" && !seen[id] {
			seen[id] = true
			txIDs = append(txIDs, id)
		}
	}
	add(p.Transaction.ID)
	for _, s := range snaps {
		ts := s.Timestamp.Int64()
		if first == 0 || ts < first {
			first = ts
		}
		if ts > last {
			last = ts
		}
		add(s.Transaction.ID)
	}

	pair := domain.AssetPair{Base: symbolOr(p.Token0.Symbol, "TOKEN0"), Quote: symbolOr(p.Token1.Symbol, "TOKEN1")}
	opened := time.Unix(first, 0).UTC()
	pos := domain.ProtocolPosition{
		ID:       fmt.Sprintf("%s-%s-%s", domain.ProtocolUniswapV3, chain, p.ID),
		Protocol: domain.ProtocolUniswapV3,
		Chain:    chain,
		Name:     PositionName(domain.ProtocolUniswapV3, pair.String(), "", opened),
		Asset:    pair.String(),
		Pair:     &pair,
		Status:   domain.PositionStatusOpen,
		OpenedAt: opened,
		TxIDs:    txIDs,
		Metrics:  domain.PositionMetrics{Liquidity: p.Liquidity.Decimal().String()},
	}
	if p.Liquidity.Decimal().IsZero() {
		closed := time.Unix(last, 0).UTC()
		pos.Status = domain.PositionStatusClosed
		pos.ClosedAt = &closed
	}
	return pos
}

func symbolOr(s, fallback string) string {
	if s = strings.TrimSpace(s); s == "" {
		return fallback
	}
	return s
}
