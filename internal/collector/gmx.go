package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/walletrecon/internal/domain"
)

const (
	// gmxFlatThresholdUSD is the net notional below which a perpetual
	// position counts as closed.
	gmxFlatThresholdUSD = 0.01
	// gmxMaxPages bounds trade action pagination per wallet.
	gmxMaxPages = 10

	gmxEventExecuted = "OrderExecuted"
)

const tradeActionsQuery = `
	query TradeActions($account: String!, $first: Int!, $skip: Int!) {
		tradeActions(
			where: { account: $account }
			orderBy: timestamp
			orderDirection: asc
			first: $first
			skip: $skip
		) {
			id
			eventName
			orderKey
			orderType
			marketAddress
			isLong
			sizeDeltaUsd
			initialCollateralDeltaAmount
			collateralTokenPriceMin
			basePnlUsd
			positionFeeAmount
			borrowingFeeAmount
			fundingFeeAmount
			timestamp
			transaction {
				id
			}
		}
	}
`

// gmxTradeAction is one order lifecycle event from the synthetics-stats
// subgraph.
type gmxTradeAction struct {
	ID                 string `json:"id"`
	EventName          string `json:"eventName"`
	OrderKey           string `json:"orderKey"`
	OrderType          bigNum `json:"orderType"`
	MarketAddress      string `json:"marketAddress"`
	IsLong             bool   `json:"isLong"`
	SizeDeltaUSD       bigNum `json:"sizeDeltaUsd"`
	CollateralDelta    bigNum `json:"initialCollateralDeltaAmount"`
	CollateralPriceMin bigNum `json:"collateralTokenPriceMin"`
	BasePnlUSD         bigNum `json:"basePnlUsd"`
	PositionFeeAmount  bigNum `json:"positionFeeAmount"`
	BorrowingFeeAmount bigNum `json:"borrowingFeeAmount"`
	FundingFeeAmount   bigNum `json:"fundingFeeAmount"`
	Timestamp          bigNum `json:"timestamp"`
	Transaction        struct {
		ID string `json:"id"`
	} `json:"transaction"`
}

// tokenUSD converts a collateral token amount using the action's collateral
// price, which GMX scales so that amount*price is a 30-decimal USD value.
func (a gmxTradeAction) tokenUSD(amount bigNum) decimal.Decimal {
	return amount.Decimal().Mul(a.CollateralPriceMin.Decimal()).Shift(-gmxUSDDecimals)
}

// gmxOrder is every event sharing one order key.
type gmxOrder struct {
	market     string
	long       bool
	effect     OrderEffect
	executed   bool
	sizeDelta  decimal.Decimal
	collateral decimal.Decimal
	pnl        decimal.Decimal
	fees       decimal.Decimal
	txIDs      []string
	first      int64
	last       int64
}

// gmxGroup accumulates orders on one (market, direction).
type gmxGroup struct {
	market     string
	long       bool
	net        decimal.Decimal
	collateral decimal.Decimal
	pnl        decimal.Decimal
	fees       decimal.Decimal
	txIDs      []string
	seen       map[string]bool
	first      int64
	last       int64
}

// GMXCollector reconstructs GMX v2 perpetual positions from trade actions.
type GMXCollector struct {
	client Querier
	chain  string
	tables GMXTables
	logger *slog.Logger
}

// NewGMXCollector creates a collector querying client. chain is the history
// chain id positions are attributed to ("arb").
func NewGMXCollector(client Querier, chain string, tables GMXTables, logger *slog.Logger) *GMXCollector {
	return &GMXCollector{
		client: client,
		chain:  chain,
		tables: tables,
		logger: logger.With(slog.String("component", "gmx_collector")),
	}
}

var _ Collector = (*GMXCollector)(nil)

func (c *GMXCollector) Protocol() domain.Protocol { return domain.ProtocolGMXV2 }

// Fetch returns one position per (market, direction) the wallet traded.
func (c *GMXCollector) Fetch(ctx context.Context, wallet string) ([]domain.ProtocolPosition, error) {
	actions, err := c.fetchActions(ctx, strings.ToLower(wallet))
	if err != nil {
		return nil, fmt.Errorf("gmx: fetch trade actions: %w", err)
	}
	positions := c.buildPositions(actions)
	c.logger.DebugContext(ctx, "gmx: positions collected",
		slog.String("wallet", wallet),
		slog.Int("actions", len(actions)),
		slog.Int("positions", len(positions)),
	)
	return positions, nil
}

func (c *GMXCollector) fetchActions(ctx context.Context, account string) ([]gmxTradeAction, error) {
	var all []gmxTradeAction
	for page := 0; page < gmxMaxPages; page++ {
		var out struct {
			TradeActions []gmxTradeAction `json:"tradeActions"`
		}
		vars := map[string]any{
			"account": account,
			"first":   pageSize,
			"skip":    page * pageSize,
		}
		if err := c.client.Query(ctx, tradeActionsQuery, vars, &out); err != nil {
			return nil, err
		}
		all = append(all, out.TradeActions...)
		if len(out.TradeActions) < pageSize {
			return all, nil
		}
	}
	c.logger.WarnContext(ctx, "gmx: trade action pagination truncated",
		slog.String("account", account),
		slog.Int("actions", len(all)),
	)
	return all, nil
}

// buildPositions groups actions by order key, then merges orders by
// (market, direction).
func (c *GMXCollector) buildPositions(actions []gmxTradeAction) []domain.ProtocolPosition {
	orders := make(map[string]*gmxOrder)
	var orderKeys []string
	for _, a := range actions {
		key := a.OrderKey
		if key == "" {
			key = a.ID
		}
		o, ok := orders[key]
		if !ok {
			o = &gmxOrder{
				market: strings.ToLower(a.MarketAddress),
				long:   a.IsLong,
				effect: c.tables.Effect(int(a.OrderType.Int64())),
				first:  a.Timestamp.Int64(),
			}
			orders[key] = o
			orderKeys = append(orderKeys, key)
		}
		ts := a.Timestamp.Int64()
		if ts < o.first {
			o.first = ts
		}
		if ts > o.last {
			o.last = ts
		}
		if a.Transaction.ID != "" {
			o.txIDs = append(o.txIDs, strings.ToLower(a.Transaction.ID))
		}
		if a.EventName == gmxEventExecuted {
			o.executed = true
			o.sizeDelta = a.SizeDeltaUSD.USD()
			o.collateral = a.tokenUSD(a.CollateralDelta)
			o.pnl = a.BasePnlUSD.USD()
			o.fees = a.tokenUSD(a.PositionFeeAmount).
				Add(a.tokenUSD(a.BorrowingFeeAmount)).
				Add(a.tokenUSD(a.FundingFeeAmount))
		}
	}

	groups := make(map[string]*gmxGroup)
	var groupKeys []string
	for _, key := range orderKeys {
		o := orders[key]
		if o.effect == EffectSwap || o.market == "" {
			continue
		}
		gk := positionKey(o.market, o.long)
		g, ok := groups[gk]
		if !ok {
			g = &gmxGroup{market: o.market, long: o.long, seen: make(map[string]bool), first: o.first}
			groups[gk] = g
			groupKeys = append(groupKeys, gk)
		}
		if o.first < g.first {
			g.first = o.first
		}
		if o.last > g.last {
			g.last = o.last
		}
		for _, tx := range o.txIDs {
			if !g.seen[tx] {
				g.seen[tx] = true
				g.txIDs = append(g.txIDs, tx)
			}
		}
		if !o.executed {
			continue
		}
		switch o.effect {
		case EffectIncrease:
			g.net = g.net.Add(o.sizeDelta)
			g.collateral = g.collateral.Add(o.collateral)
		case EffectDecrease:
			g.net = g.net.Sub(o.sizeDelta)
			g.collateral = g.collateral.Sub(o.collateral)
		}
		g.pnl = g.pnl.Add(o.pnl)
		g.fees = g.fees.Add(o.fees)
	}

	positions := make([]domain.ProtocolPosition, 0, len(groupKeys))
	for _, gk := range groupKeys {
		positions = append(positions, c.toPosition(gk, groups[gk]))
	}
	sort.SliceStable(positions, func(i, j int) bool {
		if !positions[i].OpenedAt.Equal(positions[j].OpenedAt) {
			return positions[i].OpenedAt.Before(positions[j].OpenedAt)
		}
		return positions[i].ID < positions[j].ID
	})
	return positions
}

func (c *GMXCollector) toPosition(id string, g *gmxGroup) domain.ProtocolPosition {
	market := c.tables.Market(g.market)
	dir := domain.DirectionShort
	if g.long {
		dir = domain.DirectionLong
	}
	opened := time.Unix(g.first, 0).UTC()

	p := domain.ProtocolPosition{
		ID:        id,
		Protocol:  domain.ProtocolGMXV2,
		Chain:     c.chain,
		Name:      PositionName(domain.ProtocolGMXV2, market.Name, dir, opened),
		Asset:     market.IndexToken,
		Direction: dir,
		Status:    domain.PositionStatusOpen,
		OpenedAt:  opened,
		TxIDs:     g.txIDs,
		Metrics: domain.PositionMetrics{
			RealizedPnLUSD: floatPtr(g.pnl),
			FeesUSD:        floatPtr(g.fees),
		},
	}

	if g.net.Abs().LessThan(decimal.NewFromFloat(gmxFlatThresholdUSD)) {
		closed := time.Unix(g.last, 0).UTC()
		p.Status = domain.PositionStatusClosed
		p.ClosedAt = &closed
		p.Metrics.SizeUSD = domain.Float(0)
		return p
	}
	p.Metrics.SizeUSD = floatPtr(g.net)
	p.Metrics.CollateralUSD = floatPtr(g.collateral)
	return p
}

func positionKey(market string, long bool) string {
	if long {
		return market + "-long"
	}
	return market + "-short"
}
