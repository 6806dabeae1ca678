package grouping

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/alanyoungcy/walletrecon/internal/domain"
)

// CloseBalance is the running base-asset balance at or below which a
// withdrawal closes a yield lifecycle.
const CloseBalance = 0.01

// baseAssetIDs are stablecoin and wrapped-native contracts that are never
// vault shares.
var baseAssetIDs = map[string]bool{
	"0xaf88d065e77c8cc2239327c5edb3a432268e5831": true, // USDC arbitrum
	"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48": true, // USDC ethereum
	"0x833589fcd6edb6e08f4c7c32d4f71b54bda02913": true, // USDC base
	"0xfd086bc7cd5c481dcc9c85ebe478a1c0b69fcbb9": true, // USDT arbitrum
	"0xdac17f958d2ee523a2206206994597c13d831ec7": true, // USDT ethereum
	"0x6b175474e89094c44da98b954eedeac495271d0f": true, // DAI ethereum
	"0x82af49447d8a07e3bd95bd0d56f35241523fbab1": true, // WETH arbitrum
	"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2": true, // WETH ethereum
	"0xa3931d71877c0e7a3148cb7eb4463524fec27fbd": true, // sUSDS
}

var baseAssetSymbols = map[string]bool{
	"USDC": true, "USDT": true, "DAI": true, "USDS": true, "SUSD": true,
	"FRAX": true, "LUSD": true, "WETH": true, "WBTC": true, "ETH": true,
}

// yieldAction is the effect of one transaction on a yield position.
type yieldAction int

const (
	yieldUnknown yieldAction = iota
	yieldDeposit
	yieldWithdraw
)

func isBaseAsset(tokenID string, tokens domain.TokenBook) bool {
	if baseAssetIDs[strings.ToLower(tokenID)] {
		return true
	}
	return baseAssetSymbols[strings.ToUpper(tokens[tokenID].Symbol)]
}

// classifyYield compares the first base asset sent with the first base
// asset received. Sending more is a deposit of the difference.
func classifyYield(tx domain.Transaction, tokens domain.TokenBook) (yieldAction, float64, string) {
	sent, sentOK := firstBase(tx.Sends, tokens)
	recv, recvOK := firstBase(tx.Receives, tokens)
	switch {
	case sentOK && !recvOK:
		return yieldDeposit, sent.Amount, baseSymbol(sent, tokens)
	case recvOK && !sentOK:
		return yieldWithdraw, recv.Amount, baseSymbol(recv, tokens)
	case sentOK && recvOK:
		if sent.Amount > recv.Amount {
			return yieldDeposit, sent.Amount - recv.Amount, baseSymbol(sent, tokens)
		}
		return yieldWithdraw, recv.Amount - sent.Amount, baseSymbol(recv, tokens)
	}
	return yieldUnknown, 0, ""
}

func firstBase(ts []domain.TokenTransfer, tokens domain.TokenBook) (domain.TokenTransfer, bool) {
	for _, t := range ts {
		if isBaseAsset(t.TokenID, tokens) {
			return t, true
		}
	}
	return domain.TokenTransfer{}, false
}

func baseSymbol(t domain.TokenTransfer, tokens domain.TokenBook) string {
	if s := tokens[t.TokenID].Symbol; s != "" {
		return strings.ToUpper(s)
	}
	return "?"
}

// SplitLifecycles breaks a yield group into deposit-to-exit lifecycles by
// tracking the base asset balance in time order. A withdrawal that brings
// the balance to CloseBalance or below closes the lifecycle, and the next
// deposit opens a new one. Non-yield groups are returned unchanged.
func SplitLifecycles(g Group, tokens domain.TokenBook) []Group {
	if g.Type != TypeYield || len(g.Transactions) == 0 {
		return []Group{g}
	}

	txs := slices.Clone(g.Transactions)
	slices.SortStableFunc(txs, func(a, b domain.Transaction) int { return cmp.Compare(a.TimeAt, b.TimeAt) })

	var (
		out     []Group
		current []domain.Transaction
		balance float64
		asset   string
	)
	emit := func(status domain.PositionStatus, closedAt int64) {
		out = append(out, lifecycle(g, len(out), current, status, asset, closedAt, tokens))
		current, balance = nil, 0
	}
	for _, tx := range txs {
		action, amount, sym := classifyYield(tx, tokens)
		if asset == "" && sym != "" {
			asset = sym
		}
		current = append(current, tx)
		switch action {
		case yieldDeposit:
			balance += amount
		case yieldWithdraw:
			balance -= amount
			if balance <= CloseBalance {
				emit(domain.PositionStatusClosed, tx.TimeAt)
			}
		}
	}
	if len(current) > 0 {
		emit(domain.PositionStatusOpen, 0)
	}
	return out
}

func lifecycle(parent Group, i int, txs []domain.Transaction, status domain.PositionStatus, asset string, closedAt int64, tokens domain.TokenBook) Group {
	g := Group{
		Key:      fmt.Sprintf("%s|lifecycle:%d", parent.Key, i),
		Chain:    parent.Chain,
		Protocol: parent.Protocol,
		Type:     parent.Type,
		Tokens:   parent.Tokens,
		Status:   status,
		Asset:    asset,
		OpenedAt: txs[0].TimeAt,
		ClosedAt: closedAt,
	}
	for _, tx := range txs {
		g.add(tx, tokens)
	}
	name := fmt.Sprintf("%s %s (%s)", label(g.Protocol), asset, time.Unix(g.OpenedAt, 0).UTC().Format("01/02/06"))
	if status == domain.PositionStatusClosed {
		name += " [Closed]"
	}
	g.Name = strings.Join(strings.Fields(name), " ")
	g.finish()
	return g
}
