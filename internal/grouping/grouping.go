// Package grouping infers positions from raw history for transactions that
// no protocol collector claimed. LP activity is keyed by the position NFT
// minted for it, or by pool address when no mint is visible. Everything
// else is keyed by protocol and token set.
package grouping

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/alanyoungcy/walletrecon/internal/bundle"
	"github.com/alanyoungcy/walletrecon/internal/domain"
)

// PositionType is the inferred kind of a group.
type PositionType string

const (
	TypeLP        PositionType = "lp"
	TypePerpetual PositionType = "perpetual"
	TypeYield     PositionType = "yield"
	TypeOther     PositionType = "other"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

var (
	lpProtocols      = []string{"uniswap", "pancake", "sushi", "aero", "velo"}
	lpLikeProtocols  = []string{"uniswap", "pancake", "sushi", "curve", "balancer", "aero", "velo"}
	perpProtocols    = []string{"gmx", "gains", "kwenta", "perp"}
	yieldCalls       = []string{"deposit", "withdraw", "supply", "borrow", "repay"}
	lendingProtocols = []string{"aave", "compound", "euler", "silo", "morpho"}
)

// Group is one inferred position.
type Group struct {
	Key            string                `json:"key"`
	Name           string                `json:"name"`
	Chain          string                `json:"chain"`
	Protocol       string                `json:"protocol"`
	Type           PositionType          `json:"type"`
	Tokens         []string              `json:"tokens"`
	NFTID          string                `json:"nft_id,omitempty"`
	Pool           string                `json:"pool,omitempty"`
	Status         domain.PositionStatus `json:"status,omitempty"`
	Asset          string                `json:"asset,omitempty"`
	OpenedAt       int64                 `json:"opened_at,omitempty"`
	ClosedAt       int64                 `json:"closed_at,omitempty"`
	Transactions   []domain.Transaction  `json:"transactions"`
	TotalInUSD     float64               `json:"total_in_usd"`
	TotalOutUSD    float64               `json:"total_out_usd"`
	NetValueUSD    float64               `json:"net_value_usd"`
	Flow           domain.FlowDirection  `json:"flow"`
	LatestActivity int64                 `json:"latest_activity"`
}

// Infer groups txs and splits yield groups into lifecycles. Groups come
// back most recently active first; transactions inside a group newest first.
func Infer(txs []domain.Transaction, tokens domain.TokenBook) []Group {
	var out []Group
	for _, g := range GroupTransactions(txs, tokens) {
		out = append(out, SplitLifecycles(g, tokens)...)
	}
	sortGroups(out)
	return out
}

// mint is an LP position opened by a transaction that received its NFT.
type mint struct {
	nftID    string
	tokens   []string
	chain    string
	protocol string
}

// GroupTransactions assigns every transaction to exactly one group.
//
// LP transactions run in two passes. The first collects every mint (a
// receive of a position NFT) under each pool address it touched. The second
// puts a mint in its own NFT group and attaches any later LP transaction to
// a mint on the same pool, chain and protocol, preferring the mint sharing
// the most tokens. LP transactions with no matching mint group by pool.
func GroupTransactions(txs []domain.Transaction, tokens domain.TokenBook) []Group {
	mints := make(map[string][]mint)
	for _, tx := range txs {
		if !isLPProtocol(tx.ProjectID) {
			continue
		}
		id := nftID(tx)
		if id == "" {
			continue
		}
		m := mint{nftID: id, tokens: tokenSymbols(tx, tokens), chain: tx.Chain, protocol: tx.ProjectID}
		for _, pool := range poolAddresses(tx) {
			mints[pool] = append(mints[pool], m)
		}
	}

	byKey := make(map[string]*Group)
	var order []string
	for _, tx := range txs {
		project := tx.ProjectID
		if project == "" {
			project = "unknown"
		}
		typ := Classify(tx)
		syms := tokenSymbols(tx, tokens)
		tokenKey := joinTokens(syms)

		key := fmt.Sprintf("%s|%s|%s|%s", tx.Chain, project, typ, tokenKey)
		groupTokens := syms
		var nft, pool string
		if typ == TypeLP && isLPProtocol(project) {
			pools := poolAddresses(tx)
			if id := nftID(tx); id != "" {
				nft = id
			} else if m, ok := matchMint(mints, pools, tx.Chain, project, syms); ok {
				nft = m.nftID
				if len(m.tokens) > 0 {
					groupTokens = m.tokens
				}
			}
			if nft != "" {
				key = fmt.Sprintf("%s|%s|lp|nft:%s", tx.Chain, project, nft)
			} else {
				pool = "unknown"
				if len(pools) > 0 {
					pool = pools[0]
				}
				key = fmt.Sprintf("%s|%s|lp|pool:%s", tx.Chain, project, pool)
			}
		}

		g, ok := byKey[key]
		if !ok {
			g = &Group{
				Key:      key,
				Chain:    tx.Chain,
				Protocol: project,
				Type:     typ,
				Tokens:   groupTokens,
				NFTID:    nft,
				Pool:     pool,
			}
			byKey[key] = g
			order = append(order, key)
		}
		if len(g.Tokens) == 0 && len(syms) > 0 {
			g.Tokens = syms
		}
		g.add(tx, tokens)
	}

	out := make([]Group, 0, len(order))
	for _, key := range order {
		g := byKey[key]
		g.finish()
		out = append(out, *g)
	}
	sortGroups(out)
	return out
}

// Classify infers the position type of a single transaction from its
// protocol tag and call name.
func Classify(tx domain.Transaction) PositionType {
	call := strings.ToLower(tx.CallName())
	project := strings.ToLower(tx.ProjectID)
	switch {
	case containsAny(project, perpProtocols):
		return TypePerpetual
	case containsAny(project, lpLikeProtocols):
		return TypeLP
	case containsAny(call, yieldCalls), containsAny(project, lendingProtocols):
		return TypeYield
	}
	return TypeOther
}

func matchMint(mints map[string][]mint, pools []string, chain, project string, syms []string) (mint, bool) {
	for _, pool := range pools {
		var candidates []mint
		for _, m := range mints[pool] {
			if m.chain == chain && m.protocol == project {
				candidates = append(candidates, m)
			}
		}
		if len(candidates) == 0 {
			continue
		}
		best, bestOverlap := candidates[0], 0
		for _, c := range candidates {
			if n := overlap(syms, c.tokens); n > bestOverlap {
				best, bestOverlap = c, n
			}
		}
		return best, true
	}
	return mint{}, false
}

func (g *Group) add(tx domain.Transaction, tokens domain.TokenBook) {
	in, out := flows(tx, tokens)
	g.TotalInUSD += in
	g.TotalOutUSD += out
	g.Transactions = append(g.Transactions, tx)
	if tx.TimeAt > g.LatestActivity {
		g.LatestActivity = tx.TimeAt
	}
}

func (g *Group) finish() {
	slices.SortStableFunc(g.Transactions, func(a, b domain.Transaction) int {
		return cmp.Compare(b.TimeAt, a.TimeAt)
	})
	g.NetValueUSD = g.TotalInUSD - g.TotalOutUSD
	g.Flow = bundle.Flow(g.NetValueUSD, bundle.OverheadThresholdUSD)
	if g.Name == "" {
		g.Name = label(g.Protocol) + " " + joinTokens(g.Tokens)
	}
}

func sortGroups(gs []Group) {
	slices.SortStableFunc(gs, func(a, b Group) int {
		return cmp.Compare(b.LatestActivity, a.LatestActivity)
	})
}

// flows returns the USD value received and sent by tx. Position NFTs carry
// no value.
func flows(tx domain.Transaction, tokens domain.TokenBook) (in, out float64) {
	for _, r := range tx.Receives {
		if isNFT(r) {
			continue
		}
		in += r.Amount * tokens.Price(r.TokenID)
	}
	for _, s := range tx.Sends {
		out += s.Amount * tokens.Price(s.TokenID)
	}
	return in, out
}

// isNFT matches an LP position token: exactly one unit of a hash-like id
// that is not a contract address.
func isNFT(t domain.TokenTransfer) bool {
	return t.Amount == 1 && len(t.TokenID) >= 20 && !strings.HasPrefix(t.TokenID, "0x")
}

func nftID(tx domain.Transaction) string {
	for _, r := range tx.Receives {
		if isNFT(r) {
			return r.TokenID
		}
	}
	return ""
}

// poolAddresses lists the counterparties of tx in first-seen order: the
// recipients of its sends and the senders of its non-NFT receives.
func poolAddresses(tx domain.Transaction) []string {
	var out []string
	addAddr := func(a string) {
		a = strings.ToLower(a)
		if a == "" || a == zeroAddress || slices.Contains(out, a) {
			return
		}
		out = append(out, a)
	}
	for _, s := range tx.Sends {
		addAddr(s.ToAddr)
	}
	for _, r := range tx.Receives {
		if !isNFT(r) {
			addAddr(r.FromAddr)
		}
	}
	return out
}

// tokenSymbols returns the sorted, upper-cased symbols tx moves, NFTs
// excluded. Tokens missing a symbol show the first ten characters of their id.
func tokenSymbols(tx domain.Transaction, tokens domain.TokenBook) []string {
	var out []string
	add := func(t domain.TokenTransfer) {
		if isNFT(t) || t.TokenID == "" {
			return
		}
		sym := strings.ToUpper(tokens[t.TokenID].Symbol)
		if sym == "" {
			sym = strings.ToUpper(t.TokenID[:min(10, len(t.TokenID))])
		}
		if !slices.Contains(out, sym) {
			out = append(out, sym)
		}
	}
	for _, s := range tx.Sends {
		add(s)
	}
	for _, r := range tx.Receives {
		add(r)
	}
	slices.Sort(out)
	return out
}

func isLPProtocol(project string) bool {
	return containsAny(strings.ToLower(project), lpProtocols)
}

func containsAny(s string, subs []string) bool {
	if s == "" {
		return false
	}
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func overlap(a, b []string) int {
	n := 0
	for _, x := range a {
		if slices.Contains(b, x) {
			n++
		}
	}
	return n
}

func joinTokens(syms []string) string {
	if len(syms) == 0 {
		return "Unknown"
	}
	return strings.Join(syms, "/")
}

func label(project string) string {
	if l := bundle.ProtocolLabel(project); l != "" {
		return l
	}
	return project
}
