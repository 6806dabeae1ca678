package bundle

import (
	"sort"
	"strings"

	"github.com/alanyoungcy/walletrecon/internal/domain"
)

// Engine runs the bundling passes. It holds no per-call state and is safe
// for concurrent use.
type Engine struct {
	cfg        Config
	batch      map[string]bool
	settlement map[string]bool
	gas        map[string]bool
}

// NewEngine creates an Engine from cfg.
func NewEngine(cfg Config) *Engine {
	cfg.OrderProtocol = strings.ToLower(cfg.OrderProtocol)
	cfg.ExecutePrefix = strings.ToLower(cfg.ExecutePrefix)
	keywords := make([]string, 0, len(cfg.AggregatorKeywords))
	for _, kw := range cfg.AggregatorKeywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	cfg.AggregatorKeywords = keywords

	return &Engine{
		cfg:        cfg,
		batch:      lowerSet(cfg.BatchCalls),
		settlement: upperSet(cfg.SettlementSymbols),
		gas:        upperSet(cfg.GasSymbols),
	}
}

// Bundle partitions txs into bundles: every input transaction ends up in
// exactly one bundle, either as primary or as related. The input slice is
// not modified. Output is ordered newest first by primary timestamp.
func (e *Engine) Bundle(txs []domain.Transaction, tokens domain.TokenBook) []domain.TransactionBundle {
	if len(txs) == 0 {
		return []domain.TransactionBundle{}
	}

	claimed := make([]bool, len(txs))
	out := make([]domain.TransactionBundle, 0, len(txs))
	out = append(out, e.pairOrders(txs, claimed, tokens)...)
	out = append(out, e.pairApprovals(txs, claimed, tokens)...)
	out = append(out, e.gasRefunds(txs, claimed, tokens)...)
	out = append(out, e.singles(txs, claimed, tokens)...)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Primary.TimeAt > out[j].Primary.TimeAt
	})
	return out
}

// pairOrders matches each protocol batch with the closest unclaimed
// execution of the same protocol inside the pairing window.
func (e *Engine) pairOrders(txs []domain.Transaction, claimed []bool, tokens domain.TokenBook) []domain.TransactionBundle {
	idx := ascending(txs, func(i int) bool {
		return !claimed[i] && e.isOrderProtocol(txs[i])
	})

	var out []domain.TransactionBundle
	for _, b := range idx {
		if claimed[b] || !e.isBatch(txs[b]) {
			continue
		}
		best, bestGap := -1, int64(0)
		for _, x := range idx {
			if x == b || claimed[x] || !e.isExecute(txs[x]) {
				continue
			}
			gap := abs(txs[x].TimeAt - txs[b].TimeAt)
			if gap > e.cfg.OrderPairWindowSec {
				continue
			}
			if best < 0 || gap < bestGap {
				best, bestGap = x, gap
			}
		}
		if best < 0 {
			continue
		}
		claimed[b], claimed[best] = true, true

		action := "Open/Modify Position"
		if e.closesPosition(txs[best], tokens) {
			action = "Close Position"
		}
		out = append(out, e.newBundle(domain.BundleProtocolOrder, txs[b], []domain.Transaction{txs[best]},
			e.cfg.OrderLabel+" "+action, tokens))
	}
	return out
}

// pairApprovals attaches each approval to the first compatible action that
// follows it within the approval window. The action becomes primary.
func (e *Engine) pairApprovals(txs []domain.Transaction, claimed []bool, tokens domain.TokenBook) []domain.TransactionBundle {
	idx := ascending(txs, func(i int) bool { return !claimed[i] })

	var out []domain.TransactionBundle
	for pos, a := range idx {
		if claimed[a] || !e.isApproval(txs[a]) {
			continue
		}
		approval := txs[a]
		for _, x := range idx[pos+1:] {
			dt := txs[x].TimeAt - approval.TimeAt
			if dt > e.cfg.ApprovalWindowSec {
				break
			}
			if dt <= 0 || claimed[x] || e.isApproval(txs[x]) {
				continue
			}
			if txs[x].Chain != approval.Chain || !e.approvalCompatible(approval, txs[x]) {
				continue
			}
			claimed[a], claimed[x] = true, true
			out = append(out, e.newBundle(domain.BundleApproveAction, txs[x], []domain.Transaction{approval},
				ActionName(txs[x]), tokens))
			break
		}
	}
	return out
}

// gasRefunds turns dust receipts of the gas asset into their own bundles.
func (e *Engine) gasRefunds(txs []domain.Transaction, claimed []bool, tokens domain.TokenBook) []domain.TransactionBundle {
	var out []domain.TransactionBundle
	for i, tx := range txs {
		if claimed[i] || !e.isGasRefund(tx, tokens) {
			continue
		}
		claimed[i] = true
		out = append(out, e.newBundle(domain.BundleGasRefund, tx, nil, "Gas Refund", tokens))
	}
	return out
}

func (e *Engine) singles(txs []domain.Transaction, claimed []bool, tokens domain.TokenBook) []domain.TransactionBundle {
	var out []domain.TransactionBundle
	for i, tx := range txs {
		if claimed[i] {
			continue
		}
		claimed[i] = true
		out = append(out, e.newBundle(domain.BundleSingle, tx, nil, ActionName(tx), tokens))
	}
	return out
}

func (e *Engine) newBundle(kind domain.BundleKind, primary domain.Transaction, related []domain.Transaction, name string, tokens domain.TokenBook) domain.TransactionBundle {
	if related == nil {
		related = []domain.Transaction{}
	}
	b := domain.TransactionBundle{
		ID:      primary.ID,
		Kind:    kind,
		Primary: primary,
		Related: related,
		Name:    name,
	}
	b.NetValueUSD = NetValue(b.Transactions(), tokens)
	b.Flow = Flow(b.NetValueUSD, e.cfg.OverheadThresholdUSD)
	return b
}

func (e *Engine) isOrderProtocol(tx domain.Transaction) bool {
	return e.cfg.OrderProtocol != "" && strings.Contains(strings.ToLower(tx.ProjectID), e.cfg.OrderProtocol)
}

func (e *Engine) isBatch(tx domain.Transaction) bool {
	return e.batch[strings.ToLower(tx.CallName())]
}

func (e *Engine) isExecute(tx domain.Transaction) bool {
	name := strings.ToLower(tx.CallName())
	return e.cfg.ExecutePrefix != "" && strings.HasPrefix(name, e.cfg.ExecutePrefix)
}

func (e *Engine) isApproval(tx domain.Transaction) bool {
	return strings.EqualFold(tx.CategoryID, e.cfg.ApprovalCategory) ||
		strings.EqualFold(tx.CallName(), e.cfg.ApprovalCategory)
}

func (e *Engine) approvalCompatible(approval, action domain.Transaction) bool {
	if approval.ProjectID != "" && strings.EqualFold(approval.ProjectID, action.ProjectID) {
		return true
	}
	project := strings.ToLower(action.ProjectID)
	if project == "" {
		return false
	}
	for _, kw := range e.cfg.AggregatorKeywords {
		if strings.Contains(project, kw) {
			return true
		}
	}
	return false
}

// closesPosition reports whether a single settlement receive is larger
// than the close threshold. Receives are not summed.
func (e *Engine) closesPosition(tx domain.Transaction, tokens domain.TokenBook) bool {
	for _, r := range tx.Receives {
		if e.settlement[tokens.Symbol(r.TokenID)] && r.Amount > e.cfg.CloseSettlementAmount {
			return true
		}
	}
	return false
}

func (e *Engine) isGasRefund(tx domain.Transaction, tokens domain.TokenBook) bool {
	if len(tx.Sends) > 0 || len(tx.Receives) == 0 {
		return false
	}
	for _, r := range tx.Receives {
		if !e.gas[tokens.Symbol(r.TokenID)] || r.Amount >= e.cfg.GasRefundMaxAmount {
			return false
		}
	}
	return true
}

// ascending returns the indices of txs accepted by keep, ordered by time.
// Equal timestamps keep input order.
func ascending(txs []domain.Transaction, keep func(i int) bool) []int {
	idx := make([]int, 0, len(txs))
	for i := range txs {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return txs[idx[a]].TimeAt < txs[idx[b]].TimeAt
	})
	return idx
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func lowerSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, s := range items {
		m[strings.ToLower(s)] = true
	}
	return m
}

func upperSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, s := range items {
		m[strings.ToUpper(s)] = true
	}
	return m
}
