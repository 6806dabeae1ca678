package registry

import (
	"strings"

	"github.com/alanyoungcy/walletrecon/internal/domain"
)

// Match resolves a transaction hash to its position, case-insensitively.
func (r *Registry) Match(txID string) (domain.ProtocolPosition, bool) {
	if r == nil {
		return domain.ProtocolPosition{}, false
	}
	posID, ok := r.index[strings.ToLower(txID)]
	if !ok {
		return domain.ProtocolPosition{}, false
	}
	return r.Position(posID)
}

// MatchTransaction is Match for an optional registry.
func MatchTransaction(txID string, reg *Registry) (domain.ProtocolPosition, bool) {
	return reg.Match(txID)
}

// MatchedTransaction pairs a transaction with the position that owns it.
type MatchedTransaction struct {
	Transaction domain.Transaction      `json:"transaction"`
	Position    domain.ProtocolPosition `json:"position"`
}

// Categorized splits a history into position-linked and loose
// transactions. Both lists keep input order.
type Categorized struct {
	Matched   []MatchedTransaction `json:"matched"`
	Unmatched []domain.Transaction `json:"unmatched"`
}

// Categorize partitions txs against reg in one pass. A nil registry leaves
// every transaction unmatched.
func Categorize(txs []domain.Transaction, reg *Registry) Categorized {
	out := Categorized{
		Matched:   []MatchedTransaction{},
		Unmatched: []domain.Transaction{},
	}
	for _, tx := range txs {
		if pos, ok := reg.Match(tx.ID); ok {
			out.Matched = append(out.Matched, MatchedTransaction{Transaction: tx, Position: pos})
			continue
		}
		out.Unmatched = append(out.Unmatched, tx)
	}
	return out
}

// ByPosition groups matched transactions by position id.
func (c Categorized) ByPosition() map[string][]domain.Transaction {
	out := make(map[string][]domain.Transaction)
	for _, m := range c.Matched {
		out[m.Position.ID] = append(out[m.Position.ID], m.Transaction)
	}
	return out
}
