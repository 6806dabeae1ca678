package domain

import "strings"

// TokenTransfer is a single token movement inside a transaction. FromAddr
// is set on receives and ToAddr on sends when the history API reports the
// counterparty.
type TokenTransfer struct {
	TokenID  string  `json:"token_id"`
	Amount   float64 `json:"amount"`
	FromAddr string  `json:"from_addr,omitempty"`
	ToAddr   string  `json:"to_addr,omitempty"`
}

// InnerCall describes the decoded contract call of a transaction.
type InnerCall struct {
	Name string `json:"name"`
}

// Transaction is one wallet history entry as returned by the history API.
// ID is only unique per chain; use Key for deduplication.
type Transaction struct {
	ID         string          `json:"id"`
	Chain      string          `json:"chain"`
	ProjectID  string          `json:"project_id,omitempty"`
	TimeAt     int64           `json:"time_at"`
	Receives   []TokenTransfer `json:"receives"`
	Sends      []TokenTransfer `json:"sends"`
	Call       *InnerCall      `json:"tx,omitempty"`
	CategoryID string          `json:"cate_id,omitempty"`
}

// TxKey identifies a transaction across chains.
type TxKey struct {
	Chain string `json:"chain"`
	ID    string `json:"id"`
}

// NewTxKey normalises the hash to lower case.
func NewTxKey(chain, id string) TxKey {
	return TxKey{Chain: chain, ID: strings.ToLower(id)}
}

func (k TxKey) String() string { return k.Chain + ":" + k.ID }

// Key returns the (chain, lower-cased id) pair for t.
func (t Transaction) Key() TxKey { return NewTxKey(t.Chain, t.ID) }

// CallName returns the decoded call name or "" when the call is unknown.
func (t Transaction) CallName() string {
	if t.Call == nil {
		return ""
	}
	return t.Call.Name
}

// TokenMeta carries display and pricing data for a token. Price is nil
// when the history API has no quote for it.
type TokenMeta struct {
	Symbol string   `json:"symbol"`
	Price  *float64 `json:"price,omitempty"`
}

// TokenBook maps token id to metadata.
type TokenBook map[string]TokenMeta

// Price returns the USD price of tokenID, or 0 when unknown.
func (b TokenBook) Price(tokenID string) float64 {
	meta, ok := b[tokenID]
	if !ok || meta.Price == nil {
		return 0
	}
	return *meta.Price
}

// Symbol returns the upper-cased symbol of tokenID, falling back to the id
// itself for tokens missing from the book.
func (b TokenBook) Symbol(tokenID string) string {
	if meta, ok := b[tokenID]; ok && meta.Symbol != "" {
		return strings.ToUpper(meta.Symbol)
	}
	return strings.ToUpper(tokenID)
}

// Merge copies every entry of other into b, overwriting existing ids.
func (b TokenBook) Merge(other TokenBook) {
	for id, meta := range other {
		b[id] = meta
	}
}

// HistoryPage is one page of wallet history plus the tokens it references.
type HistoryPage struct {
	Transactions []Transaction `json:"history_list"`
	Tokens       TokenBook     `json:"token_dict"`
}

// HistorySummary aggregates a transaction list by chain and category.
type HistorySummary struct {
	Total      int            `json:"total"`
	ByChain    map[string]int `json:"by_chain"`
	ByCategory map[string]int `json:"by_category"`
	FirstAt    int64          `json:"first_at,omitempty"`
	LastAt     int64          `json:"last_at,omitempty"`
}

// Summarize builds a HistorySummary. Transactions without a category are
// counted under "other".
func Summarize(txs []Transaction) HistorySummary {
	s := HistorySummary{
		Total:      len(txs),
		ByChain:    make(map[string]int),
		ByCategory: make(map[string]int),
	}
	for i, tx := range txs {
		s.ByChain[tx.Chain]++
		cat := tx.CategoryID
		if cat == "" {
			cat = "other"
		}
		s.ByCategory[cat]++
		if i == 0 || tx.TimeAt < s.FirstAt {
			s.FirstAt = tx.TimeAt
		}
		if tx.TimeAt > s.LastAt {
			s.LastAt = tx.TimeAt
		}
	}
	return s
}
