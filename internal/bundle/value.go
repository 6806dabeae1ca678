package bundle

import (
	"math"

	"github.com/alanyoungcy/walletrecon/internal/domain"
)

// NetValue is the USD value received minus the USD value sent across txs.
// Tokens without a known price contribute zero.
func NetValue(txs []domain.Transaction, tokens domain.TokenBook) float64 {
	var net float64
	for _, tx := range txs {
		for _, r := range tx.Receives {
			net += r.Amount * tokens.Price(r.TokenID)
		}
		for _, s := range tx.Sends {
			net -= s.Amount * tokens.Price(s.TokenID)
		}
	}
	return net
}

// Flow classifies a net value. Money flowing back to the wallet means the
// position decreased.
func Flow(net, overheadThreshold float64) domain.FlowDirection {
	switch {
	case math.Abs(net) < overheadThreshold:
		return domain.FlowOverhead
	case net > 0:
		return domain.FlowDecrease
	default:
		return domain.FlowIncrease
	}
}
