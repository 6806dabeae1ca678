package bundle

import (
	"testing"

	"github.com/alanyoungcy/walletrecon/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestHumanize(t *testing.T) {
	tests := map[string]string{
		"executeOrder":             "Execute Order",
		"swapExactTokensForTokens": "Swap Exact Tokens For Tokens",
		"add_liquidity":            "Add Liquidity",
		"multicall":                "Multicall",
		"":                         "",
		"  ":                       "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Humanize(in), "input %q", in)
	}
}

func TestProtocolLabel(t *testing.T) {
	assert.Equal(t, "GMX", ProtocolLabel("arb_gmx"))
	assert.Equal(t, "GMX", ProtocolLabel("gmx"))
	assert.Equal(t, "Uniswap V3", ProtocolLabel("uniswap_v3"))
	assert.Equal(t, "Aave V3", ProtocolLabel("op_aave3"))
	assert.Equal(t, "Pendle", ProtocolLabel("pendle"))
	assert.Equal(t, "Foo Bar", ProtocolLabel("foo_bar"))
	assert.Equal(t, "", ProtocolLabel(""))
}

func TestFlow(t *testing.T) {
	assert.Equal(t, domain.FlowOverhead, Flow(0.99, OverheadThresholdUSD))
	assert.Equal(t, domain.FlowOverhead, Flow(-0.5, OverheadThresholdUSD))
	assert.Equal(t, domain.FlowDecrease, Flow(1, OverheadThresholdUSD))
	assert.Equal(t, domain.FlowIncrease, Flow(-1, OverheadThresholdUSD))
}

func TestNetValue_MissingPriceContributesZero(t *testing.T) {
	txs := []domain.Transaction{{
		Receives: []domain.TokenTransfer{{TokenID: "usdc", Amount: 10}, {TokenID: "junk", Amount: 1e9}},
		Sends:    []domain.TokenTransfer{{TokenID: "unknown", Amount: 5}},
	}}
	assert.InDelta(t, 10.0, NetValue(txs, testTokens), 1e-9)
	assert.Zero(t, NetValue(nil, nil))
}

func TestSummarize_CountsKindsAndTransactions(t *testing.T) {
	bundles := []domain.TransactionBundle{
		{Kind: domain.BundleProtocolOrder, Related: []domain.Transaction{{ID: "b"}}, NetValueUSD: 5},
		{Kind: domain.BundleSingle, NetValueUSD: -2},
		{Kind: domain.BundleSingle},
	}
	s := Summarize(bundles)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 4, s.Transactions)
	assert.Equal(t, 1, s.ByKind[domain.BundleProtocolOrder])
	assert.Equal(t, 2, s.ByKind[domain.BundleSingle])
	assert.Equal(t, 0, s.ByKind[domain.BundleGasRefund])
	assert.InDelta(t, 3.0, s.NetValueUSD, 1e-9)
}
