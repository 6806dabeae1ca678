package bundle

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/alanyoungcy/walletrecon/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTokens = domain.TokenBook{
	"usdc": {Symbol: "USDC", Price: domain.Float(1)},
	"eth":  {Symbol: "ETH", Price: domain.Float(3000)},
	"arb":  {Symbol: "ETH", Price: domain.Float(3000)},
	"junk": {Symbol: "JUNK"},
}

func call(name string) *domain.InnerCall { return &domain.InnerCall{Name: name} }

func newTestEngine() *Engine { return NewEngine(DefaultConfig()) }

func TestBundle_GMXClosePosition(t *testing.T) {
	txs := []domain.Transaction{
		{ID: "a", ProjectID: "gmx", TimeAt: 1000, Call: call("batch")},
		{ID: "b", ProjectID: "gmx", TimeAt: 1050, Call: call("executeOrder"),
			Receives: []domain.TokenTransfer{{TokenID: "usdc", Amount: 500}}},
	}

	got := newTestEngine().Bundle(txs, testTokens)

	require.Len(t, got, 1)
	assert.Equal(t, domain.BundleProtocolOrder, got[0].Kind)
	assert.Equal(t, "a", got[0].Primary.ID)
	assert.Equal(t, "a", got[0].ID)
	require.Len(t, got[0].Related, 1)
	assert.Equal(t, "b", got[0].Related[0].ID)
	assert.Equal(t, "GMX Close Position", got[0].Name)
	assert.InDelta(t, 500.0, got[0].NetValueUSD, 1e-9)
	assert.Equal(t, domain.FlowDecrease, got[0].Flow)
}

func TestBundle_GMXOpenWhenSettlementSmall(t *testing.T) {
	txs := []domain.Transaction{
		{ID: "a", ProjectID: "arb_gmx", TimeAt: 1000, Call: call("batch"),
			Sends: []domain.TokenTransfer{{TokenID: "usdc", Amount: 250}}},
		{ID: "b", ProjectID: "arb_gmx", TimeAt: 1010, Call: call("executeOrder"),
			Receives: []domain.TokenTransfer{{TokenID: "usdc", Amount: 100}}},
	}

	got := newTestEngine().Bundle(txs, testTokens)

	require.Len(t, got, 1)
	assert.Equal(t, "GMX Open/Modify Position", got[0].Name)
	assert.InDelta(t, -150.0, got[0].NetValueUSD, 1e-9)
	assert.Equal(t, domain.FlowIncrease, got[0].Flow)
}

func TestBundle_GMXCloseNeedsOneLargeReceive(t *testing.T) {
	txs := []domain.Transaction{
		{ID: "a", ProjectID: "gmx", TimeAt: 1000, Call: call("batch")},
		{ID: "b", ProjectID: "gmx", TimeAt: 1050, Call: call("executeOrder"),
			Receives: []domain.TokenTransfer{{TokenID: "usdc", Amount: 60}, {TokenID: "usdc", Amount: 60}}},
	}

	got := newTestEngine().Bundle(txs, testTokens)

	require.Len(t, got, 1)
	assert.Equal(t, "GMX Open/Modify Position", got[0].Name)
	assert.InDelta(t, 120.0, got[0].NetValueUSD, 1e-9)
}

func TestBundle_MulticallIsNotAnOrderBatch(t *testing.T) {
	txs := []domain.Transaction{
		{ID: "a", ProjectID: "gmx", TimeAt: 1000, Call: call("multicall")},
		{ID: "b", ProjectID: "gmx", TimeAt: 1050, Call: call("executeOrder")},
	}

	got := newTestEngine().Bundle(txs, testTokens)

	require.Len(t, got, 2)
	for _, b := range got {
		assert.Equal(t, domain.BundleSingle, b.Kind)
		assert.Empty(t, b.Related)
	}
}

func TestBundle_OrderPairingWindow(t *testing.T) {
	tests := []struct {
		name    string
		gap     int64
		bundles int
	}{
		{"120s apart pairs", 120, 1},
		{"121s apart does not pair", 121, 2},
		{"execute before batch pairs", -60, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txs := []domain.Transaction{
				{ID: "a", ProjectID: "gmx", TimeAt: 1000, Call: call("batch")},
				{ID: "b", ProjectID: "gmx", TimeAt: 1000 + tt.gap, Call: call("executeOrder")},
			}
			got := newTestEngine().Bundle(txs, testTokens)
			assert.Len(t, got, tt.bundles)
			if tt.bundles == 2 {
				for _, b := range got {
					assert.Equal(t, domain.BundleSingle, b.Kind)
				}
			}
		})
	}
}

func TestBundle_OrderPairingPicksClosestExecute(t *testing.T) {
	txs := []domain.Transaction{
		{ID: "far", ProjectID: "gmx", TimeAt: 900, Call: call("executeOrder")},
		{ID: "batch", ProjectID: "gmx", TimeAt: 1000, Call: call("batch")},
		{ID: "near", ProjectID: "gmx", TimeAt: 1010, Call: call("executeOrder")},
	}

	got := newTestEngine().Bundle(txs, testTokens)

	require.Len(t, got, 2)
	var order domain.TransactionBundle
	for _, b := range got {
		if b.Kind == domain.BundleProtocolOrder {
			order = b
		}
	}
	require.Len(t, order.Related, 1)
	assert.Equal(t, "near", order.Related[0].ID)
}

func TestBundle_OrderPairingIgnoresOtherProtocols(t *testing.T) {
	txs := []domain.Transaction{
		{ID: "a", ProjectID: "gmx", TimeAt: 1000, Call: call("batch")},
		{ID: "b", ProjectID: "gains", TimeAt: 1010, Call: call("executeOrder")},
	}
	got := newTestEngine().Bundle(txs, testTokens)
	assert.Len(t, got, 2)
}

func TestBundle_ApproveThenSwap(t *testing.T) {
	txs := []domain.Transaction{
		{ID: "approve", Chain: "arb", ProjectID: "aave", TimeAt: 0, CategoryID: "approve", Call: call("approve")},
		{ID: "swap", Chain: "arb", ProjectID: "uniswap_v3", TimeAt: 200, Call: call("swap"),
			Sends:    []domain.TokenTransfer{{TokenID: "usdc", Amount: 100}},
			Receives: []domain.TokenTransfer{{TokenID: "eth", Amount: 0.05}}},
	}

	got := newTestEngine().Bundle(txs, testTokens)

	require.Len(t, got, 1)
	assert.Equal(t, domain.BundleApproveAction, got[0].Kind)
	assert.Equal(t, "swap", got[0].Primary.ID)
	require.Len(t, got[0].Related, 1)
	assert.Equal(t, "approve", got[0].Related[0].ID)
	assert.Equal(t, "Uniswap V3 Swap", got[0].Name)
	assert.InDelta(t, 50.0, got[0].NetValueUSD, 1e-9)
}

func TestBundle_ApprovalRules(t *testing.T) {
	approve := domain.Transaction{ID: "approve", Chain: "arb", ProjectID: "arb_aave3", TimeAt: 1000, CategoryID: "approve"}
	tests := []struct {
		name   string
		action domain.Transaction
		paired bool
	}{
		{"same protocol", domain.Transaction{ID: "x", Chain: "arb", ProjectID: "arb_aave3", TimeAt: 1100, Call: call("deposit")}, true},
		{"aggregator", domain.Transaction{ID: "x", Chain: "arb", ProjectID: "arb_1inch2", TimeAt: 1100}, true},
		{"window edge", domain.Transaction{ID: "x", Chain: "arb", ProjectID: "arb_aave3", TimeAt: 1300}, true},
		{"outside window", domain.Transaction{ID: "x", Chain: "arb", ProjectID: "arb_aave3", TimeAt: 1301}, false},
		{"other chain", domain.Transaction{ID: "x", Chain: "eth", ProjectID: "arb_aave3", TimeAt: 1100}, false},
		{"unrelated protocol", domain.Transaction{ID: "x", Chain: "arb", ProjectID: "arb_compound3", TimeAt: 1100}, false},
		{"same timestamp", domain.Transaction{ID: "x", Chain: "arb", ProjectID: "arb_aave3", TimeAt: 1000}, false},
		{"before approval", domain.Transaction{ID: "x", Chain: "arb", ProjectID: "arb_aave3", TimeAt: 900}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newTestEngine().Bundle([]domain.Transaction{approve, tt.action}, testTokens)
			if tt.paired {
				require.Len(t, got, 1)
				assert.Equal(t, domain.BundleApproveAction, got[0].Kind)
				assert.Equal(t, "x", got[0].Primary.ID)
			} else {
				assert.Len(t, got, 2)
			}
		})
	}
}

func TestBundle_ApprovalTakesFirstCompatibleAction(t *testing.T) {
	txs := []domain.Transaction{
		{ID: "approve", Chain: "arb", ProjectID: "aave", TimeAt: 0, CategoryID: "approve"},
		{ID: "noise", Chain: "arb", ProjectID: "compound", TimeAt: 10},
		{ID: "first", Chain: "arb", ProjectID: "aave", TimeAt: 20},
		{ID: "second", Chain: "arb", ProjectID: "aave", TimeAt: 30},
	}
	got := newTestEngine().Bundle(txs, testTokens)
	require.Len(t, got, 3)
	for _, b := range got {
		if b.Kind == domain.BundleApproveAction {
			assert.Equal(t, "first", b.Primary.ID)
			return
		}
	}
	t.Fatal("no approve_action bundle")
}

func TestBundle_GasRefundBoundary(t *testing.T) {
	tests := []struct {
		name   string
		amount float64
		kind   domain.BundleKind
	}{
		{"exactly the bound", 0.0003, domain.BundleSingle},
		{"just below", 0.00029, domain.BundleGasRefund},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txs := []domain.Transaction{{ID: "r", Chain: "arb", TimeAt: 5,
				Receives: []domain.TokenTransfer{{TokenID: "arb", Amount: tt.amount}}}}
			got := newTestEngine().Bundle(txs, testTokens)
			require.Len(t, got, 1)
			assert.Equal(t, tt.kind, got[0].Kind)
		})
	}
}

func TestBundle_GasRefundRequirements(t *testing.T) {
	tests := []struct {
		name string
		tx   domain.Transaction
	}{
		{"has a send", domain.Transaction{ID: "r",
			Receives: []domain.TokenTransfer{{TokenID: "eth", Amount: 0.0001}},
			Sends:    []domain.TokenTransfer{{TokenID: "usdc", Amount: 1}}}},
		{"no receives", domain.Transaction{ID: "r"}},
		{"non gas token", domain.Transaction{ID: "r",
			Receives: []domain.TokenTransfer{{TokenID: "usdc", Amount: 0.0001}}}},
		{"one receive too large", domain.Transaction{ID: "r",
			Receives: []domain.TokenTransfer{{TokenID: "eth", Amount: 0.0001}, {TokenID: "eth", Amount: 0.01}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newTestEngine().Bundle([]domain.Transaction{tt.tx}, testTokens)
			require.Len(t, got, 1)
			assert.Equal(t, domain.BundleSingle, got[0].Kind)
		})
	}
}

func TestBundle_SingleNames(t *testing.T) {
	txs := []domain.Transaction{
		{ID: "1", TimeAt: 4, ProjectID: "arb_uniswap3", Call: call("multicall")},
		{ID: "2", TimeAt: 3, CategoryID: "send"},
		{ID: "3", TimeAt: 2},
		{ID: "4", TimeAt: 1, ProjectID: "base_aerodrome"},
	}
	got := newTestEngine().Bundle(txs, testTokens)
	require.Len(t, got, 4)
	assert.Equal(t, "Uniswap V3 Multicall", got[0].Name)
	assert.Equal(t, "Send", got[1].Name)
	assert.Equal(t, "Transaction", got[2].Name)
	assert.Equal(t, "Aerodrome", got[3].Name)
}

func TestBundle_NewestFirst(t *testing.T) {
	txs := []domain.Transaction{
		{ID: "old", TimeAt: 10},
		{ID: "new", TimeAt: 30},
		{ID: "mid", TimeAt: 20},
	}
	got := newTestEngine().Bundle(txs, testTokens)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestBundle_EmptyInput(t *testing.T) {
	got := newTestEngine().Bundle(nil, nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	stats := Summarize(got)
	assert.Zero(t, stats.Total)
	assert.Zero(t, stats.Transactions)
	for _, k := range domain.BundleKinds {
		assert.Zero(t, stats.ByKind[k])
	}
}

func TestBundle_DoesNotMutateInput(t *testing.T) {
	txs := []domain.Transaction{
		{ID: "b", TimeAt: 2},
		{ID: "a", TimeAt: 1},
	}
	newTestEngine().Bundle(txs, testTokens)
	assert.Equal(t, "b", txs[0].ID)
	assert.Equal(t, "a", txs[1].ID)
}

// randomHistory builds a mixed history that exercises every pass.
func randomHistory(r *rand.Rand, n int) []domain.Transaction {
	projects := []string{"gmx", "arb_gmx", "aave", "arb_uniswap3", "compound", ""}
	calls := []string{"batch", "executeOrder", "approve", "swap", "deposit", ""}
	tokens := []string{"usdc", "eth", "junk"}

	txs := make([]domain.Transaction, n)
	for i := range txs {
		tx := domain.Transaction{
			ID:        fmt.Sprintf("0x%04d", i),
			Chain:     []string{"arb", "eth"}[r.Intn(2)],
			ProjectID: projects[r.Intn(len(projects))],
			TimeAt:    int64(r.Intn(2000)),
		}
		if c := calls[r.Intn(len(calls))]; c != "" {
			tx.Call = call(c)
			if c == "approve" {
				tx.CategoryID = "approve"
			}
		}
		for j := r.Intn(3); j > 0; j-- {
			tx.Receives = append(tx.Receives, domain.TokenTransfer{TokenID: tokens[r.Intn(3)], Amount: r.Float64() * 0.001})
		}
		if r.Intn(2) == 0 {
			tx.Sends = append(tx.Sends, domain.TokenTransfer{TokenID: tokens[r.Intn(3)], Amount: r.Float64() * 200})
		}
		txs[i] = tx
	}
	return txs
}

func TestBundle_Partition(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for round := 0; round < 20; round++ {
		txs := randomHistory(r, 80)
		got := newTestEngine().Bundle(txs, testTokens)

		seen := make(map[string]int, len(txs))
		for _, b := range got {
			for _, tx := range b.Transactions() {
				seen[tx.ID]++
			}
		}
		require.Len(t, seen, len(txs))
		for id, n := range seen {
			assert.Equal(t, 1, n, "transaction %s appears %d times", id, n)
		}
		assert.Equal(t, len(txs), Summarize(got).Transactions)
	}
}

func TestBundle_Deterministic(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	txs := randomHistory(r, 120)
	e := newTestEngine()
	assert.Equal(t, e.Bundle(txs, testTokens), e.Bundle(txs, testTokens))
}

func TestBundle_PartitionWithDuplicateHashes(t *testing.T) {
	txs := []domain.Transaction{
		{ID: "0xdup", Chain: "arb", TimeAt: 1},
		{ID: "0xDUP", Chain: "arb", TimeAt: 1},
	}
	got := newTestEngine().Bundle(txs, testTokens)
	assert.Len(t, got, 2)
}
