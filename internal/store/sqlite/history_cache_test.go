package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/walletrecon/internal/domain"
)

func newTestCache(t *testing.T) *HistoryCache {
	t.Helper()
	c, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func samplePage() domain.HistoryPage {
	return domain.HistoryPage{
		Transactions: []domain.Transaction{
			{ID: "0xAA", Chain: "arb", TimeAt: 300, ProjectID: "arb_gmx2", Call: &domain.InnerCall{Name: "multicall"},
				Sends: []domain.TokenTransfer{{TokenID: "usdc", Amount: 100}}},
			{ID: "0xbb", Chain: "eth", TimeAt: 100, CategoryID: "approve"},
			{ID: "0xcc", Chain: "arb", TimeAt: 200, Receives: []domain.TokenTransfer{{TokenID: "eth", Amount: 0.1}}},
		},
		Tokens: domain.TokenBook{
			"usdc": {Symbol: "USDC", Price: domain.Float(1)},
			"eth":  {Symbol: "ETH"},
		},
	}
}

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	require.NoError(t, c.Save(ctx, "0xWALLET", samplePage()))

	page, err := c.Load(ctx, "0xwallet", 0)
	require.NoError(t, err)
	require.Len(t, page.Transactions, 3)
	assert.Equal(t, []int64{300, 200, 100}, []int64{
		page.Transactions[0].TimeAt, page.Transactions[1].TimeAt, page.Transactions[2].TimeAt,
	})
	assert.Equal(t, "multicall", page.Transactions[0].CallName())
	assert.Equal(t, "0xAA", page.Transactions[0].ID)
	assert.Equal(t, 1.0, page.Tokens.Price("usdc"))
	assert.Equal(t, 0.0, page.Tokens.Price("eth"))

	recent, err := c.Load(ctx, "0xwallet", 200)
	require.NoError(t, err)
	assert.Len(t, recent.Transactions, 2)

	other, err := c.Load(ctx, "0xother", 0)
	require.NoError(t, err)
	assert.Empty(t, other.Transactions)
	assert.NotNil(t, other.Transactions)
}

func TestSaveUpserts(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	require.NoError(t, c.Save(ctx, "0xw", samplePage()))

	again := domain.HistoryPage{
		Transactions: []domain.Transaction{{ID: "0xaa", Chain: "arb", TimeAt: 300, CategoryID: "receive"}},
		Tokens:       domain.TokenBook{"eth": {Symbol: "ETH", Price: domain.Float(3000)}},
	}
	require.NoError(t, c.Save(ctx, "0xw", again))

	page, err := c.Load(ctx, "0xw", 0)
	require.NoError(t, err)
	require.Len(t, page.Transactions, 3, "hash case must not create a duplicate row")
	assert.Equal(t, "receive", page.Transactions[0].CategoryID)
	assert.Equal(t, 3000.0, page.Tokens.Price("eth"))
}

func TestNewestAtAndStats(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	newest, err := c.NewestAt(ctx, "0xw")
	require.NoError(t, err)
	assert.Zero(t, newest)

	require.NoError(t, c.Save(ctx, "0xw", samplePage()))
	newest, err = c.NewestAt(ctx, "0xw")
	require.NoError(t, err)
	assert.Equal(t, int64(300), newest)

	stats, err := c.Stats(ctx, "0xW")
	require.NoError(t, err)
	assert.Equal(t, domain.HistoryCacheStats{
		Wallet: "0xw", Transactions: 3, Tokens: 2, OldestAt: 100, NewestAt: 300,
	}, stats)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	require.NoError(t, c.Save(ctx, "0xw", samplePage()))
	require.NoError(t, c.Save(ctx, "0xkeep", samplePage()))

	require.NoError(t, c.Clear(ctx, "0xw"))

	stats, err := c.Stats(ctx, "0xw")
	require.NoError(t, err)
	assert.Zero(t, stats.Transactions)
	assert.Zero(t, stats.Tokens)

	kept, err := c.Stats(ctx, "0xkeep")
	require.NoError(t, err)
	assert.Equal(t, 3, kept.Transactions)
}
