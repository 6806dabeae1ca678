package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/walletrecon/internal/domain"
)

// testClient connects to WALLETRECON_TEST_POSTGRES_DSN and skips the test
// when it is unset.
func testClient(t *testing.T) *Client {
	t.Helper()
	dsn := os.Getenv("WALLETRECON_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("WALLETRECON_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	c, err := New(ctx, ClientConfig{DSN: dsn})
	require.NoError(t, err)
	require.NoError(t, c.RunMigrations(ctx))
	require.NoError(t, c.RunMigrations(ctx), "migrations must be re-runnable")
	t.Cleanup(c.Close)
	return c
}

func testWallet() string { return "0x" + uuid.NewString() }

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/recon?sslmode=disable",
		DSN(ClientConfig{Host: "db", Database: "recon", User: "u", Password: "p"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
}

func TestStrategyStore(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	store := NewStrategyStore(c.Pool())
	wallet := testWallet()
	now := time.Now().UTC().Truncate(time.Millisecond)

	st := domain.Strategy{
		ID: "s1", Wallet: wallet, Name: "Delta neutral", Status: domain.StrategyDraft,
		PositionIDs: []string{"p1", "p2"}, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.Put(ctx, st))

	got, err := store.Get(ctx, wallet, "s1")
	require.NoError(t, err)
	assert.Equal(t, st.PositionIDs, got.PositionIDs)
	assert.Equal(t, domain.StrategyDraft, got.Status)

	st.Status = domain.StrategyActive
	st.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, store.Put(ctx, st))

	list, err := store.List(ctx, wallet)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.StrategyActive, list[0].Status)

	require.NoError(t, store.Delete(ctx, wallet, "s1"))
	_, err = store.Get(ctx, wallet, "s1")
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.ErrorIs(t, store.Delete(ctx, wallet, "s1"), domain.ErrNotFound)
}

func TestUserPositionStore(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	store := NewUserPositionStore(c.Pool())
	wallet := testWallet()
	now := time.Now().UTC()

	p := domain.UserPosition{
		ID: "u1", Wallet: wallet, Name: "Manual LP", Status: domain.PositionStatusOpen,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.Put(ctx, p))

	got, err := store.Get(ctx, wallet, "u1")
	require.NoError(t, err)
	assert.Empty(t, got.TransactionIDs)
	assert.NotNil(t, got.TransactionIDs)

	_, err = store.Get(ctx, testWallet(), "u1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHiddenTxStore(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	store := NewHiddenTxStore(c.Pool())
	wallet := testWallet()

	key := domain.TxKey{Chain: "arb", ID: "0xABC"}
	require.NoError(t, store.Hide(ctx, wallet, key))
	require.NoError(t, store.Hide(ctx, wallet, key))

	keys, err := store.List(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, []domain.TxKey{{Chain: "arb", ID: "0xabc"}}, keys)

	require.NoError(t, store.Unhide(ctx, wallet, key))
	require.ErrorIs(t, store.Unhide(ctx, wallet, key), domain.ErrNotFound)
}
