package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/walletrecon/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var builtAt = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func testPositions() []domain.ProtocolPosition {
	return []domain.ProtocolPosition{
		{ID: "0xmarket-short", Protocol: domain.ProtocolGMXV2, Direction: domain.DirectionShort,
			Status: domain.PositionStatusOpen, TxIDs: []string{"0xAAA", "0xbbb"},
			Metrics: domain.PositionMetrics{SizeUSD: domain.Float(1500)}},
		{ID: "uniswap_v3-arbitrum-42", Protocol: domain.ProtocolUniswapV3,
			Pair: &domain.AssetPair{Base: "WETH", Quote: "USDC"}, Status: domain.PositionStatusClosed,
			TxIDs: []string{"0xccc", "0xDdD"}},
	}
}

func TestNew_IndexRoundTrip(t *testing.T) {
	positions := testPositions()
	reg := New(positions, builtAt)

	for _, p := range positions {
		for _, tx := range p.TxIDs {
			got, ok := reg.Match(tx)
			require.True(t, ok, "tx %s", tx)
			assert.Equal(t, p.ID, got.ID)
		}
	}
	assert.Len(t, reg.Index(), 4)
	assert.Empty(t, reg.Conflicts())
	assert.NoError(t, reg.Validate())
	assert.Equal(t, builtAt, reg.BuiltAt())
	assert.Equal(t, 2, reg.Len())
}

func TestMatch_CaseInsensitive(t *testing.T) {
	reg := New(testPositions(), builtAt)

	got, ok := reg.Match("0xaaa")
	require.True(t, ok)
	assert.Equal(t, "0xmarket-short", got.ID)

	got, ok = reg.Match("0xDDD")
	require.True(t, ok)
	assert.Equal(t, "uniswap_v3-arbitrum-42", got.ID)

	_, ok = reg.Match("0xeee")
	assert.False(t, ok)
}

func TestMatchTransaction_NilRegistry(t *testing.T) {
	_, ok := MatchTransaction("0xaaa", nil)
	assert.False(t, ok)
}

func TestNew_ConflictsAreReported(t *testing.T) {
	positions := []domain.ProtocolPosition{
		{ID: "first", TxIDs: []string{"0xshared", "0xone"}},
		{ID: "second", TxIDs: []string{"0xSHARED"}},
		{ID: "third", TxIDs: []string{"0xtwo", "0xtwo"}},
	}
	reg := New(positions, builtAt)

	owner, ok := reg.Match("0xshared")
	require.True(t, ok)
	assert.Equal(t, "second", owner.ID, "last claimant owns the hash")

	conflicts := reg.Conflicts()
	require.Len(t, conflicts, 1)
	assert.Equal(t, Conflict{TxID: "0xshared", Claimants: []string{"first", "second"}, Owner: "second"}, conflicts[0])

	err := reg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAmbiguousOwnership))
}

func TestRegistry_IsImmutable(t *testing.T) {
	positions := testPositions()
	reg := New(positions, builtAt)

	positions[0].TxIDs[0] = "0xmutated"
	_, ok := reg.Match("0xaaa")
	assert.True(t, ok, "mutating the input must not affect the registry")

	out := reg.Positions()
	out[0].TxIDs[0] = "0xmutated"
	*out[0].Metrics.SizeUSD = 0
	again, _ := reg.Position("0xmarket-short")
	assert.Equal(t, "0xAAA", again.TxIDs[0])
	assert.Equal(t, 1500.0, *again.Metrics.SizeUSD)

	idx := reg.Index()
	delete(idx, "0xaaa")
	_, ok = reg.Match("0xaaa")
	assert.True(t, ok)
}

func TestSnapshotRoundTrip(t *testing.T) {
	reg := New(testPositions(), builtAt)
	snap := reg.Snapshot("0xwallet")

	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	var decoded domain.RegistrySnapshot
	require.NoError(t, json.Unmarshal(raw, &decoded))

	restored := FromSnapshot(decoded)
	assert.Equal(t, reg.Index(), restored.Index())
	assert.True(t, builtAt.Equal(restored.BuiltAt()))
}

func TestMarshalJSON_IncludesIndex(t *testing.T) {
	raw, err := json.Marshal(New(testPositions(), builtAt))
	require.NoError(t, err)

	var out struct {
		Positions []domain.ProtocolPosition `json:"positions"`
		TxIndex   map[string]string         `json:"tx_index"`
		Conflicts []Conflict                `json:"conflicts"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Len(t, out.Positions, 2)
	assert.Equal(t, "0xmarket-short", out.TxIndex["0xaaa"])
	assert.NotNil(t, out.Conflicts)
}

func TestCategorize(t *testing.T) {
	reg := New(testPositions(), builtAt)
	txs := []domain.Transaction{
		{ID: "0xzzz"},
		{ID: "0xCCC"},
		{ID: "0xaaa"},
		{ID: "0xyyy"},
	}

	got := Categorize(txs, reg)

	require.Len(t, got.Matched, 2)
	assert.Equal(t, "0xCCC", got.Matched[0].Transaction.ID)
	assert.Equal(t, "uniswap_v3-arbitrum-42", got.Matched[0].Position.ID)
	assert.Equal(t, "0xaaa", got.Matched[1].Transaction.ID)
	require.Len(t, got.Unmatched, 2)
	assert.Equal(t, "0xzzz", got.Unmatched[0].ID)
	assert.Equal(t, "0xyyy", got.Unmatched[1].ID)

	byPos := got.ByPosition()
	assert.Len(t, byPos["0xmarket-short"], 1)
}

func TestCategorize_EmptyAndNil(t *testing.T) {
	got := Categorize(nil, nil)
	assert.NotNil(t, got.Matched)
	assert.NotNil(t, got.Unmatched)
	assert.Empty(t, got.Matched)

	got = Categorize([]domain.Transaction{{ID: "0x1"}}, nil)
	assert.Len(t, got.Unmatched, 1)
}
