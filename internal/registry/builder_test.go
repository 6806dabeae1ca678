package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/walletrecon/internal/collector"
	"github.com/alanyoungcy/walletrecon/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWallet = "0x00000000000000000000000000000000000000aa"

type fakeCollector struct {
	protocol  domain.Protocol
	positions []domain.ProtocolPosition
	err       error
	delay     time.Duration
	panicMsg  string
}

func (f *fakeCollector) Protocol() domain.Protocol { return f.protocol }

func (f *fakeCollector) Fetch(ctx context.Context, _ string) ([]domain.ProtocolPosition, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.positions, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuild_CollectorFailureContributesNothing(t *testing.T) {
	gmx := &fakeCollector{protocol: domain.ProtocolGMXV2, err: errors.New("subgraph down")}
	uni := &fakeCollector{protocol: domain.ProtocolUniswapV3, positions: []domain.ProtocolPosition{
		{ID: "uniswap_v3-arbitrum-1", TxIDs: []string{"0x1"}},
	}}

	b := NewBuilder([]collector.Collector{gmx, uni}, time.Second, quietLogger())
	reg, report, err := b.Build(context.Background(), testWallet)

	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())
	_, ok := reg.Match("0x1")
	assert.True(t, ok)
	assert.Equal(t, []domain.Protocol{domain.ProtocolGMXV2}, report.Failed())
	assert.Equal(t, "subgraph down", report.Collectors[0].Err)
	assert.Equal(t, 1, report.Collectors[1].Positions)
}

func TestBuild_TimeoutAndPanicAreIsolated(t *testing.T) {
	slow := &fakeCollector{protocol: "slow", delay: time.Second}
	broken := &fakeCollector{protocol: "broken", panicMsg: "boom"}
	ok := &fakeCollector{protocol: domain.ProtocolGMXV2, positions: []domain.ProtocolPosition{{ID: "p", TxIDs: []string{"0xa"}}}}

	b := NewBuilder([]collector.Collector{slow, broken, ok}, 20*time.Millisecond, quietLogger())
	reg, report, err := b.Build(context.Background(), testWallet)

	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())
	assert.ElementsMatch(t, []domain.Protocol{"slow", "broken"}, report.Failed())
}

// stuckCollector never looks at ctx and blocks until release is closed.
type stuckCollector struct{ release chan struct{} }

func (s *stuckCollector) Protocol() domain.Protocol { return "stuck" }

func (s *stuckCollector) Fetch(context.Context, string) ([]domain.ProtocolPosition, error) {
	<-s.release
	return []domain.ProtocolPosition{{ID: "late", TxIDs: []string{"0xlate"}}}, nil
}

func TestBuild_TimeoutAbandonsCollectorIgnoringContext(t *testing.T) {
	stuck := &stuckCollector{release: make(chan struct{})}
	defer close(stuck.release)
	ok := &fakeCollector{protocol: domain.ProtocolGMXV2, positions: []domain.ProtocolPosition{{ID: "p", TxIDs: []string{"0xa"}}}}

	b := NewBuilder([]collector.Collector{stuck, ok}, 20*time.Millisecond, quietLogger())

	type built struct {
		reg    *Registry
		report BuildReport
		err    error
	}
	done := make(chan built, 1)
	go func() {
		reg, report, err := b.Build(context.Background(), testWallet)
		done <- built{reg, report, err}
	}()

	select {
	case got := <-done:
		require.NoError(t, got.err)
		assert.Equal(t, 1, got.reg.Len())
		_, late := got.reg.Match("0xlate")
		assert.False(t, late)
		assert.Equal(t, []domain.Protocol{"stuck"}, got.report.Failed())
		assert.Contains(t, got.report.Collectors[0].Err, context.DeadlineExceeded.Error())
	case <-time.After(2 * time.Second):
		t.Fatal("Build blocked on a collector that ignores cancellation")
	}
}

func TestBuild_KeepsCollectorOrder(t *testing.T) {
	first := &fakeCollector{protocol: "a", delay: 10 * time.Millisecond,
		positions: []domain.ProtocolPosition{{ID: "from-a", TxIDs: []string{"0xshared"}}}}
	second := &fakeCollector{protocol: "b",
		positions: []domain.ProtocolPosition{{ID: "from-b", TxIDs: []string{"0xshared"}}}}

	b := NewBuilder([]collector.Collector{first, second}, time.Second, quietLogger())
	for i := 0; i < 5; i++ {
		reg, _, err := b.Build(context.Background(), testWallet)
		require.NoError(t, err)
		positions := reg.Positions()
		require.Len(t, positions, 2)
		assert.Equal(t, "from-a", positions[0].ID)
		owner, _ := reg.Match("0xshared")
		assert.Equal(t, "from-b", owner.ID)
		assert.Len(t, reg.Conflicts(), 1)
	}
}

func TestBuild_AllCollectorsFailYieldsEmptyRegistry(t *testing.T) {
	b := NewBuilder([]collector.Collector{
		&fakeCollector{protocol: "a", err: errors.New("x")},
		&fakeCollector{protocol: "b", err: errors.New("y")},
	}, time.Second, quietLogger())

	reg, report, err := b.Build(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Zero(t, reg.Len())
	assert.Empty(t, reg.Index())
	assert.Len(t, report.Failed(), 2)
}

func TestBuild_InvalidWallet(t *testing.T) {
	b := NewBuilder(nil, time.Second, quietLogger())
	_, _, err := b.Build(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidWallet))
}

func TestBuild_UsesClock(t *testing.T) {
	b := NewBuilder(nil, time.Second, quietLogger())
	b.now = func() time.Time { return builtAt }
	reg, report, err := b.Build(context.Background(), "0x00000000000000000000000000000000000000AA")
	require.NoError(t, err)
	assert.Equal(t, builtAt, reg.BuiltAt())
	assert.Equal(t, testWallet, report.Wallet)
}
