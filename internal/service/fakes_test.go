package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/walletrecon/internal/domain"
	"github.com/alanyoungcy/walletrecon/internal/registry"
)

const testWallet = "0x1111111111111111111111111111111111111111"

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// fakeSource serves canned history and records the since values it saw.
type fakeSource struct {
	mu     sync.Mutex
	pages  []domain.HistoryPage
	err    error
	sinces []int64
}

func (f *fakeSource) History(_ context.Context, _ string, since int64) (domain.HistoryPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinces = append(f.sinces, since)
	if f.err != nil {
		return domain.HistoryPage{}, f.err
	}
	if len(f.pages) == 0 {
		return domain.HistoryPage{Tokens: domain.TokenBook{}}, nil
	}
	p := f.pages[0]
	f.pages = f.pages[1:]
	return p, nil
}

type fakePrices struct {
	stored map[string]float64
}

func (f *fakePrices) SetPrices(_ context.Context, tokens domain.TokenBook) error {
	for id, m := range tokens {
		if m.Price != nil {
			f.stored[id] = *m.Price
		}
	}
	return nil
}

func (f *fakePrices) GetPrices(_ context.Context, ids []string) (map[string]float64, error) {
	out := map[string]float64{}
	for _, id := range ids {
		if p, ok := f.stored[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

// fakeBuilder indexes fixed positions and counts builds.
type fakeBuilder struct {
	mu        sync.Mutex
	positions []domain.ProtocolPosition
	report    registry.BuildReport
	builds    int
}

func (f *fakeBuilder) Build(_ context.Context, wallet string) (*registry.Registry, registry.BuildReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds++
	rep := f.report
	rep.Wallet = wallet
	return registry.New(f.positions, time.Unix(1700000000, 0).UTC()), rep, nil
}

type memRegistryCache struct {
	mu    sync.Mutex
	snaps map[string]domain.RegistrySnapshot
	// onMiss runs after every miss; tests use it to simulate another
	// replica finishing a build.
	onMiss func(c *memRegistryCache)
}

func newMemRegistryCache() *memRegistryCache {
	return &memRegistryCache{snaps: map[string]domain.RegistrySnapshot{}}
}

func (m *memRegistryCache) Get(_ context.Context, wallet string) (domain.RegistrySnapshot, error) {
	m.mu.Lock()
	snap, ok := m.snaps[wallet]
	hook := m.onMiss
	m.mu.Unlock()
	if !ok {
		if hook != nil {
			hook(m)
		}
		return domain.RegistrySnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func (m *memRegistryCache) Set(_ context.Context, snap domain.RegistrySnapshot, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snap.Wallet] = snap
	return nil
}

func (m *memRegistryCache) Invalidate(_ context.Context, wallet string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, wallet)
	return nil
}

type fakeLocks struct {
	err      error
	acquired []string
	released int
}

func (f *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	f.acquired = append(f.acquired, key)
	return func() { f.released++ }, nil
}

type memHidden struct {
	keys map[string][]domain.TxKey
}

func newMemHidden() *memHidden { return &memHidden{keys: map[string][]domain.TxKey{}} }

func (m *memHidden) List(_ context.Context, wallet string) ([]domain.TxKey, error) {
	return append([]domain.TxKey{}, m.keys[wallet]...), nil
}

func (m *memHidden) Hide(_ context.Context, wallet string, key domain.TxKey) error {
	for _, k := range m.keys[wallet] {
		if k == key {
			return nil
		}
	}
	m.keys[wallet] = append(m.keys[wallet], key)
	return nil
}

func (m *memHidden) Unhide(_ context.Context, wallet string, key domain.TxKey) error {
	for i, k := range m.keys[wallet] {
		if k == key {
			m.keys[wallet] = append(m.keys[wallet][:i], m.keys[wallet][i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

type memStrategies struct {
	items map[string]domain.Strategy
}

func (m *memStrategies) Get(_ context.Context, wallet, id string) (domain.Strategy, error) {
	s, ok := m.items[wallet+"/"+id]
	if !ok {
		return domain.Strategy{}, domain.ErrNotFound
	}
	return s, nil
}

func (m *memStrategies) Put(_ context.Context, s domain.Strategy) error {
	m.items[s.Wallet+"/"+s.ID] = s
	return nil
}

func (m *memStrategies) List(_ context.Context, wallet string) ([]domain.Strategy, error) {
	out := []domain.Strategy{}
	for _, s := range m.items {
		if s.Wallet == wallet {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStrategies) Delete(_ context.Context, wallet, id string) error {
	if _, ok := m.items[wallet+"/"+id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.items, wallet+"/"+id)
	return nil
}

type memUserPositions struct {
	items map[string]domain.UserPosition
}

func (m *memUserPositions) Get(_ context.Context, wallet, id string) (domain.UserPosition, error) {
	p, ok := m.items[wallet+"/"+id]
	if !ok {
		return domain.UserPosition{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *memUserPositions) Put(_ context.Context, p domain.UserPosition) error {
	m.items[p.Wallet+"/"+p.ID] = p
	return nil
}

func (m *memUserPositions) List(_ context.Context, wallet string) ([]domain.UserPosition, error) {
	out := []domain.UserPosition{}
	for _, p := range m.items {
		if p.Wallet == wallet {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memUserPositions) Delete(_ context.Context, wallet, id string) error {
	if _, ok := m.items[wallet+"/"+id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.items, wallet+"/"+id)
	return nil
}

type fakeArchiver struct {
	archived []any
	paths    []string
	err      error
}

func (f *fakeArchiver) Archive(_ context.Context, wallet string, at time.Time, report any) (domain.BlobInfo, error) {
	if f.err != nil {
		return domain.BlobInfo{}, f.err
	}
	f.archived = append(f.archived, report)
	p := "reports/" + wallet + "/" + at.Format("2006-01-02") + "/x.json"
	f.paths = append(f.paths, p)
	return domain.BlobInfo{Path: p}, nil
}

func (f *fakeArchiver) Open(_ context.Context, _, key string, out any) error {
	for i, p := range f.paths {
		if p != key {
			continue
		}
		if rp, ok := out.(*Report); ok {
			*rp = f.archived[i].(Report)
		}
		return nil
	}
	return domain.ErrNotFound
}

func (f *fakeArchiver) List(_ context.Context, wallet string) ([]domain.BlobInfo, error) {
	out := []domain.BlobInfo{}
	for _, p := range f.paths {
		out = append(out, domain.BlobInfo{Path: p})
	}
	return out, nil
}
