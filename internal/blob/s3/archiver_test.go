package s3blob

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/walletrecon/internal/domain"
)

// memBlob is an in-memory BlobWriter and BlobReader.
type memBlob struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemBlob() *memBlob { return &memBlob{objects: map[string][]byte{}} }

func (m *memBlob) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = b
	return nil
}

func (m *memBlob) Get(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlob) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BlobInfo
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, domain.BlobInfo{Path: k, Size: int64(len(v))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func TestReportPath(t *testing.T) {
	at := time.Date(2024, 6, 1, 23, 0, 0, 0, time.FixedZone("X", -3*3600))
	assert.Equal(t, "reports/0xabc/2024-06-02/1717293600.json", ReportPath("0xABC", at))
}

func TestArchiverRoundTrip(t *testing.T) {
	ctx := context.Background()
	blob := newMemBlob()
	a := NewArchiver(blob, blob)

	type report struct {
		Wallet string  `json:"wallet"`
		Net    float64 `json:"net"`
	}
	first, err := a.Archive(ctx, "0xabc", time.Unix(1700000000, 0), report{Wallet: "0xabc", Net: 1})
	require.NoError(t, err)
	second, err := a.Archive(ctx, "0xabc", time.Unix(1700090000, 0), report{Wallet: "0xabc", Net: 2})
	require.NoError(t, err)
	_, err = a.Archive(ctx, "0xother", time.Unix(1700000000, 0), report{})
	require.NoError(t, err)
	assert.Equal(t, "application/json", first.ContentType)

	list, err := a.List(ctx, "0xABC")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.Path, list[0].Path)
	assert.Equal(t, first.Path, list[1].Path)

	var got report
	require.NoError(t, a.Open(ctx, "0xabc", first.Path, &got))
	assert.Equal(t, 1.0, got.Net)

	err = a.Open(ctx, "0xother", first.Path, &got)
	require.ErrorIs(t, err, domain.ErrNotFound)

	err = a.Open(ctx, "0xabc", "reports/0xabc/../0xother/x.json", &got)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("https://minio:9000", false))
	assert.Equal(t, "https://e2.example.com", normaliseEndpoint("e2.example.com", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
}
