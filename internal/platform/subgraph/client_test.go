package subgraph

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/walletrecon/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery_DecodesDataAndSendsAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req graphqlRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, "positions")
		assert.Equal(t, "0xabc", req.Variables["owner"])

		_, _ = w.Write([]byte(`{"data":{"positions":[{"id":"1"},{"id":"2"}]}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, " secret ")
	var out struct {
		Positions []struct {
			ID string `json:"id"`
		} `json:"positions"`
	}
	err := c.Query(context.Background(), "{ positions { id } }", map[string]any{"owner": "0xabc"}, &out)

	require.NoError(t, err)
	require.Len(t, out.Positions, 2)
	assert.Equal(t, "2", out.Positions[1].ID)
}

func TestQuery_GraphQLErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad field"}]}`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "").Query(context.Background(), "{x}", nil, &struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad field")
}

func TestQuery_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", WithRetry(2, time.Millisecond))
	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, c.Query(context.Background(), "{ok}", nil, &out))
	assert.True(t, out.OK)
	assert.Equal(t, int32(3), calls.Load())
}

func TestQuery_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", WithRetry(1, time.Millisecond))
	err := c.Query(context.Background(), "{x}", nil, &struct{}{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRateLimited))
	assert.Equal(t, int32(2), calls.Load())
}

func TestQuery_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "", WithRetry(3, time.Millisecond)).Query(context.Background(), "{x}", nil, &struct{}{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestQuery_ServerErrorsExhaustRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", WithRetry(2, time.Millisecond))
	err := c.Query(context.Background(), "{x}", nil, &struct{}{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Contains(t, err.Error(), srv.URL)
	assert.Equal(t, int32(3), calls.Load())
}
