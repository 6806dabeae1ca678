package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordSender struct {
	name   string
	err    error
	titles []string
	bodies []string
}

func (r *recordSender) Send(_ context.Context, title, message string) error {
	r.titles = append(r.titles, title)
	r.bodies = append(r.bodies, message)
	return r.err
}

func (r *recordSender) Name() string { return r.name }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifyFiltersEvents(t *testing.T) {
	s := &recordSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventCollectorFailed, " "}, discard())

	require.NoError(t, n.Notify(context.Background(), EventRegistryConflict, "t", "m"))
	assert.Empty(t, s.titles)

	require.NoError(t, n.Notify(context.Background(), EventCollectorFailed, "t", "m"))
	assert.Equal(t, []string{"t"}, s.titles)
}

func TestNotifyContinuesPastFailures(t *testing.T) {
	boom := errors.New("boom")
	bad := &recordSender{name: "bad", err: boom}
	good := &recordSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discard())

	err := n.Notify(context.Background(), "anything", "t", "m")
	require.ErrorIs(t, err, boom)
	assert.Len(t, good.titles, 1)
}

func TestNilNotifier(t *testing.T) {
	var n *Notifier
	assert.NoError(t, n.Notify(context.Background(), EventCollectorFailed, "t", "m"))
	assert.NoError(t, n.CollectorsFailed(context.Background(), "0xabc", map[string]string{"gmx_v2": "down"}))
}

func TestRegistryConflictsMessage(t *testing.T) {
	s := &recordSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, discard())

	require.NoError(t, n.RegistryConflicts(context.Background(), "0xabc", nil))
	assert.Empty(t, s.titles)

	require.NoError(t, n.RegistryConflicts(context.Background(), "0xabc", map[string][]string{
		"0xbb": {"p2", "p3"},
		"0xaa": {"p1", "p2"},
	}))
	require.Len(t, s.bodies, 1)
	assert.Equal(t, "wallet 0xabc: 2 transaction(s) claimed by several positions\n0xaa -> p1, p2\n0xbb -> p2, p3", s.bodies[0])
}

func TestTelegramSender(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "42", body["chat_id"])
		assert.Equal(t, "*Title*\nbody", body["text"])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.apiURL = srv.URL
	require.NoError(t, s.Send(context.Background(), "Title", "body"))
}

func TestDiscordSenderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad webhook", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord: unexpected status 400")
}
