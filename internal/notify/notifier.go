// Package notify alerts operators about reconciliation problems (ownership
// conflicts, failed collectors) over Telegram and Discord.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// Event types an operator can subscribe to.
const (
	EventRegistryConflict = "registry_conflict"
	EventCollectorFailed  = "collector_failed"
	EventArchiveFailed    = "archive_failed"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans a notification out to every sender, dropping events outside
// the configured allow-list. A nil *Notifier is a valid no-op.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list allows everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers to every sender if event is allowed. One failing sender
// does not stop delivery to the rest.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if n == nil || len(n.senders) == 0 {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "notify: event filtered out", slog.String("event", event))
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "notify: sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// RegistryConflicts reports transactions claimed by more than one position.
// owners maps tx id to the positions that claimed it.
func (n *Notifier) RegistryConflicts(ctx context.Context, wallet string, owners map[string][]string) error {
	if len(owners) == 0 {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "wallet %s: %d transaction(s) claimed by several positions\n", wallet, len(owners))
	for _, tx := range sortedKeys(owners) {
		fmt.Fprintf(&b, "%s -> %s\n", tx, strings.Join(owners[tx], ", "))
	}
	return n.Notify(ctx, EventRegistryConflict, "Ambiguous transaction ownership", strings.TrimSpace(b.String()))
}

// CollectorsFailed reports collectors whose positions are missing from a
// build. failures maps protocol to error text.
func (n *Notifier) CollectorsFailed(ctx context.Context, wallet string, failures map[string]string) error {
	if len(failures) == 0 {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "wallet %s: registry built without %d collector(s)\n", wallet, len(failures))
	for _, p := range sortedKeys(failures) {
		fmt.Fprintf(&b, "%s: %s\n", p, failures[p])
	}
	return n.Notify(ctx, EventCollectorFailed, "Collector failure", strings.TrimSpace(b.String()))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
