// Package registry maps raw transaction hashes to the protocol positions
// they belong to.
package registry

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/walletrecon/internal/domain"
)

// Conflict records a transaction hash claimed by more than one position.
// Owner is the position the index resolves it to: the last claimant.
type Conflict struct {
	TxID      string   `json:"tx_id"`
	Claimants []string `json:"claimants"`
	Owner     string   `json:"owner"`
}

// Registry is an immutable snapshot of positions and the derived
// lower-cased tx hash to position id index. Build one with New.
type Registry struct {
	positions []domain.ProtocolPosition
	byID      map[string]int
	index     map[string]string
	conflicts []Conflict
	builtAt   time.Time
}

// New indexes positions. When a hash appears in several positions the one
// listed last owns it; every such hash is reported by Conflicts.
func New(positions []domain.ProtocolPosition, builtAt time.Time) *Registry {
	r := &Registry{
		positions: make([]domain.ProtocolPosition, len(positions)),
		byID:      make(map[string]int, len(positions)),
		index:     make(map[string]string),
		builtAt:   builtAt,
	}

	claims := make(map[string][]string)
	var order []string
	for i, p := range positions {
		r.positions[i] = clonePosition(p)
		r.byID[p.ID] = i
		for _, raw := range p.TxIDs {
			id := strings.ToLower(raw)
			if id == "" {
				continue
			}
			prev, seen := claims[id]
			if !seen {
				order = append(order, id)
			}
			if len(prev) == 0 || prev[len(prev)-1] != p.ID {
				claims[id] = append(prev, p.ID)
			}
			r.index[id] = p.ID
		}
	}

	for _, id := range order {
		if owners := distinct(claims[id]); len(owners) > 1 {
			r.conflicts = append(r.conflicts, Conflict{
				TxID:      id,
				Claimants: owners,
				Owner:     r.index[id],
			})
		}
	}
	return r
}

// FromSnapshot rebuilds a registry from its cached form.
func FromSnapshot(s domain.RegistrySnapshot) *Registry {
	return New(s.Positions, s.BuiltAt)
}

// Snapshot returns the cacheable form of r.
func (r *Registry) Snapshot(wallet string) domain.RegistrySnapshot {
	return domain.RegistrySnapshot{
		Wallet:    wallet,
		Positions: r.Positions(),
		BuiltAt:   r.builtAt,
	}
}

// Positions returns a copy of the positions in build order.
func (r *Registry) Positions() []domain.ProtocolPosition {
	out := make([]domain.ProtocolPosition, len(r.positions))
	for i, p := range r.positions {
		out[i] = clonePosition(p)
	}
	return out
}

// Position looks up a position by id.
func (r *Registry) Position(id string) (domain.ProtocolPosition, bool) {
	i, ok := r.byID[id]
	if !ok {
		return domain.ProtocolPosition{}, false
	}
	return clonePosition(r.positions[i]), true
}

// Index returns a copy of the tx hash to position id index.
func (r *Registry) Index() map[string]string {
	out := make(map[string]string, len(r.index))
	for k, v := range r.index {
		out[k] = v
	}
	return out
}

func (r *Registry) Len() int { return len(r.positions) }

func (r *Registry) BuiltAt() time.Time { return r.builtAt }

// Conflicts lists every hash claimed by more than one position, in the
// order the hashes were first seen.
func (r *Registry) Conflicts() []Conflict {
	out := make([]Conflict, len(r.conflicts))
	for i, c := range r.conflicts {
		c.Claimants = append([]string(nil), c.Claimants...)
		out[i] = c
	}
	return out
}

// Validate reports ambiguous ownership as an error wrapping
// domain.ErrAmbiguousOwnership.
func (r *Registry) Validate() error {
	if len(r.conflicts) == 0 {
		return nil
	}
	return fmt.Errorf("registry: %d transactions: %w", len(r.conflicts), domain.ErrAmbiguousOwnership)
}

type registryJSON struct {
	Positions []domain.ProtocolPosition `json:"positions"`
	TxIndex   map[string]string         `json:"tx_index"`
	Conflicts []Conflict                `json:"conflicts"`
	BuiltAt   time.Time                 `json:"built_at"`
}

// MarshalJSON renders the registry including its derived index.
func (r *Registry) MarshalJSON() ([]byte, error) {
	conflicts := r.Conflicts()
	return json.Marshal(registryJSON{
		Positions: r.positions,
		TxIndex:   r.index,
		Conflicts: conflicts,
		BuiltAt:   r.builtAt,
	})
}

func clonePosition(p domain.ProtocolPosition) domain.ProtocolPosition {
	p.TxIDs = append([]string{}, p.TxIDs...)
	if p.Pair != nil {
		pair := *p.Pair
		p.Pair = &pair
	}
	if p.ClosedAt != nil {
		closed := *p.ClosedAt
		p.ClosedAt = &closed
	}
	m := &p.Metrics
	for _, f := range []**float64{&m.SizeUSD, &m.CollateralUSD, &m.RealizedPnLUSD, &m.UnrealizedPnLUSD, &m.FeesUSD} {
		if *f != nil {
			v := **f
			*f = &v
		}
	}
	return p
}

func distinct(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
