package relationship

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cory-johannsen/guildturn/internal/game/actor"
)

type memKey struct {
	guild  string
	e1, e2 actor.Ref
	typ    string
}

// Memory is an in-process Store. It is safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	rels map[memKey]Relationship
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{rels: make(map[memKey]Relationship)}
}

func keyOf(r Relationship) memKey {
	e1, e2 := actor.Canonical(r.Entity1, r.Entity2)
	return memKey{guild: r.GuildID, e1: e1, e2: e2, typ: r.Type}
}

// Between implements Store.
func (m *Memory) Between(_ context.Context, guildID string, a, b actor.Ref) ([]Relationship, error) {
	e1, e2 := actor.Canonical(a, b)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Relationship
	for k, r := range m.rels {
		if k.guild == guildID && k.e1 == e1 && k.e2 == e2 {
			out = append(out, r)
		}
	}
	sortRels(out)
	return out, nil
}

// ForEntity implements Store.
func (m *Memory) ForEntity(_ context.Context, guildID string, ref actor.Ref) ([]Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Relationship
	for k, r := range m.rels {
		if k.guild == guildID && (k.e1 == ref || k.e2 == ref) {
			out = append(out, r)
		}
	}
	sortRels(out)
	return out, nil
}

// Upsert implements Store.
func (m *Memory) Upsert(_ context.Context, r Relationship) error {
	r.Entity1, r.Entity2 = actor.Canonical(r.Entity1, r.Entity2)
	r.Value = Clamp(r.Value)
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	m.rels[keyOf(r)] = r
	m.mu.Unlock()
	return nil
}

// Snapshot copies every stored relationship.
func (m *Memory) Snapshot() []Relationship {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Relationship, 0, len(m.rels))
	for _, r := range m.rels {
		out = append(out, r)
	}
	sortRels(out)
	return out
}

// Restore replaces the store contents with rels.
func (m *Memory) Restore(rels []Relationship) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rels = make(map[memKey]Relationship, len(rels))
	for _, r := range rels {
		m.rels[keyOf(r)] = r
	}
}

func sortRels(rs []Relationship) {
	sort.Slice(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.Entity1 != b.Entity1 {
			return actor.Less(a.Entity1, b.Entity1)
		}
		if a.Entity2 != b.Entity2 {
			return actor.Less(a.Entity2, b.Entity2)
		}
		return a.Type < b.Type
	})
}
