// Package relationship models directed-agnostic affinity between two actors.
// Pairs are stored canonically so that a lookup from either side hits the
// same record.
package relationship

import (
	"context"
	"strings"
	"time"

	"github.com/cory-johannsen/guildturn/internal/game/actor"
)

const (
	// TypeGeneral is the standard relationship type written by combat
	// consequences.
	TypeGeneral = "general"

	// MinValue and MaxValue bound every relationship value.
	MinValue = -100
	MaxValue = 100
)

var hiddenPrefixes = []string{"secret_", "hidden_"}

// Relationship is one typed affinity between two actors.
type Relationship struct {
	GuildID   string    `json:"guild_id"`
	Entity1   actor.Ref `json:"entity1"`
	Entity2   actor.Ref `json:"entity2"`
	Type      string    `json:"type"`
	Value     int       `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New builds a canonical Relationship between a and b.
//
// Postcondition: !actor.Less(r.Entity2, r.Entity1).
func New(guildID string, a, b actor.Ref, typ string, value int) Relationship {
	e1, e2 := actor.Canonical(a, b)
	return Relationship{GuildID: guildID, Entity1: e1, Entity2: e2, Type: typ, Value: Clamp(value)}
}

// Other returns the counterpart of ref in r, and false when ref is not a
// member of the pair.
func (r Relationship) Other(ref actor.Ref) (actor.Ref, bool) {
	switch ref {
	case r.Entity1:
		return r.Entity2, true
	case r.Entity2:
		return r.Entity1, true
	default:
		return actor.Ref{}, false
	}
}

// Hidden reports whether r is a hidden (non-standard) relationship.
func (r Relationship) Hidden() bool { return IsHidden(r.Type) }

// IsHidden reports whether typ names a hidden relationship: one whose type
// carries a "secret_" or "hidden_" prefix.
func IsHidden(typ string) bool {
	for _, p := range hiddenPrefixes {
		if strings.HasPrefix(typ, p) {
			return true
		}
	}
	return false
}

// BaseCategory strips any hidden prefix and returns the leading word of the
// remaining type, so "secret_positive_crush" and "hidden_positive" both
// yield "positive".
func BaseCategory(typ string) string {
	rest := typ
	for _, p := range hiddenPrefixes {
		if strings.HasPrefix(rest, p) {
			rest = strings.TrimPrefix(rest, p)
			break
		}
	}
	if i := strings.IndexByte(rest, '_'); i > 0 {
		return rest[:i]
	}
	return rest
}

// Clamp bounds v to [MinValue, MaxValue].
func Clamp(v int) int {
	if v < MinValue {
		return MinValue
	}
	if v > MaxValue {
		return MaxValue
	}
	return v
}

// Store reads and writes relationships within one unit of work.
type Store interface {
	// Between returns every relationship of any type between a and b.
	Between(ctx context.Context, guildID string, a, b actor.Ref) ([]Relationship, error)
	// ForEntity returns every relationship involving ref.
	ForEntity(ctx context.Context, guildID string, ref actor.Ref) ([]Relationship, error)
	// Upsert stores r keyed by (guild, canonical pair, type).
	Upsert(ctx context.Context, r Relationship) error
}

// StandardValue sums the values of all non-hidden relationships in rels,
// clamped to the valid range. ok is false when rels holds no standard entry.
func StandardValue(rels []Relationship) (value int, ok bool) {
	sum := 0
	for _, r := range rels {
		if r.Hidden() {
			continue
		}
		sum += r.Value
		ok = true
	}
	return Clamp(sum), ok
}
