// Package actor defines the identity and status vocabulary shared by the
// turn scheduler, the combat cycle, and the NPC AI.
package actor

import "fmt"

// Kind distinguishes the three actor families.
type Kind string

const (
	KindPlayer Kind = "player"
	KindNPC    Kind = "npc"
	KindParty  Kind = "party"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindPlayer, KindNPC, KindParty:
		return true
	default:
		return false
	}
}

// Ref is an opaque actor identity. It is never resolved to a full record
// except at the point of use.
type Ref struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
}

// Player returns a player Ref.
func Player(id string) Ref { return Ref{ID: id, Kind: KindPlayer} }

// NPC returns an NPC Ref.
func NPC(id string) Ref { return Ref{ID: id, Kind: KindNPC} }

// Party returns a party Ref.
func Party(id string) Ref { return Ref{ID: id, Kind: KindParty} }

// IsZero reports whether r carries no identity.
func (r Ref) IsZero() bool { return r.ID == "" && r.Kind == "" }

// String renders r as "kind:id".
func (r Ref) String() string { return fmt.Sprintf("%s:%s", r.Kind, r.ID) }

// Less is the total order over refs used for canonical pair storage:
// kind string first, then id, both compared byte-wise.
//
// Stored relationship rows depend on this ordering; do not change it.
func Less(a, b Ref) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	return a.ID < b.ID
}

// Canonical returns a and b ordered by Less.
//
// Postcondition: !Less(second, first).
func Canonical(a, b Ref) (first, second Ref) {
	if Less(b, a) {
		return b, a
	}
	return a, b
}
