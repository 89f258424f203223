// Package storage defines the unit-of-work boundary the turn core persists
// through. Every read and write made while draining, dispatching, or running
// a combat turn happens inside one Store.WithinTx call; an error returned from
// the callback rolls back everything written through that Tx.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/cory-johannsen/guildturn/internal/eventlog"
	"github.com/cory-johannsen/guildturn/internal/game/actor"
	"github.com/cory-johannsen/guildturn/internal/game/combat"
	"github.com/cory-johannsen/guildturn/internal/game/relationship"
	"github.com/cory-johannsen/guildturn/internal/game/roster"
)

// ErrNotFound is returned when a keyed lookup matches no record.
var ErrNotFound = errors.New("storage: not found")

// Store opens units of work.
type Store interface {
	// WithinTx runs fn inside one unit of work. A nil return commits; any
	// error (or panic) rolls back and is returned.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx exposes the repositories bound to one unit of work.
type Tx interface {
	Players() PlayerRepository
	Parties() PartyRepository
	NPCs() NPCRepository
	Encounters() EncounterRepository
	Relationships() relationship.Store
	Events() eventlog.Log
}

// PlayerRepository persists player records.
type PlayerRepository interface {
	Get(ctx context.Context, guildID, id string) (*roster.Player, error)
	// ListByStatus returns the guild's players in status ordered by ID. The
	// postgres implementation locks the returned rows until the unit of work
	// ends.
	ListByStatus(ctx context.Context, guildID string, status actor.Status) ([]*roster.Player, error)
	Save(ctx context.Context, p *roster.Player) error
}

// PartyRepository persists party records.
type PartyRepository interface {
	Get(ctx context.Context, guildID, id string) (*roster.Party, error)
	ListByStatus(ctx context.Context, guildID string, status actor.Status) ([]*roster.Party, error)
	Save(ctx context.Context, p *roster.Party) error
}

// NPCRepository persists NPC records.
type NPCRepository interface {
	Get(ctx context.Context, guildID, id string) (*roster.NPC, error)
	Save(ctx context.Context, n *roster.NPC) error
}

// EncounterRepository persists combat encounters as whole aggregates.
type EncounterRepository interface {
	Get(ctx context.Context, guildID, id string) (*combat.Encounter, error)
	// ActiveAt returns the non-terminal encounter at locationID, or
	// ErrNotFound.
	ActiveAt(ctx context.Context, guildID, locationID string) (*combat.Encounter, error)
	Save(ctx context.Context, enc *combat.Encounter) error
}

// LoadCombatant resolves ref to its durable record.
//
// Precondition: ref.Kind is player or npc.
// Postcondition: Returns ErrNotFound (wrapped) when the record is missing.
func LoadCombatant(ctx context.Context, tx Tx, guildID string, ref actor.Ref) (roster.Combatant, error) {
	switch ref.Kind {
	case actor.KindPlayer:
		p, err := tx.Players().Get(ctx, guildID, ref.ID)
		if err != nil {
			return nil, err
		}
		return p, nil
	case actor.KindNPC:
		n, err := tx.NPCs().Get(ctx, guildID, ref.ID)
		if err != nil {
			return nil, err
		}
		return n, nil
	default:
		return nil, fmt.Errorf("loading combatant %s: kind cannot fight", ref)
	}
}
