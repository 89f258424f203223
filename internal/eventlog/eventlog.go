// Package eventlog defines the append-only audit trail consumed by quest and
// relationship systems downstream of the turn core.
package eventlog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cory-johannsen/guildturn/internal/game/actor"
)

// Kind names an event category.
type Kind string

const (
	KindCombatStarted    Kind = "combat_started"
	KindCombatEnded      Kind = "combat_ended"
	KindCombatAction     Kind = "combat_action"
	KindCombatError      Kind = "combat_error"
	KindTurnProcessed    Kind = "turn_processed"
	KindActionError      Kind = "action_error"
	KindUnhandledIntent  Kind = "unhandled_intent"
	KindActionDropped    Kind = "action_dropped"
	KindRest             Kind = "rest"
	KindMove             Kind = "move"
	KindWait             Kind = "wait"
	KindRelationshipTick Kind = "relationship_changed"
	KindXPAwarded        Kind = "xp_awarded"
	KindLootTransferred  Kind = "loot_transferred"
	KindQuestProgress    Kind = "quest_progress"
)

// Entry is one immutable event record.
type Entry struct {
	ID         string         `json:"id"`
	GuildID    string         `json:"guild_id"`
	Kind       Kind           `json:"kind"`
	Details    map[string]any `json:"details,omitempty"`
	Refs       []actor.Ref    `json:"refs,omitempty"`
	LocationID string         `json:"location_id,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Log appends events. Appending returns the stored entry so callers can pass
// its ID forward to correlate cause and effect.
type Log interface {
	Append(ctx context.Context, guildID string, kind Kind, details map[string]any, refs []actor.Ref, locationID string) (Entry, error)
}

// NewEntry stamps a fresh ID and timestamp.
func NewEntry(guildID string, kind Kind, details map[string]any, refs []actor.Ref, locationID string) Entry {
	return Entry{
		ID:         uuid.NewString(),
		GuildID:    guildID,
		Kind:       kind,
		Details:    details,
		Refs:       append([]actor.Ref(nil), refs...),
		LocationID: locationID,
		CreatedAt:  time.Now().UTC(),
	}
}

// Memory is an in-process Log. It is safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemory returns an empty Memory log.
func NewMemory() *Memory { return &Memory{} }

// Append implements Log.
func (m *Memory) Append(_ context.Context, guildID string, kind Kind, details map[string]any, refs []actor.Ref, locationID string) (Entry, error) {
	e := NewEntry(guildID, kind, details, refs, locationID)
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return e, nil
}

// Entries returns a copy of every event for guildID in append order. An empty
// guildID returns all events.
func (m *Memory) Entries(guildID string) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if guildID == "" || e.GuildID == guildID {
			out = append(out, e)
		}
	}
	return out
}

// OfKind filters Entries(guildID) by kind.
func (m *Memory) OfKind(guildID string, kind Kind) []Entry {
	var out []Entry
	for _, e := range m.Entries(guildID) {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Truncate discards entries beyond n. Used to roll back a failed unit of work.
func (m *Memory) Truncate(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < len(m.entries) {
		m.entries = m.entries[:n]
	}
}

// Len reports the number of stored entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
