// Package memory is an in-process storage.Store. Units of work are
// serialized by a single mutex and rolled back by restoring a snapshot taken
// when the unit began.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cory-johannsen/guildturn/internal/eventlog"
	"github.com/cory-johannsen/guildturn/internal/game/actor"
	"github.com/cory-johannsen/guildturn/internal/game/combat"
	"github.com/cory-johannsen/guildturn/internal/game/relationship"
	"github.com/cory-johannsen/guildturn/internal/game/roster"
	"github.com/cory-johannsen/guildturn/internal/storage"
)

type key struct{ guild, id string }

type tables struct {
	players    map[key]*roster.Player
	parties    map[key]*roster.Party
	npcs       map[key]*roster.NPC
	encounters map[key][]byte
}

func (t tables) copy() tables {
	out := tables{
		players:    make(map[key]*roster.Player, len(t.players)),
		parties:    make(map[key]*roster.Party, len(t.parties)),
		npcs:       make(map[key]*roster.NPC, len(t.npcs)),
		encounters: make(map[key][]byte, len(t.encounters)),
	}
	for k, v := range t.players {
		out.players[k] = v
	}
	for k, v := range t.parties {
		out.parties[k] = v
	}
	for k, v := range t.npcs {
		out.npcs[k] = v
	}
	for k, v := range t.encounters {
		out.encounters[k] = v
	}
	return out
}

// Store is a storage.Store held entirely in memory. Stored records are never
// aliased by callers: reads return copies and writes store copies.
type Store struct {
	mu     sync.Mutex
	data   tables
	events *eventlog.Memory
	rels   *relationship.Memory
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		data:   tables{}.copy(),
		events: eventlog.NewMemory(),
		rels:   relationship.NewMemory(),
	}
}

// Events exposes the underlying event log for inspection.
func (s *Store) Events() *eventlog.Memory { return s.events }

// Relationships exposes the underlying relationship store.
func (s *Store) Relationships() *relationship.Memory { return s.rels }

// WithinTx implements storage.Store.
//
// Postcondition: when fn returns an error or panics, every record, event,
// and relationship is restored to its state before the call.
func (s *Store) WithinTx(ctx context.Context, fn func(tx storage.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := s.data.copy()
	savedEvents := s.events.Len()
	savedRels := s.rels.Snapshot()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unit of work panicked: %v", r)
		}
		if err != nil {
			s.data = saved
			s.events.Truncate(savedEvents)
			s.rels.Restore(savedRels)
		}
	}()
	return fn(&tx{s: s})
}

// Seed stores records outside any unit of work. It is intended for tests and
// development fixtures.
func (s *Store) Seed(players []*roster.Player, parties []*roster.Party, npcs []*roster.NPC) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range players {
		s.data.players[key{p.GuildID, p.ID}] = clonePlayer(p)
	}
	for _, p := range parties {
		s.data.parties[key{p.GuildID, p.ID}] = cloneParty(p)
	}
	for _, n := range npcs {
		s.data.npcs[key{n.GuildID, n.ID}] = cloneNPC(n)
	}
}

type tx struct{ s *Store }

func (t *tx) Players() storage.PlayerRepository       { return players{t.s} }
func (t *tx) Parties() storage.PartyRepository        { return parties{t.s} }
func (t *tx) NPCs() storage.NPCRepository             { return npcs{t.s} }
func (t *tx) Encounters() storage.EncounterRepository { return encounters{t.s} }
func (t *tx) Relationships() relationship.Store       { return t.s.rels }
func (t *tx) Events() eventlog.Log                    { return t.s.events }

type players struct{ s *Store }

func (r players) Get(_ context.Context, guildID, id string) (*roster.Player, error) {
	p, ok := r.s.data.players[key{guildID, id}]
	if !ok {
		return nil, fmt.Errorf("player %s: %w", id, storage.ErrNotFound)
	}
	return clonePlayer(p), nil
}

func (r players) ListByStatus(_ context.Context, guildID string, status actor.Status) ([]*roster.Player, error) {
	var out []*roster.Player
	for k, p := range r.s.data.players {
		if k.guild == guildID && p.Status == status {
			out = append(out, clonePlayer(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r players) Save(_ context.Context, p *roster.Player) error {
	r.s.data.players[key{p.GuildID, p.ID}] = clonePlayer(p)
	return nil
}

type parties struct{ s *Store }

func (r parties) Get(_ context.Context, guildID, id string) (*roster.Party, error) {
	p, ok := r.s.data.parties[key{guildID, id}]
	if !ok {
		return nil, fmt.Errorf("party %s: %w", id, storage.ErrNotFound)
	}
	return cloneParty(p), nil
}

func (r parties) ListByStatus(_ context.Context, guildID string, status actor.Status) ([]*roster.Party, error) {
	var out []*roster.Party
	for k, p := range r.s.data.parties {
		if k.guild == guildID && p.Status == status {
			out = append(out, cloneParty(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r parties) Save(_ context.Context, p *roster.Party) error {
	r.s.data.parties[key{p.GuildID, p.ID}] = cloneParty(p)
	return nil
}

type npcs struct{ s *Store }

func (r npcs) Get(_ context.Context, guildID, id string) (*roster.NPC, error) {
	n, ok := r.s.data.npcs[key{guildID, id}]
	if !ok {
		return nil, fmt.Errorf("npc %s: %w", id, storage.ErrNotFound)
	}
	return cloneNPC(n), nil
}

func (r npcs) Save(_ context.Context, n *roster.NPC) error {
	r.s.data.npcs[key{n.GuildID, n.ID}] = cloneNPC(n)
	return nil
}

// encounters keeps the JSON form of each aggregate, mirroring the postgres
// JSONB column so both stores round-trip identically.
type encounters struct{ s *Store }

func (r encounters) Get(_ context.Context, guildID, id string) (*combat.Encounter, error) {
	raw, ok := r.s.data.encounters[key{guildID, id}]
	if !ok {
		return nil, fmt.Errorf("encounter %s: %w", id, storage.ErrNotFound)
	}
	return decodeEncounter(raw)
}

func (r encounters) ActiveAt(_ context.Context, guildID, locationID string) (*combat.Encounter, error) {
	var found *combat.Encounter
	for k, raw := range r.s.data.encounters {
		if k.guild != guildID {
			continue
		}
		enc, err := decodeEncounter(raw)
		if err != nil {
			return nil, err
		}
		if enc.LocationID != locationID || enc.Status.Terminal() {
			continue
		}
		if found == nil || enc.CreatedAt.After(found.CreatedAt) {
			found = enc
		}
	}
	if found == nil {
		return nil, fmt.Errorf("active encounter at %s: %w", locationID, storage.ErrNotFound)
	}
	return found, nil
}

func (r encounters) Save(_ context.Context, enc *combat.Encounter) error {
	enc.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(enc)
	if err != nil {
		return fmt.Errorf("encoding encounter %s: %w", enc.ID, err)
	}
	r.s.data.encounters[key{enc.GuildID, enc.ID}] = raw
	return nil
}

func decodeEncounter(raw []byte) (*combat.Encounter, error) {
	var enc combat.Encounter
	if err := json.Unmarshal(raw, &enc); err != nil {
		return nil, fmt.Errorf("decoding encounter: %w", err)
	}
	return &enc, nil
}

func clonePlayer(p *roster.Player) *roster.Player {
	c := *p
	c.Abilities = append([]string(nil), p.Abilities...)
	c.Resources = cloneInts(p.Resources)
	c.QueuedActions = cloneRaw(p.QueuedActions)
	return &c
}

func cloneParty(p *roster.Party) *roster.Party {
	c := *p
	c.MemberIDs = append([]string(nil), p.MemberIDs...)
	c.QueuedActions = cloneRaw(p.QueuedActions)
	return &c
}

func cloneNPC(n *roster.NPC) *roster.NPC {
	c := *n
	c.Abilities = append([]string(nil), n.Abilities...)
	c.Resources = cloneInts(n.Resources)
	return &c
}

func cloneInts(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneRaw(in []json.RawMessage) []json.RawMessage {
	if in == nil {
		return nil
	}
	out := make([]json.RawMessage, len(in))
	for i, r := range in {
		out[i] = append(json.RawMessage(nil), r...)
	}
	return out
}
