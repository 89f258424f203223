package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cory-johannsen/guildturn/internal/game/actor"
	"github.com/cory-johannsen/guildturn/internal/game/roster"
	"github.com/cory-johannsen/guildturn/internal/storage"
)

const playerColumns = `id, guild_id, name, location_id, party_id, status, faction, level, xp,
	max_hp, current_hp, armor_class, dexterity, strength, abilities, resources, queued_actions`

// PlayerRepository persists players inside one transaction.
type PlayerRepository struct {
	db pgx.Tx
}

func scanPlayer(row pgx.Row) (*roster.Player, error) {
	var p roster.Player
	var status string
	if err := row.Scan(
		&p.ID, &p.GuildID, &p.Name, &p.LocationID, &p.PartyID, &status, &p.Faction, &p.Level, &p.XP,
		&p.MaxHP, &p.CurrentHP, &p.ArmorClass, &p.Dexterity, &p.Strength, &p.Abilities, &p.Resources, &p.QueuedActions,
	); err != nil {
		return nil, err
	}
	p.Status = actor.Status(status)
	return &p, nil
}

// Get retrieves a player by guild and ID.
//
// Postcondition: Returns the player or an error wrapping storage.ErrNotFound.
func (r *PlayerRepository) Get(ctx context.Context, guildID, id string) (*roster.Player, error) {
	p, err := scanPlayer(r.db.QueryRow(ctx,
		`SELECT `+playerColumns+` FROM players WHERE guild_id = $1 AND id = $2`, guildID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("player %s: %w", id, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("querying player: %w", err)
	}
	return p, nil
}

// ListByStatus returns the guild's players in status, locking the rows for
// the rest of the transaction.
func (r *PlayerRepository) ListByStatus(ctx context.Context, guildID string, status actor.Status) ([]*roster.Player, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+playerColumns+` FROM players WHERE guild_id = $1 AND status = $2 ORDER BY id FOR UPDATE`,
		guildID, string(status))
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	defer rows.Close()

	out := make([]*roster.Player, 0)
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning player row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Save inserts or replaces p.
func (r *PlayerRepository) Save(ctx context.Context, p *roster.Player) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO players (`+playerColumns+`, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17, NOW())
		ON CONFLICT (guild_id, id) DO UPDATE SET
			name = EXCLUDED.name, location_id = EXCLUDED.location_id, party_id = EXCLUDED.party_id,
			status = EXCLUDED.status, faction = EXCLUDED.faction, level = EXCLUDED.level, xp = EXCLUDED.xp,
			max_hp = EXCLUDED.max_hp, current_hp = EXCLUDED.current_hp, armor_class = EXCLUDED.armor_class,
			dexterity = EXCLUDED.dexterity, strength = EXCLUDED.strength, abilities = EXCLUDED.abilities,
			resources = EXCLUDED.resources, queued_actions = EXCLUDED.queued_actions, updated_at = NOW()`,
		p.ID, p.GuildID, p.Name, p.LocationID, p.PartyID, string(p.Status), p.Faction, p.Level, p.XP,
		p.MaxHP, p.CurrentHP, p.ArmorClass, p.Dexterity, p.Strength,
		strs(p.Abilities), ints(p.Resources), raws(p.QueuedActions),
	)
	if err != nil {
		return fmt.Errorf("saving player %s: %w", p.ID, err)
	}
	return nil
}

const partyColumns = `id, guild_id, name, leader_id, member_ids, location_id, status, queued_actions`

// PartyRepository persists parties inside one transaction.
type PartyRepository struct {
	db pgx.Tx
}

func scanParty(row pgx.Row) (*roster.Party, error) {
	var p roster.Party
	var status string
	if err := row.Scan(&p.ID, &p.GuildID, &p.Name, &p.LeaderID, &p.MemberIDs, &p.LocationID, &status, &p.QueuedActions); err != nil {
		return nil, err
	}
	p.Status = actor.Status(status)
	return &p, nil
}

// Get retrieves a party by guild and ID.
func (r *PartyRepository) Get(ctx context.Context, guildID, id string) (*roster.Party, error) {
	p, err := scanParty(r.db.QueryRow(ctx,
		`SELECT `+partyColumns+` FROM parties WHERE guild_id = $1 AND id = $2`, guildID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("party %s: %w", id, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("querying party: %w", err)
	}
	return p, nil
}

// ListByStatus returns the guild's parties in status, locking the rows.
func (r *PartyRepository) ListByStatus(ctx context.Context, guildID string, status actor.Status) ([]*roster.Party, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+partyColumns+` FROM parties WHERE guild_id = $1 AND status = $2 ORDER BY id FOR UPDATE`,
		guildID, string(status))
	if err != nil {
		return nil, fmt.Errorf("listing parties: %w", err)
	}
	defer rows.Close()

	out := make([]*roster.Party, 0)
	for rows.Next() {
		p, err := scanParty(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning party row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Save inserts or replaces p.
func (r *PartyRepository) Save(ctx context.Context, p *roster.Party) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO parties (`+partyColumns+`, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8, NOW())
		ON CONFLICT (guild_id, id) DO UPDATE SET
			name = EXCLUDED.name, leader_id = EXCLUDED.leader_id, member_ids = EXCLUDED.member_ids,
			location_id = EXCLUDED.location_id, status = EXCLUDED.status,
			queued_actions = EXCLUDED.queued_actions, updated_at = NOW()`,
		p.ID, p.GuildID, p.Name, p.LeaderID, strs(p.MemberIDs), p.LocationID, string(p.Status), raws(p.QueuedActions),
	)
	if err != nil {
		return fmt.Errorf("saving party %s: %w", p.ID, err)
	}
	return nil
}

const npcColumns = `id, guild_id, name, location_id, faction, personality, strategy, level,
	max_hp, current_hp, armor_class, dexterity, strength, abilities, resources, status`

// NPCRepository persists NPCs inside one transaction.
type NPCRepository struct {
	db pgx.Tx
}

// Get retrieves an NPC by guild and ID.
func (r *NPCRepository) Get(ctx context.Context, guildID, id string) (*roster.NPC, error) {
	var n roster.NPC
	var status string
	err := r.db.QueryRow(ctx,
		`SELECT `+npcColumns+` FROM npcs WHERE guild_id = $1 AND id = $2`, guildID, id,
	).Scan(
		&n.ID, &n.GuildID, &n.Name, &n.LocationID, &n.Faction, &n.Personality, &n.Strategy, &n.Level,
		&n.MaxHP, &n.CurrentHP, &n.ArmorClass, &n.Dexterity, &n.Strength, &n.Abilities, &n.Resources, &status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("npc %s: %w", id, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("querying npc: %w", err)
	}
	n.Status = actor.Status(status)
	return &n, nil
}

// Save inserts or replaces n.
func (r *NPCRepository) Save(ctx context.Context, n *roster.NPC) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO npcs (`+npcColumns+`, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16, NOW())
		ON CONFLICT (guild_id, id) DO UPDATE SET
			name = EXCLUDED.name, location_id = EXCLUDED.location_id, faction = EXCLUDED.faction,
			personality = EXCLUDED.personality, strategy = EXCLUDED.strategy, level = EXCLUDED.level,
			max_hp = EXCLUDED.max_hp, current_hp = EXCLUDED.current_hp, armor_class = EXCLUDED.armor_class,
			dexterity = EXCLUDED.dexterity, strength = EXCLUDED.strength, abilities = EXCLUDED.abilities,
			resources = EXCLUDED.resources, status = EXCLUDED.status, updated_at = NOW()`,
		n.ID, n.GuildID, n.Name, n.LocationID, n.Faction, n.Personality, n.Strategy, n.Level,
		n.MaxHP, n.CurrentHP, n.ArmorClass, n.Dexterity, n.Strength, strs(n.Abilities), ints(n.Resources), string(n.Status),
	)
	if err != nil {
		return fmt.Errorf("saving npc %s: %w", n.ID, err)
	}
	return nil
}

// The columns are NOT NULL, so nil collections are written as empty ones.

func strs(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func ints(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}

func raws(r []json.RawMessage) []json.RawMessage {
	if r == nil {
		return []json.RawMessage{}
	}
	return r
}
