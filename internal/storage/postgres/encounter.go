package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cory-johannsen/guildturn/internal/game/combat"
	"github.com/cory-johannsen/guildturn/internal/storage"
)

var terminalStatuses = []string{
	string(combat.StatusVictoryPlayers),
	string(combat.StatusVictoryNPCs),
	string(combat.StatusStalemate),
	string(combat.StatusError),
}

// EncounterRepository stores each encounter aggregate as one JSONB document
// with its routing columns (location, status) denormalized alongside.
type EncounterRepository struct {
	db pgx.Tx
}

func decodeEncounter(raw []byte) (*combat.Encounter, error) {
	var enc combat.Encounter
	if err := json.Unmarshal(raw, &enc); err != nil {
		return nil, fmt.Errorf("decoding encounter: %w", err)
	}
	return &enc, nil
}

// Get retrieves and locks an encounter.
func (r *EncounterRepository) Get(ctx context.Context, guildID, id string) (*combat.Encounter, error) {
	var raw []byte
	err := r.db.QueryRow(ctx,
		`SELECT state FROM encounters WHERE guild_id = $1 AND id = $2 FOR UPDATE`, guildID, id,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("encounter %s: %w", id, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("querying encounter: %w", err)
	}
	return decodeEncounter(raw)
}

// ActiveAt retrieves and locks the newest non-terminal encounter at a
// location.
func (r *EncounterRepository) ActiveAt(ctx context.Context, guildID, locationID string) (*combat.Encounter, error) {
	var raw []byte
	err := r.db.QueryRow(ctx, `
		SELECT state FROM encounters
		WHERE guild_id = $1 AND location_id = $2 AND status <> ALL($3)
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE`,
		guildID, locationID, terminalStatuses,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("active encounter at %s: %w", locationID, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("querying active encounter: %w", err)
	}
	return decodeEncounter(raw)
}

// Save inserts or replaces the aggregate.
//
// Postcondition: enc.UpdatedAt is set to the save time.
func (r *EncounterRepository) Save(ctx context.Context, enc *combat.Encounter) error {
	enc.UpdatedAt = time.Now().UTC()
	if enc.CreatedAt.IsZero() {
		enc.CreatedAt = enc.UpdatedAt
	}
	raw, err := json.Marshal(enc)
	if err != nil {
		return fmt.Errorf("encoding encounter %s: %w", enc.ID, err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO encounters (guild_id, id, location_id, status, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (guild_id, id) DO UPDATE SET
			location_id = EXCLUDED.location_id, status = EXCLUDED.status,
			state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
		enc.GuildID, enc.ID, enc.LocationID, string(enc.Status), raw, enc.CreatedAt, enc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving encounter %s: %w", enc.ID, err)
	}
	return nil
}
