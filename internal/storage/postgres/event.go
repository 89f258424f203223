package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cory-johannsen/guildturn/internal/eventlog"
	"github.com/cory-johannsen/guildturn/internal/game/actor"
)

// EventRepository appends to the events table inside one transaction, so an
// event is only visible when the unit of work that caused it commits.
type EventRepository struct {
	db pgx.Tx
}

// Append implements eventlog.Log.
func (r *EventRepository) Append(ctx context.Context, guildID string, kind eventlog.Kind, details map[string]any, refs []actor.Ref, locationID string) (eventlog.Entry, error) {
	e := eventlog.NewEntry(guildID, kind, details, refs, locationID)
	d := e.Details
	if d == nil {
		d = map[string]any{}
	}
	rs := e.Refs
	if rs == nil {
		rs = []actor.Ref{}
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO events (id, guild_id, kind, details, refs, location_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.GuildID, string(e.Kind), d, rs, e.LocationID, e.CreatedAt,
	)
	if err != nil {
		return eventlog.Entry{}, fmt.Errorf("appending %s event: %w", kind, err)
	}
	return e, nil
}

// ForGuild returns the guild's events in append order.
func (r *EventRepository) ForGuild(ctx context.Context, guildID string) ([]eventlog.Entry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, guild_id, kind, details, refs, location_id, created_at
		FROM events WHERE guild_id = $1 ORDER BY created_at, id`, guildID)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	out := make([]eventlog.Entry, 0)
	for rows.Next() {
		var e eventlog.Entry
		var kind string
		if err := rows.Scan(&e.ID, &e.GuildID, &kind, &e.Details, &e.Refs, &e.LocationID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		e.Kind = eventlog.Kind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}
