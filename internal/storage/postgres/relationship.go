package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cory-johannsen/guildturn/internal/game/actor"
	"github.com/cory-johannsen/guildturn/internal/game/relationship"
)

const relationshipColumns = `guild_id, entity1_kind, entity1_id, entity2_kind, entity2_id, type, value, updated_at`

// RelationshipRepository implements relationship.Store on canonical rows:
// entity1 is always the lesser ref under actor.Less.
type RelationshipRepository struct {
	db pgx.Tx
}

func (r *RelationshipRepository) query(ctx context.Context, sql string, args ...any) ([]relationship.Relationship, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying relationships: %w", err)
	}
	defer rows.Close()

	out := make([]relationship.Relationship, 0)
	for rows.Next() {
		var rel relationship.Relationship
		var k1, k2 string
		if err := rows.Scan(&rel.GuildID, &k1, &rel.Entity1.ID, &k2, &rel.Entity2.ID, &rel.Type, &rel.Value, &rel.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning relationship row: %w", err)
		}
		rel.Entity1.Kind, rel.Entity2.Kind = actor.Kind(k1), actor.Kind(k2)
		out = append(out, rel)
	}
	return out, rows.Err()
}

// Between implements relationship.Store.
func (r *RelationshipRepository) Between(ctx context.Context, guildID string, a, b actor.Ref) ([]relationship.Relationship, error) {
	e1, e2 := actor.Canonical(a, b)
	return r.query(ctx, `
		SELECT `+relationshipColumns+` FROM relationships
		WHERE guild_id = $1 AND entity1_kind = $2 AND entity1_id = $3 AND entity2_kind = $4 AND entity2_id = $5
		ORDER BY type`,
		guildID, string(e1.Kind), e1.ID, string(e2.Kind), e2.ID)
}

// ForEntity implements relationship.Store.
func (r *RelationshipRepository) ForEntity(ctx context.Context, guildID string, ref actor.Ref) ([]relationship.Relationship, error) {
	return r.query(ctx, `
		SELECT `+relationshipColumns+` FROM relationships
		WHERE guild_id = $1
		  AND ((entity1_kind = $2 AND entity1_id = $3) OR (entity2_kind = $2 AND entity2_id = $3))
		ORDER BY entity1_kind, entity1_id, entity2_kind, entity2_id, type`,
		guildID, string(ref.Kind), ref.ID)
}

// Upsert implements relationship.Store. The pair is canonicalized and the
// value clamped before writing.
func (r *RelationshipRepository) Upsert(ctx context.Context, rel relationship.Relationship) error {
	e1, e2 := actor.Canonical(rel.Entity1, rel.Entity2)
	at := rel.UpdatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO relationships (`+relationshipColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (guild_id, entity1_kind, entity1_id, entity2_kind, entity2_id, type)
		DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		rel.GuildID, string(e1.Kind), e1.ID, string(e2.Kind), e2.ID, rel.Type, relationship.Clamp(rel.Value), at,
	)
	if err != nil {
		return fmt.Errorf("upserting relationship %s/%s %s: %w", e1, e2, rel.Type, err)
	}
	return nil
}
