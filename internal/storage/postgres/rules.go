package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// RuleRepository holds per-guild rule overrides. It reads outside any unit
// of work: rules are tenant configuration, not turn state.
type RuleRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewRuleRepository creates a RuleRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewRuleRepository(db *pgxpool.Pool, logger *zap.Logger) *RuleRepository {
	return &RuleRepository{db: db, logger: logger}
}

// Get implements rules.Lookup. Query failures are logged and reported as a
// miss so the caller falls through to defaults.
func (r *RuleRepository) Get(ctx context.Context, guildID, key string) (any, bool) {
	var v any
	err := r.db.QueryRow(ctx,
		`SELECT value FROM guild_rules WHERE guild_id = $1 AND key = $2`, guildID, key,
	).Scan(&v)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			r.logger.Warn("rule lookup failed; using default",
				zap.String("guild", guildID), zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return v, true
}

// Set stores a guild override. value is stored as JSON.
func (r *RuleRepository) Set(ctx context.Context, guildID, key string, value any) error {
	// Marshalled here: pgx would pass a bare Go string through as JSON text.
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding rule %s: %w", key, err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO guild_rules (guild_id, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (guild_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		guildID, key, raw,
	)
	if err != nil {
		return fmt.Errorf("setting rule %s for guild %s: %w", key, guildID, err)
	}
	return nil
}

// All returns every override for guildID.
func (r *RuleRepository) All(ctx context.Context, guildID string) (map[string]any, error) {
	rows, err := r.db.Query(ctx, `SELECT key, value FROM guild_rules WHERE guild_id = $1`, guildID)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	defer rows.Close()

	out := make(map[string]any)
	for rows.Next() {
		var k string
		var v any
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning rule row: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}
