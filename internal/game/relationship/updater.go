package relationship

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/guildturn/internal/game/actor"
)

// Updater applies deltas to relationships. It is the relationship-update
// collaborator invoked after combat ends.
type Updater struct {
	logger *zap.Logger
}

// NewUpdater creates an Updater.
func NewUpdater(logger *zap.Logger) *Updater {
	return &Updater{logger: logger}
}

// Adjust adds delta to the (a, b, typ) relationship inside store, creating it
// at zero when absent.
//
// Precondition: a != b.
// Postcondition: the stored value is clamped to [MinValue, MaxValue].
func (u *Updater) Adjust(ctx context.Context, store Store, guildID string, a, b actor.Ref, typ string, delta int, cause string) (Relationship, error) {
	if a == b {
		return Relationship{}, fmt.Errorf("adjusting relationship of %s with itself", a)
	}
	rels, err := store.Between(ctx, guildID, a, b)
	if err != nil {
		return Relationship{}, fmt.Errorf("loading relationship %s/%s: %w", a, b, err)
	}
	current := New(guildID, a, b, typ, 0)
	for _, r := range rels {
		if r.Type == typ {
			current = r
			break
		}
	}
	before := current.Value
	current.Value = Clamp(current.Value + delta)
	current.UpdatedAt = time.Now().UTC()
	if err := store.Upsert(ctx, current); err != nil {
		return Relationship{}, fmt.Errorf("storing relationship %s/%s: %w", a, b, err)
	}
	u.logger.Debug("relationship adjusted",
		zap.String("guild", guildID),
		zap.Stringer("a", a),
		zap.Stringer("b", b),
		zap.String("type", typ),
		zap.Int("before", before),
		zap.Int("after", current.Value),
		zap.String("cause", cause),
	)
	return current, nil
}
