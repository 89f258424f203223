package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cory-johannsen/guildturn/internal/eventlog"
	"github.com/cory-johannsen/guildturn/internal/game/relationship"
	"github.com/cory-johannsen/guildturn/internal/storage"
)

// Store is a storage.Store in which each unit of work is one pgx
// transaction.
type Store struct {
	pool *Pool
}

// NewStore creates a Store backed by pool.
//
// Precondition: pool must be open and migrated.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// WithinTx implements storage.Store.
//
// Postcondition: fn's writes are committed iff fn returns nil; a panic in fn
// is converted to an error and rolls the transaction back.
func (s *Store) WithinTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool.DB(), func(t pgx.Tx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("unit of work panicked: %v", r)
			}
		}()
		return fn(&tx{db: t})
	})
}

type tx struct {
	db pgx.Tx
}

func (t *tx) Players() storage.PlayerRepository       { return &PlayerRepository{db: t.db} }
func (t *tx) Parties() storage.PartyRepository        { return &PartyRepository{db: t.db} }
func (t *tx) NPCs() storage.NPCRepository             { return &NPCRepository{db: t.db} }
func (t *tx) Encounters() storage.EncounterRepository { return &EncounterRepository{db: t.db} }
func (t *tx) Relationships() relationship.Store       { return &RelationshipRepository{db: t.db} }
func (t *tx) Events() eventlog.Log                    { return &EventRepository{db: t.db} }
