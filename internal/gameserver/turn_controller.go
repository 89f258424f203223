package gameserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cory-johannsen/guildturn/internal/eventlog"
	"github.com/cory-johannsen/guildturn/internal/game/actor"
	"github.com/cory-johannsen/guildturn/internal/game/roster"
	"github.com/cory-johannsen/guildturn/internal/observability"
	"github.com/cory-johannsen/guildturn/internal/storage"
)

// Reasons a turn signal did nothing.
const (
	SkipNoPendingActors = "no_pending_actors"
	SkipBusy            = "guild_busy"
)

// TurnReport summarizes one SignalEndOfTurn call.
type TurnReport struct {
	Guild   string `json:"guild"`
	Skipped bool   `json:"skipped"`
	// Reason is set when Skipped is true.
	Reason           string           `json:"reason,omitempty"`
	Results          []DispatchResult `json:"results,omitempty"`
	Dropped          int              `json:"dropped"`
	ProcessedPlayers int              `json:"processed_players"`
	ProcessedParties int              `json:"processed_parties"`
}

// Failed counts the actions that ended in error.
func (r *TurnReport) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Failed() {
			n++
		}
	}
	return n
}

// TurnController decides when a guild's queued actions run, and runs them.
//
// At most one cycle per guild is in flight across every controller sharing
// the same LockRegistry; a signal that finds the guild busy is a no-op, not
// a queued retry.
type TurnController struct {
	store     storage.Store
	locks     *LockRegistry
	processor *ActionProcessor
	logger    *zap.Logger
}

// NewTurnController creates a TurnController.
//
// Precondition: all arguments must be non-nil.
func NewTurnController(store storage.Store, locks *LockRegistry, processor *ActionProcessor, logger *zap.Logger) *TurnController {
	return &TurnController{store: store, locks: locks, processor: processor, logger: logger}
}

// drained is the work collected by one drain pass.
type drained struct {
	players []string
	parties []string
	actions []roster.QueuedAction
	dropped int
}

// SignalEndOfTurn re-evaluates whether guildID's turn can advance and, if
// so, processes it. It is idempotent and safe to call redundantly.
//
// The cycle is: readiness check, guild lock, drain of every pending actor's
// queue in one unit of work, dispatch of each action in its own unit of
// work, and finalize. The lock is released on every path.
//
// Postcondition: a non-nil error means the drain failed and nothing was
// dispatched; dispatch failures are reported in TurnReport.Results.
func (t *TurnController) SignalEndOfTurn(ctx context.Context, guildID string) (*TurnReport, error) {
	ctx, span := observability.Tracer().Start(ctx, "turn.SignalEndOfTurn", trace.WithAttributes(
		attribute.String("guild.id", guildID),
	))
	defer span.End()

	report := &TurnReport{Guild: guildID}
	ready, err := t.ready(ctx, guildID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "readiness check failed")
		return report, fmt.Errorf("checking readiness of guild %s: %w", guildID, err)
	}
	if !ready {
		report.Skipped, report.Reason = true, SkipNoPendingActors
		span.SetAttributes(attribute.String("turn.skipped", report.Reason))
		return report, nil
	}

	if !t.locks.TryAcquire(guildID) {
		t.logger.Debug("guild turn already in progress", zap.String("guild", guildID))
		report.Skipped, report.Reason = true, SkipBusy
		span.SetAttributes(attribute.String("turn.skipped", report.Reason))
		return report, nil
	}
	defer t.locks.Release(guildID)

	work, err := t.drain(ctx, guildID)
	if err != nil {
		t.logger.Error("draining queued actions", zap.String("guild", guildID), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "drain failed")
		return report, fmt.Errorf("draining guild %s: %w", guildID, err)
	}
	report.Dropped = work.dropped
	report.ProcessedPlayers = len(work.players)
	report.ProcessedParties = len(work.parties)

	for _, act := range work.actions {
		report.Results = append(report.Results, t.processor.Dispatch(ctx, guildID, act))
	}

	if err := t.finalize(ctx, guildID, work, report); err != nil {
		t.logger.Error("finalizing guild turn; statuses may need a manual reset",
			zap.String("guild", guildID), zap.Error(err))
		span.RecordError(err)
	}
	span.SetAttributes(
		attribute.Int("turn.actions", len(work.actions)),
		attribute.Int("turn.failed", report.Failed()),
		attribute.Int("turn.dropped", work.dropped),
	)
	t.logger.Info("guild turn processed",
		zap.String("guild", guildID),
		zap.Int("players", report.ProcessedPlayers),
		zap.Int("parties", report.ProcessedParties),
		zap.Int("actions", len(work.actions)),
		zap.Int("failed", report.Failed()),
		zap.Int("dropped", work.dropped),
	)
	return report, nil
}

// ready reports whether any player or party is waiting on resolution.
func (t *TurnController) ready(ctx context.Context, guildID string) (bool, error) {
	var pending bool
	err := t.store.WithinTx(ctx, func(tx storage.Tx) error {
		players, err := tx.Players().ListByStatus(ctx, guildID, actor.StatusTurnEnded)
		if err != nil {
			return err
		}
		if len(players) > 0 {
			pending = true
			return nil
		}
		parties, err := tx.Parties().ListByStatus(ctx, guildID, actor.StatusTurnEnded)
		if err != nil {
			return err
		}
		pending = len(parties) > 0
		return nil
	})
	return pending, err
}

// drain flips every eligible actor to processing, parses its queue, and
// clears it, all in one unit of work. Eligible actors are players whose
// status is turn_ended plus every member of a party whose status is
// turn_ended; the party's own queue is drained as well.
func (t *TurnController) drain(ctx context.Context, guildID string) (drained, error) {
	var work drained
	err := t.store.WithinTx(ctx, func(tx storage.Tx) error {
		work = drained{}
		players, err := tx.Players().ListByStatus(ctx, guildID, actor.StatusTurnEnded)
		if err != nil {
			return err
		}
		parties, err := tx.Parties().ListByStatus(ctx, guildID, actor.StatusTurnEnded)
		if err != nil {
			return err
		}

		seen := make(map[string]bool, len(players))
		for _, p := range players {
			seen[p.ID] = true
		}
		for _, party := range parties {
			for _, id := range party.MemberIDs {
				if seen[id] {
					continue
				}
				m, err := tx.Players().Get(ctx, guildID, id)
				if errors.Is(err, storage.ErrNotFound) {
					t.logger.Warn("party member not found", zap.String("guild", guildID), zap.String("party", party.ID), zap.String("player", id))
					continue
				}
				if err != nil {
					return fmt.Errorf("loading party member %s: %w", id, err)
				}
				seen[id] = true
				players = append(players, m)
			}
		}

		for _, p := range players {
			work.actions = append(work.actions, t.parseQueue(ctx, tx, guildID, p.Ref(), p.LocationID, p.QueuedActions, &work.dropped)...)
			p.QueuedActions = nil
			p.Status = actor.StatusProcessing
			if err := tx.Players().Save(ctx, p); err != nil {
				return fmt.Errorf("saving player %s: %w", p.ID, err)
			}
			work.players = append(work.players, p.ID)
		}
		for _, party := range parties {
			work.actions = append(work.actions, t.parseQueue(ctx, tx, guildID, party.Ref(), party.LocationID, party.QueuedActions, &work.dropped)...)
			party.QueuedActions = nil
			party.Status = actor.StatusProcessing
			if err := tx.Parties().Save(ctx, party); err != nil {
				return fmt.Errorf("saving party %s: %w", party.ID, err)
			}
			work.parties = append(work.parties, party.ID)
		}
		return nil
	})
	return work, err
}

// parseQueue parses raw entries in order. Malformed entries are logged,
// recorded as action_dropped, and skipped.
func (t *TurnController) parseQueue(ctx context.Context, tx storage.Tx, guildID string, owner actor.Ref, locationID string, raw []json.RawMessage, dropped *int) []roster.QueuedAction {
	var out []roster.QueuedAction
	for i, entry := range raw {
		act, err := roster.ParseQueuedAction(owner, entry)
		if err != nil {
			*dropped++
			t.logger.Warn("dropping malformed queued action",
				zap.String("guild", guildID),
				zap.Stringer("actor", owner),
				zap.Int("index", i),
				zap.Error(err),
			)
			if _, err := tx.Events().Append(ctx, guildID, eventlog.KindActionDropped, map[string]any{
				"index": i,
				"raw":   string(entry),
				"error": err.Error(),
			}, []actor.Ref{owner}, locationID); err != nil {
				t.logger.Warn("recording dropped action", zap.String("guild", guildID), zap.Error(err))
			}
			continue
		}
		out = append(out, act)
	}
	return out
}

// finalize settles every processed actor's status and records the
// turn_processed summary. Actors still fighting settle at in_combat; the
// rest return to exploring. Each actor settles in its own unit of work, so a
// failure on one is logged and the rest are still settled.
func (t *TurnController) finalize(ctx context.Context, guildID string, work drained, report *TurnReport) error {
	for _, id := range work.players {
		err := t.store.WithinTx(ctx, func(tx storage.Tx) error {
			return t.settlePlayer(ctx, tx, guildID, id)
		})
		if err != nil {
			t.logger.Error("settling player status", zap.String("guild", guildID), zap.String("player", id), zap.Error(err))
		}
	}
	for _, id := range work.parties {
		err := t.store.WithinTx(ctx, func(tx storage.Tx) error {
			return t.settleParty(ctx, tx, guildID, id)
		})
		if err != nil {
			t.logger.Error("settling party status", zap.String("guild", guildID), zap.String("party", id), zap.Error(err))
		}
	}
	return t.store.WithinTx(ctx, func(tx storage.Tx) error {
		_, err := tx.Events().Append(ctx, guildID, eventlog.KindTurnProcessed, map[string]any{
			"players": len(work.players),
			"parties": len(work.parties),
			"actions": len(work.actions),
			"failed":  report.Failed(),
			"dropped": work.dropped,
		}, nil, "")
		return err
	})
}

func (t *TurnController) settlePlayer(ctx context.Context, tx storage.Tx, guildID, id string) error {
	p, err := tx.Players().Get(ctx, guildID, id)
	if err != nil {
		return err
	}
	fighting, err := engaged(ctx, tx, guildID, p.LocationID, []actor.Ref{p.Ref()})
	if err != nil {
		return err
	}
	if st := settle(fighting); p.Status != st {
		p.Status = st
		return tx.Players().Save(ctx, p)
	}
	return nil
}

func (t *TurnController) settleParty(ctx context.Context, tx storage.Tx, guildID, id string) error {
	party, err := tx.Parties().Get(ctx, guildID, id)
	if err != nil {
		return err
	}
	members := make([]actor.Ref, len(party.MemberIDs))
	for i, m := range party.MemberIDs {
		members[i] = actor.Player(m)
	}
	fighting, err := engaged(ctx, tx, guildID, party.LocationID, members)
	if err != nil {
		return err
	}
	if st := settle(fighting); party.Status != st {
		party.Status = st
		return tx.Parties().Save(ctx, party)
	}
	return nil
}

func settle(fighting bool) actor.Status {
	if fighting {
		return actor.StatusInCombat
	}
	return actor.StatusExploring
}
