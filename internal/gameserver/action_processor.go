package gameserver

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cory-johannsen/guildturn/internal/eventlog"
	"github.com/cory-johannsen/guildturn/internal/game/actor"
	"github.com/cory-johannsen/guildturn/internal/game/combat"
	"github.com/cory-johannsen/guildturn/internal/game/roster"
	"github.com/cory-johannsen/guildturn/internal/observability"
	"github.com/cory-johannsen/guildturn/internal/storage"
)

// Dispatch result statuses.
const (
	DispatchSuccess = "success"
	DispatchError   = "error"
	// DispatchSkipped marks an intent no handler knows; it was logged, not run.
	DispatchSkipped = "skipped"
)

// DispatchResult is the outcome of one queued action.
type DispatchResult struct {
	Actor   actor.Ref             `json:"actor"`
	Intent  string                `json:"intent"`
	Status  string                `json:"status"`
	Message string                `json:"message,omitempty"`
	Combat  []combat.ActionResult `json:"combat,omitempty"`
}

// Failed reports whether the action errored.
func (r DispatchResult) Failed() bool { return r.Status == DispatchError }

// IntentHandler executes one queued action inside tx. A returned error rolls
// back everything the handler wrote.
//
// Postcondition: the processor fills Actor, Intent, and an empty Status.
type IntentHandler func(ctx context.Context, tx storage.Tx, guildID string, act roster.QueuedAction) (DispatchResult, error)

// ActionProcessor routes queued actions to intent handlers, each in its own
// unit of work.
type ActionProcessor struct {
	store    storage.Store
	mu       sync.RWMutex
	handlers map[string]IntentHandler
	fallback IntentHandler
	logger   *zap.Logger
}

// NewActionProcessor creates a processor with no handlers other than the
// unknown-intent fallback.
//
// Precondition: store and logger must be non-nil.
func NewActionProcessor(store storage.Store, logger *zap.Logger) *ActionProcessor {
	return &ActionProcessor{
		store:    store,
		handlers: make(map[string]IntentHandler),
		fallback: unhandledIntent,
		logger:   logger,
	}
}

// Register binds intent to h, replacing any existing handler.
func (p *ActionProcessor) Register(intent string, h IntentHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[intent] = h
}

// Handles reports whether intent has a registered handler.
func (p *ActionProcessor) Handles(intent string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.handlers[intent]
	return ok
}

func (p *ActionProcessor) handlerFor(intent string) IntentHandler {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if h, ok := p.handlers[intent]; ok {
		return h
	}
	return p.fallback
}

// Dispatch runs act in its own unit of work. Handler errors and panics are
// caught, rolled back, recorded as an action_error event in a separate unit
// of work, and returned as an error result; they never propagate. A handler
// may also report an error result without an error, keeping its writes; that
// result gets the same action_error event.
func (p *ActionProcessor) Dispatch(ctx context.Context, guildID string, act roster.QueuedAction) DispatchResult {
	ctx, span := observability.Tracer().Start(ctx, "turn.Dispatch", trace.WithAttributes(
		attribute.String("guild.id", guildID),
		attribute.String("actor", act.Actor.String()),
		attribute.String("intent", act.Intent),
	))
	defer span.End()

	h := p.handlerFor(act.Intent)
	var res DispatchResult
	err := p.store.WithinTx(ctx, func(tx storage.Tx) error {
		r, err := p.invoke(ctx, tx, h, guildID, act)
		res = r
		return err
	})
	res.Actor = act.Actor
	res.Intent = act.Intent
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "action failed")
		p.logger.Warn("queued action failed",
			zap.String("guild", guildID),
			zap.Stringer("actor", act.Actor),
			zap.String("intent", act.Intent),
			zap.Error(err),
		)
		p.recordFailure(ctx, guildID, act, err.Error())
		return DispatchResult{Actor: act.Actor, Intent: act.Intent, Status: DispatchError, Message: err.Error()}
	}
	switch res.Status {
	case "":
		res.Status = DispatchSuccess
	case DispatchError:
		span.SetStatus(codes.Error, "action rejected")
		p.logger.Info("queued action rejected",
			zap.String("guild", guildID),
			zap.Stringer("actor", act.Actor),
			zap.String("intent", act.Intent),
			zap.String("message", res.Message),
		)
		p.recordFailure(ctx, guildID, act, res.Message)
	}
	span.SetAttributes(attribute.String("result", res.Status))
	return res
}

func (p *ActionProcessor) invoke(ctx context.Context, tx storage.Tx, h IntentHandler, guildID string, act roster.QueuedAction) (res DispatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler for %q panicked: %v", act.Intent, r)
		}
	}()
	return h(ctx, tx, guildID, act)
}

func (p *ActionProcessor) recordFailure(ctx context.Context, guildID string, act roster.QueuedAction, cause string) {
	err := p.store.WithinTx(ctx, func(tx storage.Tx) error {
		_, err := tx.Events().Append(ctx, guildID, eventlog.KindActionError, map[string]any{
			"intent":   act.Intent,
			"entities": entityDetails(act.Entities),
			"error":    cause,
		}, []actor.Ref{act.Actor}, "")
		return err
	})
	if err != nil {
		p.logger.Error("recording action error", zap.String("guild", guildID), zap.Stringer("actor", act.Actor), zap.Error(err))
	}
}

func entityDetails(es []roster.Entity) []map[string]any {
	out := make([]map[string]any, len(es))
	for i, e := range es {
		out[i] = map[string]any{"type": e.Type, "value": e.Value}
	}
	return out
}

// unhandledIntent is the placeholder for intents with no handler: it only
// records the attempt.
func unhandledIntent(ctx context.Context, tx storage.Tx, guildID string, act roster.QueuedAction) (DispatchResult, error) {
	if _, err := tx.Events().Append(ctx, guildID, eventlog.KindUnhandledIntent, map[string]any{
		"intent":   act.Intent,
		"entities": entityDetails(act.Entities),
	}, []actor.Ref{act.Actor}, ""); err != nil {
		return DispatchResult{}, err
	}
	return DispatchResult{Status: DispatchSkipped, Message: fmt.Sprintf("nothing handles %q yet", act.Intent)}, nil
}
