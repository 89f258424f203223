package gameserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cory-johannsen/guildturn/internal/eventlog"
	"github.com/cory-johannsen/guildturn/internal/game/actor"
	"github.com/cory-johannsen/guildturn/internal/game/ai"
	"github.com/cory-johannsen/guildturn/internal/game/combat"
	"github.com/cory-johannsen/guildturn/internal/game/dice"
	"github.com/cory-johannsen/guildturn/internal/game/relationship"
	"github.com/cory-johannsen/guildturn/internal/game/roster"
	"github.com/cory-johannsen/guildturn/internal/observability"
	"github.com/cory-johannsen/guildturn/internal/rules"
	"github.com/cory-johannsen/guildturn/internal/storage"
)

// Fallbacks used when neither the guild nor the defaults file sets a value.
const (
	DefaultMaxAutoTurns   = 50
	defaultInitiativeDice = "1d20"
	defaultMaxHP          = 20
	defaultArmorClass     = 10
	defaultDexterity      = 10
)

// ErrNotYourTurn is returned when a player acts out of initiative order.
var ErrNotYourTurn = errors.New("not your turn")

// CombatCycle owns the lifecycle of an encounter: creation with rolled
// initiative, the turn walk through computer-controlled actors, end
// detection, and end-of-combat consequences.
//
// Every method operates inside the caller's unit of work; nothing is held
// between calls, so turns within one encounter are sequential by virtue of
// the caller owning the encounter row for the duration of the Tx.
type CombatCycle struct {
	engine       *combat.Engine
	decider      *ai.Decider
	lookup       rules.Lookup
	hooks        []Hook
	maxAutoTurns int
	logger       *zap.Logger
}

// NewCombatCycle creates a CombatCycle.
//
// Precondition: engine, decider, lookup, and logger must be non-nil;
// maxAutoTurns <= 0 selects DefaultMaxAutoTurns.
// Postcondition: hooks run in the given order when an encounter ends.
func NewCombatCycle(engine *combat.Engine, decider *ai.Decider, lookup rules.Lookup, maxAutoTurns int, logger *zap.Logger, hooks ...Hook) *CombatCycle {
	if maxAutoTurns <= 0 {
		maxAutoTurns = DefaultMaxAutoTurns
	}
	return &CombatCycle{
		engine:       engine,
		decider:      decider,
		lookup:       lookup,
		hooks:        hooks,
		maxAutoTurns: maxAutoTurns,
		logger:       logger,
	}
}

// Start creates and persists a new encounter at locationID between refs.
//
// Each participant's stats come from its durable record, with the guild's
// rule defaults filling unset values. Initiative is rolled once per
// participant with the configured dice expression and sorted descending,
// ties keeping input order. Involved players and their parties move to
// in_combat and a combat_started event is appended.
//
// Precondition: refs name players or NPCs; duplicates are ignored.
// Postcondition: an encounter whose initiative produced an empty order is
// returned in StatusError with a nil error; storage failures return an error.
func (c *CombatCycle) Start(ctx context.Context, tx storage.Tx, guildID, locationID string, refs []actor.Ref) (*combat.Encounter, error) {
	now := time.Now().UTC()
	enc := &combat.Encounter{
		ID:         uuid.NewString(),
		GuildID:    guildID,
		LocationID: locationID,
		Status:     combat.StatusPendingStart,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	snap := rules.Capture(ctx, c.lookup, guildID, rules.CombatKeys)
	enc.RulesSnapshot = snap

	players, err := c.enlist(ctx, tx, enc, refs)
	if err != nil {
		return nil, err
	}

	order := combat.RollInitiative(enc.Participants, c.initiativeDice(ctx, enc), c.engine.Roller())
	if len(order) == 0 {
		enc.Fail("initiative produced an empty turn order")
		c.logger.Warn("combat start produced no turn order",
			zap.String("guild", guildID),
			zap.String("location", locationID),
			zap.Int("requested", len(refs)),
		)
		if _, err := tx.Events().Append(ctx, guildID, eventlog.KindCombatError,
			map[string]any{"encounter_id": enc.ID, "reason": "empty turn order"}, refs, locationID); err != nil {
			return nil, fmt.Errorf("recording combat error: %w", err)
		}
		if err := tx.Encounters().Save(ctx, enc); err != nil {
			return nil, fmt.Errorf("saving encounter %s: %w", enc.ID, err)
		}
		return enc, nil
	}

	enc.TurnOrder = combat.TurnOrder{Order: order, CurrentIndex: 0, Round: 1}
	first := order[0]
	enc.CurrentTurn = &first
	enc.Status = combat.StatusActive
	for _, p := range enc.Participants {
		enc.Logf(p.Ref, "%s rolls initiative: %d", p.Name, p.Initiative)
	}

	if err := c.markInCombat(ctx, tx, players); err != nil {
		return nil, err
	}
	if _, err := tx.Events().Append(ctx, guildID, eventlog.KindCombatStarted, map[string]any{
		"encounter_id": enc.ID,
		"order":        refStrings(order),
		"round":        enc.TurnOrder.Round,
	}, order, locationID); err != nil {
		return nil, fmt.Errorf("recording combat start: %w", err)
	}
	if err := tx.Encounters().Save(ctx, enc); err != nil {
		return nil, fmt.Errorf("saving encounter %s: %w", enc.ID, err)
	}
	c.logger.Info("combat started",
		zap.String("guild", guildID),
		zap.String("encounter", enc.ID),
		zap.String("location", locationID),
		zap.Strings("order", refStrings(order)),
	)
	return enc, nil
}

// Join adds refs that are not yet participants to an active encounter. Each
// newcomer rolls initiative and takes the last slot of the turn order.
//
// Postcondition: existing participants and the current turn are unchanged.
func (c *CombatCycle) Join(ctx context.Context, tx storage.Tx, enc *combat.Encounter, refs []actor.Ref) error {
	if enc.Status != combat.StatusActive {
		return fmt.Errorf("joining encounter %s: status is %s", enc.ID, enc.Status)
	}
	var fresh []actor.Ref
	for _, ref := range refs {
		if _, ok := enc.Participant(ref); !ok {
			fresh = append(fresh, ref)
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	before := len(enc.Participants)
	players, err := c.enlist(ctx, tx, enc, fresh)
	if err != nil {
		return err
	}
	added := enc.Participants[before:]
	order := combat.RollInitiative(added, c.initiativeDice(ctx, enc), c.engine.Roller())
	enc.TurnOrder.Order = append(enc.TurnOrder.Order, order...)
	for _, p := range added {
		enc.Logf(p.Ref, "%s joins the fight (initiative %d)", p.Name, p.Initiative)
	}
	if err := c.markInCombat(ctx, tx, players); err != nil {
		return err
	}
	return tx.Encounters().Save(ctx, enc)
}

// enlist loads each ref and appends its participant to enc. Missing records
// are skipped with a warning. It returns the player records it enlisted.
func (c *CombatCycle) enlist(ctx context.Context, tx storage.Tx, enc *combat.Encounter, refs []actor.Ref) ([]*roster.Player, error) {
	snap := rules.Snapshot(enc.RulesSnapshot)
	defaults := combat.Defaults{
		MaxHP:      rules.Int(ctx, snap, enc.GuildID, rules.KeyDefaultMaxHP, defaultMaxHP),
		ArmorClass: rules.Int(ctx, snap, enc.GuildID, rules.KeyDefaultArmorClass, defaultArmorClass),
		Dexterity:  rules.Int(ctx, snap, enc.GuildID, rules.KeyDefaultDexterity, defaultDexterity),
	}
	var players []*roster.Player
	for _, ref := range refs {
		if _, dup := enc.Participant(ref); dup {
			continue
		}
		rec, err := storage.LoadCombatant(ctx, tx, enc.GuildID, ref)
		if errors.Is(err, storage.ErrNotFound) {
			c.logger.Warn("combatant not found; leaving it out",
				zap.String("guild", enc.GuildID),
				zap.String("encounter", enc.ID),
				zap.Stringer("ref", ref),
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("loading combatant %s: %w", ref, err)
		}
		if err := enc.AddParticipant(combat.NewParticipant(rec, defaults)); err != nil {
			return nil, err
		}
		if p, ok := rec.(*roster.Player); ok {
			players = append(players, p)
		}
	}
	return players, nil
}

func (c *CombatCycle) initiativeDice(ctx context.Context, enc *combat.Encounter) dice.Expression {
	raw := rules.String(ctx, rules.Snapshot(enc.RulesSnapshot), enc.GuildID, rules.KeyInitiativeDice, defaultInitiativeDice)
	expr, err := dice.Parse(raw)
	if err != nil {
		c.logger.Warn("invalid initiative dice; using default",
			zap.String("encounter", enc.ID), zap.String("dice", raw), zap.Error(err))
		return dice.MustParse(defaultInitiativeDice)
	}
	return expr
}

// markInCombat moves players, and the parties they belong to, to in_combat.
func (c *CombatCycle) markInCombat(ctx context.Context, tx storage.Tx, players []*roster.Player) error {
	parties := make(map[string]bool)
	for _, p := range players {
		p.Status = actor.StatusInCombat
		if err := tx.Players().Save(ctx, p); err != nil {
			return fmt.Errorf("saving player %s: %w", p.ID, err)
		}
		if p.PartyID != "" && !parties[p.PartyID] {
			parties[p.PartyID] = true
			if err := setPartyStatus(ctx, tx, p.GuildID, p.PartyID, actor.StatusInCombat); err != nil {
				return err
			}
		}
	}
	return nil
}

func setPartyStatus(ctx context.Context, tx storage.Tx, guildID, partyID string, st actor.Status) error {
	party, err := tx.Parties().Get(ctx, guildID, partyID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading party %s: %w", partyID, err)
	}
	party.Status = st
	if err := tx.Parties().Save(ctx, party); err != nil {
		return fmt.Errorf("saving party %s: %w", partyID, err)
	}
	return nil
}

// AdvanceTurn moves enc to its next living participant.
func (c *CombatCycle) AdvanceTurn(enc *combat.Encounter) (bool, error) {
	return combat.AdvanceTurn(enc)
}

// CheckEnd reports whether enc is over and which team won.
func (c *CombatCycle) CheckEnd(enc *combat.Encounter) (bool, string) {
	return combat.CheckEnd(enc)
}

// Resume runs any computer-controlled turns that are due. It is a no-op when
// the current actor is a living human.
func (c *CombatCycle) Resume(ctx context.Context, tx storage.Tx, enc *combat.Encounter) ([]combat.ActionResult, error) {
	cur, ok := enc.Current()
	if enc.Status == combat.StatusActive && ok && !cur.Controlled && !cur.Defeated() {
		return nil, nil
	}
	return c.ProcessTurn(ctx, tx, enc)
}

// ProcessTurn is the turn driver. The current actor has either just acted
// (a human) or is due to act (computer-controlled or defeated). Computer
// actors decide and resolve their action; then end detection runs, and if
// the fight continues the turn advances. Consecutive computer turns are
// resolved in the same call until a human is up, the encounter ends, or the
// max_auto_turns budget is spent, in which case control stays with the next
// actor and a later call resumes from there.
//
// Postcondition: enc is saved; the returned results are the computer
// actions resolved by this call, in order.
func (c *CombatCycle) ProcessTurn(ctx context.Context, tx storage.Tx, enc *combat.Encounter) ([]combat.ActionResult, error) {
	ctx, span := observability.Tracer().Start(ctx, "combat.ProcessTurn", trace.WithAttributes(
		attribute.String("guild.id", enc.GuildID),
		attribute.String("encounter.id", enc.ID),
	))
	defer span.End()

	var results []combat.ActionResult
	if enc.Status == combat.StatusActive {
		budget := rules.Int(ctx, rules.Snapshot(enc.RulesSnapshot), enc.GuildID, rules.KeyMaxAutoTurns, c.maxAutoTurns)
		if budget <= 0 {
			budget = c.maxAutoTurns
		}
		c.step(ctx, tx, enc, budget, &results)
	}
	span.SetAttributes(
		attribute.Int("combat.actions", len(results)),
		attribute.String("combat.status", string(enc.Status)),
		attribute.Int("combat.round", enc.TurnOrder.Round),
	)
	if err := tx.Encounters().Save(ctx, enc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "saving encounter")
		return results, fmt.Errorf("saving encounter %s: %w", enc.ID, err)
	}
	return results, nil
}

func (c *CombatCycle) step(ctx context.Context, tx storage.Tx, enc *combat.Encounter, budget int, out *[]combat.ActionResult) {
	cur, ok := enc.Current()
	if !ok {
		enc.Fail("current turn entity is not a participant")
		c.logger.Error("combat invariant violated",
			zap.String("encounter", enc.ID), zap.String("reason", "current turn entity is not a participant"))
		c.conclude(ctx, tx, enc)
		return
	}
	if cur.Controlled && !cur.Defeated() {
		*out = append(*out, c.computerTurn(ctx, tx, enc, cur))
		budget--
	}
	if c.endIfOver(ctx, tx, enc) {
		return
	}
	wrapped, err := combat.AdvanceTurn(enc)
	if err != nil {
		c.logger.Error("advancing turn", zap.String("encounter", enc.ID), zap.Error(err))
		c.conclude(ctx, tx, enc)
		return
	}
	if wrapped {
		lines := combat.TickRound(enc, c.engine.Conditions())
		c.logger.Debug("round started",
			zap.String("encounter", enc.ID),
			zap.Int("round", enc.TurnOrder.Round),
			zap.Int("effects", len(lines)),
		)
		if c.endIfOver(ctx, tx, enc) {
			return
		}
	}
	next, _ := enc.Current()
	if !next.Controlled && !next.Defeated() {
		return
	}
	if budget <= 0 {
		c.logger.Warn("auto-turn limit reached; leaving control with the next actor",
			zap.String("guild", enc.GuildID),
			zap.String("encounter", enc.ID),
			zap.Stringer("next", next.Ref),
			zap.Int("round", enc.TurnOrder.Round),
		)
		return
	}
	c.step(ctx, tx, enc, budget, out)
}

// computerTurn decides and resolves one computer-controlled action. Idle
// decisions are logged, never resolved. A panic is confined to this actor's
// turn and reported as an error result.
func (c *CombatCycle) computerTurn(ctx context.Context, tx storage.Tx, enc *combat.Encounter, p *combat.Participant) (res combat.ActionResult) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("computer turn panicked",
				zap.String("encounter", enc.ID),
				zap.Stringer("actor", p.Ref),
				zap.Any("panic", r),
			)
			res = combat.ActionResult{
				Status:  combat.ResultError,
				Actor:   p.Ref,
				Action:  combat.ActionIdle,
				Message: fmt.Sprintf("%s could not act: %v", p.Name, r),
			}
		}
	}()

	desc := c.decider.DecideAction(ctx, txReader{tx: tx}, enc.GuildID, p.Ref.ID, enc)
	if desc.Type == combat.ActionIdle {
		msg := fmt.Sprintf("%s idles (%s)", p.Name, desc.Reason)
		enc.Logf(p.Ref, "%s", msg)
		c.logger.Debug("computer actor idles",
			zap.String("encounter", enc.ID),
			zap.Stringer("actor", p.Ref),
			zap.String("reason", desc.Reason),
		)
		return combat.ActionResult{Status: combat.ResultIdle, Actor: p.Ref, Action: combat.ActionIdle, Message: msg}
	}
	res = c.engine.ResolveAction(ctx, enc, p.Ref, desc)
	if res.Failed() {
		c.logger.Warn("computer action failed",
			zap.String("encounter", enc.ID),
			zap.Stringer("actor", p.Ref),
			zap.String("message", res.Message),
		)
	}
	c.recordAction(ctx, tx, enc, res)
	return res
}

// InjectPlayerAction resolves a human's action in enc and then drives any
// computer turns that follow.
//
// Precondition: enc is active.
// Postcondition: returns ErrNotYourTurn (wrapped) and leaves enc unchanged
// apart from due computer turns when ref is not the current actor. The
// results list any computer turns that were due, then ref's own action, then
// the computer turns that followed it.
func (c *CombatCycle) InjectPlayerAction(ctx context.Context, tx storage.Tx, enc *combat.Encounter, ref actor.Ref, desc combat.ActionDescriptor) ([]combat.ActionResult, error) {
	pending, err := c.Resume(ctx, tx, enc)
	if err != nil {
		return pending, err
	}
	if enc.Status != combat.StatusActive {
		return pending, fmt.Errorf("encounter %s ended before %s could act (%s)", enc.ID, ref, enc.Status)
	}
	if enc.CurrentTurn == nil || *enc.CurrentTurn != ref {
		current := "nobody"
		if enc.CurrentTurn != nil {
			current = enc.CurrentTurn.String()
		}
		return pending, fmt.Errorf("%s acting in encounter %s while %s is up: %w", ref, enc.ID, current, ErrNotYourTurn)
	}

	res := c.engine.ResolveAction(ctx, enc, ref, desc)
	c.recordAction(ctx, tx, enc, res)
	if res.Failed() {
		if err := tx.Encounters().Save(ctx, enc); err != nil {
			return pending, fmt.Errorf("saving encounter %s: %w", enc.ID, err)
		}
		return append(pending, res), nil
	}
	after, err := c.ProcessTurn(ctx, tx, enc)
	out := append(pending, res)
	return append(out, after...), err
}

func (c *CombatCycle) recordAction(ctx context.Context, tx storage.Tx, enc *combat.Encounter, res combat.ActionResult) {
	refs := []actor.Ref{res.Actor}
	if !res.Target.IsZero() {
		refs = append(refs, res.Target)
	}
	_, err := tx.Events().Append(ctx, enc.GuildID, eventlog.KindCombatAction, map[string]any{
		"encounter_id": enc.ID,
		"round":        enc.TurnOrder.Round,
		"status":       res.Status,
		"action":       string(res.Action),
		"ability_id":   res.AbilityID,
		"outcome":      res.Outcome,
		"damage":       res.Damage,
		"healed":       res.Healed,
		"defeated":     res.TargetDefeated,
		"message":      res.Message,
	}, refs, enc.LocationID)
	if err != nil {
		c.logger.Warn("recording combat action", zap.String("encounter", enc.ID), zap.Error(err))
	}
}

func (c *CombatCycle) endIfOver(ctx context.Context, tx storage.Tx, enc *combat.Encounter) bool {
	ended, winner := combat.CheckEnd(enc)
	if !ended {
		return false
	}
	enc.Finish(winner)
	c.conclude(ctx, tx, enc)
	return true
}

// conclude runs end-of-combat consequences for a terminal encounter: durable
// HP sync-back, status reset for players and parties, the combat_ended (or
// combat_error) event, and, for decided or drawn fights, every hook. Failures
// are logged; the encounter stays terminal regardless.
func (c *CombatCycle) conclude(ctx context.Context, tx storage.Tx, enc *combat.Encounter) {
	log := c.logger.With(zap.String("guild", enc.GuildID), zap.String("encounter", enc.ID))
	enc.CurrentTurn = nil

	parties := make(map[string]bool)
	for _, p := range enc.Participants {
		if err := c.syncBack(ctx, tx, enc.GuildID, p, parties); err != nil {
			log.Error("syncing participant back to its record", zap.Stringer("ref", p.Ref), zap.Error(err))
		}
	}

	kind := eventlog.KindCombatEnded
	if enc.Status == combat.StatusError {
		kind = eventlog.KindCombatError
	}
	entry, err := tx.Events().Append(ctx, enc.GuildID, kind, map[string]any{
		"encounter_id": enc.ID,
		"status":       string(enc.Status),
		"winning_team": enc.WinningTeam,
		"rounds":       enc.TurnOrder.Round,
	}, enc.Refs(), enc.LocationID)
	if err != nil {
		log.Error("recording combat end", zap.Error(err))
	}
	log.Info("combat ended",
		zap.String("status", string(enc.Status)),
		zap.String("winner", enc.WinningTeam),
		zap.Int("rounds", enc.TurnOrder.Round),
	)
	if enc.Status == combat.StatusError {
		return
	}

	winners, losers := enc.Partition()
	end := CombatEnd{Encounter: enc, Winners: winners, Losers: losers, CauseID: entry.ID}
	for _, h := range c.hooks {
		if err := c.runHook(ctx, tx, h, end); err != nil {
			log.Error("combat end hook failed", zap.String("hook", h.Name()), zap.Error(err))
		}
	}
}

func (c *CombatCycle) runHook(ctx context.Context, tx storage.Tx, h Hook, end CombatEnd) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook %s panicked: %v", h.Name(), r)
		}
	}()
	return h.OnCombatEnd(ctx, tx, end)
}

// syncBack copies a participant's final HP to its durable record and
// returns players and their parties to exploring.
func (c *CombatCycle) syncBack(ctx context.Context, tx storage.Tx, guildID string, p *combat.Participant, parties map[string]bool) error {
	switch p.Ref.Kind {
	case actor.KindPlayer:
		rec, err := tx.Players().Get(ctx, guildID, p.Ref.ID)
		if err != nil {
			return err
		}
		rec.CurrentHP = p.CurrentHP
		rec.Status = actor.StatusExploring
		if err := tx.Players().Save(ctx, rec); err != nil {
			return err
		}
		if rec.PartyID != "" && !parties[rec.PartyID] {
			parties[rec.PartyID] = true
			return setPartyStatus(ctx, tx, guildID, rec.PartyID, actor.StatusExploring)
		}
	case actor.KindNPC:
		rec, err := tx.NPCs().Get(ctx, guildID, p.Ref.ID)
		if err != nil {
			return err
		}
		rec.CurrentHP = p.CurrentHP
		return tx.NPCs().Save(ctx, rec)
	}
	return nil
}

func refStrings(refs []actor.Ref) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.String()
	}
	return out
}

// txReader exposes a unit of work to the AI.
type txReader struct {
	tx storage.Tx
}

func (r txReader) NPC(ctx context.Context, guildID, id string) (*roster.NPC, error) {
	return r.tx.NPCs().Get(ctx, guildID, id)
}

func (r txReader) RelationshipsOf(ctx context.Context, guildID string, ref actor.Ref) ([]relationship.Relationship, error) {
	return r.tx.Relationships().ForEntity(ctx, guildID, ref)
}
