package ai

import (
	"context"

	"go.uber.org/zap"

	"github.com/cory-johannsen/guildturn/internal/formula"
	"github.com/cory-johannsen/guildturn/internal/game/actor"
	"github.com/cory-johannsen/guildturn/internal/game/combat"
	"github.com/cory-johannsen/guildturn/internal/game/relationship"
	"github.com/cory-johannsen/guildturn/internal/game/roster"
)

// Idle reasons.
const (
	ReasonDefeated        = "defeated"
	ReasonNotInEncounter  = "not_in_encounter"
	ReasonNPCNotFound     = "npc_not_found"
	ReasonNoValidTarget   = "no_valid_target"
	ReasonNoViableAction  = "no_viable_action"
	ReasonEncounterClosed = "encounter_not_active"
)

// Reader loads the NPC record and its relationships inside the caller's
// unit of work.
type Reader interface {
	NPC(ctx context.Context, guildID, id string) (*roster.NPC, error)
	RelationshipsOf(ctx context.Context, guildID string, ref actor.Ref) ([]relationship.Relationship, error)
}

// Decider chooses actions for computer-controlled combatants.
type Decider struct {
	compiler *Compiler
	engine   *combat.Engine
	formulas *formula.Cache
	logger   *zap.Logger
}

// NewDecider creates a Decider.
//
// Precondition: all arguments must be non-nil.
func NewDecider(compiler *Compiler, engine *combat.Engine, formulas *formula.Cache, logger *zap.Logger) *Decider {
	return &Decider{compiler: compiler, engine: engine, formulas: formulas, logger: logger}
}

// DecideAction returns the action npcID takes this turn in enc.
//
// It never fails: missing data, an empty target list, and a fully filtered
// action list all produce an idle descriptor with a reason. Formula failures
// along the way are logged and treated as no-ops.
func (d *Decider) DecideAction(ctx context.Context, r Reader, guildID, npcID string, enc *combat.Encounter) combat.ActionDescriptor {
	ref := actor.NPC(npcID)
	if enc == nil || enc.Status != combat.StatusActive {
		return combat.Idle(ReasonEncounterClosed)
	}
	self, ok := enc.Participant(ref)
	if !ok {
		return combat.Idle(ReasonNotInEncounter)
	}
	if self.Defeated() {
		return combat.Idle(ReasonDefeated)
	}
	npc, err := r.NPC(ctx, guildID, npcID)
	if err != nil {
		d.logger.Warn("loading npc for decision", zap.String("guild", guildID), zap.String("npc", npcID), zap.Error(err))
		return combat.Idle(ReasonNPCNotFound)
	}
	rels, err := r.RelationshipsOf(ctx, guildID, ref)
	if err != nil {
		d.logger.Warn("loading relationships for decision; continuing without them",
			zap.String("guild", guildID), zap.String("npc", npcID), zap.Error(err))
		rels = nil
	}

	rs := d.compiler.Compile(ctx, guildID, npc, enc.Refs(), rels)
	idx := indexRelationships(ref, rels)

	var hostile []*combat.Participant
	for _, p := range d.turnOrdered(enc) {
		if p == self || p.Defeated() {
			continue
		}
		if d.Classify(rs, self, p, idx) == Hostile {
			hostile = append(hostile, p)
		}
	}
	if len(hostile) == 0 {
		return combat.Idle(ReasonNoValidTarget)
	}
	target := d.SelectTarget(rs, hostile, idx)

	cands := d.enumerate(ctx, rs, enc, self, target)
	ApplyBias(cands, d.standardBias(rs, target.Ref, idx))
	d.applyHidden(rs, target.Ref, cands)
	cands = Simulate(cands, rs.Strategy.Simulation)

	best, ok := Best(cands)
	if !ok {
		return combat.Idle(ReasonNoViableAction)
	}
	d.logger.Debug("npc decision",
		zap.String("guild", guildID),
		zap.String("npc", npcID),
		zap.Stringer("target", target.Ref),
		zap.String("action", best.Key),
		zap.Float64("score", best.Score),
		zap.Int("candidates", len(cands)),
	)
	return best.Action
}

// turnOrdered returns participants in turn order, followed by any not in
// the order.
func (d *Decider) turnOrdered(enc *combat.Encounter) []*combat.Participant {
	seen := make(map[actor.Ref]bool, len(enc.Participants))
	out := make([]*combat.Participant, 0, len(enc.Participants))
	for _, ref := range enc.TurnOrder.Order {
		if p, ok := enc.Participant(ref); ok && !seen[ref] {
			out = append(out, p)
			seen[ref] = true
		}
	}
	for _, p := range enc.Participants {
		if !seen[p.Ref] {
			out = append(out, p)
		}
	}
	return out
}
