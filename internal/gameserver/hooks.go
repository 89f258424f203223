package gameserver

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/guildturn/internal/eventlog"
	"github.com/cory-johannsen/guildturn/internal/game/actor"
	"github.com/cory-johannsen/guildturn/internal/game/combat"
	"github.com/cory-johannsen/guildturn/internal/game/relationship"
	"github.com/cory-johannsen/guildturn/internal/rules"
	"github.com/cory-johannsen/guildturn/internal/storage"
)

const (
	defaultVictoryXP          = 10
	defaultDefeatRelationship = -10
)

// CombatEnd is what an end-of-combat hook receives. On a stalemate Winners
// is empty and every participant is a loser.
type CombatEnd struct {
	Encounter *combat.Encounter
	Winners   []*combat.Participant
	Losers    []*combat.Participant
	// CauseID is the combat_ended event's ID.
	CauseID string
}

// defeatedFoes returns the losers on a different team from w that were
// knocked out.
func (e CombatEnd) defeatedFoes(w *combat.Participant) []*combat.Participant {
	var out []*combat.Participant
	for _, l := range e.Losers {
		if l.Team != w.Team && l.Defeated() {
			out = append(out, l)
		}
	}
	return out
}

// Hook is a downstream consequence of a finished fight. Hooks write through
// the same unit of work as the combat that ended.
type Hook interface {
	Name() string
	OnCombatEnd(ctx context.Context, tx storage.Tx, end CombatEnd) error
}

// XPHook awards each surviving winning player victory_xp per level of every
// foe they helped defeat.
type XPHook struct {
	logger *zap.Logger
}

// NewXPHook creates an XPHook.
func NewXPHook(logger *zap.Logger) *XPHook { return &XPHook{logger: logger} }

// Name implements Hook.
func (h *XPHook) Name() string { return "xp" }

// OnCombatEnd implements Hook.
func (h *XPHook) OnCombatEnd(ctx context.Context, tx storage.Tx, end CombatEnd) error {
	enc := end.Encounter
	per := rules.Int(ctx, rules.Snapshot(enc.RulesSnapshot), enc.GuildID, rules.KeyVictoryXP, defaultVictoryXP)
	for _, w := range end.Winners {
		if w.Ref.Kind != actor.KindPlayer {
			continue
		}
		levels := 0
		for _, f := range end.defeatedFoes(w) {
			levels += max(f.Level, 1)
		}
		award := per * levels
		if award <= 0 {
			continue
		}
		p, err := tx.Players().Get(ctx, enc.GuildID, w.Ref.ID)
		if err != nil {
			return fmt.Errorf("loading player %s: %w", w.Ref.ID, err)
		}
		p.XP += award
		if err := tx.Players().Save(ctx, p); err != nil {
			return fmt.Errorf("saving player %s: %w", p.ID, err)
		}
		if _, err := tx.Events().Append(ctx, enc.GuildID, eventlog.KindXPAwarded, map[string]any{
			"encounter_id": enc.ID,
			"xp":           award,
			"total_xp":     p.XP,
			"cause_id":     end.CauseID,
		}, []actor.Ref{w.Ref}, enc.LocationID); err != nil {
			return fmt.Errorf("recording xp award: %w", err)
		}
		h.logger.Debug("xp awarded", zap.String("player", p.ID), zap.Int("xp", award))
	}
	return nil
}

// LootHook moves the listed resources off defeated NPCs and splits them
// evenly between surviving winning players; any remainder goes to the
// earliest winners in roster order.
type LootHook struct {
	resources []string
	logger    *zap.Logger
}

// NewLootHook creates a LootHook for the given resource names. With none it
// transfers "gold".
func NewLootHook(logger *zap.Logger, resources ...string) *LootHook {
	if len(resources) == 0 {
		resources = []string{"gold"}
	}
	return &LootHook{resources: resources, logger: logger}
}

// Name implements Hook.
func (h *LootHook) Name() string { return "loot" }

// OnCombatEnd implements Hook.
func (h *LootHook) OnCombatEnd(ctx context.Context, tx storage.Tx, end CombatEnd) error {
	enc := end.Encounter
	var heirs []*combat.Participant
	for _, w := range end.Winners {
		if w.Ref.Kind == actor.KindPlayer {
			heirs = append(heirs, w)
		}
	}
	if len(heirs) == 0 {
		return nil
	}

	pool := make(map[string]int)
	var sources []actor.Ref
	for _, l := range end.Losers {
		if l.Ref.Kind != actor.KindNPC || !l.Defeated() || l.Team == heirs[0].Team {
			continue
		}
		npc, err := tx.NPCs().Get(ctx, enc.GuildID, l.Ref.ID)
		if err != nil {
			return fmt.Errorf("loading npc %s: %w", l.Ref.ID, err)
		}
		took := false
		for _, res := range h.resources {
			if amt := npc.Resources[res]; amt > 0 {
				pool[res] += amt
				npc.Resources[res] = 0
				took = true
			}
		}
		if !took {
			continue
		}
		if err := tx.NPCs().Save(ctx, npc); err != nil {
			return fmt.Errorf("saving npc %s: %w", npc.ID, err)
		}
		sources = append(sources, l.Ref)
	}
	if len(pool) == 0 {
		return nil
	}

	for i, w := range heirs {
		p, err := tx.Players().Get(ctx, enc.GuildID, w.Ref.ID)
		if err != nil {
			return fmt.Errorf("loading player %s: %w", w.Ref.ID, err)
		}
		if p.Resources == nil {
			p.Resources = make(map[string]int)
		}
		share := make(map[string]any, len(pool))
		for res, total := range pool {
			amt := total / len(heirs)
			if i < total%len(heirs) {
				amt++
			}
			if amt == 0 {
				continue
			}
			p.Resources[res] += amt
			share[res] = amt
		}
		if len(share) == 0 {
			continue
		}
		if err := tx.Players().Save(ctx, p); err != nil {
			return fmt.Errorf("saving player %s: %w", p.ID, err)
		}
		if _, err := tx.Events().Append(ctx, enc.GuildID, eventlog.KindLootTransferred, map[string]any{
			"encounter_id": enc.ID,
			"loot":         share,
			"cause_id":     end.CauseID,
		}, append([]actor.Ref{w.Ref}, sources...), enc.LocationID); err != nil {
			return fmt.Errorf("recording loot: %w", err)
		}
	}
	h.logger.Debug("loot distributed", zap.String("encounter", enc.ID), zap.Int("heirs", len(heirs)))
	return nil
}

// RelationshipHook shifts the general relationship between each surviving
// winner and every foe it defeated by combat.defeat_relationship_delta.
type RelationshipHook struct {
	updater *relationship.Updater
	logger  *zap.Logger
}

// NewRelationshipHook creates a RelationshipHook.
func NewRelationshipHook(updater *relationship.Updater, logger *zap.Logger) *RelationshipHook {
	return &RelationshipHook{updater: updater, logger: logger}
}

// Name implements Hook.
func (h *RelationshipHook) Name() string { return "relationship" }

// OnCombatEnd implements Hook.
func (h *RelationshipHook) OnCombatEnd(ctx context.Context, tx storage.Tx, end CombatEnd) error {
	enc := end.Encounter
	delta := rules.Int(ctx, rules.Snapshot(enc.RulesSnapshot), enc.GuildID, rules.KeyDefeatRelationship, defaultDefeatRelationship)
	if delta == 0 {
		return nil
	}
	for _, w := range end.Winners {
		for _, f := range end.defeatedFoes(w) {
			rel, err := h.updater.Adjust(ctx, tx.Relationships(), enc.GuildID, w.Ref, f.Ref, relationship.TypeGeneral, delta, end.CauseID)
			if err != nil {
				return err
			}
			if _, err := tx.Events().Append(ctx, enc.GuildID, eventlog.KindRelationshipTick, map[string]any{
				"type":     rel.Type,
				"delta":    delta,
				"value":    rel.Value,
				"cause_id": end.CauseID,
			}, []actor.Ref{w.Ref, f.Ref}, enc.LocationID); err != nil {
				return fmt.Errorf("recording relationship change: %w", err)
			}
		}
	}
	return nil
}

// QuestHook publishes a quest_progress event per surviving winning player
// listing the foes it defeated, for the quest tracker to consume.
type QuestHook struct {
	logger *zap.Logger
}

// NewQuestHook creates a QuestHook.
func NewQuestHook(logger *zap.Logger) *QuestHook { return &QuestHook{logger: logger} }

// Name implements Hook.
func (h *QuestHook) Name() string { return "quest" }

// OnCombatEnd implements Hook.
func (h *QuestHook) OnCombatEnd(ctx context.Context, tx storage.Tx, end CombatEnd) error {
	enc := end.Encounter
	for _, w := range end.Winners {
		if w.Ref.Kind != actor.KindPlayer {
			continue
		}
		foes := end.defeatedFoes(w)
		if len(foes) == 0 {
			continue
		}
		defeated := make([]string, len(foes))
		refs := []actor.Ref{w.Ref}
		for i, f := range foes {
			defeated[i] = f.Ref.String()
			refs = append(refs, f.Ref)
		}
		if _, err := tx.Events().Append(ctx, enc.GuildID, eventlog.KindQuestProgress, map[string]any{
			"encounter_id": enc.ID,
			"defeated":     defeated,
			"cause_id":     end.CauseID,
		}, refs, enc.LocationID); err != nil {
			return fmt.Errorf("recording quest progress: %w", err)
		}
		h.logger.Debug("quest progress published", zap.Stringer("player", w.Ref), zap.Strings("defeated", defeated))
	}
	return nil
}

// DefaultHooks returns the standard consequence chain.
func DefaultHooks(updater *relationship.Updater, logger *zap.Logger) []Hook {
	return []Hook{
		NewXPHook(logger),
		NewLootHook(logger),
		NewRelationshipHook(updater, logger),
		NewQuestHook(logger),
	}
}
