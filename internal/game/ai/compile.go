package ai

import (
	"context"
	"sort"

	"github.com/cory-johannsen/guildturn/internal/game/actor"
	"github.com/cory-johannsen/guildturn/internal/game/relationship"
	"github.com/cory-johannsen/guildturn/internal/game/roster"
	"github.com/cory-johannsen/guildturn/internal/rules"
)

// HiddenEntry is a hidden rule bound to one relationship the NPC holds.
type HiddenEntry struct {
	HiddenRule
	RelationshipType string
	Value            int
	Target           actor.Ref
}

// RuleSet is the compiled, per-decision bundle. It is built fresh for every
// decision and never persisted.
type RuleSet struct {
	Strategy   Strategy
	Influence  Influence
	Thresholds Thresholds
	// Hidden entries are sorted by descending priority.
	Hidden []HiddenEntry
}

// HiddenFor returns the entries that apply to target, in priority order.
func (rs *RuleSet) HiddenFor(target actor.Ref) []HiddenEntry {
	var out []HiddenEntry
	for _, h := range rs.Hidden {
		if h.Target == target {
			out = append(out, h)
		}
	}
	return out
}

// Compiler merges the configuration layers into a RuleSet.
type Compiler struct {
	book  *Book
	rules rules.Lookup
}

// NewCompiler creates a Compiler.
//
// Precondition: book and lookup must be non-nil.
func NewCompiler(book *Book, lookup rules.Lookup) *Compiler {
	return &Compiler{book: book, rules: lookup}
}

// Compile merges, in order: the book's strategy profile for npc, guild rule
// overrides, npc's personality, the standard influence block (with guild
// overrides), and hidden entries for every hidden relationship in rels whose
// counterpart is in participants.
//
// Postcondition: OffensiveBias in [-1, 1], HealThreshold in [0, 1],
// ResourceReserve >= 0, Hidden sorted by descending priority.
func (c *Compiler) Compile(ctx context.Context, guildID string, npc *roster.NPC, participants []actor.Ref, rels []relationship.Relationship) *RuleSet {
	s := c.book.Strategy(npc.Strategy)

	s.OffensiveBias = rules.Float(ctx, c.rules, guildID, rules.KeyStrategyOffensiveBias, s.OffensiveBias)
	s.HealThreshold = rules.Float(ctx, c.rules, guildID, rules.KeyStrategyHealThreshold, s.HealThreshold)
	s.ResourceReserve = rules.Int(ctx, c.rules, guildID, rules.KeyStrategyResourceReserve, s.ResourceReserve)
	if names := rules.Strings(ctx, c.rules, guildID, rules.KeyStrategyTargetPriority, nil); len(names) > 0 {
		s.TargetPriority = s.TargetPriority[:0]
		for _, n := range names {
			s.TargetPriority = append(s.TargetPriority, Metric(n))
		}
	}
	s.Simulation.Enabled = rules.Bool(ctx, c.rules, guildID, rules.KeySimulationEnabled, s.Simulation.Enabled)
	s.Simulation.MinHitChance = rules.Float(ctx, c.rules, guildID, rules.KeySimulationMinHitChance, s.Simulation.MinHitChance)
	s.Simulation.MinDamageRatio = rules.Float(ctx, c.rules, guildID, rules.KeySimulationMinDamageRatio, s.Simulation.MinDamageRatio)

	if p, ok := c.book.Personalities[npc.Personality]; ok {
		s.OffensiveBias += p.OffensiveBiasDelta
		s.HealThreshold += p.HealThresholdDelta
		s.ResourceReserve += p.ResourceReserveDelta
	}
	s.OffensiveBias = clamp(s.OffensiveBias, -1, 1)
	s.HealThreshold = clamp(s.HealThreshold, 0, 1)
	s.ResourceReserve = max(s.ResourceReserve, 0)

	inf := Influence{
		FriendlyActionBias: mergeBias(c.book.Influence.FriendlyActionBias, rules.FloatMap(ctx, c.rules, guildID, rules.KeyFriendlyActionBias)),
		HostileActionBias:  mergeBias(c.book.Influence.HostileActionBias, rules.FloatMap(ctx, c.rules, guildID, rules.KeyHostileActionBias)),
		MetricFormulas:     c.book.Influence.MetricFormulas,
	}

	th := Thresholds{
		Hostile:       rules.Int(ctx, c.rules, guildID, rules.KeyHostileThreshold, c.book.Thresholds.Hostile),
		Friendly:      rules.Int(ctx, c.rules, guildID, rules.KeyFriendlyThreshold, c.book.Thresholds.Friendly),
		AdjustFormula: rules.String(ctx, c.rules, guildID, rules.KeyThresholdAdjustFormula, c.book.Thresholds.AdjustFormula),
	}

	return &RuleSet{Strategy: s, Influence: inf, Thresholds: th, Hidden: c.hiddenEntries(npc.Ref(), participants, rels)}
}

func (c *Compiler) hiddenEntries(self actor.Ref, participants []actor.Ref, rels []relationship.Relationship) []HiddenEntry {
	present := make(map[actor.Ref]bool, len(participants))
	for _, p := range participants {
		present[p] = true
	}
	var out []HiddenEntry
	for _, r := range rels {
		if !r.Hidden() {
			continue
		}
		other, ok := r.Other(self)
		if !ok || other == self || !present[other] {
			continue
		}
		rule, ok := c.book.HiddenRules[r.Type]
		if !ok {
			rule, ok = c.book.HiddenRules[relationship.BaseCategory(r.Type)]
		}
		if !ok || !rule.Enabled {
			continue
		}
		out = append(out, HiddenEntry{HiddenRule: rule, RelationshipType: r.Type, Value: r.Value, Target: other})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

func mergeBias(base, override map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
