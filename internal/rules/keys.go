package rules

import "context"

// Rule keys consumed by the turn core.
const (
	KeyInitiativeDice     = "combat.initiative_dice"
	KeyDefaultMaxHP       = "combat.default_max_hp"
	KeyDefaultArmorClass  = "combat.default_armor_class"
	KeyDefaultDexterity   = "combat.default_dexterity"
	KeyBasicAttackDice    = "combat.basic_attack_dice"
	KeyMaxAutoTurns       = "combat.max_auto_turns"
	KeyVictoryXP          = "combat.victory_xp"
	KeyDefeatRelationship = "combat.defeat_relationship_delta"

	KeyRestHealFraction = "turn.rest_heal_fraction"

	KeyHostileThreshold       = "ai.hostility.hostile_threshold"
	KeyFriendlyThreshold      = "ai.hostility.friendly_threshold"
	KeyThresholdAdjustFormula = "ai.hostility.threshold_adjust_formula"

	KeyStrategyOffensiveBias   = "ai.strategy.offensive_bias"
	KeyStrategyHealThreshold   = "ai.strategy.heal_threshold"
	KeyStrategyResourceReserve = "ai.strategy.resource_reserve"
	KeyStrategyTargetPriority  = "ai.strategy.target_priority"
	KeyFriendlyActionBias      = "ai.influence.friendly_action_bias"
	KeyHostileActionBias       = "ai.influence.hostile_action_bias"

	KeySimulationEnabled        = "ai.simulation.enabled"
	KeySimulationMinHitChance   = "ai.simulation.min_hit_chance"
	KeySimulationMinDamageRatio = "ai.simulation.min_damage_ratio"
)

// CombatKeys lists the keys captured in an encounter's rules snapshot so that
// later rule edits never change a fight already in progress.
var CombatKeys = []string{
	KeyInitiativeDice,
	KeyDefaultMaxHP,
	KeyDefaultArmorClass,
	KeyDefaultDexterity,
	KeyBasicAttackDice,
	KeyMaxAutoTurns,
	KeyVictoryXP,
	KeyDefeatRelationship,
}

// Snapshot is a frozen key → value map. It also implements Lookup for any
// guild so that code reading an in-progress encounter's rules can use the
// same typed accessors.
type Snapshot map[string]any

// Capture copies the current value of each key that is set.
func Capture(ctx context.Context, l Lookup, guildID string, keys []string) Snapshot {
	snap := make(Snapshot, len(keys))
	for _, k := range keys {
		if v, ok := l.Get(ctx, guildID, k); ok {
			snap[k] = v
		}
	}
	return snap
}

// Get implements Lookup.
func (s Snapshot) Get(_ context.Context, _ string, key string) (any, bool) {
	v, ok := s[key]
	return v, ok
}
