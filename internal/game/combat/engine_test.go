package combat_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/guildturn/internal/game/actor"
	"github.com/cory-johannsen/guildturn/internal/game/combat"
	"github.com/cory-johannsen/guildturn/internal/game/condition"
)

func testConditions() *condition.Registry {
	reg := condition.NewRegistry()
	reg.Register(&condition.Definition{ID: "poisoned", DurationType: condition.DurationRounds, MaxStacks: 3, DamagePerRound: 2, Harmful: true})
	reg.Register(&condition.Definition{ID: "stunned", DurationType: condition.DurationRounds, RestrictActions: []string{"attack", "ability"}})
	return reg
}

func testCatalog(t *testing.T) *combat.Catalog {
	t.Helper()
	cat, err := combat.NewCatalog(
		&combat.Ability{ID: "mend", Name: "Mend", Category: combat.CategoryHeal, Target: combat.TargetAlly, Dice: "2d4+2", Cost: map[string]int{"mana": 2}, Cooldown: 1},
		&combat.Ability{ID: "venom_bite", Name: "Venom Bite", Category: combat.CategoryDebuff, AttackRoll: true, Dice: "1d4", Effect: "poisoned", EffectDuration: 3},
	)
	require.NoError(t, err)
	return cat
}

func newEngine(t *testing.T, values ...int) *combat.Engine {
	return combat.NewEngine(roller(values...), testCatalog(t), testConditions(), zap.NewNop())
}

func TestResolveAction_CriticalHitDefeatsTarget(t *testing.T) {
	hero, goblin := participant(actor.Player("hero"), 20), participant(actor.NPC("goblin"), 8)
	enc := encounter(hero, goblin)
	// d20 rolls 20: 23 vs AC 12 is a critical; damage 1d6 rolls 4, +1, doubled.
	res := newEngine(t, 19, 3).ResolveAction(context.Background(), enc, hero.Ref, combat.Attack(goblin.Ref))

	assert.Equal(t, combat.ResultSuccess, res.Status)
	assert.Equal(t, combat.CritSuccess.String(), res.Outcome)
	assert.Equal(t, 8, res.Damage)
	assert.True(t, res.TargetDefeated)
	assert.Equal(t, 0, goblin.CurrentHP)
	assert.Equal(t, 8, hero.Threat)
	assert.Equal(t, 8, goblin.DamageTaken)
	assert.NotEmpty(t, enc.Log)
}

func TestResolveAction_Miss(t *testing.T) {
	hero, goblin := participant(actor.Player("hero"), 20), participant(actor.NPC("goblin"), 8)
	enc := encounter(hero, goblin)
	res := newEngine(t, 0).ResolveAction(context.Background(), enc, hero.Ref, combat.Attack(goblin.Ref))

	assert.Equal(t, combat.ResultSuccess, res.Status)
	assert.Equal(t, 0, res.Damage)
	assert.Equal(t, 8, goblin.CurrentHP)
}

func TestResolveAction_NotFoundIsErrorResult(t *testing.T) {
	hero, goblin := participant(actor.Player("hero"), 20), participant(actor.NPC("goblin"), 8)
	enc := encounter(hero, goblin)
	eng := newEngine(t, 10)
	ctx := context.Background()

	res := eng.ResolveAction(ctx, enc, actor.Player("nobody"), combat.Attack(goblin.Ref))
	assert.True(t, res.Failed())

	res = eng.ResolveAction(ctx, enc, hero.Ref, combat.Attack(actor.NPC("ghost")))
	assert.True(t, res.Failed())
	assert.Contains(t, res.Message, "not found")

	res = eng.ResolveAction(ctx, nil, hero.Ref, combat.Attack(goblin.Ref))
	assert.True(t, res.Failed())

	res = eng.ResolveAction(ctx, enc, hero.Ref, combat.UseAbility("fireball", goblin.Ref))
	assert.True(t, res.Failed())
	assert.Contains(t, res.Message, combat.ErrUnknownAbility.Error())
	assert.Equal(t, 8, goblin.CurrentHP)
}

func TestResolveAction_InactiveEncounter(t *testing.T) {
	hero, goblin := participant(actor.Player("hero"), 20), participant(actor.NPC("goblin"), 8)
	enc := encounter(hero, goblin)
	enc.Finish(combat.TeamPlayers)
	res := newEngine(t, 19).ResolveAction(context.Background(), enc, hero.Ref, combat.Attack(goblin.Ref))
	assert.True(t, res.Failed())
}

func TestResolveAction_HealPaysCostAndStartsCooldown(t *testing.T) {
	shaman, ally := participant(actor.NPC("shaman"), 10), participant(actor.NPC("ally"), 20)
	shaman.Abilities = []string{"mend"}
	shaman.Resources["mana"] = 3
	ally.CurrentHP = 5
	enc := encounter(shaman, ally, participant(actor.Player("hero"), 10))
	eng := newEngine(t, 3, 3)
	ctx := context.Background()

	res := eng.ResolveAction(ctx, enc, shaman.Ref, combat.UseAbility("mend", ally.Ref))
	require.Equal(t, combat.ResultSuccess, res.Status, res.Message)
	assert.Equal(t, 10, res.Healed)
	assert.Equal(t, 15, ally.CurrentHP)
	assert.Equal(t, 1, shaman.Resources["mana"])
	assert.Equal(t, 1, shaman.Cooldowns["mend"])

	res = eng.ResolveAction(ctx, enc, shaman.Ref, combat.UseAbility("mend", ally.Ref))
	assert.True(t, res.Failed(), "cooldown blocks reuse")
}

func TestResolveAction_UnknownAbilityInLoadout(t *testing.T) {
	hero, goblin := participant(actor.Player("hero"), 20), participant(actor.NPC("goblin"), 8)
	enc := encounter(hero, goblin)
	res := newEngine(t, 10).ResolveAction(context.Background(), enc, hero.Ref, combat.UseAbility("mend", hero.Ref))
	assert.True(t, res.Failed())
	assert.Contains(t, res.Message, "does not know")
}

func TestResolveAction_AbilityAppliesEffect(t *testing.T) {
	spider, hero := participant(actor.NPC("spider"), 10), participant(actor.Player("hero"), 20)
	spider.Abilities = []string{"venom_bite"}
	enc := encounter(spider, hero)
	// d20 16 + 3 = 19 vs 12 hits; 1d4 rolls 3.
	res := newEngine(t, 15, 2).ResolveAction(context.Background(), enc, spider.Ref, combat.UseAbility("venom_bite", hero.Ref))

	require.Equal(t, combat.ResultSuccess, res.Status, res.Message)
	assert.Equal(t, "poisoned", res.EffectApplied)
	assert.True(t, hero.StatusEffects.Has("poisoned"))
	assert.Equal(t, 17, hero.CurrentHP)
}

func TestResolveAction_StunnedCannotAttack(t *testing.T) {
	hero, goblin := participant(actor.Player("hero"), 20), participant(actor.NPC("goblin"), 8)
	hero.StatusEffects["stunned"] = condition.Active{Stacks: 1, Remaining: 1}
	enc := encounter(hero, goblin)
	res := newEngine(t, 19).ResolveAction(context.Background(), enc, hero.Ref, combat.Attack(goblin.Ref))
	assert.Equal(t, combat.ResultIdle, res.Status)
	assert.Equal(t, 8, goblin.CurrentHP)
}

func TestResolveAction_Idle(t *testing.T) {
	hero := participant(actor.Player("hero"), 20)
	enc := encounter(hero, participant(actor.NPC("goblin"), 8))
	res := newEngine(t, 0).ResolveAction(context.Background(), enc, hero.Ref, combat.Idle("no_valid_target"))
	assert.Equal(t, combat.ResultIdle, res.Status)
	assert.Contains(t, res.Message, "no_valid_target")
}

func TestBasicAttackDice_FromSnapshot(t *testing.T) {
	enc := encounter(participant(actor.Player("hero"), 20))
	enc.RulesSnapshot = map[string]any{"combat.basic_attack_dice": "2d8"}
	eng := newEngine(t, 0)
	assert.Equal(t, 16, eng.BasicAttackDice(context.Background(), enc).Max())

	enc.RulesSnapshot["combat.basic_attack_dice"] = "garbage"
	assert.Equal(t, 6, eng.BasicAttackDice(context.Background(), enc).Max())
}

func TestLoadCatalog_ShippedContent(t *testing.T) {
	cat, err := combat.LoadCatalog("../../../content/abilities")
	require.NoError(t, err)
	for _, id := range []string{"power_strike", "mend", "venom_bite", "war_cry", "stone_skin", "shield_bash"} {
		a, ok := cat.Get(id)
		require.True(t, ok, id)
		assert.NotEmpty(t, a.Target)
	}
	conds, err := condition.LoadDirectory("../../../content/conditions")
	require.NoError(t, err)
	for _, a := range cat.All() {
		if a.Effect != "" {
			_, ok := conds.Get(a.Effect)
			assert.True(t, ok, "%s references %s", a.ID, a.Effect)
		}
	}
}

func TestNewCatalog_RejectsBadDice(t *testing.T) {
	_, err := combat.NewCatalog(&combat.Ability{ID: "x", Category: combat.CategoryDamage, Dice: "d"})
	assert.Error(t, err)
}
