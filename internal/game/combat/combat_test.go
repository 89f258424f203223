package combat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/guildturn/internal/game/actor"
	"github.com/cory-johannsen/guildturn/internal/game/combat"
	"github.com/cory-johannsen/guildturn/internal/game/condition"
	"github.com/cory-johannsen/guildturn/internal/game/dice"
)

func participant(ref actor.Ref, hp int) *combat.Participant {
	return &combat.Participant{
		Ref:           ref,
		Name:          ref.ID,
		Team:          combat.TeamFor(ref.Kind),
		MaxHP:         hp,
		CurrentHP:     hp,
		ArmorClass:    12,
		AttackBonus:   3,
		DamageBonus:   1,
		StatusEffects: condition.Set{},
		Resources:     map[string]int{},
		Cooldowns:     map[string]int{},
		Controlled:    ref.Kind == actor.KindNPC,
	}
}

func encounter(parts ...*combat.Participant) *combat.Encounter {
	enc := &combat.Encounter{ID: "enc-1", GuildID: "g1", Status: combat.StatusActive, TurnOrder: combat.TurnOrder{Round: 1}}
	for _, p := range parts {
		enc.Participants = append(enc.Participants, p)
		enc.TurnOrder.Order = append(enc.TurnOrder.Order, p.Ref)
	}
	if len(parts) > 0 {
		first := parts[0].Ref
		enc.CurrentTurn = &first
	}
	return enc
}

func roller(values ...int) *dice.Roller {
	return dice.NewLoggedRoller(dice.NewSequence(values...), zap.NewNop())
}

func TestRollInitiative_TiesKeepInputOrder(t *testing.T) {
	a, b, c := participant(actor.Player("a"), 10), participant(actor.Player("b"), 10), participant(actor.NPC("c"), 10)
	a.InitiativeMod, b.InitiativeMod, c.InitiativeMod = 2, 1, 0

	order := combat.RollInitiative([]*combat.Participant{a, b, c}, dice.MustParse("1d20"), roller(9, 10, 11))

	assert.Equal(t, []actor.Ref{a.Ref, b.Ref, c.Ref}, order)
	assert.Equal(t, 12, a.Initiative)
	assert.Equal(t, 12, b.Initiative)
	assert.Equal(t, 12, c.Initiative)
}

func TestRollInitiative_SortsDescending(t *testing.T) {
	a, b, c := participant(actor.Player("a"), 10), participant(actor.Player("b"), 10), participant(actor.NPC("c"), 10)
	order := combat.RollInitiative([]*combat.Participant{a, b, c}, dice.MustParse("1d20"), roller(4, 19, 9))
	assert.Equal(t, []actor.Ref{b.Ref, c.Ref, a.Ref}, order)
}

func TestRollInitiative_StableDescendingProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "n")
		raws := rapid.SliceOfN(rapid.IntRange(0, 19), n, n).Draw(rt, "raws")
		parts := make([]*combat.Participant, n)
		index := make(map[actor.Ref]int, n)
		for i := range parts {
			parts[i] = participant(actor.Ref{ID: string(rune('a' + i)), Kind: actor.KindPlayer}, 10)
			parts[i].InitiativeMod = rapid.IntRange(-3, 3).Draw(rt, "mod")
			index[parts[i].Ref] = i
		}
		order := combat.RollInitiative(parts, dice.MustParse("1d20"), roller(raws...))
		if len(order) != n {
			rt.Fatalf("order has %d entries, want %d", len(order), n)
		}
		for i := 1; i < n; i++ {
			prev, cur := parts[index[order[i-1]]], parts[index[order[i]]]
			if prev.Initiative < cur.Initiative {
				rt.Fatalf("not descending at %d", i)
			}
			if prev.Initiative == cur.Initiative && index[prev.Ref] > index[cur.Ref] {
				rt.Fatalf("tie at %d broke input order", i)
			}
		}
	})
}

func TestAdvanceTurn_SkipsDefeatedAndCountsRounds(t *testing.T) {
	a, b, c := participant(actor.Player("a"), 10), participant(actor.NPC("b"), 10), participant(actor.NPC("c"), 10)
	b.CurrentHP = 0
	enc := encounter(a, b, c)

	wrapped, err := combat.AdvanceTurn(enc)
	require.NoError(t, err)
	assert.False(t, wrapped)
	assert.Equal(t, c.Ref, *enc.CurrentTurn)
	assert.Equal(t, 2, enc.TurnOrder.CurrentIndex)
	assert.Equal(t, 1, enc.TurnOrder.Round)

	wrapped, err = combat.AdvanceTurn(enc)
	require.NoError(t, err)
	assert.True(t, wrapped)
	assert.Equal(t, a.Ref, *enc.CurrentTurn)
	assert.Equal(t, 2, enc.TurnOrder.Round)
}

func TestAdvanceTurn_AllDefeatedIsError(t *testing.T) {
	a, b := participant(actor.Player("a"), 10), participant(actor.NPC("b"), 10)
	a.CurrentHP, b.CurrentHP = 0, 0
	enc := encounter(a, b)

	_, err := combat.AdvanceTurn(enc)
	assert.ErrorIs(t, err, combat.ErrNoLivingParticipants)
	assert.Equal(t, combat.StatusError, enc.Status)
}

func TestAdvanceTurn_EmptyOrderIsError(t *testing.T) {
	enc := encounter()
	_, err := combat.AdvanceTurn(enc)
	assert.ErrorIs(t, err, combat.ErrEmptyTurnOrder)
	assert.Equal(t, combat.StatusError, enc.Status)
}

func TestAdvanceTurn_MissingParticipantIsError(t *testing.T) {
	a := participant(actor.Player("a"), 10)
	enc := encounter(a)
	enc.TurnOrder.Order = append(enc.TurnOrder.Order, actor.NPC("ghost"))
	_, err := combat.AdvanceTurn(enc)
	assert.ErrorIs(t, err, combat.ErrParticipantNotFound)
	assert.True(t, enc.Status.Terminal())
}

func TestCheckEnd(t *testing.T) {
	cases := []struct {
		name     string
		playerHP []int
		npcHP    []int
		ended    bool
		winner   string
	}{
		{"fresh fight", []int{10}, []int{10, 10}, false, ""},
		{"npcs wiped", []int{0, 5}, []int{0, 0}, true, combat.TeamPlayers},
		{"players wiped", []int{0}, []int{3}, true, combat.TeamNPCs},
		{"everyone down", []int{0}, []int{0}, true, ""},
		{"no npcs present", []int{10}, nil, true, combat.TeamPlayers},
		{"no players present", nil, []int{1}, true, combat.TeamNPCs},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var parts []*combat.Participant
			for i, hp := range tc.playerHP {
				p := participant(actor.Player(string(rune('p'+i))), 10)
				p.CurrentHP = hp
				parts = append(parts, p)
			}
			for i, hp := range tc.npcHP {
				p := participant(actor.NPC(string(rune('a'+i))), 10)
				p.CurrentHP = hp
				parts = append(parts, p)
			}
			ended, winner := combat.CheckEnd(encounter(parts...))
			assert.Equal(t, tc.ended, ended)
			assert.Equal(t, tc.winner, winner)
		})
	}
}

func TestPartition_StalemateMakesEveryoneLose(t *testing.T) {
	a, b := participant(actor.Player("a"), 10), participant(actor.NPC("b"), 10)
	enc := encounter(a, b)
	enc.Finish("")
	winners, losers := enc.Partition()
	assert.Empty(t, winners)
	assert.Len(t, losers, 2)
	assert.Equal(t, combat.StatusStalemate, enc.Status)
}

func TestFinish_TerminalIsNeverLeft(t *testing.T) {
	enc := encounter(participant(actor.Player("a"), 1))
	enc.Finish(combat.TeamPlayers)
	enc.Fail("late failure")
	enc.Finish(combat.TeamNPCs)
	assert.Equal(t, combat.StatusVictoryPlayers, enc.Status)
}

func TestTickRound(t *testing.T) {
	reg := condition.NewRegistry()
	reg.Register(&condition.Definition{ID: "poisoned", DurationType: condition.DurationRounds, MaxStacks: 3, DamagePerRound: 2})
	a := participant(actor.Player("a"), 10)
	a.Cooldowns["power_strike"] = 2
	a.Cooldowns["mend"] = 1
	require.NoError(t, a.StatusEffects.Apply(mustDef(reg, "poisoned"), 1, 1))
	enc := encounter(a, participant(actor.NPC("b"), 5))

	lines := combat.TickRound(enc, reg)

	assert.Equal(t, 8, a.CurrentHP)
	assert.Equal(t, map[string]int{"power_strike": 1}, a.Cooldowns)
	assert.False(t, a.StatusEffects.Has("poisoned"))
	assert.Len(t, lines, 2)
}

func TestHitChances(t *testing.T) {
	hit, crit := combat.HitChances(0, 11)
	assert.InDelta(t, 0.5, hit, 1e-9)
	assert.InDelta(t, 0.0, crit, 1e-9)

	hit, crit = combat.HitChances(10, 5)
	assert.InDelta(t, 1.0, hit, 1e-9)
	assert.InDelta(t, 0.8, crit, 1e-9, "crit needs a natural 5 or better")

	hit, crit = combat.HitChances(20, 5)
	assert.InDelta(t, 1.0, hit, 1e-9)
	assert.InDelta(t, 1.0, crit, 1e-9)
}

func TestOutcomeFor(t *testing.T) {
	assert.Equal(t, combat.CritSuccess, combat.OutcomeFor(22, 12))
	assert.Equal(t, combat.Success, combat.OutcomeFor(12, 12))
	assert.Equal(t, combat.Failure, combat.OutcomeFor(2, 12))
	assert.Equal(t, combat.CritFailure, combat.OutcomeFor(1, 12))
}

func TestAddParticipant_RejectsDuplicates(t *testing.T) {
	a := participant(actor.Player("a"), 10)
	enc := encounter(a)
	assert.Error(t, enc.AddParticipant(participant(actor.Player("a"), 5)))
	assert.Len(t, enc.Participants, 1)
}

func mustDef(reg *condition.Registry, id string) *condition.Definition {
	d, ok := reg.Get(id)
	if !ok {
		panic("missing condition " + id)
	}
	return d
}
