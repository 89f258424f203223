package gameserver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/guildturn/internal/eventlog"
	"github.com/cory-johannsen/guildturn/internal/game/actor"
	"github.com/cory-johannsen/guildturn/internal/game/combat"
	"github.com/cory-johannsen/guildturn/internal/game/roster"
	"github.com/cory-johannsen/guildturn/internal/gameserver"
	"github.com/cory-johannsen/guildturn/internal/rules"
	"github.com/cory-johannsen/guildturn/internal/storage"
)

// inTx runs fn in one unit of work and fails the test on error.
func (h *harness) inTx(t *testing.T, fn func(ctx context.Context, tx storage.Tx) error) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.store.WithinTx(ctx, func(tx storage.Tx) error { return fn(ctx, tx) }))
}

func TestStart_FreshEncounterIsActiveAndNotOver(t *testing.T) {
	h := newHarness(t, map[string]any{rules.KeyMaxAutoTurns: 7}, 0)
	h.store.Seed([]*roster.Player{hero("a")}, nil, []*roster.NPC{goblin("goblin")})

	var enc *combat.Encounter
	h.inTx(t, func(ctx context.Context, tx storage.Tx) error {
		var err error
		enc, err = h.cycle.Start(ctx, tx, guild, "cave", []actor.Ref{actor.Player("a"), actor.NPC("goblin")})
		return err
	})

	assert.Equal(t, combat.StatusActive, enc.Status)
	assert.Equal(t, 1, enc.TurnOrder.Round)
	require.NotNil(t, enc.CurrentTurn)
	assert.Equal(t, enc.TurnOrder.Order[0], *enc.CurrentTurn)
	assert.Equal(t, 7, enc.RulesSnapshot[rules.KeyMaxAutoTurns], "rules are frozen at start")

	over, winner := h.cycle.CheckEnd(enc)
	assert.False(t, over)
	assert.Empty(t, winner)

	assert.Equal(t, actor.StatusInCombat, h.player(t, "a").Status)
	assert.Len(t, h.store.Events().OfKind(guild, eventlog.KindCombatStarted), 1)
}

func TestStart_NoResolvableCombatantsIsAnErrorEncounter(t *testing.T) {
	h := newHarness(t, nil, 0)

	var enc *combat.Encounter
	h.inTx(t, func(ctx context.Context, tx storage.Tx) error {
		var err error
		enc, err = h.cycle.Start(ctx, tx, guild, "cave", []actor.Ref{actor.NPC("ghost")})
		return err
	})

	assert.Equal(t, combat.StatusError, enc.Status)
	assert.Nil(t, enc.CurrentTurn)
	assert.Len(t, h.store.Events().OfKind(guild, eventlog.KindCombatError), 1)
	assert.Empty(t, h.store.Events().OfKind(guild, eventlog.KindCombatStarted))
}

func TestStart_InitiativeTiesKeepInputOrder(t *testing.T) {
	h := newHarness(t, nil, 0)
	g := goblin("goblin")
	g.Dexterity = 14
	h.store.Seed([]*roster.Player{hero("a"), hero("c")}, nil, []*roster.NPC{g})

	refs := []actor.Ref{actor.Player("c"), actor.NPC("goblin"), actor.Player("a")}
	var enc *combat.Encounter
	h.inTx(t, func(ctx context.Context, tx storage.Tx) error {
		var err error
		enc, err = h.cycle.Start(ctx, tx, guild, "cave", refs)
		return err
	})
	assert.Equal(t, refs, enc.TurnOrder.Order)
}

func TestJoin_AppendsNewcomersToTheTurnOrder(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.store.Seed([]*roster.Player{hero("a"), hero("b")}, nil, []*roster.NPC{goblin("goblin")})

	h.inTx(t, func(ctx context.Context, tx storage.Tx) error {
		enc, err := h.cycle.Start(ctx, tx, guild, "cave", []actor.Ref{actor.Player("a"), actor.NPC("goblin")})
		if err != nil {
			return err
		}
		if err := h.cycle.Join(ctx, tx, enc, []actor.Ref{actor.Player("a"), actor.Player("b")}); err != nil {
			return err
		}
		assert.Len(t, enc.Participants, 3, "existing participants are not added twice")
		assert.Equal(t, actor.Player("b"), enc.TurnOrder.Order[len(enc.TurnOrder.Order)-1])
		return nil
	})
	assert.Equal(t, actor.StatusInCombat, h.player(t, "b").Status)
}

func TestInjectPlayerAction_RejectsOutOfTurnActors(t *testing.T) {
	h := newHarness(t, nil, 0)
	slow := hero("b")
	slow.Dexterity = 10
	h.store.Seed([]*roster.Player{hero("a"), slow}, nil, []*roster.NPC{goblin("goblin")})

	h.inTx(t, func(ctx context.Context, tx storage.Tx) error {
		enc, err := h.cycle.Start(ctx, tx, guild, "cave",
			[]actor.Ref{actor.Player("a"), actor.Player("b"), actor.NPC("goblin")})
		if err != nil {
			return err
		}
		require.Equal(t, actor.Player("a"), *enc.CurrentTurn)
		_, err = h.cycle.InjectPlayerAction(ctx, tx, enc, actor.Player("b"), combat.Attack(actor.NPC("goblin")))
		assert.ErrorIs(t, err, gameserver.ErrNotYourTurn)
		assert.Equal(t, actor.Player("a"), *enc.CurrentTurn)
		return nil
	})
}

func TestProcessTurn_AutoTurnBudgetLeavesControlWithNextActor(t *testing.T) {
	h := newHarness(t, nil, 0)
	ally := hero("hero")
	ally.Faction = "guild"
	var npcs []*roster.NPC
	var parts []*combat.Participant
	order := []actor.Ref{}
	for _, id := range []string{"n1", "n2", "n3"} {
		n := goblin(id)
		n.Faction = "guild"
		npcs = append(npcs, n)
		parts = append(parts, combat.NewParticipant(n, combat.Defaults{MaxHP: 10, ArmorClass: 10, Dexterity: 10}))
		order = append(order, n.Ref())
	}
	parts = append(parts, combat.NewParticipant(ally, combat.Defaults{MaxHP: 10, ArmorClass: 10, Dexterity: 10}))
	order = append(order, ally.Ref())
	h.store.Seed([]*roster.Player{ally}, nil, npcs)

	first := order[0]
	enc := &combat.Encounter{
		ID: "e1", GuildID: guild, LocationID: "cave", Status: combat.StatusActive,
		Participants:  parts,
		TurnOrder:     combat.TurnOrder{Order: order, Round: 1},
		CurrentTurn:   &first,
		RulesSnapshot: map[string]any{rules.KeyMaxAutoTurns: 2},
	}

	h.inTx(t, func(ctx context.Context, tx storage.Tx) error {
		results, err := h.cycle.ProcessTurn(ctx, tx, enc)
		require.NoError(t, err)
		require.Len(t, results, 2)
		for _, r := range results {
			assert.Equal(t, combat.ResultIdle, r.Status, "allies have nobody to fight")
		}
		assert.Equal(t, actor.NPC("n3"), *enc.CurrentTurn)
		assert.Equal(t, combat.StatusActive, enc.Status)

		results, err = h.cycle.ProcessTurn(ctx, tx, enc)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, actor.NPC("n3"), results[0].Actor)
		assert.Equal(t, actor.Player("hero"), *enc.CurrentTurn)
		return nil
	})
}

func TestResume_HumanTurnIsNotSkipped(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.store.Seed([]*roster.Player{hero("a")}, nil, []*roster.NPC{goblin("goblin")})

	h.inTx(t, func(ctx context.Context, tx storage.Tx) error {
		enc, err := h.cycle.Start(ctx, tx, guild, "cave", []actor.Ref{actor.Player("a"), actor.NPC("goblin")})
		if err != nil {
			return err
		}
		results, err := h.cycle.Resume(ctx, tx, enc)
		require.NoError(t, err)
		assert.Empty(t, results)
		assert.Equal(t, actor.Player("a"), *enc.CurrentTurn)
		return nil
	})
}
