package gameserver_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/guildturn/internal/eventlog"
	"github.com/cory-johannsen/guildturn/internal/game/actor"
	"github.com/cory-johannsen/guildturn/internal/game/combat"
	"github.com/cory-johannsen/guildturn/internal/game/relationship"
	"github.com/cory-johannsen/guildturn/internal/game/roster"
	"github.com/cory-johannsen/guildturn/internal/gameserver"
	"github.com/cory-johannsen/guildturn/internal/rules"
	"github.com/cory-johannsen/guildturn/internal/storage"
)

func participant(c roster.Combatant, hp int) *combat.Participant {
	p := combat.NewParticipant(c, combat.Defaults{MaxHP: 10, ArmorClass: 10, Dexterity: 10})
	p.CurrentHP = hp
	return p
}

func endedFight(snapshot map[string]any, winners, losers []*combat.Participant) gameserver.CombatEnd {
	return gameserver.CombatEnd{
		Encounter: &combat.Encounter{
			ID: "e1", GuildID: guild, LocationID: "cave",
			Status: combat.StatusVictoryPlayers, RulesSnapshot: snapshot,
			Participants: append(append([]*combat.Participant{}, winners...), losers...),
		},
		Winners: winners,
		Losers:  losers,
		CauseID: "cause-1",
	}
}

func TestXPHook_AwardsPerDefeatedFoeLevel(t *testing.T) {
	h := newHarness(t, nil, 0)
	boss := goblin("boss")
	boss.Level = 3
	h.store.Seed([]*roster.Player{hero("a")}, nil, []*roster.NPC{goblin("g"), boss})

	end := endedFight(map[string]any{rules.KeyVictoryXP: 5},
		[]*combat.Participant{participant(hero("a"), 30)},
		[]*combat.Participant{participant(goblin("g"), 0), participant(boss, 0)},
	)
	h.inTx(t, func(ctx context.Context, tx storage.Tx) error {
		return gameserver.NewXPHook(zap.NewNop()).OnCombatEnd(ctx, tx, end)
	})

	assert.Equal(t, 20, h.player(t, "a").XP)
	awards := h.store.Events().OfKind(guild, eventlog.KindXPAwarded)
	require.Len(t, awards, 1)
	assert.Equal(t, "cause-1", awards[0].Details["cause_id"])
}

func TestXPHook_StalemateAwardsNothing(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.store.Seed([]*roster.Player{hero("a")}, nil, []*roster.NPC{goblin("g")})

	end := endedFight(nil, nil, []*combat.Participant{participant(hero("a"), 0), participant(goblin("g"), 0)})
	h.inTx(t, func(ctx context.Context, tx storage.Tx) error {
		return gameserver.NewXPHook(zap.NewNop()).OnCombatEnd(ctx, tx, end)
	})

	assert.Zero(t, h.player(t, "a").XP)
	assert.Empty(t, h.store.Events().OfKind(guild, eventlog.KindXPAwarded))
}

func TestLootHook_SplitsRemainderToEarliestWinners(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.store.Seed([]*roster.Player{hero("a"), hero("b")}, nil, []*roster.NPC{goblin("g")})

	end := endedFight(nil,
		[]*combat.Participant{participant(hero("a"), 30), participant(hero("b"), 30)},
		[]*combat.Participant{participant(goblin("g"), 0)},
	)
	h.inTx(t, func(ctx context.Context, tx storage.Tx) error {
		return gameserver.NewLootHook(zap.NewNop()).OnCombatEnd(ctx, tx, end)
	})

	assert.Equal(t, 4, h.player(t, "a").Resources["gold"])
	assert.Equal(t, 3, h.player(t, "b").Resources["gold"])
	assert.Zero(t, h.npc(t, "g").Resources["gold"])
	assert.Len(t, h.store.Events().OfKind(guild, eventlog.KindLootTransferred), 2)
}

func TestLootHook_SurvivingFoesKeepTheirLoot(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.store.Seed([]*roster.Player{hero("a")}, nil, []*roster.NPC{goblin("g")})

	end := endedFight(nil,
		[]*combat.Participant{participant(hero("a"), 30)},
		[]*combat.Participant{participant(goblin("g"), 4)},
	)
	h.inTx(t, func(ctx context.Context, tx storage.Tx) error {
		return gameserver.NewLootHook(zap.NewNop()).OnCombatEnd(ctx, tx, end)
	})

	assert.Equal(t, 7, h.npc(t, "g").Resources["gold"])
	assert.Empty(t, h.store.Events().OfKind(guild, eventlog.KindLootTransferred))
}

func TestRelationshipHook_ZeroDeltaIsNoOp(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.store.Seed([]*roster.Player{hero("a")}, nil, []*roster.NPC{goblin("g")})

	end := endedFight(map[string]any{rules.KeyDefeatRelationship: 0},
		[]*combat.Participant{participant(hero("a"), 30)},
		[]*combat.Participant{participant(goblin("g"), 0)},
	)
	h.inTx(t, func(ctx context.Context, tx storage.Tx) error {
		return gameserver.NewRelationshipHook(relationship.NewUpdater(zap.NewNop()), zap.NewNop()).OnCombatEnd(ctx, tx, end)
	})

	rels, err := h.store.Relationships().Between(context.Background(), guild, actor.Player("a"), actor.NPC("g"))
	require.NoError(t, err)
	assert.Empty(t, rels)
}

func TestQuestHook_RecordsProgressPerWinner(t *testing.T) {
	h := newHarness(t, nil, 0)
	end := endedFight(nil,
		[]*combat.Participant{participant(hero("a"), 30), participant(hero("b"), 30)},
		[]*combat.Participant{participant(goblin("g"), 0)},
	)
	h.inTx(t, func(ctx context.Context, tx storage.Tx) error {
		return gameserver.NewQuestHook(zap.NewNop()).OnCombatEnd(ctx, tx, end)
	})

	progress := h.store.Events().OfKind(guild, eventlog.KindQuestProgress)
	require.Len(t, progress, 2)
	assert.Contains(t, progress[0].Refs, actor.Player("a"))
}

// hookFunc adapts a function to gameserver.Hook.
type hookFunc struct {
	name string
	fn   func(ctx context.Context, tx storage.Tx, end gameserver.CombatEnd) error
}

func (h hookFunc) Name() string { return h.name }

func (h hookFunc) OnCombatEnd(ctx context.Context, tx storage.Tx, end gameserver.CombatEnd) error {
	return h.fn(ctx, tx, end)
}

func TestConclude_FailingHooksDoNotStopTheRest(t *testing.T) {
	h := newHarness(t, nil, 0)
	h.store.Seed([]*roster.Player{hero("a")}, nil, []*roster.NPC{goblin("g")})

	failing := hookFunc{name: "failing", fn: func(ctx context.Context, tx storage.Tx, _ gameserver.CombatEnd) error {
		return errors.New("ledger unavailable")
	}}
	panicking := hookFunc{name: "panicking", fn: func(context.Context, storage.Tx, gameserver.CombatEnd) error {
		panic("nil ledger")
	}}
	cycle := gameserver.NewCombatCycle(h.engine, h.decider, h.lookup, 0, h.logger,
		failing, panicking, gameserver.NewQuestHook(zap.NewNop()))

	// The goblin is already down and holds the turn, so the next step ends the fight.
	dead := goblin("g").Ref()
	enc := &combat.Encounter{
		ID: "e1", GuildID: guild, LocationID: "cave", Status: combat.StatusActive,
		Participants: []*combat.Participant{participant(goblin("g"), 0), participant(hero("a"), 30)},
		TurnOrder:    combat.TurnOrder{Order: []actor.Ref{dead, actor.Player("a")}, Round: 1},
		CurrentTurn:  &dead,
	}
	h.inTx(t, func(ctx context.Context, tx storage.Tx) error {
		_, err := cycle.ProcessTurn(ctx, tx, enc)
		return err
	})

	assert.Equal(t, combat.StatusVictoryPlayers, enc.Status)
	assert.Nil(t, enc.CurrentTurn)
	assert.Len(t, h.store.Events().OfKind(guild, eventlog.KindCombatEnded), 1)
	progress := h.store.Events().OfKind(guild, eventlog.KindQuestProgress)
	require.Len(t, progress, 1)
	assert.Contains(t, progress[0].Refs, actor.Player("a"))
}
