package gameserver_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/guildturn/internal/formula"
	"github.com/cory-johannsen/guildturn/internal/game/actor"
	"github.com/cory-johannsen/guildturn/internal/game/ai"
	"github.com/cory-johannsen/guildturn/internal/game/combat"
	"github.com/cory-johannsen/guildturn/internal/game/condition"
	"github.com/cory-johannsen/guildturn/internal/game/dice"
	"github.com/cory-johannsen/guildturn/internal/game/relationship"
	"github.com/cory-johannsen/guildturn/internal/game/roster"
	"github.com/cory-johannsen/guildturn/internal/gameserver"
	"github.com/cory-johannsen/guildturn/internal/rules"
	"github.com/cory-johannsen/guildturn/internal/storage"
	"github.com/cory-johannsen/guildturn/internal/storage/memory"
)

const guild = "g1"

// harness wires the full turn core over an in-memory store.
type harness struct {
	logger  *zap.Logger
	lookup  rules.Lookup
	engine  *combat.Engine
	decider *ai.Decider

	store *memory.Store
	locks *gameserver.LockRegistry
	cycle *gameserver.CombatCycle
	proc  *gameserver.ActionProcessor
	ctrl  *gameserver.TurnController
}

// newHarness builds a harness whose dice always return roll+1 on every die
// (clamped to the die size), so fights are deterministic.
func newHarness(t *testing.T, overrides map[string]any, roll int) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))
	lookup := rules.NewStatic(overrides)
	catalog, err := combat.NewCatalog()
	require.NoError(t, err)
	engine := combat.NewEngine(dice.NewLoggedRoller(dice.NewSequence(roll), logger), catalog, condition.NewRegistry(), logger)
	decider := ai.NewDecider(ai.NewCompiler(ai.DefaultBook(), lookup), engine, formula.NewCache(), logger)
	hooks := gameserver.DefaultHooks(relationship.NewUpdater(logger), logger)
	cycle := gameserver.NewCombatCycle(engine, decider, lookup, 0, logger, hooks...)

	store := memory.New()
	proc := gameserver.NewActionProcessor(store, logger)
	gameserver.NewIntents(cycle, lookup, logger).Register(proc)
	locks := gameserver.NewLockRegistry()
	return &harness{
		logger:  logger,
		lookup:  lookup,
		engine:  engine,
		decider: decider,

		store: store,
		locks: locks,
		cycle: cycle,
		proc:  proc,
		ctrl:  gameserver.NewTurnController(store, locks, proc, logger),
	}
}

func (h *harness) player(t *testing.T, id string) *roster.Player {
	t.Helper()
	var p *roster.Player
	require.NoError(t, h.store.WithinTx(context.Background(), func(tx storage.Tx) error {
		var err error
		p, err = tx.Players().Get(context.Background(), guild, id)
		return err
	}))
	return p
}

func (h *harness) npc(t *testing.T, id string) *roster.NPC {
	t.Helper()
	var n *roster.NPC
	require.NoError(t, h.store.WithinTx(context.Background(), func(tx storage.Tx) error {
		var err error
		n, err = tx.NPCs().Get(context.Background(), guild, id)
		return err
	}))
	return n
}

func (h *harness) party(t *testing.T, id string) *roster.Party {
	t.Helper()
	var p *roster.Party
	require.NoError(t, h.store.WithinTx(context.Background(), func(tx storage.Tx) error {
		var err error
		p, err = tx.Parties().Get(context.Background(), guild, id)
		return err
	}))
	return p
}

func queue(actions ...json.RawMessage) []json.RawMessage { return actions }

func attack(target string) json.RawMessage {
	return roster.EncodeQueuedAction(gameserver.IntentAttack, roster.Entity{Type: gameserver.EntityTarget, Value: target})
}

func wait() json.RawMessage { return roster.EncodeQueuedAction(gameserver.IntentWait) }

func hero(id string) *roster.Player {
	return &roster.Player{
		ID: id, GuildID: guild, Name: id, LocationID: "cave",
		Status: actor.StatusExploring, Level: 1, MaxHP: 30, CurrentHP: 30, Dexterity: 14, Strength: 10,
	}
}

func goblin(id string) *roster.NPC {
	return &roster.NPC{
		ID: id, GuildID: guild, Name: id, LocationID: "cave", Faction: "goblins",
		Level: 1, MaxHP: 10, CurrentHP: 10, Dexterity: 10, Strength: 10,
		Resources: map[string]int{"gold": 7},
	}
}
