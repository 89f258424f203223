package ai_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/guildturn/internal/game/actor"
	"github.com/cory-johannsen/guildturn/internal/game/ai"
	"github.com/cory-johannsen/guildturn/internal/game/relationship"
	"github.com/cory-johannsen/guildturn/internal/game/roster"
	"github.com/cory-johannsen/guildturn/internal/rules"
)

func TestCompile_MergesLayers(t *testing.T) {
	book := ai.DefaultBook()
	book.Strategies["balanced"] = ai.Strategy{OffensiveBias: 0.5, HealThreshold: 0.2, ResourceReserve: 1, TargetPriority: []ai.Metric{ai.MetricLowestHP}}
	book.Personalities = map[string]ai.Personality{"brave": {OffensiveBiasDelta: 0.9, ResourceReserveDelta: -3}}
	book.Influence.FriendlyActionBias = map[string]float64{"heal": 1.5, "attack": 0.5}
	lookup := rules.NewStatic(nil)
	lookup.Set(guild, rules.KeyStrategyHealThreshold, 0.7)
	lookup.Set(guild, rules.KeyFriendlyActionBias, map[string]any{"attack": 0.25})
	lookup.Set(guild, rules.KeyHostileThreshold, -40)

	npc := &roster.NPC{ID: "goblin", Personality: "brave"}
	rs := ai.NewCompiler(book, lookup).Compile(context.Background(), guild, npc, nil, nil)

	assert.Equal(t, 1.0, rs.Strategy.OffensiveBias, "clamped")
	assert.Equal(t, 0.7, rs.Strategy.HealThreshold)
	assert.Equal(t, 0, rs.Strategy.ResourceReserve)
	assert.Equal(t, map[string]float64{"heal": 1.5, "attack": 0.25}, rs.Influence.FriendlyActionBias)
	assert.Equal(t, -40, rs.Thresholds.Hostile)
	assert.Equal(t, 20, rs.Thresholds.Friendly)
	assert.Empty(t, rs.Hidden)
}

func TestCompile_HiddenEntries(t *testing.T) {
	book := ai.DefaultBook()
	book.HiddenRules = map[string]ai.HiddenRule{
		"secret_positive": {Enabled: true, Priority: 10},
		"negative":        {Enabled: true, Priority: 30},
		"rival":           {Enabled: false, Priority: 99},
	}
	self, hero, orc, ghost := actor.NPC("goblin"), actor.Player("hero"), actor.NPC("orc"), actor.NPC("ghost")
	rels := []relationship.Relationship{
		relationship.New(guild, self, hero, "secret_positive", 70),
		relationship.New(guild, orc, self, "hidden_negative_grudge", -80),
		relationship.New(guild, self, hero, "secret_rival", -10),
		relationship.New(guild, self, ghost, "secret_positive", 90),
		relationship.New(guild, self, hero, relationship.TypeGeneral, 5),
		relationship.New(guild, self, hero, "secret_unmapped", 5),
	}

	rs := ai.NewCompiler(book, rules.NewStatic(nil)).Compile(context.Background(), guild, &roster.NPC{ID: "goblin"}, []actor.Ref{self, hero, orc}, rels)

	require.Len(t, rs.Hidden, 2)
	assert.Equal(t, orc, rs.Hidden[0].Target)
	assert.Equal(t, "hidden_negative_grudge", rs.Hidden[0].RelationshipType)
	assert.Equal(t, -80, rs.Hidden[0].Value)
	assert.Equal(t, hero, rs.Hidden[1].Target)
	assert.Len(t, rs.HiddenFor(hero), 1)
}
