package roster_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/guildturn/internal/game/actor"
	"github.com/cory-johannsen/guildturn/internal/game/roster"
)

func TestParseQueuedAction_Valid(t *testing.T) {
	raw := roster.EncodeQueuedAction("Attack", roster.Entity{Type: "target", Value: "npc:goblin"})
	qa, err := roster.ParseQueuedAction(actor.Player("p1"), raw)
	require.NoError(t, err)
	assert.Equal(t, "attack", qa.Intent)
	assert.Equal(t, actor.Player("p1"), qa.Actor)
	v, ok := qa.Entity("target")
	assert.True(t, ok)
	assert.Equal(t, "npc:goblin", v)
}

func TestParseQueuedAction_Malformed(t *testing.T) {
	cases := map[string]json.RawMessage{
		"not json":     json.RawMessage(`{{`),
		"array":        json.RawMessage(`[1,2]`),
		"empty intent": json.RawMessage(`{"intent":"  "}`),
		"blank entity": json.RawMessage(`{"intent":"attack","entities":[{"type":"","value":"x"}]}`),
	}
	for name, raw := range cases {
		_, err := roster.ParseQueuedAction(actor.Player("p1"), raw)
		assert.ErrorIs(t, err, roster.ErrMalformedAction, name)
	}
}

func TestParseRef(t *testing.T) {
	r, err := roster.ParseRef("player:abc")
	require.NoError(t, err)
	assert.Equal(t, actor.Player("abc"), r)

	r, err = roster.ParseRef("goblin-2")
	require.NoError(t, err)
	assert.Equal(t, actor.NPC("goblin-2"), r)

	_, err = roster.ParseRef("dragon:x")
	assert.Error(t, err)
	_, err = roster.ParseRef("")
	assert.Error(t, err)
}

func TestAbilityMod(t *testing.T) {
	tests := []struct{ score, want int }{{10, 0}, {12, 1}, {9, -1}, {8, -1}, {20, 5}, {1, -5}}
	for _, tc := range tests {
		assert.Equal(t, tc.want, roster.AbilityMod(tc.score), "score=%d", tc.score)
	}
}
