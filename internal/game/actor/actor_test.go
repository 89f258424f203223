package actor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/guildturn/internal/game/actor"
)

func TestLess_KindBeforeID(t *testing.T) {
	// "npc" < "party" < "player" byte-wise.
	assert.True(t, actor.Less(actor.NPC("z"), actor.Player("a")))
	assert.True(t, actor.Less(actor.Party("z"), actor.Player("a")))
	assert.False(t, actor.Less(actor.Player("a"), actor.NPC("z")))
	assert.True(t, actor.Less(actor.Player("a"), actor.Player("b")))
}

func TestCanonical_SymmetricLookup(t *testing.T) {
	a, b := actor.Player("p1"), actor.NPC("n1")
	f1, s1 := actor.Canonical(a, b)
	f2, s2 := actor.Canonical(b, a)
	assert.Equal(t, f1, f2)
	assert.Equal(t, s1, s2)
	assert.Equal(t, actor.NPC("n1"), f1)
}

func TestCanonical_Property_OrderIndependent(t *testing.T) {
	kinds := []actor.Kind{actor.KindPlayer, actor.KindNPC, actor.KindParty}
	rapid.Check(t, func(rt *rapid.T) {
		a := actor.Ref{ID: rapid.StringMatching(`[a-z0-9]{1,6}`).Draw(rt, "a_id"), Kind: rapid.SampledFrom(kinds).Draw(rt, "a_kind")}
		b := actor.Ref{ID: rapid.StringMatching(`[a-z0-9]{1,6}`).Draw(rt, "b_id"), Kind: rapid.SampledFrom(kinds).Draw(rt, "b_kind")}
		f1, s1 := actor.Canonical(a, b)
		f2, s2 := actor.Canonical(b, a)
		assert.Equal(rt, f1, f2)
		assert.Equal(rt, s1, s2)
		assert.False(rt, actor.Less(s1, f1))
	})
}

func TestStatus_Settled(t *testing.T) {
	assert.Equal(t, actor.StatusInCombat, actor.StatusInCombat.Settled())
	assert.Equal(t, actor.StatusExploring, actor.StatusProcessing.Settled())
	assert.Equal(t, actor.StatusExploring, actor.StatusTurnEnded.Settled())
}

func TestRef_String(t *testing.T) {
	assert.Equal(t, "npc:goblin-1", actor.NPC("goblin-1").String())
	assert.True(t, actor.Ref{}.IsZero())
}
