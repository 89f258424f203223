package dice_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/guildturn/internal/game/dice"
)

func TestRollResult_String(t *testing.T) {
	r := dice.RollResult{Expression: "2d6+3", Dice: []int{4, 5}, Modifier: 3}
	assert.Equal(t, 12, r.Total())
	assert.Equal(t, "2d6+3 → [4 5] +3 = 12", r.String())
}

func TestParse(t *testing.T) {
	tests := []struct {
		in                        string
		count, sides, mod, keepHi int
	}{
		{"d20", 1, 20, 0, 0},
		{"1d20", 1, 20, 0, 0},
		{"2d6+3", 2, 6, 3, 0},
		{"4d8-2", 4, 8, -2, 0},
		{"4d6kh3", 4, 6, 0, 3},
		{"2D10 + 1", 2, 10, 1, 0},
		{"7", 0, 0, 7, 0},
	}
	for _, tc := range tests {
		e, err := dice.Parse(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.count, e.Count, tc.in)
		assert.Equal(t, tc.sides, e.Sides, tc.in)
		assert.Equal(t, tc.mod, e.Modifier, tc.in)
		assert.Equal(t, tc.keepHi, e.KeepHighest, tc.in)
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{"", "d", "0d6", "2d1", "3d6kh3", "d20+", "abc", "1d20*2"} {
		_, err := dice.Parse(in)
		assert.Error(t, err, in)
	}
}

func TestExpression_Mean(t *testing.T) {
	assert.InDelta(t, 10.5, dice.MustParse("1d20").Mean(), 1e-9)
	assert.InDelta(t, 10.0, dice.MustParse("2d6+3").Mean(), 1e-9)
	assert.Equal(t, 15, dice.MustParse("2d6+3").Max())
}

func TestRoll_Sequence(t *testing.T) {
	src := dice.NewSequence(3, 5)
	res := dice.Roll(dice.MustParse("2d6+1"), src)
	assert.Equal(t, []int{4, 6}, res.Dice)
	assert.Equal(t, 11, res.Total())
}

func TestRoll_Property_WithinBounds(t *testing.T) {
	src := dice.NewSeededSource(42)
	rapid.Check(t, func(rt *rapid.T) {
		count := rapid.IntRange(1, 6).Draw(rt, "count")
		sides := rapid.IntRange(2, 20).Draw(rt, "sides")
		mod := rapid.IntRange(-5, 5).Draw(rt, "mod")
		e, err := dice.Parse(fmt.Sprintf("%dd%d%+d", count, sides, mod))
		require.NoError(rt, err)
		total := dice.Roll(e, src).Total()
		assert.GreaterOrEqual(rt, total, count+mod)
		assert.LessOrEqual(rt, total, e.Max())
	})
}

func TestSeededSource_Deterministic(t *testing.T) {
	a, b := dice.NewSeededSource(7), dice.NewSeededSource(7)
	for i := 0; i < 50; i++ {
		assert.Equal(t, a.Intn(20), b.Intn(20))
	}
}

func TestCryptoSource_InRange(t *testing.T) {
	src := dice.NewCryptoSource()
	for i := 0; i < 500; i++ {
		v := src.Intn(6)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 6)
	}
	assert.Panics(t, func() { src.Intn(0) })
}

func TestRoller_RollExpr(t *testing.T) {
	r := dice.NewLoggedRoller(dice.NewSequence(19), zap.NewNop())
	res, err := r.RollExpr("1d20+2")
	require.NoError(t, err)
	assert.Equal(t, 22, res.Total())
	assert.True(t, strings.HasPrefix(res.String(), "1d20+2"))
	_, err = r.RollExpr("nope")
	assert.Error(t, err)
}
