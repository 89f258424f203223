package formula_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/guildturn/internal/formula"
)

func TestEval_ThresholdShift(t *testing.T) {
	e, err := formula.Compile("-(relationship_value/10)")
	require.NoError(t, err)
	v, err := e.Eval(formula.Vars{"relationship_value": 50})
	require.NoError(t, err)
	assert.InDelta(t, -5.0, v, 1e-9)
	v, err = e.Eval(formula.Vars{"relationship_value": -50})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, v, 1e-9)
}

func TestEval_Arithmetic(t *testing.T) {
	tests := []struct {
		src  string
		vars formula.Vars
		want float64
	}{
		{"1 + 2 * 3", nil, 7},
		{"(1 + 2) * 3", nil, 9},
		{"current_score * 1.5", formula.Vars{"current_score": 10}, 15},
		{"2 ^ 3", nil, 8},
		{"2 ** 3", nil, 8},
		{"7 % 4", nil, 3},
		{"max(1, value, 3)", formula.Vars{"value": 9}, 9},
		{"min(4, 2)", nil, 2},
		{"clamp(value, 0, 10)", formula.Vars{"value": 42}, 10},
		{"abs(-3) + floor(1.7) + ceil(1.2)", nil, 6},
	}
	for _, tc := range tests {
		e, err := formula.Compile(tc.src)
		require.NoError(t, err, tc.src)
		got, err := e.Eval(tc.vars)
		require.NoError(t, err, tc.src)
		assert.InDelta(t, tc.want, got, 1e-9, tc.src)
	}
}

func TestEvalBool_Conditions(t *testing.T) {
	tests := []struct {
		src  string
		val  float64
		want bool
	}{
		{"value > 50", 70, true},
		{"value > 50", 50, false},
		{"value >= 50 and value < 80", 60, true},
		{"value < 0 or value > 90", 95, true},
		{"value != 3", 3, false},
		{"value ~= 3", 4, true},
		{"not (value == 1)", 2, true},
		{"value > 10 && value < 20", 15, true},
	}
	for _, tc := range tests {
		e, err := formula.Compile(tc.src)
		require.NoError(t, err, tc.src)
		got, err := e.EvalBool(formula.Vars{"value": tc.val})
		require.NoError(t, err, tc.src)
		assert.Equal(t, tc.want, got, "%s with value=%v", tc.src, tc.val)
	}
}

func TestCompile_RejectsHostAccess(t *testing.T) {
	for _, src := range []string{
		"os.exit(1)",
		"io.open('x')",
		"print('hi')",
		"string.rep('a', 10)",
		"'a' .. 'b'",
		"#value",
		"{1, 2}",
		"function() return 1 end",
		"x:method()",
		"1; os.exit()",
		"value end",
		"",
	} {
		_, err := formula.Compile(src)
		assert.Error(t, err, src)
	}
}

func TestEval_UnknownVariable(t *testing.T) {
	e, err := formula.Compile("mystery + 1")
	require.NoError(t, err)
	_, err = e.Eval(formula.Vars{"value": 1})
	assert.ErrorIs(t, err, formula.ErrUnknownVariable)
}

func TestEval_DivisionByZero(t *testing.T) {
	e, err := formula.Compile("10 / value")
	require.NoError(t, err)
	_, err = e.Eval(formula.Vars{"value": 0})
	assert.ErrorIs(t, err, formula.ErrArithmetic)
}

func TestCache_ReusesCompilation(t *testing.T) {
	c := formula.NewCache()
	a, err := c.Compile("value * 2")
	require.NoError(t, err)
	b, err := c.Compile("value * 2")
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = c.Eval("value +", formula.Vars{"value": 1})
	assert.Error(t, err)
	_, err = c.Eval("value +", formula.Vars{"value": 1})
	assert.Error(t, err)
}

func TestEval_Property_LinearFormula(t *testing.T) {
	e, err := formula.Compile("-(relationship_value/10)")
	require.NoError(t, err)
	rapid.Check(t, func(rt *rapid.T) {
		rv := rapid.Float64Range(-100, 100).Draw(rt, "rv")
		got, err := e.Eval(formula.Vars{"relationship_value": rv})
		require.NoError(rt, err)
		assert.InDelta(rt, -rv/10, got, 1e-9)
	})
}

func TestCache_EvalOrFallsBack(t *testing.T) {
	c := formula.NewCache()
	v, err := c.EvalOr("value * 2", formula.Vars{"value": 4}, 1)
	require.NoError(t, err)
	assert.Equal(t, 8.0, v)

	v, err = c.EvalOr("os.exit(1)", nil, 1)
	assert.Error(t, err)
	assert.Equal(t, 1.0, v)

	v, err = c.EvalOr("missing + 1", formula.Vars{}, 3)
	assert.ErrorIs(t, err, formula.ErrUnknownVariable)
	assert.Equal(t, 3.0, v)
}
