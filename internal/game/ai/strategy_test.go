package ai_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/guildturn/internal/game/ai"
)

func TestLoadBook_ShippedContent(t *testing.T) {
	b, err := ai.LoadBook("../../../content/ai/strategies.yaml")
	require.NoError(t, err)
	assert.Equal(t, "balanced", b.DefaultStrategy)
	assert.Contains(t, b.Strategies, "cautious")
	assert.Equal(t, -20, b.Thresholds.Hostile)
	require.NotNil(t, b.HiddenRules["secret_positive"].HostilityOverride)
	assert.Equal(t, ai.Friendly, b.HiddenRules["secret_positive"].HostilityOverride.NewStatus)
}

func TestBook_StrategyFallsBackToDefault(t *testing.T) {
	b := ai.DefaultBook()
	s := b.Strategy("nonexistent")
	assert.Equal(t, []ai.Metric{ai.MetricHighestThreat, ai.MetricLowestHP}, s.TargetPriority)

	s.TargetPriority[0] = ai.MetricRandom
	assert.Equal(t, ai.MetricHighestThreat, b.Strategy("balanced").TargetPriority[0], "profiles are copied")
}

func TestParseBook_Rejects(t *testing.T) {
	cases := map[string]string{
		"no strategies":    "default_strategy: x\n",
		"missing default":  "default_strategy: x\nstrategies: {y: {}}\n",
		"unknown metric":   "default_strategy: x\nstrategies: {x: {target_priority: [nearest]}}\n",
		"bias range":       "default_strategy: x\nstrategies: {x: {offensive_bias: 2}}\n",
		"inverted bounds":  "default_strategy: x\nstrategies: {x: {}}\nthresholds: {hostile: 30, friendly: 10}\n",
		"override no cond": "default_strategy: x\nstrategies: {x: {}}\nhidden_rules: {p: {hostility_override: {new_hostility_status: friendly}}}\n",
		"override status":  "default_strategy: x\nstrategies: {x: {}}\nhidden_rules: {p: {hostility_override: {condition_formula: '1', new_hostility_status: ally}}}\n",
		"bad yaml":         "strategies: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ai.ParseBook([]byte(doc))
			assert.Error(t, err)
		})
	}
}
