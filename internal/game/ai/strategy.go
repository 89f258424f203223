// Package ai decides what a computer-controlled combatant does on its turn.
//
// A decision compiles a RuleSet from the guild's strategy book, rule
// overrides, the NPC's personality, and the relationships the NPC holds
// toward the other participants. It then picks a hostile target by metric
// and the best-scoring action against it.
package ai

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Metric names a target-scoring metric.
type Metric string

const (
	MetricLowestHP           Metric = "lowest_hp_percent"
	MetricHighestThreat      Metric = "highest_threat"
	MetricLowestArmor        Metric = "lowest_armor"
	MetricHighestDamageTaken Metric = "highest_damage_taken"
	MetricRandom             Metric = "random"
)

// Known reports whether m is a recognised metric.
func (m Metric) Known() bool {
	switch m {
	case MetricLowestHP, MetricHighestThreat, MetricLowestArmor, MetricHighestDamageTaken, MetricRandom:
		return true
	default:
		return false
	}
}

// Hostility classifies how an NPC regards another participant.
type Hostility string

const (
	Friendly Hostility = "friendly"
	Neutral  Hostility = "neutral"
	Hostile  Hostility = "hostile"
)

// Simulation configures the optional outcome filter.
type Simulation struct {
	Enabled        bool    `yaml:"enabled"`
	MinHitChance   float64 `yaml:"min_hit_chance"`
	MinDamageRatio float64 `yaml:"min_damage_ratio"`
}

// Strategy is the tunable core of an NPC's combat behavior.
type Strategy struct {
	// OffensiveBias in [-1, 1] scales damage up and support down when positive.
	OffensiveBias float64 `yaml:"offensive_bias"`
	// HealThreshold is the HP ratio below which healing is heavily favoured.
	HealThreshold float64 `yaml:"heal_threshold"`
	// ResourceReserve is the minimum of each resource an ability must leave.
	ResourceReserve int        `yaml:"resource_reserve"`
	TargetPriority  []Metric   `yaml:"target_priority"`
	Simulation      Simulation `yaml:"simulation"`
}

// Personality adjusts a strategy.
type Personality struct {
	OffensiveBiasDelta   float64 `yaml:"offensive_bias_delta"`
	HealThresholdDelta   float64 `yaml:"heal_threshold_delta"`
	ResourceReserveDelta int     `yaml:"resource_reserve_delta"`
}

// Influence is the standard relationship-influence block.
type Influence struct {
	// FriendlyActionBias and HostileActionBias map an ability ID or category
	// to a score multiplier, applied when the NPC's standard relationship
	// with the target crosses the friendly or hostile threshold.
	FriendlyActionBias map[string]float64 `yaml:"friendly_action_bias"`
	HostileActionBias  map[string]float64 `yaml:"hostile_action_bias"`
	// MetricFormulas rewrite a raw metric score given the standard
	// relationship value.
	MetricFormulas map[Metric]string `yaml:"metric_formulas"`
}

// Thresholds are the relationship values at which a target becomes hostile or
// friendly, plus a formula over the relationship value that shifts both.
type Thresholds struct {
	Hostile       int    `yaml:"hostile"`
	Friendly      int    `yaml:"friendly"`
	AdjustFormula string `yaml:"adjust_formula"`
}

// HostilityOverride forces a hostility status when Condition holds.
type HostilityOverride struct {
	Condition string    `yaml:"condition_formula"`
	NewStatus Hostility `yaml:"new_hostility_status"`
}

// HiddenRule is the effect block attached to a hidden relationship type or
// base category.
type HiddenRule struct {
	Enabled           bool               `yaml:"enabled"`
	Priority          int                `yaml:"priority"`
	HostilityOverride *HostilityOverride `yaml:"hostility_override"`
	MetricModifiers   map[Metric]string  `yaml:"metric_modifiers"`
	// ActionMultipliers map an ability ID or category to a multiplier formula.
	ActionMultipliers map[string]string `yaml:"action_multipliers"`
}

// Book is the guild-independent strategy configuration.
type Book struct {
	DefaultStrategy string                 `yaml:"default_strategy"`
	Strategies      map[string]Strategy    `yaml:"strategies"`
	Personalities   map[string]Personality `yaml:"personalities"`
	Influence       Influence              `yaml:"influence"`
	Thresholds      Thresholds             `yaml:"thresholds"`
	// HiddenRules are keyed by exact relationship type or base category.
	HiddenRules map[string]HiddenRule `yaml:"hidden_rules"`
}

// DefaultBook returns the built-in book used when no file is configured.
func DefaultBook() *Book {
	return &Book{
		DefaultStrategy: "balanced",
		Strategies: map[string]Strategy{
			"balanced": {
				HealThreshold:  0.3,
				TargetPriority: []Metric{MetricHighestThreat, MetricLowestHP},
				Simulation:     Simulation{MinHitChance: 0.2, MinDamageRatio: 0.05},
			},
		},
		Thresholds: Thresholds{Hostile: -20, Friendly: 20},
	}
}

// Strategy returns the named profile, falling back to the default profile
// and then to the zero Strategy.
func (b *Book) Strategy(name string) Strategy {
	if s, ok := b.Strategies[name]; ok {
		return s.clone()
	}
	if s, ok := b.Strategies[b.DefaultStrategy]; ok {
		return s.clone()
	}
	return Strategy{TargetPriority: []Metric{MetricLowestHP}}
}

func (s Strategy) clone() Strategy {
	s.TargetPriority = append([]Metric(nil), s.TargetPriority...)
	return s
}

// Validate checks the book's structure.
//
// Postcondition: nil return guarantees a resolvable default strategy, known
// metrics everywhere, and hostility overrides with a condition and a valid
// status.
func (b *Book) Validate() error {
	if len(b.Strategies) == 0 {
		return errors.New("ai.Book: must define at least one strategy")
	}
	if _, ok := b.Strategies[b.DefaultStrategy]; !ok {
		return fmt.Errorf("ai.Book: default strategy %q is not defined", b.DefaultStrategy)
	}
	for name, s := range b.Strategies {
		for _, m := range s.TargetPriority {
			if !m.Known() {
				return fmt.Errorf("ai.Book strategy %q: unknown metric %q", name, m)
			}
		}
		if s.OffensiveBias < -1 || s.OffensiveBias > 1 {
			return fmt.Errorf("ai.Book strategy %q: offensive_bias must be in [-1, 1]", name)
		}
	}
	for m := range b.Influence.MetricFormulas {
		if !m.Known() {
			return fmt.Errorf("ai.Book influence: unknown metric %q", m)
		}
	}
	if b.Thresholds.Hostile > b.Thresholds.Friendly {
		return fmt.Errorf("ai.Book thresholds: hostile %d exceeds friendly %d", b.Thresholds.Hostile, b.Thresholds.Friendly)
	}
	for key, r := range b.HiddenRules {
		if o := r.HostilityOverride; o != nil {
			if o.Condition == "" {
				return fmt.Errorf("ai.Book hidden rule %q: hostility override needs condition_formula", key)
			}
			switch o.NewStatus {
			case Friendly, Neutral, Hostile:
			default:
				return fmt.Errorf("ai.Book hidden rule %q: unknown hostility %q", key, o.NewStatus)
			}
		}
		for m := range r.MetricModifiers {
			if !m.Known() {
				return fmt.Errorf("ai.Book hidden rule %q: unknown metric %q", key, m)
			}
		}
	}
	return nil
}

// ParseBook parses and validates a strategy book.
func ParseBook(data []byte) (*Book, error) {
	var b Book
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("ai.ParseBook: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// LoadBook reads a strategy book from path.
//
// Postcondition: returns a validated Book or an error.
func LoadBook(path string) (*Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ai.LoadBook: reading %q: %w", path, err)
	}
	return ParseBook(data)
}
