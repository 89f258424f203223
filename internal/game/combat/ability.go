package combat

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/guildturn/internal/game/dice"
)

// Ability categories. CategoryAttack is reserved for the implicit basic attack.
const (
	CategoryAttack = "attack"
	CategoryDamage = "damage"
	CategoryHeal   = "heal"
	CategoryBuff   = "buff"
	CategoryDebuff = "debuff"
)

// Ability targeting modes.
const (
	TargetEnemy = "enemy"
	TargetAlly  = "ally"
	TargetSelf  = "self"
)

// Ability is one catalogued combat technique.
type Ability struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	Target   string `yaml:"target"`
	// AttackRoll abilities must beat the target's armor class.
	AttackRoll     bool           `yaml:"attack_roll"`
	Dice           string         `yaml:"dice"`
	Cost           map[string]int `yaml:"cost"`
	Cooldown       int            `yaml:"cooldown"`
	Effect         string         `yaml:"effect"`
	EffectStacks   int            `yaml:"effect_stacks"`
	EffectDuration int            `yaml:"effect_duration"`

	expr dice.Expression
}

// Expr returns the parsed dice expression. Abilities without dice return the
// zero Expression.
func (a *Ability) Expr() dice.Expression { return a.expr }

// Validate checks a's structure and parses its dice.
func (a *Ability) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("ability id must not be empty")
	}
	switch a.Category {
	case CategoryDamage, CategoryHeal, CategoryBuff, CategoryDebuff:
	default:
		return fmt.Errorf("ability %q: unknown category %q", a.ID, a.Category)
	}
	switch a.Target {
	case TargetEnemy, TargetAlly, TargetSelf:
	case "":
		a.Target = TargetEnemy
		if a.Category == CategoryHeal || a.Category == CategoryBuff {
			a.Target = TargetSelf
		}
	default:
		return fmt.Errorf("ability %q: unknown target %q", a.ID, a.Target)
	}
	if a.Dice != "" {
		e, err := dice.Parse(a.Dice)
		if err != nil {
			return fmt.Errorf("ability %q: %w", a.ID, err)
		}
		a.expr = e
	}
	if a.Cooldown < 0 {
		return fmt.Errorf("ability %q: cooldown must be >= 0", a.ID)
	}
	return nil
}

// Offensive reports whether a is aimed at enemies.
func (a *Ability) Offensive() bool { return a.Target == TargetEnemy }

// Catalog holds abilities keyed by ID.
type Catalog struct {
	abilities map[string]*Ability
}

// NewCatalog builds a Catalog, validating each ability.
func NewCatalog(abilities ...*Ability) (*Catalog, error) {
	c := &Catalog{abilities: make(map[string]*Ability, len(abilities))}
	for _, a := range abilities {
		if err := a.Validate(); err != nil {
			return nil, err
		}
		c.abilities[a.ID] = a
	}
	return c, nil
}

// Get returns the ability for id.
func (c *Catalog) Get(id string) (*Ability, bool) {
	if c == nil {
		return nil, false
	}
	a, ok := c.abilities[id]
	return a, ok
}

// All returns every ability sorted by ID.
func (c *Catalog) All() []*Ability {
	out := make([]*Ability, 0, len(c.abilities))
	for _, a := range c.abilities {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadCatalog reads every *.yaml file in dir as one Ability.
// Postcondition: Returns a non-nil Catalog, or an error if any file fails to parse.
func LoadCatalog(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading ability dir %q: %w", dir, err)
	}
	var abilities []*Ability
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		var a Ability
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&a); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
		abilities = append(abilities, &a)
	}
	return NewCatalog(abilities...)
}
