package ai

import (
	"context"

	"go.uber.org/zap"

	"github.com/cory-johannsen/guildturn/internal/formula"
	"github.com/cory-johannsen/guildturn/internal/game/actor"
	"github.com/cory-johannsen/guildturn/internal/game/combat"
	"github.com/cory-johannsen/guildturn/internal/game/condition"
)

// healUrgency multiplies heal scores when the actor is below its heal
// threshold.
const healUrgency = 3.0

// Candidate is one scored option.
type Candidate struct {
	Action         combat.ActionDescriptor
	Key            string // ability ID, or "attack" for the basic attack
	Category       string
	Target         *combat.Participant
	HitChance      float64
	ExpectedDamage float64
	Score          float64
}

// ApplyBias multiplies each candidate's score by bias[Key], falling back to
// bias[Category]. Candidates with neither entry are unchanged.
func ApplyBias(cands []Candidate, bias map[string]float64) {
	if len(bias) == 0 {
		return
	}
	for i := range cands {
		if m, ok := bias[cands[i].Key]; ok {
			cands[i].Score *= m
			continue
		}
		if m, ok := bias[cands[i].Category]; ok {
			cands[i].Score *= m
		}
	}
}

// Best returns the highest-scoring candidate; ties go to the earlier one.
func Best(cands []Candidate) (Candidate, bool) {
	if len(cands) == 0 {
		return Candidate{}, false
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.Score > best.Score {
			best = c
		}
	}
	return best, true
}

// Simulate drops offensive candidates whose hit chance or expected damage
// relative to the target's remaining HP falls below the configured minimums.
func Simulate(cands []Candidate, sim Simulation) []Candidate {
	if !sim.Enabled {
		return cands
	}
	out := cands[:0:0]
	for _, c := range cands {
		if c.ExpectedDamage > 0 && c.Target != nil {
			if c.HitChance < sim.MinHitChance {
				continue
			}
			hp := max(c.Target.CurrentHP, 1)
			if c.ExpectedDamage/float64(hp) < sim.MinDamageRatio {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// expectedDamage folds critical doubling into the mean.
func expectedDamage(mean, hit, crit float64) float64 {
	return (hit-crit)*mean + crit*2*mean
}

// enumerate lists the basic attack against target plus every usable ability.
func (d *Decider) enumerate(ctx context.Context, rs *RuleSet, enc *combat.Encounter, self, target *combat.Participant) []Candidate {
	bias := rs.Strategy.OffensiveBias
	reg := d.engine.Conditions()
	var out []Candidate

	if !condition.IsActionRestricted(reg, self.StatusEffects, string(combat.ActionAttack)) {
		hit, crit := combat.HitChances(d.engine.EffectiveAttackBonus(self), d.engine.EffectiveAC(target))
		mean := d.engine.BasicAttackDice(ctx, enc).Mean() + float64(self.DamageBonus)
		dmg := expectedDamage(mean, hit, crit)
		out = append(out, Candidate{
			Action:         combat.Attack(target.Ref),
			Key:            combat.CategoryAttack,
			Category:       combat.CategoryAttack,
			Target:         target,
			HitChance:      hit,
			ExpectedDamage: dmg,
			Score:          dmg * (1 + bias),
		})
	}

	for _, id := range self.Abilities {
		a, ok := d.engine.Abilities().Get(id)
		if !ok {
			continue
		}
		if usable, _ := d.engine.Usable(self, a); !usable || !d.affordable(rs, self, a) {
			continue
		}
		c, ok := d.evaluate(rs, enc, self, target, a)
		if ok {
			out = append(out, c)
		}
	}
	return out
}

func (d *Decider) affordable(rs *RuleSet, self *combat.Participant, a *combat.Ability) bool {
	for res, cost := range a.Cost {
		if self.Resources[res]-cost < rs.Strategy.ResourceReserve {
			return false
		}
	}
	return true
}

func (d *Decider) evaluate(rs *RuleSet, enc *combat.Encounter, self, enemy *combat.Participant, a *combat.Ability) (Candidate, bool) {
	bias := rs.Strategy.OffensiveBias
	effectValue := func(t *combat.Participant) float64 {
		if a.Effect == "" || t.StatusEffects.Has(a.Effect) {
			return 0
		}
		if def, ok := d.engine.Conditions().Get(a.Effect); ok {
			return def.StrategicValue
		}
		return 0
	}
	c := Candidate{Key: a.ID, Category: a.Category, HitChance: 1}

	switch a.Target {
	case combat.TargetEnemy:
		c.Target = enemy
		c.Action = combat.UseAbility(a.ID, enemy.Ref)
		crit := 0.0
		if a.AttackRoll {
			c.HitChance, crit = combat.HitChances(d.engine.EffectiveAttackBonus(self), d.engine.EffectiveAC(enemy))
		}
		if a.Dice != "" {
			c.ExpectedDamage = expectedDamage(a.Expr().Mean(), c.HitChance, crit)
		}
		c.Score = c.ExpectedDamage*(1+bias) + c.HitChance*effectValue(enemy)
		return c, c.Score > 0

	default:
		t := self
		if a.Target == combat.TargetAlly {
			t = mostWoundedAlly(enc, self)
		}
		c.Target = t
		c.Action = combat.UseAbility(a.ID, t.Ref)
		support := max(1-bias, 0)
		switch a.Category {
		case combat.CategoryHeal:
			missing := float64(t.MaxHP - t.CurrentHP)
			if missing <= 0 {
				return c, false
			}
			c.Score = min(a.Expr().Mean(), missing) * support
			if self.HPRatio() < rs.Strategy.HealThreshold {
				c.Score *= healUrgency
			}
		default:
			c.Score = effectValue(t) * support
		}
		return c, c.Score > 0
	}
}

// mostWoundedAlly returns the living teammate (self included) with the
// lowest HP ratio.
func mostWoundedAlly(enc *combat.Encounter, self *combat.Participant) *combat.Participant {
	best := self
	for _, p := range enc.Participants {
		if p.Defeated() || p.Team != self.Team {
			continue
		}
		if p.HPRatio() < best.HPRatio() {
			best = p
		}
	}
	return best
}

// applyHidden multiplies every candidate's score by the hidden action
// multipliers bound to the primary target, in priority order.
func (d *Decider) applyHidden(rs *RuleSet, target actor.Ref, cands []Candidate) {
	entries := rs.HiddenFor(target)
	if len(entries) == 0 {
		return
	}
	for i := range cands {
		for _, e := range entries {
			src, ok := e.ActionMultipliers[cands[i].Key]
			if !ok {
				src, ok = e.ActionMultipliers[cands[i].Category]
			}
			if !ok || src == "" {
				continue
			}
			v := float64(e.Value)
			m, err := d.formulas.EvalOr(src, formula.Vars{"value": v, "relationship_value": v, "current_score": cands[i].Score}, 1)
			if err != nil {
				d.logger.Warn("hidden action multiplier failed; ignoring",
					zap.String("relationship_type", e.RelationshipType), zap.String("formula", src), zap.Error(err))
			}
			cands[i].Score *= m
		}
	}
}
