package ai

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/guildturn/internal/formula"
	"github.com/cory-johannsen/guildturn/internal/game/actor"
	"github.com/cory-johannsen/guildturn/internal/game/combat"
	"github.com/cory-johannsen/guildturn/internal/game/relationship"
)

// relIndex groups an NPC's relationships by counterpart.
type relIndex map[actor.Ref][]relationship.Relationship

func indexRelationships(self actor.Ref, rels []relationship.Relationship) relIndex {
	idx := make(relIndex)
	for _, r := range rels {
		if other, ok := r.Other(self); ok && other != self {
			idx[other] = append(idx[other], r)
		}
	}
	return idx
}

// standard returns the summed standard relationship value toward ref.
func (idx relIndex) standard(ref actor.Ref) (int, bool) {
	return relationship.StandardValue(idx[ref])
}

// Thresholds returns the hostile and friendly thresholds after applying the
// adjust formula to value: hostile moves up by the adjustment and friendly
// moves down by it. A broken formula leaves both unchanged.
func (d *Decider) Thresholds(rs *RuleSet, value int) (hostile, friendly float64) {
	hostile, friendly = float64(rs.Thresholds.Hostile), float64(rs.Thresholds.Friendly)
	if rs.Thresholds.AdjustFormula == "" {
		return hostile, friendly
	}
	v := float64(value)
	adj, err := d.formulas.EvalOr(rs.Thresholds.AdjustFormula, formula.Vars{"relationship_value": v, "value": v}, 0)
	if err != nil {
		d.logger.Warn("threshold formula failed; ignoring",
			zap.String("formula", rs.Thresholds.AdjustFormula), zap.Error(err))
	}
	return hostile + adj, friendly - adj
}

// Classify decides how self regards target.
//
// Order: a standard relationship value at or beyond a shifted threshold
// decides first; otherwise faction (or team, when either faction is unset)
// decides. Finally the first hidden entry toward target whose hostility
// override condition holds replaces the result.
func (d *Decider) Classify(rs *RuleSet, self, target *combat.Participant, idx relIndex) Hostility {
	h := d.baseHostility(rs, self, target, idx)
	for _, e := range rs.HiddenFor(target.Ref) {
		o := e.HostilityOverride
		if o == nil {
			continue
		}
		v := float64(e.Value)
		ok, err := d.formulas.EvalBool(o.Condition, formula.Vars{"value": v, "relationship_value": v})
		if err != nil {
			d.logger.Warn("hostility override formula failed; ignoring",
				zap.String("relationship_type", e.RelationshipType),
				zap.String("formula", o.Condition), zap.Error(err))
			continue
		}
		if ok {
			return o.NewStatus
		}
	}
	return h
}

func (d *Decider) baseHostility(rs *RuleSet, self, target *combat.Participant, idx relIndex) Hostility {
	if v, ok := idx.standard(target.Ref); ok {
		hostile, friendly := d.Thresholds(rs, v)
		switch fv := float64(v); {
		case fv <= hostile:
			return Hostile
		case fv >= friendly:
			return Friendly
		}
	}
	if self.Faction != "" && target.Faction != "" {
		if self.Faction == target.Faction {
			return Friendly
		}
		return Hostile
	}
	if self.Team == target.Team {
		return Friendly
	}
	return Hostile
}

// standardBias returns the action-bias list that applies while fighting
// target: the friendly list for a positive standard relationship, the
// hostile list for a negative one, and nil otherwise.
func (d *Decider) standardBias(rs *RuleSet, target actor.Ref, idx relIndex) map[string]float64 {
	v, ok := idx.standard(target)
	switch {
	case !ok || v == 0:
		return nil
	case v > 0:
		return rs.Influence.FriendlyActionBias
	default:
		return rs.Influence.HostileActionBias
	}
}
