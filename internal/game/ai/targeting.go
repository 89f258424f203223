package ai

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/guildturn/internal/formula"
	"github.com/cory-johannsen/guildturn/internal/game/combat"
)

// rawScore computes metric for p. Higher is a better target. ok is false
// when the metric has nothing to say about p.
func (d *Decider) rawScore(m Metric, p *combat.Participant) (float64, bool) {
	switch m {
	case MetricLowestHP:
		return 100 * (1 - p.HPRatio()), true
	case MetricHighestThreat:
		return float64(p.Threat), p.Threat > 0
	case MetricLowestArmor:
		return -float64(d.engine.EffectiveAC(p)), true
	case MetricHighestDamageTaken:
		return float64(p.DamageTaken), p.DamageTaken > 0
	default:
		return 0, false
	}
}

// adjustedScore applies the standard metric formula and then every hidden
// metric modifier toward p. Failed formulas leave the score unchanged.
func (d *Decider) adjustedScore(rs *RuleSet, m Metric, p *combat.Participant, raw float64, idx relIndex) float64 {
	score := raw
	if src := rs.Influence.MetricFormulas[m]; src != "" {
		if v, ok := idx.standard(p.Ref); ok {
			fv := float64(v)
			score = d.evalModifier(src, formula.Vars{"current_score": score, "relationship_value": fv, "value": fv}, score, "metric formula")
		}
	}
	for _, e := range rs.HiddenFor(p.Ref) {
		src := e.MetricModifiers[m]
		if src == "" {
			continue
		}
		fv := float64(e.Value)
		score = d.evalModifier(src, formula.Vars{"current_score": score, "relationship_value": fv, "value": fv}, score, "hidden metric modifier")
	}
	return score
}

func (d *Decider) evalModifier(src string, vars formula.Vars, fallback float64, what string) float64 {
	v, err := d.formulas.EvalOr(src, vars, fallback)
	if err != nil {
		d.logger.Warn(what+" failed; ignoring", zap.String("formula", src), zap.Error(err))
	}
	return v
}

// SelectTarget picks the best hostile candidate. The first metric in the
// priority list that scores at least one candidate decides; ties go to the
// earlier candidate. With no deciding metric the pick is uniformly random.
//
// Precondition: candidates is non-empty.
func (d *Decider) SelectTarget(rs *RuleSet, candidates []*combat.Participant, idx relIndex) *combat.Participant {
	for _, m := range rs.Strategy.TargetPriority {
		if m == MetricRandom {
			break
		}
		var best *combat.Participant
		var bestScore float64
		for _, c := range candidates {
			raw, ok := d.rawScore(m, c)
			if !ok {
				continue
			}
			s := d.adjustedScore(rs, m, c, raw, idx)
			if best == nil || s > bestScore {
				best, bestScore = c, s
			}
		}
		if best != nil {
			return best
		}
	}
	return candidates[d.engine.Roller().Src().Intn(len(candidates))]
}
