package combat

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/guildturn/internal/game/actor"
	"github.com/cory-johannsen/guildturn/internal/game/condition"
	"github.com/cory-johannsen/guildturn/internal/game/dice"
	"github.com/cory-johannsen/guildturn/internal/rules"
)

const defaultBasicAttackDice = "1d6"

// Engine resolves single combat actions. It is stateless apart from its
// collaborators and is safe for concurrent use on distinct encounters.
type Engine struct {
	roller     *dice.Roller
	abilities  *Catalog
	conditions *condition.Registry
	logger     *zap.Logger
}

// NewEngine creates an Engine.
//
// Precondition: roller and logger must be non-nil. abilities and conditions
// may be nil, in which case only basic attacks resolve.
func NewEngine(roller *dice.Roller, abilities *Catalog, conditions *condition.Registry, logger *zap.Logger) *Engine {
	return &Engine{roller: roller, abilities: abilities, conditions: conditions, logger: logger}
}

// Abilities returns the ability catalog.
func (e *Engine) Abilities() *Catalog { return e.abilities }

// Conditions returns the status effect registry.
func (e *Engine) Conditions() *condition.Registry { return e.conditions }

// Roller returns the dice roller.
func (e *Engine) Roller() *dice.Roller { return e.roller }

// BasicAttackDice returns the encounter's basic attack damage expression.
func (e *Engine) BasicAttackDice(ctx context.Context, enc *Encounter) dice.Expression {
	raw := rules.String(ctx, rules.Snapshot(enc.RulesSnapshot), enc.GuildID, rules.KeyBasicAttackDice, defaultBasicAttackDice)
	expr, err := dice.Parse(raw)
	if err != nil {
		e.logger.Warn("invalid basic attack dice; using default",
			zap.String("encounter", enc.ID), zap.String("dice", raw), zap.Error(err))
		return dice.MustParse(defaultBasicAttackDice)
	}
	return expr
}

// EffectiveAC returns p's armor class including status effects.
func (e *Engine) EffectiveAC(p *Participant) int {
	return p.ArmorClass + condition.ACModifier(e.conditions, p.StatusEffects)
}

// EffectiveAttackBonus returns p's attack bonus including status effects.
func (e *Engine) EffectiveAttackBonus(p *Participant) int {
	return p.AttackBonus + condition.AttackModifier(e.conditions, p.StatusEffects)
}

// Usable reports whether p can use ability a right now, and why not.
func (e *Engine) Usable(p *Participant, a *Ability) (bool, string) {
	if !p.Knows(a.ID) {
		return false, fmt.Sprintf("%s does not know %s", p.Name, a.ID)
	}
	if cd := p.Cooldowns[a.ID]; cd > 0 {
		return false, fmt.Sprintf("%s is on cooldown for %d more round(s)", a.ID, cd)
	}
	for res, cost := range a.Cost {
		if p.Resources[res] < cost {
			return false, fmt.Sprintf("%s lacks %s for %s", p.Name, res, a.ID)
		}
	}
	if condition.IsActionRestricted(e.conditions, p.StatusEffects, string(ActionAbility)) {
		return false, fmt.Sprintf("%s cannot use abilities right now", p.Name)
	}
	return true, ""
}

// ResolveAction resolves one action by actorRef against enc. This is the
// only path by which participant HP and effects change during a turn.
//
// Postcondition: not-found and invalid-action cases return a result with
// Status ResultError and leave enc untouched.
func (e *Engine) ResolveAction(ctx context.Context, enc *Encounter, actorRef actor.Ref, desc ActionDescriptor) ActionResult {
	if enc == nil {
		return errorResult(actorRef, desc.Type, "encounter not found")
	}
	if enc.Status != StatusActive {
		return errorResult(actorRef, desc.Type, fmt.Sprintf("encounter %s is not active (%s)", enc.ID, enc.Status))
	}
	self, ok := enc.Participant(actorRef)
	if !ok {
		return errorResult(actorRef, desc.Type, fmt.Sprintf("actor %s: %v", actorRef, ErrParticipantNotFound))
	}
	if self.Defeated() {
		return errorResult(actorRef, desc.Type, fmt.Sprintf("%s is defeated", self.Name))
	}

	var res ActionResult
	switch desc.Type {
	case ActionIdle:
		reason := desc.Reason
		if reason == "" {
			reason = "waits"
		}
		enc.Logf(actorRef, "%s idles (%s)", self.Name, reason)
		res = ActionResult{Status: ResultIdle, Actor: actorRef, Action: ActionIdle, Message: fmt.Sprintf("%s idles (%s)", self.Name, reason)}
	case ActionAttack:
		res = e.resolveAttack(ctx, enc, self, desc)
	case ActionAbility:
		res = e.resolveAbility(enc, self, desc)
	default:
		res = errorResult(actorRef, desc.Type, fmt.Sprintf("unknown action type %q", desc.Type))
	}
	e.logger.Debug("action resolved",
		zap.String("encounter", enc.ID),
		zap.Stringer("actor", actorRef),
		zap.String("action", string(desc.Type)),
		zap.String("status", res.Status),
		zap.String("message", res.Message),
	)
	return res
}

func (e *Engine) lookupTarget(enc *Encounter, self *Participant, desc ActionDescriptor) (*Participant, string) {
	if desc.TargetID == "" {
		return nil, "no target given"
	}
	ref := desc.Target()
	if ref.Kind == "" {
		ref.Kind = actor.KindNPC
	}
	t, ok := enc.Participant(ref)
	if !ok {
		return nil, fmt.Sprintf("target %s: %v", ref, ErrParticipantNotFound)
	}
	if t.Defeated() {
		return nil, fmt.Sprintf("%s is already defeated", t.Name)
	}
	return t, ""
}

func (e *Engine) resolveAttack(ctx context.Context, enc *Encounter, self *Participant, desc ActionDescriptor) ActionResult {
	target, msg := e.lookupTarget(enc, self, desc)
	if target == nil {
		return errorResult(self.Ref, ActionAttack, msg)
	}
	if target == self {
		return errorResult(self.Ref, ActionAttack, "cannot attack yourself")
	}
	if condition.IsActionRestricted(e.conditions, self.StatusEffects, string(ActionAttack)) {
		enc.Logf(self.Ref, "%s cannot attack", self.Name)
		return ActionResult{Status: ResultIdle, Actor: self.Ref, Target: target.Ref, Action: ActionAttack,
			Message: fmt.Sprintf("%s cannot attack right now", self.Name)}
	}

	d20 := e.roller.Roll(dice.MustParse("1d20")).Total()
	total := d20 + e.EffectiveAttackBonus(self)
	outcome := OutcomeFor(total, e.EffectiveAC(target))
	res := ActionResult{
		Status:  ResultSuccess,
		Actor:   self.Ref,
		Target:  target.Ref,
		Action:  ActionAttack,
		Outcome: outcome.String(),
		Roll:    d20,
		Total:   total,
	}
	if !outcome.Hit() {
		res.Message = fmt.Sprintf("%s attacks %s and misses (%d)", self.Name, target.Name, total)
		enc.Logf(self.Ref, "%s", res.Message)
		return res
	}
	dmg := e.roller.Roll(e.BasicAttackDice(ctx, enc)).Total() + self.DamageBonus
	if outcome == CritSuccess {
		dmg *= 2
	}
	dealt := target.ApplyDamage(max(dmg, 0))
	self.Threat += dealt
	res.Damage = dealt
	res.TargetDefeated = target.Defeated()
	res.Message = fmt.Sprintf("%s hits %s for %d damage (%s)", self.Name, target.Name, dealt, outcome)
	if res.TargetDefeated {
		res.Message += fmt.Sprintf("; %s is defeated", target.Name)
	}
	enc.Logf(self.Ref, "%s", res.Message)
	return res
}

func (e *Engine) resolveAbility(enc *Encounter, self *Participant, desc ActionDescriptor) ActionResult {
	a, ok := e.abilities.Get(desc.AbilityID)
	if !ok {
		return errorResult(self.Ref, ActionAbility, fmt.Sprintf("%s: %v", desc.AbilityID, ErrUnknownAbility))
	}
	if ok, why := e.Usable(self, a); !ok {
		return errorResult(self.Ref, ActionAbility, why)
	}

	target := self
	if a.Target != TargetSelf && desc.TargetID != "" {
		t, msg := e.lookupTarget(enc, self, desc)
		if t == nil {
			return errorResult(self.Ref, ActionAbility, msg)
		}
		target = t
	}
	if a.Target == TargetEnemy && target == self {
		return errorResult(self.Ref, ActionAbility, fmt.Sprintf("%s needs an enemy target", a.ID))
	}

	for res, cost := range a.Cost {
		if cost > 0 {
			self.Resources[res] -= cost
		}
	}
	if a.Cooldown > 0 {
		if self.Cooldowns == nil {
			self.Cooldowns = map[string]int{}
		}
		self.Cooldowns[a.ID] = a.Cooldown
	}

	res := ActionResult{Status: ResultSuccess, Actor: self.Ref, Target: target.Ref, Action: ActionAbility, AbilityID: a.ID}
	outcome := Success
	if a.AttackRoll {
		d20 := e.roller.Roll(dice.MustParse("1d20")).Total()
		res.Roll = d20
		res.Total = d20 + e.EffectiveAttackBonus(self)
		outcome = OutcomeFor(res.Total, e.EffectiveAC(target))
		res.Outcome = outcome.String()
		if !outcome.Hit() {
			res.Message = fmt.Sprintf("%s uses %s on %s and misses", self.Name, a.Name, target.Name)
			enc.Logf(self.Ref, "%s", res.Message)
			return res
		}
	}

	amount := 0
	if a.Dice != "" {
		amount = e.roller.Roll(a.Expr()).Total()
		if outcome == CritSuccess {
			amount *= 2
		}
	}
	msg := fmt.Sprintf("%s uses %s on %s", self.Name, a.Name, target.Name)
	switch a.Category {
	case CategoryDamage, CategoryDebuff:
		if amount <= 0 {
			break
		}
		dealt := target.ApplyDamage(amount)
		self.Threat += dealt
		res.Damage = dealt
		msg += fmt.Sprintf(" for %d damage", dealt)
	case CategoryHeal:
		res.Healed = target.Heal(amount)
		msg += fmt.Sprintf(", restoring %d HP", res.Healed)
	}
	if a.Effect != "" && !target.Defeated() {
		if def, ok := e.conditions.Get(a.Effect); ok {
			if target.StatusEffects == nil {
				target.StatusEffects = condition.Set{}
			}
			stacks := max(a.EffectStacks, 1)
			if err := target.StatusEffects.Apply(def, stacks, a.EffectDuration); err == nil {
				res.EffectApplied = def.ID
				msg += fmt.Sprintf("; %s is %s", target.Name, def.ID)
			}
		} else {
			e.logger.Warn("ability references unknown condition",
				zap.String("ability", a.ID), zap.String("condition", a.Effect))
		}
	}
	res.TargetDefeated = target.Defeated()
	if res.TargetDefeated {
		msg += fmt.Sprintf("; %s is defeated", target.Name)
	}
	res.Message = msg
	enc.Logf(self.Ref, "%s", msg)
	return res
}
