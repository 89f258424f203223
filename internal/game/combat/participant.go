package combat

import (
	"github.com/cory-johannsen/guildturn/internal/game/actor"
	"github.com/cory-johannsen/guildturn/internal/game/condition"
	"github.com/cory-johannsen/guildturn/internal/game/roster"
)

// Defaults fill stats a durable record leaves unset.
type Defaults struct {
	MaxHP      int
	ArmorClass int
	Dexterity  int
}

// NewParticipant derives combat stats from c's durable record, falling back
// to d for zero values.
//
// Postcondition: 0 <= CurrentHP <= MaxHP; Controlled is true for NPCs.
func NewParticipant(c roster.Combatant, d Defaults) *Participant {
	ref := c.Ref()
	st := c.CombatStats()
	maxHP := st.MaxHP
	if maxHP <= 0 {
		maxHP = d.MaxHP
	}
	cur := st.CurrentHP
	if cur <= 0 && st.MaxHP <= 0 {
		cur = maxHP
	}
	if cur > maxHP {
		cur = maxHP
	}
	if cur < 0 {
		cur = 0
	}
	ac := st.ArmorClass
	if ac <= 0 {
		ac = d.ArmorClass
	}
	dex := st.Dexterity
	if dex <= 0 {
		dex = d.Dexterity
	}
	level := st.Level
	if level < 1 {
		level = 1
	}
	str := st.Strength
	if str <= 0 {
		str = 10
	}
	strMod := roster.AbilityMod(str)
	resources := make(map[string]int, len(st.Resources))
	for k, v := range st.Resources {
		resources[k] = v
	}
	return &Participant{
		Ref:           ref,
		Name:          c.DisplayName(),
		Team:          TeamFor(ref.Kind),
		Faction:       st.Faction,
		Level:         level,
		MaxHP:         maxHP,
		CurrentHP:     cur,
		ArmorClass:    ac,
		AttackBonus:   strMod + ProficiencyBonus(level),
		DamageBonus:   max(strMod, 0),
		InitiativeMod: roster.AbilityMod(dex),
		StatusEffects: condition.Set{},
		Resources:     resources,
		Cooldowns:     map[string]int{},
		Abilities:     append([]string(nil), st.Abilities...),
		Controlled:    ref.Kind == actor.KindNPC,
	}
}
