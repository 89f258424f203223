package combat

import (
	"github.com/cory-johannsen/guildturn/internal/game/actor"
	"github.com/cory-johannsen/guildturn/internal/game/dice"
)

// RollInitiative rolls expr once per participant, sets Initiative to
// roll + InitiativeMod, and returns the refs sorted by score descending.
//
// Precondition: roller must be non-nil.
// Postcondition: ties keep input order; the participants slice is not reordered.
func RollInitiative(parts []*Participant, expr dice.Expression, roller *dice.Roller) []actor.Ref {
	sorted := make([]*Participant, 0, len(parts))
	for _, p := range parts {
		p.Initiative = roller.Roll(expr).Total() + p.InitiativeMod
		sorted = append(sorted, p)
	}
	sortByInitiativeDesc(sorted)
	order := make([]actor.Ref, len(sorted))
	for i, p := range sorted {
		order[i] = p.Ref
	}
	return order
}

// sortByInitiativeDesc sorts participants in place, highest initiative first.
// Insertion sort with a strict comparison keeps equal scores in input order.
func sortByInitiativeDesc(ps []*Participant) {
	for i := 1; i < len(ps); i++ {
		for j := i; j > 0 && ps[j].Initiative > ps[j-1].Initiative; j-- {
			ps[j], ps[j-1] = ps[j-1], ps[j]
		}
	}
}
