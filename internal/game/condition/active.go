package condition

import (
	"fmt"
	"sort"
)

// Active tracks one applied effect on a combatant. Remaining is -1 for
// permanent effects.
type Active struct {
	Stacks    int `json:"stacks"`
	Remaining int `json:"remaining"`
}

// Set maps effect ID to its active state. It is stored inside the encounter
// aggregate and is not safe for concurrent use; the combat cycle serialises
// access.
type Set map[string]Active

// Apply adds or updates a condition.
// If the condition is already present, stacks are incremented (capped at MaxStacks).
// If MaxStacks == 0 (unstackable), stacks is always stored as 1.
//
// Precondition: def must not be nil; s must be non-nil.
// Postcondition: Has(def.ID) is true; Remaining is max(existing, duration).
func (s Set) Apply(def *Definition, stacks, duration int) error {
	if def == nil {
		return fmt.Errorf("Apply: def must not be nil")
	}
	if def.DurationType == DurationPermanent {
		duration = -1
	}
	cur, ok := s[def.ID]
	if !ok {
		cur = Active{Remaining: duration}
	} else if duration > cur.Remaining && cur.Remaining >= 0 {
		cur.Remaining = duration
	}
	switch {
	case def.MaxStacks == 0:
		cur.Stacks = 1
	default:
		cur.Stacks += stacks
		if cur.Stacks > def.MaxStacks {
			cur.Stacks = def.MaxStacks
		}
		if cur.Stacks < 1 {
			cur.Stacks = 1
		}
	}
	s[def.ID] = cur
	return nil
}

// Remove deletes the condition with the given ID. Missing IDs are a no-op.
func (s Set) Remove(id string) { delete(s, id) }

// Has reports whether the condition with id is currently active.
func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Stacks returns the current stack count for id, or 0 if not present.
func (s Set) Stacks(id string) int { return s[id].Stacks }

// Tick decrements the remaining rounds of every timed condition by one and
// removes those that reach zero. Expired IDs are returned sorted.
//
// Postcondition: For every id in the returned slice, Has(id) is false.
func (s Set) Tick() []string {
	var expired []string
	for id, a := range s {
		if a.Remaining < 0 {
			continue
		}
		a.Remaining--
		if a.Remaining <= 0 {
			expired = append(expired, id)
			delete(s, id)
			continue
		}
		s[id] = a
	}
	sort.Strings(expired)
	return expired
}

// IDs returns the active IDs sorted.
func (s Set) IDs() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
