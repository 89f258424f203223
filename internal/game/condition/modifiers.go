package condition

// AttackModifier returns the net attack roll modifier from all active
// conditions, scaled by stack count. Unknown IDs contribute nothing.
func AttackModifier(reg *Registry, s Set) int {
	total := 0
	for id, a := range s {
		if d, ok := reg.Get(id); ok {
			total += d.AttackModifier * a.Stacks
		}
	}
	return total
}

// ACModifier returns the net armor class modifier from all active conditions.
func ACModifier(reg *Registry, s Set) int {
	total := 0
	for id, a := range s {
		if d, ok := reg.Get(id); ok {
			total += d.ACModifier * a.Stacks
		}
	}
	return total
}

// RoundHPDelta returns the net HP change applied at a round boundary:
// heal-per-round minus damage-per-round, each scaled by stacks.
func RoundHPDelta(reg *Registry, s Set) int {
	total := 0
	for id, a := range s {
		if d, ok := reg.Get(id); ok {
			total += (d.HealPerRound - d.DamagePerRound) * a.Stacks
		}
	}
	return total
}

// IsActionRestricted reports whether actionType is blocked by any active
// condition's RestrictActions list.
func IsActionRestricted(reg *Registry, s Set, actionType string) bool {
	for id := range s {
		d, ok := reg.Get(id)
		if !ok {
			continue
		}
		for _, r := range d.RestrictActions {
			if r == actionType {
				return true
			}
		}
	}
	return false
}
