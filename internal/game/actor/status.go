package actor

// Status is the small state enum that players and parties move through
// during a guild turn. The scheduler and the combat cycle both read and
// write it.
type Status string

const (
	// StatusExploring is the idle baseline.
	StatusExploring Status = "exploring"
	// StatusTurnEnded marks an actor whose queued actions await resolution.
	StatusTurnEnded Status = "turn_ended"
	// StatusProcessing is held while the scheduler dispatches the actor's actions.
	StatusProcessing Status = "processing"
	// StatusInCombat is held for the lifetime of an encounter.
	StatusInCombat Status = "in_combat"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusExploring, StatusTurnEnded, StatusProcessing, StatusInCombat:
		return true
	default:
		return false
	}
}

// Settled returns the status an actor should rest at after a turn cycle
// finishes: combat keeps its in_combat marker, everything else returns to
// exploring.
func (s Status) Settled() Status {
	if s == StatusInCombat {
		return StatusInCombat
	}
	return StatusExploring
}
