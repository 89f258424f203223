package combat

import (
	"fmt"

	"github.com/cory-johannsen/guildturn/internal/game/actor"
	"github.com/cory-johannsen/guildturn/internal/game/condition"
)

// CheckEnd reports whether the encounter is over and which team won.
//
// A team wins when every other present team has no living members. Both
// sides wiped out is a stalemate (true, ""). A team that was never present
// hands victory to the other. A fresh encounter with living members on both
// sides returns (false, "").
func CheckEnd(enc *Encounter) (bool, string) {
	var present []string
	alive := make(map[string]bool)
	for _, p := range enc.Participants {
		if _, seen := alive[p.Team]; !seen {
			present = append(present, p.Team)
			alive[p.Team] = false
		}
		if !p.Defeated() {
			alive[p.Team] = true
		}
	}
	switch len(present) {
	case 0:
		return true, ""
	case 1:
		return true, present[0]
	}
	var living []string
	for _, t := range present {
		if alive[t] {
			living = append(living, t)
		}
	}
	switch len(living) {
	case 0:
		return true, ""
	case 1:
		return true, living[0]
	default:
		return false, ""
	}
}

// AdvanceTurn walks the turn order from just after the current index,
// wrapping around, and makes the first living participant current. Passing
// the end of the order increments the round; wrapped reports that.
//
// An empty order, a ref missing from the participants, or no living
// participant at all is an invariant violation: the encounter is moved to
// StatusError and an error is returned.
func AdvanceTurn(enc *Encounter) (wrapped bool, err error) {
	n := len(enc.TurnOrder.Order)
	if n == 0 {
		enc.Fail(ErrEmptyTurnOrder.Error())
		return false, ErrEmptyTurnOrder
	}
	cur := enc.TurnOrder.CurrentIndex
	for step := 1; step <= n; step++ {
		idx := (cur + step) % n
		ref := enc.TurnOrder.Order[idx]
		p, ok := enc.Participant(ref)
		if !ok {
			err := fmt.Errorf("turn order entry %s: %w", ref, ErrParticipantNotFound)
			enc.Fail(err.Error())
			return false, err
		}
		if p.Defeated() {
			continue
		}
		wrapped = cur+step >= n
		if wrapped {
			enc.TurnOrder.Round++
		}
		enc.TurnOrder.CurrentIndex = idx
		r := ref
		enc.CurrentTurn = &r
		return wrapped, nil
	}
	enc.Fail(ErrNoLivingParticipants.Error())
	return false, ErrNoLivingParticipants
}

// TickRound applies round-boundary effects to every living participant:
// cooldowns drop by one, status effects deal or restore their per-round HP,
// and timed effects count down. It returns human-readable log lines.
func TickRound(enc *Encounter, reg *condition.Registry) []string {
	var lines []string
	for _, p := range enc.Participants {
		if p.Defeated() {
			continue
		}
		for id, cd := range p.Cooldowns {
			if cd <= 1 {
				delete(p.Cooldowns, id)
				continue
			}
			p.Cooldowns[id] = cd - 1
		}
		if len(p.StatusEffects) == 0 {
			continue
		}
		switch delta := condition.RoundHPDelta(reg, p.StatusEffects); {
		case delta < 0:
			dealt := p.ApplyDamage(-delta)
			lines = append(lines, fmt.Sprintf("%s suffers %d damage from lingering effects", p.Name, dealt))
			if p.Defeated() {
				lines = append(lines, fmt.Sprintf("%s is defeated", p.Name))
			}
		case delta > 0:
			if healed := p.Heal(delta); healed > 0 {
				lines = append(lines, fmt.Sprintf("%s recovers %d HP", p.Name, healed))
			}
		}
		for _, id := range p.StatusEffects.Tick() {
			lines = append(lines, fmt.Sprintf("%s is no longer %s", p.Name, id))
		}
	}
	for _, l := range lines {
		enc.Logf(actor.Ref{}, "%s", l)
	}
	return lines
}
