// Package combat holds the encounter aggregate and the engine that resolves
// one atomic action against it.
package combat

import (
	"errors"
	"fmt"
	"time"

	"github.com/cory-johannsen/guildturn/internal/game/actor"
	"github.com/cory-johannsen/guildturn/internal/game/condition"
)

var (
	// ErrParticipantNotFound is returned when a ref is not in the encounter.
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrUnknownAbility is returned when an ability ID is not in the catalog.
	ErrUnknownAbility = errors.New("unknown ability")
	// ErrEmptyTurnOrder marks an encounter with nobody to act.
	ErrEmptyTurnOrder = errors.New("turn order is empty")
	// ErrNoLivingParticipants marks an encounter where advancement found no
	// living actor.
	ErrNoLivingParticipants = errors.New("no living participants")
)

// Teams in the default two-team model.
const (
	TeamPlayers = "players"
	TeamNPCs    = "npcs"
)

// TeamFor returns the default team for an actor kind.
func TeamFor(k actor.Kind) string {
	if k == actor.KindNPC {
		return TeamNPCs
	}
	return TeamPlayers
}

// Status is the encounter state machine value.
type Status string

const (
	StatusPendingStart   Status = "pending_start"
	StatusActive         Status = "active"
	StatusVictoryPlayers Status = "ended_victory_players"
	StatusVictoryNPCs    Status = "ended_victory_npcs"
	StatusStalemate      Status = "ended_stalemate"
	StatusError          Status = "error"
)

// Terminal reports whether s is an end state. Terminal states are never
// re-entered or left.
func (s Status) Terminal() bool {
	switch s {
	case StatusVictoryPlayers, StatusVictoryNPCs, StatusStalemate, StatusError:
		return true
	default:
		return false
	}
}

// StatusForWinner maps a winning team to its terminal status. An empty team
// is a stalemate.
func StatusForWinner(team string) Status {
	switch team {
	case TeamPlayers:
		return StatusVictoryPlayers
	case TeamNPCs:
		return StatusVictoryNPCs
	default:
		return StatusStalemate
	}
}

// Outcome is the 4-tier attack result.
type Outcome int

const (
	CritSuccess Outcome = iota
	Success
	Failure
	CritFailure
)

// String returns a human-readable outcome label.
func (o Outcome) String() string {
	switch o {
	case CritSuccess:
		return "critical success"
	case Success:
		return "success"
	case Failure:
		return "failure"
	case CritFailure:
		return "critical failure"
	default:
		return "unknown"
	}
}

// Hit reports whether o lands.
func (o Outcome) Hit() bool { return o == CritSuccess || o == Success }

// OutcomeFor determines the 4-tier attack outcome for a given roll total vs AC.
// Postcondition: Returns one of CritSuccess, Success, Failure, CritFailure.
func OutcomeFor(total, ac int) Outcome {
	switch {
	case total >= ac+10:
		return CritSuccess
	case total >= ac:
		return Success
	case total >= ac-10:
		return Failure
	default:
		return CritFailure
	}
}

// HitChances returns the probability that d20+bonus reaches ac (hit) and
// ac+10 (critical).
//
// Postcondition: 0 <= crit <= hit <= 1.
func HitChances(bonus, ac int) (hit, crit float64) {
	count := func(need int) float64 {
		n := 0
		for r := 1; r <= 20; r++ {
			if r+bonus >= need {
				n++
			}
		}
		return float64(n) / 20
	}
	return count(ac), count(ac + 10)
}

// ProficiencyBonus returns the simplified proficiency bonus for the given level.
// Formula: 2 + (level-1)/4, minimum 2.
func ProficiencyBonus(level int) int {
	if level < 1 {
		level = 1
	}
	return 2 + (level-1)/4
}

// Participant is the authoritative combat-time view of one actor.
type Participant struct {
	Ref           actor.Ref      `json:"ref"`
	Name          string         `json:"name"`
	Team          string         `json:"team"`
	Faction       string         `json:"faction,omitempty"`
	Level         int            `json:"level"`
	MaxHP         int            `json:"max_hp"`
	CurrentHP     int            `json:"current_hp"`
	ArmorClass    int            `json:"armor_class"`
	AttackBonus   int            `json:"attack_bonus"`
	DamageBonus   int            `json:"damage_bonus"`
	InitiativeMod int            `json:"initiative_mod"`
	Initiative    int            `json:"initiative"`
	StatusEffects condition.Set  `json:"status_effects,omitempty"`
	Resources     map[string]int `json:"resources,omitempty"`
	Cooldowns     map[string]int `json:"cooldowns,omitempty"`
	Abilities     []string       `json:"abilities,omitempty"`
	// Controlled is true for computer-controlled actors.
	Controlled bool `json:"controlled"`
	// Threat accumulates damage dealt; DamageTaken accumulates damage received.
	Threat      int `json:"threat"`
	DamageTaken int `json:"damage_taken"`
}

// Defeated reports whether p is out of the fight.
func (p *Participant) Defeated() bool { return p.CurrentHP <= 0 }

// HPRatio returns CurrentHP/MaxHP in [0, 1].
func (p *Participant) HPRatio() float64 {
	if p.MaxHP <= 0 || p.CurrentHP <= 0 {
		return 0
	}
	return float64(p.CurrentHP) / float64(p.MaxHP)
}

// ApplyDamage reduces CurrentHP by amount, flooring at zero, and returns the
// damage actually dealt.
// Postcondition: CurrentHP >= 0.
func (p *Participant) ApplyDamage(amount int) int {
	if amount <= 0 {
		return 0
	}
	if amount > p.CurrentHP {
		amount = max(p.CurrentHP, 0)
	}
	p.CurrentHP -= amount
	p.DamageTaken += amount
	return amount
}

// Heal restores up to amount HP and returns the amount restored.
// Postcondition: CurrentHP <= MaxHP.
func (p *Participant) Heal(amount int) int {
	if amount <= 0 || p.Defeated() {
		return 0
	}
	missing := p.MaxHP - p.CurrentHP
	if amount > missing {
		amount = missing
	}
	p.CurrentHP += amount
	return amount
}

// Knows reports whether p has the ability in its loadout.
func (p *Participant) Knows(abilityID string) bool {
	for _, a := range p.Abilities {
		if a == abilityID {
			return true
		}
	}
	return false
}

// TurnOrder is the initiative-ordered rotation.
type TurnOrder struct {
	Order        []actor.Ref `json:"order"`
	CurrentIndex int         `json:"current_index"`
	Round        int         `json:"round"`
}

// LogLine is one combat log entry.
type LogLine struct {
	Round int       `json:"round"`
	Actor actor.Ref `json:"actor"`
	Text  string    `json:"text"`
	At    time.Time `json:"at"`
}

// Encounter is the aggregate root of a fight.
type Encounter struct {
	ID            string         `json:"id"`
	GuildID       string         `json:"guild_id"`
	LocationID    string         `json:"location_id"`
	Status        Status         `json:"status"`
	Participants  []*Participant `json:"participants"`
	TurnOrder     TurnOrder      `json:"turn_order"`
	CurrentTurn   *actor.Ref     `json:"current_turn,omitempty"`
	RulesSnapshot map[string]any `json:"rules_snapshot,omitempty"`
	Log           []LogLine      `json:"log,omitempty"`
	WinningTeam   string         `json:"winning_team,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Participant returns the entry for ref.
func (e *Encounter) Participant(ref actor.Ref) (*Participant, bool) {
	for _, p := range e.Participants {
		if p.Ref == ref {
			return p, true
		}
	}
	return nil, false
}

// AddParticipant appends p.
//
// Postcondition: exactly one entry per Ref; a duplicate returns an error and
// leaves the encounter unchanged.
func (e *Encounter) AddParticipant(p *Participant) error {
	if _, ok := e.Participant(p.Ref); ok {
		return fmt.Errorf("participant %s already in encounter %s", p.Ref, e.ID)
	}
	if p.CurrentHP > p.MaxHP {
		p.CurrentHP = p.MaxHP
	}
	e.Participants = append(e.Participants, p)
	return nil
}

// Current returns the participant whose turn it is.
func (e *Encounter) Current() (*Participant, bool) {
	if e.CurrentTurn == nil {
		return nil, false
	}
	return e.Participant(*e.CurrentTurn)
}

// Living returns every participant that is not defeated, in roster order.
func (e *Encounter) Living() []*Participant {
	var out []*Participant
	for _, p := range e.Participants {
		if !p.Defeated() {
			out = append(out, p)
		}
	}
	return out
}

// Refs returns every participant ref in roster order.
func (e *Encounter) Refs() []actor.Ref {
	out := make([]actor.Ref, len(e.Participants))
	for i, p := range e.Participants {
		out[i] = p.Ref
	}
	return out
}

// Logf appends a combat log line.
func (e *Encounter) Logf(who actor.Ref, format string, args ...any) {
	now := time.Now().UTC()
	e.Log = append(e.Log, LogLine{Round: e.TurnOrder.Round, Actor: who, Text: fmt.Sprintf(format, args...), At: now})
	e.UpdatedAt = now
}

// Fail moves a non-terminal encounter to StatusError.
func (e *Encounter) Fail(reason string) {
	if e.Status.Terminal() {
		return
	}
	e.Status = StatusError
	e.Logf(actor.Ref{}, "combat error: %s", reason)
}

// Finish moves a non-terminal encounter to the terminal status for winner.
func (e *Encounter) Finish(winner string) {
	if e.Status.Terminal() {
		return
	}
	e.Status = StatusForWinner(winner)
	e.WinningTeam = winner
	e.Logf(actor.Ref{}, "combat ended: %s", e.Status)
}

// Partition splits participants by team membership and live status: winners
// are living members of the winning team, everyone else lost. On a stalemate
// every participant is a loser.
func (e *Encounter) Partition() (winners, losers []*Participant) {
	for _, p := range e.Participants {
		if e.WinningTeam != "" && p.Team == e.WinningTeam && !p.Defeated() {
			winners = append(winners, p)
		} else {
			losers = append(losers, p)
		}
	}
	return winners, losers
}
