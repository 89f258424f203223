package combat

import "github.com/cory-johannsen/guildturn/internal/game/actor"

// ActionType identifies what an actor does on its turn.
type ActionType string

const (
	ActionAttack  ActionType = "attack"
	ActionAbility ActionType = "ability"
	ActionIdle    ActionType = "idle"
)

// ActionDescriptor is the decided action: who it targets and, for
// abilities, which one.
type ActionDescriptor struct {
	Type       ActionType `json:"action_type"`
	TargetID   string     `json:"target_id,omitempty"`
	TargetKind actor.Kind `json:"target_type,omitempty"`
	AbilityID  string     `json:"ability_id,omitempty"`
	// Reason explains an idle decision.
	Reason string `json:"reason,omitempty"`
}

// Target returns the target ref, or the zero Ref when none is set.
func (d ActionDescriptor) Target() actor.Ref {
	return actor.Ref{ID: d.TargetID, Kind: d.TargetKind}
}

// Attack builds a basic attack descriptor.
func Attack(target actor.Ref) ActionDescriptor {
	return ActionDescriptor{Type: ActionAttack, TargetID: target.ID, TargetKind: target.Kind}
}

// UseAbility builds an ability descriptor.
func UseAbility(abilityID string, target actor.Ref) ActionDescriptor {
	return ActionDescriptor{Type: ActionAbility, AbilityID: abilityID, TargetID: target.ID, TargetKind: target.Kind}
}

// Idle builds an idle descriptor.
func Idle(reason string) ActionDescriptor {
	return ActionDescriptor{Type: ActionIdle, Reason: reason}
}

// Result statuses.
const (
	ResultSuccess = "success"
	ResultIdle    = "idle"
	ResultError   = "error"
)

// ActionResult is the structured outcome of one resolved action.
type ActionResult struct {
	Status         string     `json:"status"`
	Actor          actor.Ref  `json:"actor"`
	Target         actor.Ref  `json:"target,omitempty"`
	Action         ActionType `json:"action"`
	AbilityID      string     `json:"ability_id,omitempty"`
	Outcome        string     `json:"outcome,omitempty"`
	Roll           int        `json:"roll,omitempty"`
	Total          int        `json:"total,omitempty"`
	Damage         int        `json:"damage,omitempty"`
	Healed         int        `json:"healed,omitempty"`
	EffectApplied  string     `json:"effect_applied,omitempty"`
	TargetDefeated bool       `json:"target_defeated,omitempty"`
	Message        string     `json:"message"`
}

// Failed reports whether r is an error result.
func (r ActionResult) Failed() bool { return r.Status == ResultError }

func errorResult(who actor.Ref, action ActionType, msg string) ActionResult {
	return ActionResult{Status: ResultError, Actor: who, Action: action, Message: msg}
}
