package roster

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cory-johannsen/guildturn/internal/game/actor"
)

// ErrMalformedAction is returned when a queued entry cannot be parsed.
var ErrMalformedAction = errors.New("malformed queued action")

// Entity is one parsed argument of a command, e.g. {type: "target", value: "npc:goblin-1"}.
type Entity struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// QueuedAction is a parsed, un-executed command awaiting batch resolution.
type QueuedAction struct {
	Actor    actor.Ref `json:"actor"`
	Intent   string    `json:"intent"`
	Entities []Entity  `json:"entities,omitempty"`
}

// Entity returns the value of the first entity of the given type.
func (q QueuedAction) Entity(typ string) (string, bool) {
	for _, e := range q.Entities {
		if e.Type == typ {
			return e.Value, true
		}
	}
	return "", false
}

type queuedWire struct {
	Intent   string   `json:"intent"`
	Entities []Entity `json:"entities,omitempty"`
}

// ParseQueuedAction decodes one raw queued entry owned by owner.
//
// Precondition: owner must be a player or party ref.
// Postcondition: returns an error wrapping ErrMalformedAction when raw is not a
// JSON object, the intent is blank, or an entity has a blank type.
func ParseQueuedAction(owner actor.Ref, raw json.RawMessage) (QueuedAction, error) {
	var w queuedWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return QueuedAction{}, fmt.Errorf("%w: %v", ErrMalformedAction, err)
	}
	intent := strings.ToLower(strings.TrimSpace(w.Intent))
	if intent == "" {
		return QueuedAction{}, fmt.Errorf("%w: empty intent", ErrMalformedAction)
	}
	for i, e := range w.Entities {
		if strings.TrimSpace(e.Type) == "" {
			return QueuedAction{}, fmt.Errorf("%w: entity %d has no type", ErrMalformedAction, i)
		}
	}
	return QueuedAction{Actor: owner, Intent: intent, Entities: w.Entities}, nil
}

// EncodeQueuedAction renders intent and entities in the stored wire form.
func EncodeQueuedAction(intent string, entities ...Entity) json.RawMessage {
	b, _ := json.Marshal(queuedWire{Intent: intent, Entities: entities})
	return b
}

// ParseRef parses "kind:id" into a Ref. A bare id is treated as an NPC, which
// is what players target most of the time.
func ParseRef(s string) (actor.Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return actor.Ref{}, fmt.Errorf("empty actor reference")
	}
	kind, id, found := strings.Cut(s, ":")
	if !found {
		return actor.NPC(s), nil
	}
	k := actor.Kind(kind)
	if !k.Valid() || id == "" {
		return actor.Ref{}, fmt.Errorf("invalid actor reference %q", s)
	}
	return actor.Ref{ID: id, Kind: k}, nil
}
