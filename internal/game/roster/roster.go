// Package roster holds the durable player, party, and NPC records that the
// turn core reads lazily through the storage layer.
package roster

import (
	"encoding/json"

	"github.com/cory-johannsen/guildturn/internal/game/actor"
)

// Stats is the combat-relevant view of a fighting actor's durable record.
type Stats struct {
	Level      int
	MaxHP      int
	CurrentHP  int
	ArmorClass int
	Dexterity  int
	Strength   int
	Faction    string
	Abilities  []string
	Resources  map[string]int
}

// Combatant is the capability lookup implemented by every actor kind that can
// take part in a fight.
type Combatant interface {
	Ref() actor.Ref
	DisplayName() string
	CombatStats() Stats
}

// Player is a guild member's character.
type Player struct {
	ID         string
	GuildID    string
	Name       string
	LocationID string
	// PartyID is empty when the player is not in a party.
	PartyID    string
	Status     actor.Status
	Faction    string
	Level      int
	XP         int
	MaxHP      int
	CurrentHP  int
	ArmorClass int
	Dexterity  int
	Strength   int
	Abilities  []string
	Resources  map[string]int
	// QueuedActions holds raw, unparsed action entries in submission order.
	QueuedActions []json.RawMessage
}

// Ref returns the player's actor reference.
func (p *Player) Ref() actor.Ref { return actor.Player(p.ID) }

// DisplayName returns the character name.
func (p *Player) DisplayName() string { return p.Name }

// CombatStats returns the player's stat block.
func (p *Player) CombatStats() Stats {
	return Stats{
		Level:      p.Level,
		MaxHP:      p.MaxHP,
		CurrentHP:  p.CurrentHP,
		ArmorClass: p.ArmorClass,
		Dexterity:  p.Dexterity,
		Strength:   p.Strength,
		Faction:    p.Faction,
		Abilities:  p.Abilities,
		Resources:  p.Resources,
	}
}

// Party groups players that end their turn together.
type Party struct {
	ID            string
	GuildID       string
	Name          string
	LeaderID      string
	MemberIDs     []string
	LocationID    string
	Status        actor.Status
	QueuedActions []json.RawMessage
}

// Ref returns the party's actor reference.
func (p *Party) Ref() actor.Ref { return actor.Party(p.ID) }

// NPC is a computer-controlled actor.
type NPC struct {
	ID          string
	GuildID     string
	Name        string
	LocationID  string
	Faction     string
	Personality string
	// Strategy names a strategy profile; empty selects the guild default.
	Strategy   string
	Level      int
	MaxHP      int
	CurrentHP  int
	ArmorClass int
	Dexterity  int
	Strength   int
	Abilities  []string
	Resources  map[string]int
	Status     actor.Status
}

// Ref returns the NPC's actor reference.
func (n *NPC) Ref() actor.Ref { return actor.NPC(n.ID) }

// DisplayName returns the NPC name.
func (n *NPC) DisplayName() string { return n.Name }

// CombatStats returns the NPC's stat block.
func (n *NPC) CombatStats() Stats {
	return Stats{
		Level:      n.Level,
		MaxHP:      n.MaxHP,
		CurrentHP:  n.CurrentHP,
		ArmorClass: n.ArmorClass,
		Dexterity:  n.Dexterity,
		Strength:   n.Strength,
		Faction:    n.Faction,
		Abilities:  n.Abilities,
		Resources:  n.Resources,
	}
}

// AbilityMod computes floor((score - 10) / 2).
func AbilityMod(score int) int {
	diff := score - 10
	if diff < 0 {
		return (diff - 1) / 2
	}
	return diff / 2
}
