package gameserver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/guildturn/internal/eventlog"
	"github.com/cory-johannsen/guildturn/internal/game/actor"
	"github.com/cory-johannsen/guildturn/internal/game/combat"
	"github.com/cory-johannsen/guildturn/internal/game/roster"
	"github.com/cory-johannsen/guildturn/internal/rules"
	"github.com/cory-johannsen/guildturn/internal/storage"
)

// Built-in intents.
const (
	IntentAttack = "attack"
	IntentRest   = "rest"
	IntentMove   = "move"
	IntentWait   = "wait"
)

// Entity types the built-in handlers read.
const (
	EntityTarget   = "target"
	EntityAbility  = "ability"
	EntityLocation = "location"
)

const defaultRestHealFraction = 0.25

// ErrInCombat is returned when an intent is not allowed mid-fight.
var ErrInCombat = errors.New("actor is in combat")

// Intents implements the built-in intent handlers.
type Intents struct {
	cycle  *CombatCycle
	lookup rules.Lookup
	logger *zap.Logger
}

// NewIntents creates the built-in handler set.
//
// Precondition: all arguments must be non-nil.
func NewIntents(cycle *CombatCycle, lookup rules.Lookup, logger *zap.Logger) *Intents {
	return &Intents{cycle: cycle, lookup: lookup, logger: logger}
}

// Register binds every built-in intent on p.
func (i *Intents) Register(p *ActionProcessor) {
	p.Register(IntentAttack, i.Attack)
	p.Register(IntentRest, i.Rest)
	p.Register(IntentMove, i.Move)
	p.Register(IntentWait, i.Wait)
}

// squad is the set of player records an action speaks for.
type squad struct {
	players  []*roster.Player
	party    *roster.Party
	location string
}

func (s squad) refs() []actor.Ref {
	out := make([]actor.Ref, len(s.players))
	for i, p := range s.players {
		out[i] = p.Ref()
	}
	return out
}

// squadOf resolves a player or party ref to its members. A party's members
// that no longer exist are skipped.
func squadOf(ctx context.Context, tx storage.Tx, guildID string, ref actor.Ref) (squad, error) {
	switch ref.Kind {
	case actor.KindPlayer:
		p, err := tx.Players().Get(ctx, guildID, ref.ID)
		if err != nil {
			return squad{}, fmt.Errorf("loading player %s: %w", ref.ID, err)
		}
		return squad{players: []*roster.Player{p}, location: p.LocationID}, nil
	case actor.KindParty:
		party, err := tx.Parties().Get(ctx, guildID, ref.ID)
		if err != nil {
			return squad{}, fmt.Errorf("loading party %s: %w", ref.ID, err)
		}
		s := squad{party: party, location: party.LocationID}
		for _, id := range party.MemberIDs {
			p, err := tx.Players().Get(ctx, guildID, id)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return squad{}, fmt.Errorf("loading party member %s: %w", id, err)
			}
			s.players = append(s.players, p)
		}
		if s.location == "" && len(s.players) > 0 {
			s.location = s.players[0].LocationID
		}
		if len(s.players) == 0 {
			return squad{}, fmt.Errorf("party %s has no members", ref.ID)
		}
		return s, nil
	default:
		return squad{}, fmt.Errorf("%s cannot queue actions", ref)
	}
}

// engaged reports whether any of refs is a living participant in the active
// encounter at locationID.
func engaged(ctx context.Context, tx storage.Tx, guildID, locationID string, refs []actor.Ref) (bool, error) {
	if locationID == "" {
		return false, nil
	}
	enc, err := tx.Encounters().ActiveAt(ctx, guildID, locationID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading encounter at %s: %w", locationID, err)
	}
	for _, r := range refs {
		if p, ok := enc.Participant(r); ok && !p.Defeated() {
			return true, nil
		}
	}
	return false, nil
}

// Attack starts a fight with the target, or joins the one already running at
// the actor's location, and then resolves the attack on the actor's turn.
// An optional ability entity turns the basic attack into that ability.
func (i *Intents) Attack(ctx context.Context, tx storage.Tx, guildID string, act roster.QueuedAction) (DispatchResult, error) {
	raw, ok := act.Entity(EntityTarget)
	if !ok {
		return DispatchResult{}, fmt.Errorf("attack needs a %s entity", EntityTarget)
	}
	target, err := roster.ParseRef(raw)
	if err != nil {
		return DispatchResult{}, err
	}
	if target.Kind != actor.KindNPC {
		return DispatchResult{}, fmt.Errorf("attack target %s: only npcs can be attacked", target)
	}
	sq, err := squadOf(ctx, tx, guildID, act.Actor)
	if err != nil {
		return DispatchResult{}, err
	}
	foe, err := storage.LoadCombatant(ctx, tx, guildID, target)
	if err != nil {
		return DispatchResult{}, fmt.Errorf("attack target %s: %w", target, err)
	}
	if loc := locationOf(foe); loc != sq.location {
		return DispatchResult{}, fmt.Errorf("%s is not at %s", foe.DisplayName(), sq.location)
	}
	desc := combat.Attack(target)
	if ab, ok := act.Entity(EntityAbility); ok && strings.TrimSpace(ab) != "" {
		desc = combat.UseAbility(strings.TrimSpace(ab), target)
	}

	refs := append(sq.refs(), target)
	enc, err := tx.Encounters().ActiveAt(ctx, guildID, sq.location)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		enc, err = i.cycle.Start(ctx, tx, guildID, sq.location, refs)
		if err != nil {
			return DispatchResult{}, err
		}
		if enc.Status != combat.StatusActive {
			return DispatchResult{Status: DispatchError, Message: fmt.Sprintf("combat at %s could not start", sq.location)}, nil
		}
	case err != nil:
		return DispatchResult{}, fmt.Errorf("loading encounter at %s: %w", sq.location, err)
	default:
		if err := i.cycle.Join(ctx, tx, enc, refs); err != nil {
			return DispatchResult{}, err
		}
	}

	results, err := i.cycle.Resume(ctx, tx, enc)
	if err != nil {
		return DispatchResult{}, err
	}
	if enc.Status != combat.StatusActive {
		return DispatchResult{Message: fmt.Sprintf("the fight ended before %s could act", act.Actor), Combat: results}, nil
	}
	acting := actingMember(enc, sq)
	more, err := i.cycle.InjectPlayerAction(ctx, tx, enc, acting, desc)
	results = append(results, more...)
	if errors.Is(err, ErrNotYourTurn) {
		return DispatchResult{Status: DispatchSkipped, Message: err.Error(), Combat: results}, nil
	}
	if err != nil {
		return DispatchResult{}, err
	}
	// The fight itself stays committed when the engine refuses the action.
	if own, ok := ownResult(more, acting); ok && own.Failed() {
		return DispatchResult{Status: DispatchError, Message: own.Message, Combat: results}, nil
	}
	return DispatchResult{Message: summarize(results), Combat: results}, nil
}

// ownResult finds ref's own action among the results of an injected turn.
func ownResult(results []combat.ActionResult, ref actor.Ref) (combat.ActionResult, bool) {
	for _, r := range results {
		if r.Actor == ref {
			return r, true
		}
	}
	return combat.ActionResult{}, false
}

// actingMember picks who carries out a squad's attack: the member whose turn
// it is when there is one, else the first member.
func actingMember(enc *combat.Encounter, sq squad) actor.Ref {
	if enc.CurrentTurn != nil {
		for _, p := range sq.players {
			if p.Ref() == *enc.CurrentTurn {
				return p.Ref()
			}
		}
	}
	return sq.players[0].Ref()
}

func locationOf(c roster.Combatant) string {
	switch v := c.(type) {
	case *roster.Player:
		return v.LocationID
	case *roster.NPC:
		return v.LocationID
	}
	return ""
}

func summarize(results []combat.ActionResult) string {
	msgs := make([]string, 0, len(results))
	for _, r := range results {
		if r.Message != "" {
			msgs = append(msgs, r.Message)
		}
	}
	return strings.Join(msgs, "; ")
}

// Rest restores turn.rest_heal_fraction of max HP, rounded up, to every
// member of the squad. Resting is refused mid-fight.
func (i *Intents) Rest(ctx context.Context, tx storage.Tx, guildID string, act roster.QueuedAction) (DispatchResult, error) {
	sq, err := squadOf(ctx, tx, guildID, act.Actor)
	if err != nil {
		return DispatchResult{}, err
	}
	fighting, err := engaged(ctx, tx, guildID, sq.location, sq.refs())
	if err != nil {
		return DispatchResult{}, err
	}
	if fighting {
		return DispatchResult{}, fmt.Errorf("resting: %w", ErrInCombat)
	}
	frac := rules.Float(ctx, i.lookup, guildID, rules.KeyRestHealFraction, defaultRestHealFraction)
	frac = math.Min(math.Max(frac, 0), 1)

	healed := make(map[string]any, len(sq.players))
	total := 0
	for _, p := range sq.players {
		if p.MaxHP <= 0 {
			continue
		}
		gain := min(int(math.Ceil(float64(p.MaxHP)*frac)), p.MaxHP-p.CurrentHP)
		if gain <= 0 {
			continue
		}
		p.CurrentHP += gain
		if err := tx.Players().Save(ctx, p); err != nil {
			return DispatchResult{}, fmt.Errorf("saving player %s: %w", p.ID, err)
		}
		healed[p.ID] = gain
		total += gain
	}
	if _, err := tx.Events().Append(ctx, guildID, eventlog.KindRest, map[string]any{"healed": healed}, sq.refs(), sq.location); err != nil {
		return DispatchResult{}, fmt.Errorf("recording rest: %w", err)
	}
	return DispatchResult{Message: fmt.Sprintf("rested and recovered %d HP", total)}, nil
}

// Move relocates the squad, and its party, to the location entity.
func (i *Intents) Move(ctx context.Context, tx storage.Tx, guildID string, act roster.QueuedAction) (DispatchResult, error) {
	dest, _ := act.Entity(EntityLocation)
	dest = strings.TrimSpace(dest)
	if dest == "" {
		return DispatchResult{}, fmt.Errorf("move needs a %s entity", EntityLocation)
	}
	sq, err := squadOf(ctx, tx, guildID, act.Actor)
	if err != nil {
		return DispatchResult{}, err
	}
	if dest == sq.location {
		return DispatchResult{Message: fmt.Sprintf("already at %s", dest)}, nil
	}
	fighting, err := engaged(ctx, tx, guildID, sq.location, sq.refs())
	if err != nil {
		return DispatchResult{}, err
	}
	if fighting {
		return DispatchResult{}, fmt.Errorf("leaving %s: %w", sq.location, ErrInCombat)
	}
	for _, p := range sq.players {
		p.LocationID = dest
		if err := tx.Players().Save(ctx, p); err != nil {
			return DispatchResult{}, fmt.Errorf("saving player %s: %w", p.ID, err)
		}
	}
	if sq.party != nil {
		sq.party.LocationID = dest
		if err := tx.Parties().Save(ctx, sq.party); err != nil {
			return DispatchResult{}, fmt.Errorf("saving party %s: %w", sq.party.ID, err)
		}
	}
	if _, err := tx.Events().Append(ctx, guildID, eventlog.KindMove,
		map[string]any{"from": sq.location, "to": dest}, sq.refs(), dest); err != nil {
		return DispatchResult{}, fmt.Errorf("recording move: %w", err)
	}
	i.logger.Debug("squad moved", zap.String("guild", guildID), zap.Stringer("actor", act.Actor), zap.String("to", dest))
	return DispatchResult{Message: fmt.Sprintf("moved to %s", dest)}, nil
}

// Wait spends the turn doing nothing.
func (i *Intents) Wait(ctx context.Context, tx storage.Tx, guildID string, act roster.QueuedAction) (DispatchResult, error) {
	if _, err := tx.Events().Append(ctx, guildID, eventlog.KindWait, nil, []actor.Ref{act.Actor}, ""); err != nil {
		return DispatchResult{}, fmt.Errorf("recording wait: %w", err)
	}
	return DispatchResult{Message: "waited"}, nil
}
