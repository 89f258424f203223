// Package gameserver is the guild turn core: it decides when a guild's
// queued actions run, dispatches each one to its intent handler, and drives
// the combat encounters those actions start.
//
// A TurnController owns the per-guild cycle (readiness, lock, drain,
// dispatch, finalize). Intent handlers run inside an ActionProcessor, one
// unit of work per action. CombatCycle owns the encounter state machine and
// hands finished fights to the consequence hooks. GuildTickManager re-signals
// registered guilds on a timer so turns advance without an explicit signal.
package gameserver
