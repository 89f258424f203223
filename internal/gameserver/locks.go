package gameserver

import "sync"

// LockRegistry is the process-wide set of guilds whose turn is currently
// being processed. Create one at process start and share it between every
// TurnController that may process the same guilds.
//
// Invariant: an entry exists only between a successful TryAcquire and the
// matching Release.
type LockRegistry struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLockRegistry returns an empty registry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{held: make(map[string]struct{})}
}

// TryAcquire claims guildID. It never blocks.
//
// Postcondition: returns false when guildID is already held.
func (l *LockRegistry) TryAcquire(guildID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[guildID]; busy {
		return false
	}
	l.held[guildID] = struct{}{}
	return true
}

// Release drops the claim on guildID. Releasing an unheld guild is a no-op.
func (l *LockRegistry) Release(guildID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, guildID)
}

// Held reports whether guildID is currently claimed.
func (l *LockRegistry) Held(guildID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, busy := l.held[guildID]
	return busy
}

// Len returns the number of guilds currently held.
func (l *LockRegistry) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}
