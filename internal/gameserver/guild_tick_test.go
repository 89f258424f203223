package gameserver_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/guildturn/internal/gameserver"
)

type fakeSignaler struct {
	mu       sync.Mutex
	calls    map[string]int
	inFlight atomic.Int64
	peak     atomic.Int64
	fail     map[string]error
	delay    time.Duration
}

func newFakeSignaler() *fakeSignaler {
	return &fakeSignaler{calls: make(map[string]int), fail: make(map[string]error)}
}

func (f *fakeSignaler) SignalEndOfTurn(_ context.Context, guildID string) (*gameserver.TurnReport, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(f.delay)
	f.mu.Lock()
	f.calls[guildID]++
	err := f.fail[guildID]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &gameserver.TurnReport{Guild: guildID}, nil
}

func (f *fakeSignaler) count(guildID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[guildID]
}

func TestGuildTickManager_SweepVisitsEachGuildOnceWithinLimit(t *testing.T) {
	sig := newFakeSignaler()
	sig.delay = 10 * time.Millisecond
	gm := gameserver.NewGuildTickManager(time.Hour, 2, sig, zap.NewNop())
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		gm.Register(id)
	}
	gm.Register("a")

	require.NoError(t, gm.Sweep(context.Background()))
	for _, id := range gm.Guilds() {
		assert.Equal(t, 1, sig.count(id), id)
	}
	assert.LessOrEqual(t, sig.peak.Load(), int64(2))
}

func TestGuildTickManager_SweepJoinsFailures(t *testing.T) {
	sig := newFakeSignaler()
	boom := errors.New("boom")
	sig.fail["b"] = boom
	gm := gameserver.NewGuildTickManager(time.Hour, 4, sig, zap.NewNop())
	gm.Register("a")
	gm.Register("b")
	gm.Register("c")

	err := gm.Sweep(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "guild b")
	assert.Equal(t, 1, sig.count("a"), "other guilds still run")
	assert.Equal(t, 1, sig.count("c"))
}

func TestGuildTickManager_TickSignalsRegisteredGuilds(t *testing.T) {
	sig := newFakeSignaler()
	gm := gameserver.NewGuildTickManager(20*time.Millisecond, 1, sig, zap.NewNop())
	gm.Register("g1")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	gm.Start(ctx)
	assert.Eventually(t, func() bool { return sig.count("g1") > 0 }, time.Second, 5*time.Millisecond)
}

func TestGuildTickManager_UnregisterStopsSignals(t *testing.T) {
	sig := newFakeSignaler()
	gm := gameserver.NewGuildTickManager(time.Hour, 1, sig, zap.NewNop())
	gm.Register("g1")
	gm.Unregister("g1")
	require.NoError(t, gm.Sweep(context.Background()))
	assert.Zero(t, sig.count("g1"))
	assert.Empty(t, gm.Guilds())
}

func TestGuildTickManager_RejectsNonPositiveInterval(t *testing.T) {
	assert.Panics(t, func() { gameserver.NewGuildTickManager(0, 1, newFakeSignaler(), zap.NewNop()) })
}
