package gameserver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Signaler re-evaluates a guild's turn. TurnController implements it.
type Signaler interface {
	SignalEndOfTurn(ctx context.Context, guildID string) (*TurnReport, error)
}

// GuildTickManager periodically signals end-of-turn for every registered
// guild, so queued actions resolve even when no player sends the final
// signal. Each sweep visits every guild once, at most limit at a time.
//
// Invariant: a guild is signalled at most once per sweep.
type GuildTickManager struct {
	interval time.Duration
	limit    int
	signaler Signaler
	logger   *zap.Logger
	mu       sync.Mutex
	guilds   map[string]struct{}
}

// NewGuildTickManager returns a manager that sweeps every interval.
//
// Precondition: interval must be > 0; limit < 1 is treated as 1.
func NewGuildTickManager(interval time.Duration, limit int, signaler Signaler, logger *zap.Logger) *GuildTickManager {
	if interval <= 0 {
		panic("gameserver.NewGuildTickManager: interval must be > 0")
	}
	if limit < 1 {
		limit = 1
	}
	return &GuildTickManager{
		interval: interval,
		limit:    limit,
		signaler: signaler,
		logger:   logger,
		guilds:   make(map[string]struct{}),
	}
}

// Register adds guildID to the sweep. Registering twice is a no-op.
func (g *GuildTickManager) Register(guildID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.guilds[guildID] = struct{}{}
}

// Unregister removes guildID from the sweep.
func (g *GuildTickManager) Unregister(guildID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.guilds, guildID)
}

// Guilds returns the registered guild IDs in sorted order.
func (g *GuildTickManager) Guilds() []string {
	g.mu.Lock()
	out := make([]string, 0, len(g.guilds))
	for id := range g.guilds {
		out = append(out, id)
	}
	g.mu.Unlock()
	sort.Strings(out)
	return out
}

// Sweep signals every registered guild once. One guild's failure does not
// stop the others; all failures are joined into the returned error.
func (g *GuildTickManager) Sweep(ctx context.Context) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.limit)
	for _, id := range g.Guilds() {
		eg.Go(func() error {
			report, err := g.signaler.SignalEndOfTurn(gctx, id)
			if err != nil {
				g.logger.Warn("guild tick failed", zap.String("guild", id), zap.Error(err))
				mu.Lock()
				errs = append(errs, fmt.Errorf("guild %s: %w", id, err))
				mu.Unlock()
				return nil
			}
			if report != nil && !report.Skipped {
				g.logger.Debug("guild tick processed a turn",
					zap.String("guild", id),
					zap.Int("actions", len(report.Results)),
				)
			}
			return nil
		})
	}
	_ = eg.Wait()
	return errors.Join(errs...)
}

// Run sweeps every interval until ctx is cancelled.
func (g *GuildTickManager) Run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = g.Sweep(ctx)
		}
	}
}

// Start runs the sweep loop in its own goroutine until ctx is cancelled.
func (g *GuildTickManager) Start(ctx context.Context) {
	go g.Run(ctx)
}
