// Package main provides the turn server binary: it loads combat content and
// rule defaults, wires the guild turn core onto the configured store, and
// sweeps registered guilds on a ticker behind a gRPC health endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cory-johannsen/guildturn/internal/config"
	"github.com/cory-johannsen/guildturn/internal/formula"
	"github.com/cory-johannsen/guildturn/internal/game/ai"
	"github.com/cory-johannsen/guildturn/internal/game/combat"
	"github.com/cory-johannsen/guildturn/internal/game/condition"
	"github.com/cory-johannsen/guildturn/internal/game/dice"
	"github.com/cory-johannsen/guildturn/internal/game/relationship"
	"github.com/cory-johannsen/guildturn/internal/gameserver"
	"github.com/cory-johannsen/guildturn/internal/observability"
	"github.com/cory-johannsen/guildturn/internal/rules"
	"github.com/cory-johannsen/guildturn/internal/server"
	"github.com/cory-johannsen/guildturn/internal/storage"
	"github.com/cory-johannsen/guildturn/internal/storage/memory"
	"github.com/cory-johannsen/guildturn/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, "turnserver")
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatal("setting up tracing", zap.Error(err))
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("flushing traces", zap.Error(err))
		}
	}()

	logger.Info("starting turn server",
		zap.String("grpc_addr", cfg.Server.Addr()),
		zap.String("storage", cfg.Storage.Driver),
	)

	// Content
	contentStart := time.Now()
	abilities, err := combat.LoadCatalog(cfg.Combat.AbilitiesDir)
	if err != nil {
		logger.Fatal("loading abilities", zap.Error(err))
	}
	conditions, err := condition.LoadDirectory(cfg.Combat.ConditionsDir)
	if err != nil {
		logger.Fatal("loading conditions", zap.Error(err))
	}
	book, err := ai.LoadBook(cfg.AI.StrategyFile)
	if err != nil {
		logger.Fatal("loading strategy book", zap.Error(err))
	}
	defaults, err := rules.LoadStatic(cfg.Rules.DefaultsFile)
	if err != nil {
		logger.Fatal("loading rule defaults", zap.Error(err))
	}
	logger.Info("content loaded",
		zap.Int("abilities", len(abilities.All())),
		zap.Int("conditions", len(conditions.All())),
		zap.Duration("elapsed", time.Since(contentStart)),
	)

	lifecycle := server.NewLifecycle(logger)

	// Storage
	var (
		store  storage.Store
		lookup rules.Lookup = defaults
	)
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		dbStart := time.Now()
		pool, err := postgres.NewPool(ctx, cfg.Database, "guildturn")
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		store = postgres.NewStore(pool)
		lookup = rules.Layered{postgres.NewRuleRepository(pool.DB(), logger), defaults}

		done := make(chan struct{})
		lifecycle.Add("postgres", &server.FuncService{
			StartFn: func() error {
				ticker := time.NewTicker(30 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return nil
					case <-ticker.C:
						if err := pool.Health(ctx, 5*time.Second); err != nil {
							logger.Warn("database health check failed", zap.Error(err))
						}
					}
				}
			},
			StopFn: func() {
				close(done)
				pool.Close()
			},
		})
	default:
		logger.Warn("using in-memory storage; state is lost on exit")
		store = memory.New()
	}

	// Turn core
	roller := dice.NewLoggedRoller(dice.NewCryptoSource(), logger)
	engine := combat.NewEngine(roller, abilities, conditions, logger)
	decider := ai.NewDecider(ai.NewCompiler(book, lookup), engine, formula.NewCache(), logger)
	hooks := gameserver.DefaultHooks(relationship.NewUpdater(logger), logger)
	cycle := gameserver.NewCombatCycle(engine, decider, lookup, cfg.Combat.MaxAutoTurns, logger, hooks...)

	processor := gameserver.NewActionProcessor(store, logger)
	gameserver.NewIntents(cycle, lookup, logger).Register(processor)
	controller := gameserver.NewTurnController(store, gameserver.NewLockRegistry(), processor, logger)

	if cfg.Scheduler.TickInterval > 0 {
		ticks := gameserver.NewGuildTickManager(cfg.Scheduler.TickInterval, cfg.Scheduler.MaxParallelGuilds, controller, logger)
		for _, g := range cfg.Scheduler.Guilds {
			ticks.Register(g)
		}
		tickCtx, cancelTicks := context.WithCancel(ctx)
		lifecycle.Add("scheduler", &server.FuncService{
			StartFn: func() error {
				logger.Info("guild sweep running",
					zap.Duration("interval", cfg.Scheduler.TickInterval),
					zap.Strings("guilds", ticks.Guilds()),
				)
				ticks.Run(tickCtx)
				return nil
			},
			StopFn: cancelTicks,
		})
	} else {
		logger.Info("guild sweep disabled; turns advance on explicit signals only")
	}

	// gRPC health
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	lifecycle.OnShutdown(healthServer.Shutdown)

	lifecycle.Add("grpc", &server.FuncService{
		StartFn: func() error {
			lis, err := net.Listen("tcp", cfg.Server.Addr())
			if err != nil {
				return fmt.Errorf("listening on %s: %w", cfg.Server.Addr(), err)
			}
			logger.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
			return grpcServer.Serve(lis)
		},
		StopFn: grpcServer.GracefulStop,
	})

	logger.Info("turn server initialized", zap.Duration("startup", time.Since(start)))

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
