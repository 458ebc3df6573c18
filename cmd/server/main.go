package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"duel-arena/internal/api"
	"duel-arena/internal/config"
	"duel-arena/internal/match"
	"duel-arena/internal/physics"
	"duel-arena/internal/results"
	"duel-arena/internal/results/sqlite"
	"duel-arena/internal/safety"
	"duel-arena/internal/weapons"
)

func main() {
	if err := godotenv.Load("../.env"); err != nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("⚔️  ================================")
	log.Println("⚔️   DUEL ARENA - MATCH SERVER")
	log.Println("⚔️  ================================")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	sim := cfg.Simulation
	log.Printf("🎮 Config: %d Hz sim, %d Hz broadcast, arena %.0fx%.0f, countdown %s",
		sim.TickHz, sim.BroadcastHz, sim.ArenaWidth, sim.ArenaHeight, cfg.Match.Countdown)

	catalog, err := weapons.Load(cfg.Catalog.Path)
	if err != nil {
		log.Fatalf("❌ Weapon catalog: %v", err)
	}
	log.Printf("🗡️  Weapon catalog: %d weapons", len(catalog.All()))

	// Result sinks: audit log, history, rankings
	leaderboard := results.NewLeaderboard()
	sinks := results.Fanout{leaderboard}

	jsonl := results.NewJSONLWriter()
	if path := cfg.Results.JSONLPath; path != "" {
		if err := jsonl.Start(path); err != nil {
			log.Printf("⚠️ Result log disabled: %v", err)
		} else {
			log.Printf("📝 Result log: %s", path)
			sinks = append(sinks, jsonl)
		}
	}

	var history api.History
	if path := cfg.Results.DBPath; path != "" {
		store, err := sqlite.Open(path)
		if err != nil {
			log.Fatalf("❌ Results database: %v", err)
		}
		defer store.Close()
		history = store
		sinks = append(sinks, store)
		log.Printf("💾 Results database: %s", path)
	}

	limiter := safety.NewRateLimiter(safety.LimiterConfig{
		Capacity: cfg.Safety.InputCapacity,
		Window:   cfg.Safety.InputWindow,
		StaleAge: cfg.Safety.SweepInterval,
	}, nil)
	disconnects := safety.NewDisconnectStore(cfg.Safety.ReconnectGrace, nil)

	tokens := api.NewTokenIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	hub := api.NewHub(api.HubConfig{
		Tokens:  tokens,
		Origins: api.NewOriginPolicy(cfg.Server.CORSOrigins),
		Limiter: api.NewWebSocketRateLimiter(cfg.RateLimit.MaxWSPerIP, cfg.RateLimit.MaxWSTotal),
	})

	manager := match.NewManager(matchConfig(cfg), match.Deps{
		Sink:        hub,
		Results:     api.MeteredSink{Next: sinks},
		Catalog:     catalog,
		Limiter:     limiter,
		Disconnects: disconnects,
		Metrics:     api.PromMetrics{},
	})
	hub.Bind(manager)

	server := api.NewServer(":"+strconv.Itoa(cfg.Server.Port), api.RouterConfig{
		Matches:        manager,
		Tokens:         tokens,
		AllowAnonymous: cfg.Auth.AllowAnonymous,
		Hub:            hub,
		Standings:      leaderboard,
		History:        history,
		RateLimitConfig: &api.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		},
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Run(ctx, cfg.Server.ShutdownTimeout)
	})
	g.Go(func() error {
		limiter.Run(ctx, cfg.Safety.SweepInterval)
		return nil
	})
	g.Go(func() error {
		disconnects.Run(ctx, cfg.Safety.SweepInterval)
		return nil
	})

	if debug := api.NewDebugServer(api.ObservabilityConfig{
		Enabled:       cfg.Server.DebugEnabled,
		ListenAddr:    cfg.Server.DebugAddr,
		AllowExternal: cfg.Server.DebugExternal,
		BasicAuthUser: os.Getenv("DEBUG_USER"),
		BasicAuthPass: os.Getenv("DEBUG_PASS"),
	}); debug != nil {
		g.Go(func() error {
			if err := debug.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("⚠️ Debug server error: %v", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return debug.Close()
		})
	}

	log.Printf("✅ Server ready on http://localhost:%d (WebSocket /ws). Press Ctrl+C to stop.", cfg.Server.Port)

	err = g.Wait()
	log.Println("🛑 Shutting down...")
	manager.Shutdown()
	jsonl.Stop()
	if err != nil {
		log.Printf("❌ Server error: %v", err)
		os.Exit(1)
	}
	log.Println("👋 Goodbye!")
}

func matchConfig(cfg config.AppConfig) match.Config {
	sim := cfg.Simulation
	return match.Config{
		Instance: match.InstanceConfig{
			TickHz:      sim.TickHz,
			BroadcastHz: sim.BroadcastHz,
			Countdown:   cfg.Match.Countdown,
			MaxDuration: cfg.Match.MaxDuration,
			Grace:       cfg.Safety.ReconnectGrace,
			JoinTimeout: cfg.Match.JoinTimeout,
			Arena:       physics.NewRect(0, 0, sim.ArenaWidth, sim.ArenaHeight),
			Radius:      sim.Radius,
			ResultWait:  cfg.Match.ResultWait,
		},
		Retention:  cfg.Match.Retention,
		MaxMatches: cfg.Match.MaxMatches,
	}
}
