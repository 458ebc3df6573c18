// =============================================================================
// DUEL ARENA - DUELBOT
// =============================================================================
// A headless client that plays one match over the public API:
// - Opens an anonymous session and fetches the weapon catalog
// - Creates a match against a CPU opponent (or joins DUELBOT_MATCH)
// - Streams inputs from the AI controller with local prediction, and
//   interpolates the snapshots it receives
//
// USAGE:
//   1. Start the server first: go run ./cmd/server
//   2. Then start a bot: go run ./cmd/duelbot
// =============================================================================
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"duel-arena/internal/client"
	"duel-arena/internal/engine"
)

type botConfig struct {
	Server      string        `env:"DUELBOT_SERVER"`
	ActorID     string        `env:"DUELBOT_ACTOR"` // empty lets the server mint a guest id
	MatchID     string        `env:"DUELBOT_MATCH"` // empty creates a match against a CPU
	WeaponID    string        `env:"DUELBOT_WEAPON"`
	Codec       string        `env:"DUELBOT_CODEC"`
	InputHz     int           `env:"DUELBOT_INPUT_HZ"`
	TickHz      int           `env:"SIM_TICK_HZ"`
	InterpDelay time.Duration `env:"DUELBOT_INTERP_DELAY"`
	ReportEvery time.Duration `env:"DUELBOT_REPORT_EVERY"`
	Attempts    int           `env:"DUELBOT_CONNECT_ATTEMPTS"`
}

func defaultBotConfig() botConfig {
	return botConfig{
		Server:      "http://localhost:8080",
		Codec:       "json",
		InputHz:     engine.DefaultTickHz,
		TickHz:      engine.DefaultTickHz,
		InterpDelay: client.DefaultDelay,
		ReportEvery: 5 * time.Second,
		Attempts:    30,
	}
}

func main() {
	if err := godotenv.Load("../.env"); err != nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	}

	log.Println("🤖 ================================")
	log.Println("🤖   DUEL ARENA - DUELBOT")
	log.Println("🤖 ================================")

	cfg := defaultBotConfig()
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	if cfg.InputHz <= 0 || cfg.ReportEvery <= 0 {
		log.Fatalf("❌ DUELBOT_INPUT_HZ and DUELBOT_REPORT_EVERY must be positive")
	}
	log.Printf("🌐 Server: %s (codec %s, %d inputs/s)", cfg.Server, cfg.Codec, cfg.InputHz)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b := newBot(cfg)

	// Wait for the server to come up
	var err error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if err = b.setup(ctx); err == nil || ctx.Err() != nil {
			break
		}
		log.Printf("⏳ Server not ready (%d/%d): %v", attempt, cfg.Attempts, err)
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
	}
	if err != nil {
		log.Fatalf("❌ Setup failed: %v", err)
	}

	log.Printf("⚔️  Playing match %s as %s", b.matchID, b.actorID)
	if err := b.play(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("❌ Match aborted: %v", err)
		os.Exit(1)
	}

	if result, ok := b.Result(); ok {
		switch {
		case result.Draw:
			log.Printf("🤝 Draw (%s)", result.Reason)
		case result.WinnerID == b.actorID:
			log.Printf("🏆 Won by %s", result.Reason)
		default:
			log.Printf("💀 Lost to %s by %s", result.WinnerID, result.Reason)
		}
	}
	log.Println("👋 Bot stopped")
}
