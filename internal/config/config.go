// Package config provides centralized configuration management.
// Every tunable has its default here; environment variables override them.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `env:"PORT"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envSeparator:","`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`
	DebugEnabled    bool          `env:"DEBUG_ENABLED"`
	DebugAddr       string        `env:"DEBUG_ADDR"` // localhost only unless ALLOW_DEBUG_EXTERNAL
	DebugExternal   bool          `env:"ALLOW_DEBUG_EXTERNAL"`
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port: 3000,
		CORSOrigins: []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		},
		ShutdownTimeout: 10 * time.Second,
		DebugEnabled:    true,
		DebugAddr:       "127.0.0.1:6060",
	}
}

// =============================================================================
// SIMULATION CONFIGURATION
// =============================================================================

// SimulationConfig holds the fixed-step simulation settings.
type SimulationConfig struct {
	TickHz      int     `env:"SIM_TICK_HZ"`  // authoritative simulation rate
	BroadcastHz int     `env:"BROADCAST_HZ"` // snapshot rate, independent of TickHz
	ArenaWidth  float64 `env:"ARENA_WIDTH"`
	ArenaHeight float64 `env:"ARENA_HEIGHT"`
	Radius      float64 `env:"COMBATANT_RADIUS"`
}

// DefaultSimulation returns 60 Hz simulation with 20 Hz broadcast.
func DefaultSimulation() SimulationConfig {
	return SimulationConfig{
		TickHz:      60,
		BroadcastHz: 20,
		ArenaWidth:  800,
		ArenaHeight: 600,
		Radius:      20,
	}
}

// =============================================================================
// MATCH CONFIGURATION
// =============================================================================

// MatchConfig holds match lifecycle settings.
type MatchConfig struct {
	Countdown   time.Duration `env:"COUNTDOWN"`
	MaxDuration time.Duration `env:"MATCH_MAX_DURATION"`
	JoinTimeout time.Duration `env:"MATCH_JOIN_TIMEOUT"` // absent humans forfeit after this
	Retention   time.Duration `env:"MATCH_RETENTION"`
	MaxMatches  int           `env:"MAX_MATCHES"`
	ResultWait  time.Duration `env:"RESULT_WAIT"`
}

// DefaultMatch returns the default match configuration.
func DefaultMatch() MatchConfig {
	return MatchConfig{
		Countdown:   3 * time.Second,
		MaxDuration: 3 * time.Minute,
		JoinTimeout: time.Minute,
		Retention:   30 * time.Second,
		MaxMatches:  500,
		ResultWait:  5 * time.Second,
	}
}

// =============================================================================
// EDGE SAFETY CONFIGURATION
// =============================================================================

// SafetyConfig controls input limiting and reconnects.
type SafetyConfig struct {
	InputCapacity  int           `env:"INPUT_CAPACITY"` // inputs per window per connection
	InputWindow    time.Duration `env:"INPUT_WINDOW"`
	ReconnectGrace time.Duration `env:"RECONNECT_GRACE"`
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL"`
}

// DefaultSafety returns twice the 60 Hz input rate and a 30s grace window.
func DefaultSafety() SafetyConfig {
	return SafetyConfig{
		InputCapacity:  120,
		InputWindow:    time.Second,
		ReconnectGrace: 30 * time.Second,
		SweepInterval:  time.Minute,
	}
}

// =============================================================================
// HTTP RATE LIMITS
// =============================================================================

// RateLimitConfig controls per-IP HTTP and websocket limits.
type RateLimitConfig struct {
	RequestsPerSecond float64 `env:"HTTP_RATE"`
	Burst             int     `env:"HTTP_BURST"`
	MaxWSPerIP        int     `env:"WS_MAX_PER_IP"`
	MaxWSTotal        int     `env:"WS_MAX_TOTAL"`
}

// DefaultRateLimit returns production-safe defaults.
func DefaultRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 10,
		Burst:             20,
		MaxWSPerIP:        10,
		MaxWSTotal:        2000,
	}
}

// =============================================================================
// RESULTS, CATALOG, AUTH
// =============================================================================

// ResultsConfig selects result sinks. Empty paths disable a sink.
type ResultsConfig struct {
	JSONLPath string `env:"RESULTS_JSONL_PATH"`
	DBPath    string `env:"RESULTS_DB_PATH"`
}

// DefaultResults writes the audit log next to the binary and keeps SQLite off.
func DefaultResults() ResultsConfig {
	return ResultsConfig{
		JSONLPath: "match_results.jsonl",
	}
}

// CatalogConfig points at an optional weapon catalog file.
type CatalogConfig struct {
	Path string `env:"WEAPON_CATALOG"` // empty uses the built-in catalog
}

// AuthConfig controls actor tokens.
type AuthConfig struct {
	Secret         string        `env:"AUTH_SECRET"` // empty generates one per process
	AllowAnonymous bool          `env:"ALLOW_ANONYMOUS"`
	TokenTTL       time.Duration `env:"TOKEN_TTL"`
}

// DefaultAuth returns the default auth configuration.
func DefaultAuth() AuthConfig {
	return AuthConfig{
		AllowAnonymous: true,
		TokenTTL:       24 * time.Hour,
	}
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Server     ServerConfig
	Simulation SimulationConfig
	Match      MatchConfig
	Safety     SafetyConfig
	RateLimit  RateLimitConfig
	Results    ResultsConfig
	Catalog    CatalogConfig
	Auth       AuthConfig
}

// Default returns the configuration with no environment applied.
func Default() AppConfig {
	return AppConfig{
		Server:     DefaultServer(),
		Simulation: DefaultSimulation(),
		Match:      DefaultMatch(),
		Safety:     DefaultSafety(),
		RateLimit:  DefaultRateLimit(),
		Results:    DefaultResults(),
		Auth:       DefaultAuth(),
	}
}

// Load returns the defaults overridden by the environment.
func Load() (AppConfig, error) {
	cfg := Default()
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings the simulation cannot run with.
func (c AppConfig) Validate() error {
	var errs []error
	sim := c.Simulation
	if sim.TickHz <= 0 {
		errs = append(errs, fmt.Errorf("SIM_TICK_HZ must be positive, got %d", sim.TickHz))
	}
	if sim.BroadcastHz <= 0 || sim.BroadcastHz > sim.TickHz {
		errs = append(errs, fmt.Errorf("BROADCAST_HZ must be in 1..%d, got %d", sim.TickHz, sim.BroadcastHz))
	}
	if sim.Radius <= 0 {
		errs = append(errs, fmt.Errorf("COMBATANT_RADIUS must be positive, got %v", sim.Radius))
	}
	if sim.ArenaWidth <= 4*sim.Radius || sim.ArenaHeight <= 2*sim.Radius {
		errs = append(errs, fmt.Errorf("arena %vx%v too small for radius %v", sim.ArenaWidth, sim.ArenaHeight, sim.Radius))
	}
	if c.Match.MaxDuration <= 0 {
		errs = append(errs, errors.New("MATCH_MAX_DURATION must be positive"))
	}
	if c.Match.Countdown < 0 {
		errs = append(errs, errors.New("COUNTDOWN must not be negative"))
	}
	if c.Match.JoinTimeout <= 0 {
		errs = append(errs, errors.New("MATCH_JOIN_TIMEOUT must be positive"))
	}
	if c.Safety.InputCapacity <= 0 || c.Safety.InputWindow <= 0 {
		errs = append(errs, errors.New("INPUT_CAPACITY and INPUT_WINDOW must be positive"))
	}
	if c.Safety.ReconnectGrace <= 0 {
		errs = append(errs, errors.New("RECONNECT_GRACE must be positive"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Server.Port))
	}
	return errors.Join(errs...)
}
