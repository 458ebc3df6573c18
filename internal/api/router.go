package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"duel-arena/internal/match"
	"duel-arena/internal/results"
	"duel-arena/internal/results/sqlite"
)

// Standings is the ranking view served under /api/leaderboard.
type Standings interface {
	Rank(actorID string) (results.Standing, bool)
	Top(n int) []results.Standing
	Around(actorID string, above, below int) []results.Standing
}

// History is the persisted result view served under /api/results.
type History interface {
	Get(ctx context.Context, matchID string) (match.Result, error)
	Recent(ctx context.Context, limit int) ([]sqlite.Summary, error)
	ForActor(ctx context.Context, actorID string, limit int) ([]sqlite.Summary, error)
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	router := api.NewRouter(api.RouterConfig{
//	    Matches: manager,
//	    Tokens:  api.NewTokenIssuer("test-secret", time.Hour),
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000,
//	        Burst:             1000,
//	    },
//	    DisableLogging: true,
//	})
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Matches is the match registry (required)
	Matches *match.Manager

	// Tokens signs session tokens and authenticates WebSocket handshakes (required)
	Tokens *TokenIssuer

	// AllowAnonymous enables POST /api/session
	AllowAnonymous bool

	// Hub mounts /ws when set
	Hub *Hub

	// Standings mounts /api/leaderboard when set
	Standings Standings

	// History mounts /api/results when set
	History History

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one is created from RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is only used if RateLimiter is nil.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins defaults to localhost on any port
	CORSOrigins []string

	// DisableLogging disables the request logger middleware
	DisableLogging bool
}

type routerHandlers struct {
	matches        *match.Manager
	tokens         *TokenIssuer
	allowAnonymous bool
	hub            *Hub
	standings      Standings
	history        History
	limiter        *IPRateLimiter
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// NewRouter is pure: it starts no goroutines and opens no listeners, so
// it is safe to wrap in httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics)

	// Rate limiting runs before CORS to reject early
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"Location"},
		MaxAge:         300,
	}))

	h := &routerHandlers{
		matches:        cfg.Matches,
		tokens:         cfg.Tokens,
		allowAnonymous: cfg.AllowAnonymous,
		hub:            cfg.Hub,
		standings:      cfg.Standings,
		history:        cfg.History,
		limiter:        rateLimiter,
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/matches", func(r chi.Router) {
			r.Post("/", h.handleCreateMatch)
			r.Get("/", h.handleListMatches)
			r.Get("/{id}", h.handleGetMatch)
		})

		r.Get("/weapons", h.handleGetWeapons)
		r.Get("/catalog/schema", h.handleCatalogSchema)
		r.Post("/session", h.handleCreateSession)
		r.Get("/stats", h.handleStats)

		if cfg.Standings != nil {
			r.Get("/leaderboard", h.handleLeaderboard)
			r.Get("/leaderboard/{actorID}", h.handleLeaderboardRank)
		}
		if cfg.History != nil {
			r.Get("/results", h.handleResults)
			r.Get("/results/{id}", h.handleResult)
		}
	})

	if cfg.Hub != nil {
		r.Get("/ws", cfg.Hub.HandleWebSocket)
	}

	return r
}
