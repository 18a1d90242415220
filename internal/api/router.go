package api

import (
	"net/http"
	"time"

	"shooter-arena/internal/config"
	"shooter-arena/internal/game"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// EngineInterface defines the game engine methods used by the API.
// This interface enables mocking for tests without spinning up the full game loop.
// Keep this minimal - only include methods the API layer actually calls.
type EngineInterface interface {
	// Join registers an agent into the open lobby
	Join(req game.JoinRequest) (game.JoinResult, error)
	// SubmitAction queues one intent for the next tick
	SubmitAction(a game.Action) error
	// LookupPlayer resolves an API key to the player it joined as
	LookupPlayer(apiKey string) (string, bool)
	// Status reports the match lifecycle state
	Status() game.StatusInfo
	// StateFor returns the personalized view for one agent
	StateFor(playerID string) (*game.AgentView, error)
	// SpectatorState returns the latest shared snapshot (may be nil before the first publish)
	SpectatorState() *game.Snapshot
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
// This struct is designed for dependency injection and testability.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    Engine:   mockEngine,
//	    Verifier: mockVerifier,
//	    IPRateLimitConfig: &api.IPRateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	}
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Engine is the game engine (required)
	Engine EngineInterface

	// Verifier authenticates API keys on the protected routes (required)
	Verifier TokenVerifier

	// Limiter is an optional pre-configured per-token action limiter.
	// If nil, a new one will be created from the default rate limit config.
	Limiter *ActionRateLimiter

	// RateLimiter is an optional pre-configured per-IP limiter.
	// If nil, a new one will be created using IPRateLimitConfig.
	RateLimiter *IPRateLimiter

	// IPRateLimitConfig is optional configuration for the per-IP limiter.
	// Only used if RateLimiter is nil. If both are nil, uses DefaultIPRateLimitConfig.
	IPRateLimitConfig *IPRateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins.
	// If nil, uses the default local origins.
	CORSOrigins []string

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

// routerHandlers holds the handler functions for the router.
// This is used internally to pass handlers to route setup.
type routerHandlers struct {
	engine  EngineInterface
	limiter *ActionRateLimiter
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// It opens no network listeners and launches nothing beyond the rate
// limiters' cleanup sweepers (and only when it has to create those
// limiters itself), which makes it safe to use in tests with
// httptest.NewServer.
//
// Example:
//
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
//	defer ts.Close()
//	resp, _ := http.Get(ts.URL + "/api/shooter/status")
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultIPRateLimitConfig
		if cfg.IPRateLimitConfig != nil {
			rateLimitCfg = *cfg.IPRateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	// CORS configuration
	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	// Create handlers struct
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NewActionRateLimiter(config.DefaultRateLimit())
	}
	h := &routerHandlers{
		engine:  cfg.Engine,
		limiter: limiter,
	}

	// API routes
	r.Route("/api/shooter", func(r chi.Router) {
		// Public: polled by dashboards and by agents waiting for a lobby
		r.Get("/status", h.handleStatus)
		r.Get("/spectator", h.handleSpectator)

		// Authenticated agent routes
		r.Group(func(r chi.Router) {
			r.Use(RequireToken(cfg.Verifier))
			r.Post("/join", h.handleJoin)
			r.Get("/state", h.handleState)
			r.Post("/action", h.handleAction)
		})
	})

	r.Get("/health", handleHealth)

	// Default route
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{
			"service": "shooter-arena",
			"status":  "/api/shooter/status",
		})
	})

	return r
}

// metricsMiddleware records latency and status counts per route.
// The chi route pattern is only resolved after the handler chain runs,
// so the labels are read afterwards.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				endpoint = p
			}
		}
		RecordRequest(r.Method, endpoint, ww.Status(), time.Since(start))
	})
}
