package api

import (
	"log"
	"net/http"

	"shooter-arena/internal/config"
	"shooter-arena/internal/game"

	"github.com/go-chi/chi/v5"
)

// Server is the HTTP API server with WebSocket support.
// It combines the HTTP router with the WebSocket hub for live spectators.
type Server struct {
	engine      *game.Engine
	router      *chi.Mux
	wsHub       *WebSocketHub
	limiter     *ActionRateLimiter
	rateLimiter *IPRateLimiter
}

// NewServer creates a new API server with default production configuration.
//
// The hub is passed in rather than created here because the engine holds
// it as its event sink, so it must exist before the engine does.
//
// IMPORTANT: The hub's fan-out loop does NOT start until Start() is
// called. This enables testing by allowing the server to be constructed
// without opening network listeners.
//
// For testing HTTP endpoints without WebSocket support, use NewRouter() directly.
func NewServer(engine *game.Engine, verifier TokenVerifier, hub *WebSocketHub, rlCfg config.RateLimitConfig) *Server {
	s := &Server{
		engine: engine,
		wsHub:  hub,
	}

	// Create limiters here (we track them for cleanup in Stop)
	s.limiter = NewActionRateLimiter(rlCfg)
	s.rateLimiter = NewIPRateLimiter(DefaultIPRateLimitConfig)

	// Build router using the factory
	s.router = NewRouter(RouterConfig{
		Engine:      engine,
		Verifier:    verifier,
		Limiter:     s.limiter,
		RateLimiter: s.rateLimiter,
	})

	// Add WebSocket routes (these need the wsHub instance)
	s.setupWebSocketRoutes()

	return s
}

// setupWebSocketRoutes adds WebSocket-specific routes to the router.
// These routes need access to the wsHub instance, so they can't be
// part of the generic NewRouter factory.
func (s *Server) setupWebSocketRoutes() {
	s.router.Get("/ws", s.handleWS)
}

// Start begins the HTTP server AND starts the hub's fan-out loop.
// This is the ONLY method that opens network listeners.
//
// Call this method only once. To stop the server, signal the process.
func (s *Server) Start(addr string) error {
	// Start the hub NOW, not in the constructor, so tests can construct
	// the server and use Router() without it running.
	go s.wsHub.Run()

	log.Printf("🌐 API server starting on %s", addr)
	log.Printf("🔫 Agent API: http://localhost%s/api/shooter/status", addr)

	return http.ListenAndServe(addr, s.router)
}

// Router returns the HTTP handler for use with httptest.
// Use this in integration tests instead of calling Start().
//
// Example:
//
//	server := api.NewServer(engine, verifier, hub, rlCfg)
//	ts := httptest.NewServer(server.Router())
//	defer ts.Close()
//	resp, _ := http.Get(ts.URL + "/api/shooter/status")
func (s *Server) Router() http.Handler {
	return s.router
}

// Stop performs graceful shutdown of background workers.
// Call this before process exit to ensure clean cleanup.
func (s *Server) Stop() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.wsHub != nil {
		s.wsHub.Stop()
	}
}

// WebSocket handlers - these need access to wsHub

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.wsHub.HandleWebSocket(w, r)
}
