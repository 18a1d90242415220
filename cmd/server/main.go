package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"shooter-arena/internal/api"
	"shooter-arena/internal/arena"
	"shooter-arena/internal/config"
	"shooter-arena/internal/game"
	"shooter-arena/internal/identity"
	"shooter-arena/internal/settlement"
	"shooter-arena/internal/storage"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🔫 ================================")
	log.Println("🔫  SHOOTER ARENA - GO ENGINE")
	log.Println("🔫  Authoritative agent server")
	log.Println("🔫 ================================")

	// Load centralized configuration (SSOT - Single Source of Truth)
	appConfig := config.Load()
	serverCfg := appConfig.Server

	port := strconv.Itoa(serverCfg.Port)

	log.Printf("🎮 Config: %dms tick, %d players max, %ds matches",
		appConfig.Simulation.TickIntervalMs, appConfig.Simulation.MaxPlayers,
		appConfig.Simulation.MatchDurationMs/1000)
	if serverCfg.Production {
		log.Println("🔐 Production mode: test_ tokens disabled")
	} else {
		log.Println("⚠️ Dev mode: test_ tokens accepted (set NODE_ENV=production to disable)")
	}

	// Bake arena geometry from the map asset
	geo, err := arena.Load(appConfig.Arena)
	if err != nil {
		log.Fatalf("❌ Arena load failed: %v", err)
	}

	// Open match history storage when configured
	var store game.Store
	var db *storage.DB
	if appConfig.Storage.DatabaseURL != "" {
		db, err = storage.Open(appConfig.Storage.DatabaseURL)
		if err != nil {
			log.Fatalf("❌ Storage open failed: %v", err)
		}
		store = db
		log.Printf("💾 Match history: %s", appConfig.Storage.DatabaseURL)
	} else {
		log.Println("⚠️ DATABASE_URL not set - match history disabled")
	}

	// Token verification: external identity service, or test_ tokens only
	var checker identity.KeyChecker
	if appConfig.Identity.URL != "" {
		checker = identity.NewClient(appConfig.Identity)
		log.Printf("🔐 Identity service: %s", appConfig.Identity.URL)
	} else {
		log.Println("⚠️ IDENTITY_URL not set - accepting test_ tokens only")
	}
	verifier := identity.NewVerifier(checker, appConfig.Identity, serverCfg.Production)

	// Settlement notifications for the betting pipeline
	var settle game.Settlement
	var notifier *settlement.Notifier
	if appConfig.Settlement.URL != "" {
		notifier = settlement.New(appConfig.Settlement)
		notifier.Start()
		settle = notifier
		log.Printf("💰 Settlement service: %s", appConfig.Settlement.URL)
	} else {
		log.Println("⚠️ SETTLEMENT_URL not set - settlement notifications disabled")
	}

	// Event journal
	var eventLog *game.EventLog
	if serverCfg.JournalPath != "" {
		eventLog = game.NewEventLog()
		if err := eventLog.Start(serverCfg.JournalPath); err != nil {
			log.Printf("⚠️ Event journal disabled: %v", err)
			eventLog = nil
		} else {
			log.Printf("📝 Event journal: %s", serverCfg.JournalPath)
		}
	}

	// The hub doubles as the engine's event sink, so it exists first
	hub := api.NewWebSocketHub()

	engine := game.NewEngine(game.EngineConfig{
		Simulation: appConfig.Simulation,
		Bots:       appConfig.Bots,
		Geometry:   geo,
		Sink:       hub,
		Store:      store,
		Settlement: settle,
		EventLog:   eventLog,
	})
	watchdog := api.NewTickWatchdog(appConfig.Simulation.TickInterval())
	engine.OnTickDuration = func(d time.Duration) {
		api.RecordTick(d)
		watchdog.Observe(d)
	}

	// Start debug server
	debugCfg := api.DefaultObservabilityConfig()
	if os.Getenv("DISABLE_DEBUG_SERVER") != "true" {
		if err := api.StartDebugServer(debugCfg); err != nil {
			log.Printf("⚠️ Debug server disabled: %v", err)
		}
	}

	server := api.NewServer(engine, verifier, hub, appConfig.RateLimit)

	// Start game engine
	engine.Start()
	log.Println("✅ Game Engine started")

	// Start API server in goroutine
	go func() {
		addr := ":" + port
		log.Printf("🌐 API server on http://localhost%s", addr)
		log.Printf("🔫 Agent API: http://localhost%s/api/shooter/status", addr)
		log.Printf("📱 Spectator WS: ws://localhost%s/ws", addr)

		if err := server.Start(addr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	engine.Stop()
	server.Stop()
	verifier.Stop()
	if notifier != nil {
		notifier.Stop()
	}
	if eventLog != nil {
		eventLog.Stop()
	}
	if db != nil {
		db.Close()
	}
	log.Println("👋 Goodbye!")
}
