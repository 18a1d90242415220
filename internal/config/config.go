// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for all simulation and server settings.
//
// IMPORTANT: When changing values, only modify this file.
// All other parts of the codebase should reference these values.
package config

import (
	"os"
	"strconv"
	"time"
)

// =============================================================================
// ARENA CONFIGURATION
// =============================================================================

// ArenaConfig holds the world-space layout of the play area.
// The map asset is rescaled so its larger horizontal span equals Size.
type ArenaConfig struct {
	Size          float64 // World-space side length of the playable square
	FloorY        float64 // Y of the arena floor plane
	WallThickness float64 // Perimeter wall box thickness
	WallHeight    float64 // Perimeter wall box height
	MapPath       string  // Path to the glTF/GLB map asset ("" = perimeter-only fallback)
}

// DefaultArena returns the default arena configuration.
func DefaultArena() ArenaConfig {
	return ArenaConfig{
		Size:          60.0,
		FloorY:        0.0,
		WallThickness: 1.0,
		WallHeight:    6.0,
		MapPath:       "assets/arena.glb",
	}
}

// ArenaFromEnv returns arena configuration with environment variable overrides.
func ArenaFromEnv() ArenaConfig {
	cfg := DefaultArena()

	if s := getEnvFloat("ARENA_SIZE", 0); s > 0 {
		cfg.Size = s
	}
	if p := os.Getenv("ARENA_MAP_PATH"); p != "" {
		cfg.MapPath = p
	}

	return cfg
}

// =============================================================================
// SIMULATION CONFIGURATION
// =============================================================================

// SimulationConfig holds match pacing and player physics settings.
// Everything here is server-authoritative; clients cannot influence it.
type SimulationConfig struct {
	TickIntervalMs    int // Fixed simulation step (50ms = 20Hz)
	MatchDurationMs   int // Wall-clock cap on the active phase
	LobbyCountdownMs  int // Delay between 2nd join and match start
	ResultsDurationMs int // Frozen results display before the next lobby
	RespawnDelayMs    int // Death to respawn delay

	MaxPlayers int // Lobby capacity (agents + bots)
	MinPlayers int // Distinct joins required to arm the countdown
	MaxLives   int // Lives per player per match

	MovementSpeed    float64 // World units per second, shared by everyone
	PlayerRadius     float64 // Capsule radius
	PlayerHalfHeight float64 // Capsule cylindrical half height

	PickupRadius       float64 // Contact pickup distance
	MeleeRange         float64 // Knife reach
	InitialPickups     int     // Guns placed at match start
	MinRespawnDistance float64 // Respawn must be at least this far from the death spot
	MinSpawnSeparation float64 // Initial spawns are at least this far apart
}

// DefaultSimulation returns the default simulation configuration.
func DefaultSimulation() SimulationConfig {
	return SimulationConfig{
		TickIntervalMs:    50,
		MatchDurationMs:   180_000,
		LobbyCountdownMs:  15_000,
		ResultsDurationMs: 10_000,
		RespawnDelayMs:    3_000,

		MaxPlayers: 8,
		MinPlayers: 2,
		MaxLives:   3,

		MovementSpeed:    8.0,
		PlayerRadius:     0.5,
		PlayerHalfHeight: 0.9,

		PickupRadius:       1.2,
		MeleeRange:         2.2,
		InitialPickups:     5,
		MinRespawnDistance: 8.0,
		MinSpawnSeparation: 5.0,
	}
}

// Duration accessors so call sites never repeat the millisecond conversion.

func (c SimulationConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

func (c SimulationConfig) MatchDuration() time.Duration {
	return time.Duration(c.MatchDurationMs) * time.Millisecond
}

func (c SimulationConfig) LobbyCountdown() time.Duration {
	return time.Duration(c.LobbyCountdownMs) * time.Millisecond
}

func (c SimulationConfig) ResultsDuration() time.Duration {
	return time.Duration(c.ResultsDurationMs) * time.Millisecond
}

func (c SimulationConfig) RespawnDelay() time.Duration {
	return time.Duration(c.RespawnDelayMs) * time.Millisecond
}

// SimulationFromEnv returns simulation configuration with environment variable overrides.
func SimulationFromEnv() SimulationConfig {
	cfg := DefaultSimulation()

	if t := getEnvInt("TICK_INTERVAL_MS", 0); t > 0 {
		cfg.TickIntervalMs = t
	}
	if d := getEnvInt("MATCH_DURATION_MS", 0); d > 0 {
		cfg.MatchDurationMs = d
	}
	if c := getEnvInt("LOBBY_COUNTDOWN_MS", 0); c > 0 {
		cfg.LobbyCountdownMs = c
	}
	if r := getEnvInt("RESULTS_DURATION_MS", 0); r > 0 {
		cfg.ResultsDurationMs = r
	}
	if mp := getEnvInt("MAX_PLAYERS", 0); mp > 0 {
		cfg.MaxPlayers = mp
	}

	return cfg
}

// =============================================================================
// BOT CONFIGURATION
// =============================================================================

// BotConfig holds house-bot steering and pacing settings.
// Personality stat tables live with the brains; these are shared mechanics.
type BotConfig struct {
	FillTo int // Top the roster up to this many players with bots at countdown

	ObstacleLookahead      float64 // Clear-ray distance required ahead of a move
	KiteDist               float64 // Back off when an armed enemy is closer than this
	KnifeRushRadius        float64 // Unarmed bots charge enemies inside this radius
	StrafeChangeIntervalMs int     // Strafe direction toggle period
	WanderMinMs            int     // Wander heading lifetime lower bound
	WanderMaxMs            int     // Wander heading lifetime upper bound

	StuckCheckIntervalMs   int     // Position delta sampling period
	StuckDistanceThreshold float64 // Below this delta the bot counts as stuck
	StuckTimeThresholdMs   int     // Stuck this long triggers recovery
	NoLOSStandoffMs        int     // Blocked line of sight this long triggers a flank
	AvoidCacheMs           int     // Steering decision reuse window
}

// DefaultBots returns the default bot configuration.
func DefaultBots() BotConfig {
	return BotConfig{
		FillTo: 6,

		ObstacleLookahead:      3.0,
		KiteDist:               4.0,
		KnifeRushRadius:        9.0,
		StrafeChangeIntervalMs: 1_400,
		WanderMinMs:            1_500,
		WanderMaxMs:            3_500,

		StuckCheckIntervalMs:   400,
		StuckDistanceThreshold: 0.35,
		StuckTimeThresholdMs:   1_200,
		NoLOSStandoffMs:        1_600,
		AvoidCacheMs:           400,
	}
}

// BotsFromEnv returns bot configuration with environment variable overrides.
func BotsFromEnv() BotConfig {
	cfg := DefaultBots()

	if n := getEnvInt("BOT_FILL_TO", -1); n >= 0 {
		cfg.FillTo = n
	}

	return cfg
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int
	Production  bool   // NODE_ENV=production disables test_ token shortcuts
	JournalPath string // Event journal JSONL path ("" = disabled)
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:        3000,
		Production:  false,
		JournalPath: "",
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	cfg.Production = os.Getenv("NODE_ENV") == "production"
	if jp := os.Getenv("EVENT_JOURNAL_PATH"); jp != "" {
		cfg.JournalPath = jp
	}

	return cfg
}

// =============================================================================
// RATE LIMIT CONFIGURATION
// =============================================================================

// RateLimitConfig controls the per-token action throttle.
type RateLimitConfig struct {
	ActionsPerSecond int // Sliding-window budget per token
	Burst            int // Token bucket burst size
	EntryTTLSeconds  int // Idle limiter entries expire after this
}

// DefaultRateLimit returns the default rate limit configuration.
func DefaultRateLimit() RateLimitConfig {
	return RateLimitConfig{
		ActionsPerSecond: 10,
		Burst:            10,
		EntryTTLSeconds:  2,
	}
}

// RateLimitFromEnv returns rate limit configuration with environment variable overrides.
func RateLimitFromEnv() RateLimitConfig {
	cfg := DefaultRateLimit()

	if a := getEnvInt("ACTIONS_PER_SECOND", 0); a > 0 {
		cfg.ActionsPerSecond = a
		cfg.Burst = a
	}

	return cfg
}

// =============================================================================
// IDENTITY SERVICE CONFIGURATION
// =============================================================================

// IdentityConfig holds settings for the external token verification service.
type IdentityConfig struct {
	URL               string // Base URL ("" = test tokens only)
	TimeoutMs         int    // Network deadline per verify call
	SuccessTTLSeconds int    // Verified tokens cached this long
	FailureTTLSeconds int    // Rejected tokens cached this long
}

// DefaultIdentity returns the default identity service configuration.
func DefaultIdentity() IdentityConfig {
	return IdentityConfig{
		URL:               "",
		TimeoutMs:         5_000,
		SuccessTTLSeconds: 60,
		FailureTTLSeconds: 300,
	}
}

func (c IdentityConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c IdentityConfig) SuccessTTL() time.Duration {
	return time.Duration(c.SuccessTTLSeconds) * time.Second
}

func (c IdentityConfig) FailureTTL() time.Duration {
	return time.Duration(c.FailureTTLSeconds) * time.Second
}

// IdentityFromEnv returns identity configuration with environment variable overrides.
func IdentityFromEnv() IdentityConfig {
	cfg := DefaultIdentity()

	if u := os.Getenv("IDENTITY_URL"); u != "" {
		cfg.URL = u
	}
	if t := getEnvInt("IDENTITY_TIMEOUT_MS", 0); t > 0 {
		cfg.TimeoutMs = t
	}

	return cfg
}

// =============================================================================
// SETTLEMENT SERVICE CONFIGURATION
// =============================================================================

// SettlementConfig holds settings for the external betting/settlement pipeline.
type SettlementConfig struct {
	URL       string // Base URL ("" = notifications disabled)
	QueueSize int    // Pending notification buffer (drop newest beyond this)
}

// DefaultSettlement returns the default settlement configuration.
func DefaultSettlement() SettlementConfig {
	return SettlementConfig{
		URL:       "",
		QueueSize: 100,
	}
}

// SettlementFromEnv returns settlement configuration with environment variable overrides.
func SettlementFromEnv() SettlementConfig {
	cfg := DefaultSettlement()

	if u := os.Getenv("SETTLEMENT_URL"); u != "" {
		cfg.URL = u
	}

	return cfg
}

// =============================================================================
// STORAGE CONFIGURATION
// =============================================================================

// StorageConfig holds persistence settings.
// An empty DatabaseURL disables persistence entirely; the simulation is
// unaffected either way.
type StorageConfig struct {
	DatabaseURL string
}

// StorageFromEnv returns storage configuration from the environment.
func StorageFromEnv() StorageConfig {
	return StorageConfig{
		DatabaseURL: os.Getenv("DATABASE_URL"),
	}
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Arena      ArenaConfig
	Simulation SimulationConfig
	Bots       BotConfig
	Server     ServerConfig
	RateLimit  RateLimitConfig
	Identity   IdentityConfig
	Settlement SettlementConfig
	Storage    StorageConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Arena:      ArenaFromEnv(),
		Simulation: SimulationFromEnv(),
		Bots:       BotsFromEnv(),
		Server:     ServerFromEnv(),
		RateLimit:  RateLimitFromEnv(),
		Identity:   IdentityFromEnv(),
		Settlement: SettlementFromEnv(),
		Storage:    StorageFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
