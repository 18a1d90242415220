package identity

import (
	"context"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"shooter-arena/internal/config"
)

const (
	// TestKeyPrefix marks keys that bypass verification outside production.
	TestKeyPrefix = "test_"

	// At most one failure log line per key within this window.
	failLogWindow = time.Minute

	sweepInterval = 5 * time.Minute
)

// KeyChecker resolves api keys against the identity service.
type KeyChecker interface {
	CheckKey(ctx context.Context, apiKey string) (Agent, error)
}

// Verifier answers "who holds this api key" without hammering the identity
// service: verified keys are cached for a minute, rejected ones for five,
// so a misbehaving agent burns its own cache entry instead of the upstream.
type Verifier struct {
	checker    KeyChecker
	production bool
	successTTL time.Duration
	failureTTL time.Duration

	verdicts sync.Map // map[string]verdict
	lastLog  sync.Map // map[string]time.Time

	stopChan chan struct{}
	stopOnce sync.Once

	// Stats for monitoring
	hits   atomic.Uint64
	misses atomic.Uint64
	checks atomic.Uint64
}

// verdict is one cached answer, positive or negative.
type verdict struct {
	agent     Agent
	valid     bool
	fetchedAt time.Time
}

// NewVerifier builds a verifier over the given checker. A nil checker means
// no identity service is configured and only test keys can pass.
func NewVerifier(checker KeyChecker, cfg config.IdentityConfig, production bool) *Verifier {
	v := &Verifier{
		checker:    checker,
		production: production,
		successTTL: cfg.SuccessTTL(),
		failureTTL: cfg.FailureTTL(),
		stopChan:   make(chan struct{}),
	}

	// Expiry sweep keeps one-shot spam keys from accumulating
	go v.sweepLoop()

	return v
}

// Stop halts the background sweep goroutine.
func (v *Verifier) Stop() {
	v.stopOnce.Do(func() {
		close(v.stopChan)
	})
}

// Verify resolves an api key to its registered agent. The second return is
// false for unknown keys and for identity-service failures alike; either
// verdict is cached so retry storms stay local.
func (v *Verifier) Verify(ctx context.Context, apiKey string) (Agent, bool) {
	if apiKey == "" {
		return Agent{}, false
	}

	// Test keys skip the round trip outside production.
	if !v.production && strings.HasPrefix(apiKey, TestKeyPrefix) {
		name := strings.TrimPrefix(apiKey, TestKeyPrefix)
		if name == "" {
			return Agent{}, false
		}
		return Agent{Name: name}, true
	}

	if cached, ok := v.verdicts.Load(apiKey); ok {
		ver := cached.(verdict)
		if time.Since(ver.fetchedAt) < v.ttlFor(ver.valid) {
			v.hits.Add(1)
			return ver.agent, ver.valid
		}
		v.verdicts.Delete(apiKey)
	}
	v.misses.Add(1)

	if v.checker == nil {
		v.cacheFailure(apiKey)
		v.logThrottled(apiKey, "no identity service configured, rejecting key %s", maskKey(apiKey))
		return Agent{}, false
	}

	v.checks.Add(1)
	agent, err := v.checker.CheckKey(ctx, apiKey)
	if err != nil {
		v.cacheFailure(apiKey)
		v.logThrottled(apiKey, "identity check failed for key %s: %v", maskKey(apiKey), err)
		return Agent{}, false
	}

	v.verdicts.Store(apiKey, verdict{agent: agent, valid: true, fetchedAt: time.Now()})
	return agent, true
}

func (v *Verifier) ttlFor(valid bool) time.Duration {
	if valid {
		return v.successTTL
	}
	return v.failureTTL
}

func (v *Verifier) cacheFailure(apiKey string) {
	v.verdicts.Store(apiKey, verdict{fetchedAt: time.Now()})
}

// logThrottled emits at most one failure line per key per minute.
func (v *Verifier) logThrottled(apiKey, format string, args ...any) {
	now := time.Now()
	if last, ok := v.lastLog.Load(apiKey); ok && now.Sub(last.(time.Time)) < failLogWindow {
		return
	}
	v.lastLog.Store(apiKey, now)
	log.Printf("⚠️ "+format, args...)
}

// sweepLoop periodically drops expired verdicts and stale throttle stamps.
func (v *Verifier) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-v.stopChan:
			return
		case <-ticker.C:
			v.sweep(time.Now())
		}
	}
}

func (v *Verifier) sweep(now time.Time) {
	v.verdicts.Range(func(key, value any) bool {
		ver := value.(verdict)
		if now.Sub(ver.fetchedAt) >= v.ttlFor(ver.valid) {
			v.verdicts.Delete(key)
		}
		return true
	})
	v.lastLog.Range(func(key, value any) bool {
		if now.Sub(value.(time.Time)) >= failLogWindow {
			v.lastLog.Delete(key)
		}
		return true
	})
}

// Stats holds verifier cache metrics.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Checks    uint64 `json:"checks"`
	CacheSize int    `json:"cache_size"`
}

// Stats returns cache effectiveness counters.
func (v *Verifier) Stats() Stats {
	var size int
	v.verdicts.Range(func(_, _ any) bool {
		size++
		return true
	})

	return Stats{
		Hits:      v.hits.Load(),
		Misses:    v.misses.Load(),
		Checks:    v.checks.Load(),
		CacheSize: size,
	}
}

// maskKey keeps whole credentials out of the logs.
func maskKey(apiKey string) string {
	return apiKey[:min(8, len(apiKey))] + "..."
}
