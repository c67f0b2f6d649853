// Package guard implements the AI-call admission layer of spec.md §4.6: a per-key TTL cache
// plus a sliding-window rate limiter, wrapping compute->cache->fallback.
//
// Grounded on the teacher's infra/limits per-venue weight limiter pattern (a bounded, mutex-
// guarded counter) generalized here into the append-only monotonic-timestamp deque spec.md §9
// names explicitly ("a deque protected by a mutex"); the cache layer reuses internal/cache.
package guard

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sawpanic/controlplane/internal/cache"
	"github.com/sawpanic/controlplane/internal/telemetry"
)

// Guard is process-wide state: the cache (C6's TTL store) and the sliding-window rate limiter.
// Per spec.md §4.6, single-flight per key is explicitly NOT guaranteed here — callers that need
// at-most-one-compute-per-key (the composite DAG runner, C11) wrap externally.
type Guard struct {
	cache cache.Cache
	tel   *telemetry.Telemetry

	mu      sync.Mutex
	windows map[string][]time.Time
	now     func() time.Time
}

func New(c cache.Cache, tel *telemetry.Telemetry) *Guard {
	return &Guard{cache: c, tel: tel, windows: make(map[string][]time.Time), now: time.Now}
}

// AnalyzeInput bundles the compute/fallback closures and tuning for a single guarded call.
type AnalyzeInput struct {
	CacheKey string
	// RateKey scopes the sliding-window budget. Defaults to CacheKey when empty; callers
	// that want one shared budget across many distinct cache keys (e.g. one quota per
	// prediction unique-key, shared by every candidate feature snapshot) set it explicitly.
	RateKey         string
	Compute         func(ctx context.Context) (interface{}, error)
	Fallback        func(ctx context.Context) interface{}
	TTL             time.Duration
	RateLimitPerMin int
}

// AnalyzeResult reports which path was taken, per spec.md §4.6.
type AnalyzeResult struct {
	Value       interface{}
	CacheHit    bool
	RateLimited bool
	FallbackUsed bool
}

// Analyze implements spec.md §4.6's three-step flow: cache hit, sliding-window admission,
// then compute with a fallback on rate-limit or compute failure.
func (g *Guard) Analyze(ctx context.Context, in AnalyzeInput) (AnalyzeResult, error) {
	if raw, hit, err := g.cache.Get(ctx, in.CacheKey); err == nil && hit {
		var v interface{}
		if err := json.Unmarshal(raw, &v); err == nil {
			g.tel.Metrics.CacheHits.WithLabelValues("ai_guard").Inc()
			return AnalyzeResult{Value: v, CacheHit: true}, nil
		}
	}
	g.tel.Metrics.CacheMisses.WithLabelValues("ai_guard").Inc()

	rateKey := in.RateKey
	if rateKey == "" {
		rateKey = in.CacheKey
	}
	if g.admit(rateKey, in.RateLimitPerMin) {
		val, err := in.Compute(ctx)
		if err == nil {
			g.store(ctx, in.CacheKey, val, in.TTL)
			return AnalyzeResult{Value: val}, nil
		}
		fb := in.Fallback(ctx)
		g.store(ctx, in.CacheKey, fb, in.TTL)
		return AnalyzeResult{Value: fb, FallbackUsed: true}, nil
	}

	g.tel.Metrics.AIRateLimited.WithLabelValues(rateKey).Inc()
	fb := in.Fallback(ctx)
	g.store(ctx, in.CacheKey, fb, in.TTL)
	return AnalyzeResult{Value: fb, RateLimited: true}, nil
}

// admit prunes the minute window for key and records now() if under the per-minute cap.
func (g *Guard) admit(key string, limitPerMin int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	cutoff := now.Add(-60 * time.Second)
	w := g.windows[key]
	pruned := w[:0]
	for _, t := range w {
		if t.After(cutoff) {
			pruned = append(pruned, t)
		}
	}
	if len(pruned) >= limitPerMin {
		g.windows[key] = pruned
		return false
	}
	g.windows[key] = append(pruned, now)
	return true
}

func (g *Guard) store(ctx context.Context, key string, val interface{}, ttl time.Duration) {
	raw, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = g.cache.Set(ctx, key, raw, ttl)
}
