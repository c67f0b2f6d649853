// Package telemetry wires structured logging and Prometheus metrics for the control plane.
//
// Grounded on the teacher's zerolog call-chain style (internal/data/venue/binance's
// log.Debug().Str(...).Msg(...) usage) and its metrics package convention of registering
// against an explicit registry rather than the global default, so multiple control-plane
// instances can coexist in tests.
package telemetry

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Telemetry bundles a component-scoped logger and the shared metrics registry.
type Telemetry struct {
	Log     zerolog.Logger
	Metrics *Metrics
}

// New builds a Telemetry rooted at the given registry. Pass a fresh
// prometheus.NewRegistry() per process (or per test) to avoid collector collisions.
func New(reg *prometheus.Registry, component string) *Telemetry {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("component", component).Logger()
	return &Telemetry{Log: logger, Metrics: NewMetrics(reg)}
}

// With returns a derived Telemetry scoped to a sub-component, sharing the same metrics.
func (t *Telemetry) With(sub string) *Telemetry {
	return &Telemetry{Log: t.Log.With().Str("sub", sub).Logger(), Metrics: t.Metrics}
}

// Metrics holds every counter/gauge/histogram the control plane's subsystems record into.
type Metrics struct {
	VenueRequests      *prometheus.CounterVec
	VenueRetries       *prometheus.CounterVec
	VenueWAFBlocks     *prometheus.CounterVec
	CacheHits          *prometheus.CounterVec
	CacheMisses        *prometheus.CounterVec
	AIRateLimited      *prometheus.CounterVec
	TriggerFired       *prometheus.CounterVec
	AICallsTotal       *prometheus.CounterVec
	GateDecisions      *prometheus.CounterVec
	JobsEnqueued       *prometheus.CounterVec
	BotTransitions     *prometheus.CounterVec
	NewsBlackoutActive *prometheus.GaugeVec
	RequestLatency     *prometheus.HistogramVec
}

// NewMetrics registers all control-plane collectors against reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		VenueRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cp_venue_requests_total", Help: "Exchange REST requests issued, by venue and outcome.",
		}, []string{"venue", "outcome"}),
		VenueRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cp_venue_retries_total", Help: "Exchange REST retries, by venue.",
		}, []string{"venue"}),
		VenueWAFBlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cp_venue_waf_blocks_total", Help: "WAF/non-JSON blocks detected, by venue.",
		}, []string{"venue"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cp_cache_hits_total", Help: "Cache hits, by cache name.",
		}, []string{"cache"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cp_cache_misses_total", Help: "Cache misses, by cache name.",
		}, []string{"cache"}),
		AIRateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cp_ai_rate_limited_total", Help: "AI guard calls rejected by the sliding-window limiter.",
		}, []string{"key"}),
		TriggerFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cp_trigger_fired_total", Help: "Refresh triggers fired, by reason.",
		}, []string{"timeframe", "reason"}),
		AICallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cp_ai_calls_total", Help: "AI explainer invocations, by outcome.",
		}, []string{"outcome"}),
		GateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cp_gate_decisions_total", Help: "Quality/license gate decisions, by gate and reason.",
		}, []string{"gate", "reason"}),
		JobsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cp_jobs_enqueued_total", Help: "Bot run jobs enqueued, by dedup outcome.",
		}, []string{"queued"}),
		BotTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cp_bot_transitions_total", Help: "Bot FSM transitions, by target status.",
		}, []string{"status"}),
		NewsBlackoutActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cp_news_blackout_active", Help: "1 if a news blackout window is active for the currency.",
		}, []string{"currency"}),
		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "cp_request_latency_seconds", Help: "Exchange request latency, by venue.",
			Buckets: prometheus.DefBuckets,
		}, []string{"venue"}),
	}
	reg.MustRegister(m.VenueRequests, m.VenueRetries, m.VenueWAFBlocks, m.CacheHits, m.CacheMisses,
		m.AIRateLimited, m.TriggerFired, m.AICallsTotal, m.GateDecisions, m.JobsEnqueued,
		m.BotTransitions, m.NewsBlackoutActive, m.RequestLatency)
	return m
}
