// Package strategy implements the local strategy registry of spec.md §4.12: built-in handlers
// (regime_gate, signal_filter), a python-sidecar dispatch path wrapped in a circuit breaker with
// shadow mode and fallback, and deterministic config/snapshot hashing for test invariants.
//
// Grounded directly on the teacher's infra/breakers/breakers.go Breaker wrapper (a thin
// sony/gobreaker wrapper exposing Execute(fn)) reused here unmodified in shape for the sidecar
// client, and on internal/domain/gates' coded-reason style for the built-in handlers.
package strategy

import (
	"context"
	"fmt"
	"time"

	cb "github.com/sony/gobreaker"

	"github.com/sawpanic/controlplane/internal/composite"
	"github.com/sawpanic/controlplane/internal/domain/canon"
)

// Engine distinguishes where a strategy definition executes.
type Engine string

const (
	EngineTS     Engine = "ts"
	EnginePython Engine = "python"
)

// Definition is a registered strategy's static configuration.
type Definition struct {
	StrategyType string
	Engine       Engine
	Fallback     string // fallback strategy type, used only for python engine
	ShadowMode   bool
}

// Reason codes for regime_gate and signal_filter, per spec.md §4.12.
const (
	ReasonRegimeUnknown         = "regime_unknown"
	ReasonRegimeStateNotAllowed = "regime_state_not_allowed"
	ReasonRegimeConfidenceLow   = "regime_confidence_low"
	ReasonEMAStackConflict      = "ema_stack_conflict"
	ReasonSignalStackConflict   = "signal_stack_conflict"

	ReasonShadowModeNotEnforced  = "shadow_mode_not_enforced"
	ReasonPythonUnavailable      = "python_unavailable_no_fallback"
)

// RegimeGateInput is the context regime_gate evaluates against.
type RegimeGateInput struct {
	RegimeState     string
	AllowStates      []string
	Confidence       float64
	MinConfidence    float64
	EMAStackAligned  bool // true if EMA stack agrees with regime
	SignalStackAligned bool // true if EMA stack agrees with current signal
}

// RegimeGate implements spec.md §4.12's regime_gate built-in handler.
func RegimeGate(in RegimeGateInput) composite.HandlerResult {
	if in.RegimeState == "" {
		return blocked(ReasonRegimeUnknown)
	}
	allowed := false
	for _, s := range in.AllowStates {
		if s == in.RegimeState {
			allowed = true
			break
		}
	}
	if !allowed {
		return blocked(ReasonRegimeStateNotAllowed)
	}
	if in.Confidence < in.MinConfidence {
		return blocked(ReasonRegimeConfidenceLow)
	}
	if !in.EMAStackAligned {
		return blocked(ReasonEMAStackConflict)
	}
	if !in.SignalStackAligned {
		return blocked(ReasonSignalStackConflict)
	}
	return composite.HandlerResult{Allow: true, Score: 100}
}

// SignalFilterInput is the context signal_filter evaluates against.
type SignalFilterInput struct {
	Tags                  []string
	AllowTags             []string // empty means allow all
	BlockTags             []string
	VolZ                  float64
	MaxVolZ               float64
	RangeState            bool
	AllowRangeWhenTrendTag bool
	HasTrendTag            bool
}

// SignalFilter implements spec.md §4.12's signal_filter built-in handler.
func SignalFilter(in SignalFilterInput) composite.HandlerResult {
	for _, t := range in.Tags {
		for _, b := range in.BlockTags {
			if t == b {
				return blockedWithScore("tag_blocked", scoreForVolZ(in.VolZ))
			}
		}
	}
	if len(in.AllowTags) > 0 {
		ok := false
		for _, t := range in.Tags {
			for _, a := range in.AllowTags {
				if t == a {
					ok = true
				}
			}
		}
		if !ok {
			return blockedWithScore("tag_not_allowlisted", scoreForVolZ(in.VolZ))
		}
	}
	if absf(in.VolZ) > in.MaxVolZ {
		return blockedWithScore("vol_z_exceeds_max", scoreForVolZ(in.VolZ))
	}
	if in.RangeState && !(in.AllowRangeWhenTrendTag && in.HasTrendTag) {
		return blockedWithScore("range_state_blocked", scoreForVolZ(in.VolZ))
	}
	return composite.HandlerResult{Allow: true, Score: scoreForVolZ(in.VolZ)}
}

// scoreForVolZ implements spec.md §4.12's "Score = 70 - 10*max(0,|volZ|-1), clamped 0-30 when
// blocked" — when allowed the raw 70-based score is returned; blockedWithScore clamps to [0,30].
func scoreForVolZ(volZ float64) float64 {
	s := 70 - 10*max64(0, absf(volZ)-1)
	return s
}

func blockedWithScore(reason string, rawScore float64) composite.HandlerResult {
	score := rawScore
	if score > 30 {
		score = 30
	}
	if score < 0 {
		score = 0
	}
	return composite.HandlerResult{Allow: false, Score: score, ReasonCodes: []string{reason}}
}

func blocked(reason string) composite.HandlerResult {
	return composite.HandlerResult{Allow: false, Score: 0, ReasonCodes: []string{reason}}
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func max64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// BuiltinHandler is a function-valued local handler for ts-engine strategies.
type BuiltinHandler func(ctx context.Context, signal string, confidence float64, featureSnapshot interface{}) (composite.HandlerResult, error)

// SidecarClient dispatches a strategy evaluation to the python sidecar over some bounded
// transport (HTTP in production); tests and the fallback path substitute a stub.
type SidecarClient interface {
	Evaluate(ctx context.Context, strategyType string, signal string, confidence float64, featureSnapshot interface{}) (composite.HandlerResult, error)
}

// Breaker wraps a sony/gobreaker.CircuitBreaker, reused verbatim in shape from the teacher's
// infra/breakers/breakers.go.
type Breaker struct{ cb *cb.CircuitBreaker }

// NewBreaker opens after K consecutive failures and stays open for cooldown.
func NewBreaker(name string, consecutiveFailures int, cooldown time.Duration) *Breaker {
	st := cb.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = cooldown
	st.ReadyToTrip = func(counts cb.Counts) bool {
		return int(counts.ConsecutiveFailures) >= consecutiveFailures
	}
	return &Breaker{cb: cb.NewCircuitBreaker(st)}
}

func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	return b.cb.Execute(fn)
}

// Registry holds built-in handlers plus the sidecar dispatch path for python-engine strategies.
type Registry struct {
	builtins map[string]BuiltinHandler
	defs     map[string]Definition
	sidecar  SidecarClient
	breaker  *Breaker
}

func NewRegistry(sidecar SidecarClient, breaker *Breaker) *Registry {
	return &Registry{builtins: make(map[string]BuiltinHandler), defs: make(map[string]Definition), sidecar: sidecar, breaker: breaker}
}

func (r *Registry) RegisterBuiltin(strategyType string, h BuiltinHandler) {
	r.builtins[strategyType] = h
}

func (r *Registry) RegisterDefinition(d Definition) {
	r.defs[d.StrategyType] = d
}

// Evaluate implements composite.LocalHandler, dispatching to either a ts-engine builtin or the
// python sidecar per the registered Definition, with breaker, shadow mode, and fallback per
// spec.md §4.12.
func (r *Registry) Evaluate(ctx context.Context, strategyType string, signal string, confidence float64, featureSnapshot interface{}) (composite.HandlerResult, error) {
	def, ok := r.defs[strategyType]
	if !ok {
		if h, ok := r.builtins[strategyType]; ok {
			return h(ctx, signal, confidence, featureSnapshot)
		}
		return composite.HandlerResult{}, fmt.Errorf("strategy: unregistered strategy type %q", strategyType)
	}

	if def.Engine == EngineTS {
		h, ok := r.builtins[strategyType]
		if !ok {
			return composite.HandlerResult{}, fmt.Errorf("strategy: ts engine %q has no registered builtin", strategyType)
		}
		return h(ctx, signal, confidence, featureSnapshot)
	}

	return r.evaluatePython(ctx, def, signal, confidence, featureSnapshot)
}

func (r *Registry) evaluatePython(ctx context.Context, def Definition, signal string, confidence float64, featureSnapshot interface{}) (composite.HandlerResult, error) {
	pythonResult, pythonErr := r.callSidecar(ctx, def.StrategyType, signal, confidence, featureSnapshot)

	fallbackType := def.Fallback
	if fallbackType == "" {
		if _, ok := r.builtins[def.StrategyType]; ok {
			fallbackType = def.StrategyType
		}
	}

	if def.ShadowMode {
		fb, err := r.runFallback(ctx, fallbackType, signal, confidence, featureSnapshot)
		if err != nil {
			return fb, err
		}
		fb.ReasonCodes = append(fb.ReasonCodes, ReasonShadowModeNotEnforced)
		if fb.Meta == nil {
			fb.Meta = make(map[string]interface{})
		}
		if pythonErr == nil {
			fb.Meta["pythonDecision"] = pythonResult
		} else {
			fb.Meta["pythonDecision"] = pythonErr.Error()
		}
		return fb, nil
	}

	if pythonErr == nil {
		return pythonResult, nil
	}

	if fallbackType == "" {
		return composite.HandlerResult{Allow: false, ReasonCodes: []string{ReasonPythonUnavailable}}, nil
	}
	return r.runFallback(ctx, fallbackType, signal, confidence, featureSnapshot)
}

func (r *Registry) runFallback(ctx context.Context, fallbackType string, signal string, confidence float64, featureSnapshot interface{}) (composite.HandlerResult, error) {
	if fallbackType == "" {
		return composite.HandlerResult{Allow: false, ReasonCodes: []string{ReasonPythonUnavailable}}, nil
	}
	h, ok := r.builtins[fallbackType]
	if !ok {
		return composite.HandlerResult{Allow: false, ReasonCodes: []string{ReasonPythonUnavailable}}, nil
	}
	return h(ctx, signal, confidence, featureSnapshot)
}

func (r *Registry) callSidecar(ctx context.Context, strategyType, signal string, confidence float64, featureSnapshot interface{}) (composite.HandlerResult, error) {
	if r.sidecar == nil {
		return composite.HandlerResult{}, fmt.Errorf("strategy: no sidecar client configured")
	}
	if r.breaker == nil {
		return r.sidecar.Evaluate(ctx, strategyType, signal, confidence, featureSnapshot)
	}
	out, err := r.breaker.Execute(func() (interface{}, error) {
		return r.sidecar.Evaluate(ctx, strategyType, signal, confidence, featureSnapshot)
	})
	if err != nil {
		return composite.HandlerResult{}, err
	}
	return out.(composite.HandlerResult), nil
}

// ConfigHash and SnapshotHash compute stable fingerprints over canonicalized inputs so identical
// inputs reproduce identical outputs, per spec.md §4.12's determinism requirement.
func ConfigHash(def Definition) string {
	return canon.HashStableObject(def)
}

func SnapshotHash(featureSnapshot interface{}) string {
	return canon.HashStableObject(featureSnapshot)
}
