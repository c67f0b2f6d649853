package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sawpanic/controlplane/internal/composite"
)

func TestRegimeGateBlocksUnknownRegime(t *testing.T) {
	r := RegimeGate(RegimeGateInput{})
	if r.Allow || r.ReasonCodes[0] != ReasonRegimeUnknown {
		t.Fatalf("expected regime_unknown, got %+v", r)
	}
}

func TestRegimeGateAllowsAlignedState(t *testing.T) {
	in := RegimeGateInput{
		RegimeState: "trending", AllowStates: []string{"trending"},
		Confidence: 80, MinConfidence: 50, EMAStackAligned: true, SignalStackAligned: true,
	}
	r := RegimeGate(in)
	if !r.Allow {
		t.Fatalf("expected allow, got %+v", r)
	}
}

func TestRegimeGateBlocksEMAConflict(t *testing.T) {
	in := RegimeGateInput{
		RegimeState: "trending", AllowStates: []string{"trending"},
		Confidence: 80, MinConfidence: 50, EMAStackAligned: false,
	}
	r := RegimeGate(in)
	if r.Allow || r.ReasonCodes[0] != ReasonEMAStackConflict {
		t.Fatalf("expected ema_stack_conflict, got %+v", r)
	}
}

func TestSignalFilterBlocksOnMaxVolZ(t *testing.T) {
	in := SignalFilterInput{VolZ: 3.0, MaxVolZ: 2.0}
	r := SignalFilter(in)
	if r.Allow || r.Score < 0 || r.Score > 30 {
		t.Fatalf("expected blocked and clamped score, got %+v", r)
	}
}

func TestSignalFilterAllowsRangeStateWithTrendTagOverride(t *testing.T) {
	in := SignalFilterInput{RangeState: true, AllowRangeWhenTrendTag: true, HasTrendTag: true, MaxVolZ: 5}
	r := SignalFilter(in)
	if !r.Allow {
		t.Fatalf("expected range-state override to allow, got %+v", r)
	}
}

func TestSignalFilterBlocksRangeStateWithoutOverride(t *testing.T) {
	in := SignalFilterInput{RangeState: true, MaxVolZ: 5}
	r := SignalFilter(in)
	if r.Allow {
		t.Fatal("expected range state to block without override")
	}
}

type stubSidecar struct {
	result composite.HandlerResult
	err    error
	calls  int
}

func (s *stubSidecar) Evaluate(ctx context.Context, strategyType, signal string, confidence float64, snap interface{}) (composite.HandlerResult, error) {
	s.calls++
	return s.result, s.err
}

func TestRegistryDispatchesTSEngineToBuiltin(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.RegisterBuiltin("signal_filter", func(ctx context.Context, signal string, confidence float64, snap interface{}) (composite.HandlerResult, error) {
		return composite.HandlerResult{Allow: true, Score: 70}, nil
	})
	r.RegisterDefinition(Definition{StrategyType: "signal_filter", Engine: EngineTS})
	res, err := r.Evaluate(context.Background(), "signal_filter", "long", 50, nil)
	if err != nil || !res.Allow {
		t.Fatalf("expected ts dispatch to builtin, got %+v err=%v", res, err)
	}
}

func TestRegistryPythonSuccessReturnsSidecarResult(t *testing.T) {
	sidecar := &stubSidecar{result: composite.HandlerResult{Allow: true, Score: 90}}
	r := NewRegistry(sidecar, NewBreaker("test", 3, time.Minute))
	r.RegisterDefinition(Definition{StrategyType: "py_strat", Engine: EnginePython})
	res, err := r.Evaluate(context.Background(), "py_strat", "long", 50, nil)
	if err != nil || res.Score != 90 {
		t.Fatalf("expected sidecar result passed through, got %+v err=%v", res, err)
	}
}

func TestRegistryPythonFailureFallsBackToRegisteredStrategy(t *testing.T) {
	sidecar := &stubSidecar{err: errors.New("sidecar down")}
	r := NewRegistry(sidecar, NewBreaker("test", 3, time.Minute))
	r.RegisterBuiltin("fallback_strat", func(ctx context.Context, signal string, confidence float64, snap interface{}) (composite.HandlerResult, error) {
		return composite.HandlerResult{Allow: true, Score: 50}, nil
	})
	r.RegisterDefinition(Definition{StrategyType: "py_strat", Engine: EnginePython, Fallback: "fallback_strat"})
	res, err := r.Evaluate(context.Background(), "py_strat", "long", 50, nil)
	if err != nil || res.Score != 50 {
		t.Fatalf("expected fallback result, got %+v err=%v", res, err)
	}
}

func TestRegistryPythonFailureNoFallbackReturnsCodedBlock(t *testing.T) {
	sidecar := &stubSidecar{err: errors.New("sidecar down")}
	r := NewRegistry(sidecar, NewBreaker("test", 3, time.Minute))
	r.RegisterDefinition(Definition{StrategyType: "py_strat", Engine: EnginePython})
	res, err := r.Evaluate(context.Background(), "py_strat", "long", 50, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Allow || res.ReasonCodes[0] != ReasonPythonUnavailable {
		t.Fatalf("expected python_unavailable_no_fallback, got %+v", res)
	}
}

func TestRegistryShadowModeEnforcesFallbackButRecordsPython(t *testing.T) {
	sidecar := &stubSidecar{result: composite.HandlerResult{Allow: true, Score: 99}}
	r := NewRegistry(sidecar, NewBreaker("test", 3, time.Minute))
	r.RegisterBuiltin("fallback_strat", func(ctx context.Context, signal string, confidence float64, snap interface{}) (composite.HandlerResult, error) {
		return composite.HandlerResult{Allow: true, Score: 40}, nil
	})
	r.RegisterDefinition(Definition{StrategyType: "py_strat", Engine: EnginePython, Fallback: "fallback_strat", ShadowMode: true})
	res, err := r.Evaluate(context.Background(), "py_strat", "long", 50, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Score != 40 {
		t.Fatalf("expected fallback score enforced in shadow mode, got %+v", res)
	}
	found := false
	for _, c := range res.ReasonCodes {
		if c == ReasonShadowModeNotEnforced {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected shadow_mode_not_enforced reason, got %v", res.ReasonCodes)
	}
	if res.Meta["pythonDecision"] == nil {
		t.Fatal("expected python decision recorded in meta")
	}
}

func TestConfigHashAndSnapshotHashDeterministic(t *testing.T) {
	d := Definition{StrategyType: "x", Engine: EngineTS}
	if ConfigHash(d) != ConfigHash(d) {
		t.Fatal("expected identical config hash for identical definition")
	}
	snap := map[string]interface{}{"a": 1, "b": 2}
	if SnapshotHash(snap) != SnapshotHash(snap) {
		t.Fatal("expected identical snapshot hash for identical snapshot")
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker("test-open", 2, time.Minute)
	failing := func() (interface{}, error) { return nil, errors.New("fail") }
	_, _ = b.Execute(failing)
	_, _ = b.Execute(failing)
	_, err := b.Execute(func() (interface{}, error) { return "ok", nil })
	if err == nil {
		t.Fatal("expected breaker to be open and reject the next call")
	}
}
