package qualitygate

import (
	"testing"
	"time"
)

func TestShouldInvokeAiExplainAllowsUnderCap(t *testing.T) {
	cfg := DefaultConfig(10)
	now := time.Now()
	in := Input{Now: now, PredictionHash: "p1", HistoryHash: "h1", SignalFlippedWithinMin: -1, ConfidenceJump: 5}
	d := ShouldInvokeAiExplain(in, State{}, cfg)
	if !d.Allow {
		t.Fatalf("expected allow, got %+v", d)
	}
	if d.Priority != PriorityLow {
		t.Fatalf("expected low priority, got %v", d.Priority)
	}
}

func TestShouldInvokeAiExplainBlocksOverHourlyCap(t *testing.T) {
	cfg := DefaultConfig(1)
	now := time.Now()
	state := State{}
	in1 := Input{Now: now, PredictionHash: "p1", HistoryHash: "h1"}
	d1 := ShouldInvokeAiExplain(in1, state, cfg)
	if !d1.Allow {
		t.Fatal("expected first call allowed")
	}
	in2 := Input{Now: now.Add(time.Minute), PredictionHash: "p2", HistoryHash: "h2"}
	d2 := ShouldInvokeAiExplain(in2, d1.State, cfg)
	if d2.Allow || d2.ReasonCodes[0] != ReasonHourlyCapExceeded {
		t.Fatalf("expected hourly cap block, got %+v", d2)
	}
}

func TestShouldInvokeAiExplainWindowResetsAfterHour(t *testing.T) {
	cfg := DefaultConfig(1)
	now := time.Now()
	d1 := ShouldInvokeAiExplain(Input{Now: now, PredictionHash: "p1", HistoryHash: "h1"}, State{}, cfg)
	later := now.Add(61 * time.Minute)
	d2 := ShouldInvokeAiExplain(Input{Now: later, PredictionHash: "p2", HistoryHash: "h2"}, d1.State, cfg)
	if !d2.Allow {
		t.Fatalf("expected window reset to allow call, got %+v", d2)
	}
}

func TestShouldInvokeAiExplainDedupsByDecisionHash(t *testing.T) {
	cfg := DefaultConfig(10)
	now := time.Now()
	in := Input{Now: now, PredictionHash: "p1", HistoryHash: "h1"}
	d1 := ShouldInvokeAiExplain(in, State{}, cfg)
	in2 := Input{Now: now.Add(time.Second), PredictionHash: "p1", HistoryHash: "h1"}
	d2 := ShouldInvokeAiExplain(in2, d1.State, cfg)
	if d2.Allow || d2.ReasonCodes[0] != ReasonDuplicateDecision {
		t.Fatalf("expected duplicate-decision block, got %+v", d2)
	}
}

func TestShouldInvokeAiExplainBudgetPressureBlocksLowPriority(t *testing.T) {
	cfg := DefaultConfig(10)
	now := time.Now()
	in := Input{Now: now, PredictionHash: "p1", HistoryHash: "h1", SignalFlippedWithinMin: -1, ConfidenceJump: 0, BudgetPressureConsecutive: 3}
	d := ShouldInvokeAiExplain(in, State{}, cfg)
	if d.Allow || d.ReasonCodes[0] != ReasonBudgetPressureLow {
		t.Fatalf("expected budget pressure block for low priority, got %+v", d)
	}
}

func TestShouldInvokeAiExplainBudgetPressureAllowsHighPriority(t *testing.T) {
	cfg := DefaultConfig(10)
	now := time.Now()
	in := Input{Now: now, PredictionHash: "p1", HistoryHash: "h1", SignalFlippedWithinMin: 5, BudgetPressureConsecutive: 5}
	d := ShouldInvokeAiExplain(in, State{}, cfg)
	if !d.Allow || d.Priority != PriorityHigh {
		t.Fatalf("expected high-priority call allowed through budget pressure, got %+v", d)
	}
}

func TestClassifyPriorityMediumOnConfidenceJump(t *testing.T) {
	p := classifyPriority(Input{SignalFlippedWithinMin: -1, ConfidenceJump: 20})
	if p != PriorityMedium {
		t.Fatalf("expected medium priority, got %v", p)
	}
}
