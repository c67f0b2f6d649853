package trigger

import (
	"testing"
	"time"
)

func TestShouldRefreshTFScheduledDue(t *testing.T) {
	opts := DefaultOptions(180 * time.Second)
	base := time.Now()
	prev := State{LastUpdated: base.Add(-200 * time.Second)}
	res := ShouldRefreshTF(base, prev, Snapshot{}, opts)
	if !res.Refresh || res.Reasons[0] != ReasonScheduledDue {
		t.Fatalf("expected scheduled_due refresh, got %+v", res)
	}
}

func TestShouldRefreshTFNotDueNoTriggerNoRefresh(t *testing.T) {
	opts := DefaultOptions(180 * time.Second)
	base := time.Now()
	prev := State{LastUpdated: base.Add(-10 * time.Second), TrendSign: 1}
	snap := Snapshot{Trend: 0.5}
	res := ShouldRefreshTF(base, prev, snap, opts)
	if res.Refresh {
		t.Fatalf("expected no refresh, got %+v", res)
	}
}

func TestHysteresisClassifierEntersAboveEnterExitsBelowRatio(t *testing.T) {
	c := HysteresisClassifier{Enter: 70, HysteresisRatio: 0.6}
	if b := c.Classify("", 50); b != "low" {
		t.Fatalf("expected low at 50, got %s", b)
	}
	if b := c.Classify("", 75); b != "high" {
		t.Fatalf("expected high at 75, got %s", b)
	}
	// 45 is below enter (70) but above exit threshold (70*0.6=42) so stays high.
	if b := c.Classify("high", 45); b != "high" {
		t.Fatalf("expected to stay high inside hysteresis band, got %s", b)
	}
	if b := c.Classify("high", 40); b != "low" {
		t.Fatalf("expected to exit below 42, got %s", b)
	}
}

func TestDebounceRequiresRepeatOrWindow(t *testing.T) {
	opts := DefaultOptions(180 * time.Second)
	opts.DebounceSec = 90
	base := time.Now()
	prev := State{LastUpdated: base.Add(-10 * time.Second), RSIBucket: "low"}
	hot := Snapshot{RSI: 80} // crosses RSIEnter=70

	r1 := ShouldRefreshTF(base, prev, hot, opts)
	if r1.Refresh {
		t.Fatalf("expected first transient trigger to not refresh, got %+v", r1)
	}
	if r1.State.CandidateReason != ReasonRSIBucket {
		t.Fatalf("expected candidate recorded, got %+v", r1.State)
	}

	// Same reason repeats on the very next tick (count>=2) -> fires.
	r2 := ShouldRefreshTF(base.Add(time.Second), r1.State, hot, opts)
	if !r2.Refresh || r2.Reasons[0] != ReasonRSIBucket {
		t.Fatalf("expected repeat to fire refresh, got %+v", r2)
	}
}

func TestDebounceFiresWhenCandidateStillPendingAfterWindow(t *testing.T) {
	opts := DefaultOptions(180 * time.Second)
	opts.DebounceSec = 5
	base := time.Now()
	prev := State{LastUpdated: base.Add(-10 * time.Second), BreakoutBucket: "low"}
	snap := Snapshot{BreakoutScore: 0.9}

	r1 := ShouldRefreshTF(base, prev, snap, opts)
	if r1.Refresh {
		t.Fatal("expected no immediate refresh")
	}

	later := base.Add(6 * time.Second)
	// The same snapshot is evaluated again after the debounce window; the breakout candidate is
	// still pending, so the engine fires.
	r2 := ShouldRefreshTF(later, r1.State, snap, opts)
	if !r2.Refresh {
		t.Fatalf("expected refresh once debounce window elapses, got %+v", r2)
	}
}

func TestTrendFlipRequiresPriorNonZeroSign(t *testing.T) {
	opts := DefaultOptions(180 * time.Second)
	base := time.Now()
	prev := State{LastUpdated: base.Add(-10 * time.Second), TrendSign: 1}
	snap := Snapshot{Trend: -0.5}
	res := ShouldRefreshTF(base, prev, snap, opts)
	if res.State.CandidateReason != ReasonTrendFlip && !res.Refresh {
		t.Fatalf("expected trend flip to be detected as candidate or fired, got %+v", res)
	}
}

func TestDataGapAlwaysFiresAsCandidate(t *testing.T) {
	opts := DefaultOptions(180 * time.Second)
	base := time.Now()
	prev := State{LastUpdated: base.Add(-10 * time.Second)}
	res := ShouldRefreshTF(base, prev, Snapshot{DataGap: true}, opts)
	if res.Refresh {
		t.Fatal("expected first data_gap observation to debounce, not refresh immediately")
	}
	if res.State.CandidateReason != ReasonDataGap {
		t.Fatalf("expected data_gap candidate, got %+v", res.State)
	}
}
