// Package qualitygate implements the AI-call quality gate of spec.md §4.10: a per-hour rolling
// call cap, decision-hash deduplication, budget-pressure back-off, and priority classification.
//
// Grounded on the teacher's internal/domain/gates pattern of coded block reasons plus the
// canon package's stable-hash fingerprinting for dedup keys.
package qualitygate

import (
	"time"

	"github.com/sawpanic/controlplane/internal/domain/canon"
)

// Priority classifies how urgently a permitted AI call should be scheduled.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Reason codes for a blocked decision.
const (
	ReasonHourlyCapExceeded  = "hourly_cap_exceeded"
	ReasonDuplicateDecision  = "duplicate_decision"
	ReasonBudgetPressureLow  = "budget_pressure_low_priority_blocked"
)

// Config carries spec.md §6's tunables.
type Config struct {
	HourlyCap                 int           // per-hour call cap
	RollingWindow             time.Duration // default 1h
	BudgetPressureThreshold   int           // K, default 3
}

func DefaultConfig(hourlyCap int) Config {
	return Config{HourlyCap: hourlyCap, RollingWindow: time.Hour, BudgetPressureThreshold: 3}
}

// State is the per-(bot,timeframe) persisted gate state.
type State struct {
	WindowStartedAt           time.Time
	CallsInWindow             int
	HighPriorityCallsInWindow int
	LastAiCallTs              time.Time
	SeenDecisionHashes        map[string]time.Time // decisionHash -> last seen, for dedup
}

// Input bundles everything shouldInvokeAiExplain needs.
type Input struct {
	Now                       time.Time
	Timeframe                 string
	PredictionHash            string
	HistoryHash               string
	SignalFlippedWithinMin    int // minutes since last signal flip; <0 if none
	ConfidenceJump            float64
	BudgetPressureConsecutive int
}

// Decision is shouldInvokeAiExplain's output.
type Decision struct {
	Allow          bool
	ReasonCodes    []string
	Priority       Priority
	State          State
	PredictionHash string
	HistoryHash    string
	DecisionHash   string
}

// ShouldInvokeAiExplain implements spec.md §4.10.
func ShouldInvokeAiExplain(in Input, prev State, cfg Config) Decision {
	next := prev
	if next.SeenDecisionHashes == nil {
		next.SeenDecisionHashes = make(map[string]time.Time)
	}

	if next.WindowStartedAt.IsZero() || in.Now.Sub(next.WindowStartedAt) >= cfg.RollingWindow {
		next.WindowStartedAt = in.Now
		next.CallsInWindow = 0
		next.HighPriorityCallsInWindow = 0
	}

	decisionHash := canon.HashStableObject(map[string]string{
		"prediction": in.PredictionHash,
		"history":    in.HistoryHash,
	})

	priority := classifyPriority(in)

	if next.CallsInWindow >= cfg.HourlyCap {
		return Decision{Allow: false, ReasonCodes: []string{ReasonHourlyCapExceeded}, Priority: priority, State: next,
			PredictionHash: in.PredictionHash, HistoryHash: in.HistoryHash, DecisionHash: decisionHash}
	}

	if lastSeen, dup := next.SeenDecisionHashes[decisionHash]; dup && in.Now.Sub(lastSeen) < cfg.RollingWindow {
		return Decision{Allow: false, ReasonCodes: []string{ReasonDuplicateDecision}, Priority: priority, State: next,
			PredictionHash: in.PredictionHash, HistoryHash: in.HistoryHash, DecisionHash: decisionHash}
	}

	if in.BudgetPressureConsecutive >= cfg.BudgetPressureThreshold && priority != PriorityHigh {
		return Decision{Allow: false, ReasonCodes: []string{ReasonBudgetPressureLow}, Priority: priority, State: next,
			PredictionHash: in.PredictionHash, HistoryHash: in.HistoryHash, DecisionHash: decisionHash}
	}

	next.CallsInWindow++
	next.LastAiCallTs = in.Now
	if priority == PriorityHigh {
		next.HighPriorityCallsInWindow++
	}
	next.SeenDecisionHashes[decisionHash] = in.Now
	return Decision{Allow: true, Priority: priority, State: next,
		PredictionHash: in.PredictionHash, HistoryHash: in.HistoryHash, DecisionHash: decisionHash}
}

// classifyPriority implements spec.md §4.10's priority rules: high if a signal flip happened
// within 10 minutes, else medium if confidence jumped >=15, else low.
func classifyPriority(in Input) Priority {
	if in.SignalFlippedWithinMin >= 0 && in.SignalFlippedWithinMin <= 10 {
		return PriorityHigh
	}
	if in.ConfidenceJump >= 15 {
		return PriorityMedium
	}
	return PriorityLow
}
