// Package prediction implements the per-(bot,timeframe) refresh service of spec.md §4.9: it
// composes the trigger engine (C8) over a feature snapshot, decides significance and AI-call
// eligibility, and emits throttled state-change events.
//
// Grounded on the teacher's internal/scan/scheduler tick-driven evaluation loop (run once per
// scheduled tick, consult prior persisted state, decide whether today's pass changes anything
// worth emitting) generalized to prediction state instead of scan candidates.
package prediction

import (
	"context"
	"time"

	"github.com/sawpanic/controlplane/internal/trigger"
)

// FeatureSnapshot is C7's output plus the regime/funding/basis augmentation the prediction layer
// adds before handing it to the trigger engine.
type FeatureSnapshot struct {
	Signal        string
	Confidence    float64
	Tags          []string
	ATRRank       string
	TrendRank     string
	BreakoutScore float64
	Trigger       trigger.Snapshot
}

// State is the persisted per-(bot,tf) prediction record.
type State struct {
	Snapshot          FeatureSnapshot
	TriggerState      trigger.State
	LastUpdated       time.Time
	LastAiExplainedAt time.Time
	Unstable          bool
	FlipTimestamps    []time.Time // sliding 30-minute window of signal flips, for the unstable flag
	LastEventAt       map[string]time.Time
}

// Config carries spec.md §6's tunables for this service.
type Config struct {
	TriggerOptions    trigger.Options
	AICooldown        time.Duration // default 300s
	EventThrottle     time.Duration // default 180s
	UnstableWindow    time.Duration // default 30m
	UnstableFlipCount int           // default 4
}

func DefaultConfig(refreshInterval time.Duration) Config {
	return Config{
		TriggerOptions:    trigger.DefaultOptions(refreshInterval),
		AICooldown:        300 * time.Second,
		EventThrottle:      180 * time.Second,
		UnstableWindow:    30 * time.Minute,
		UnstableFlipCount: 4,
	}
}

// Event is one of the four event kinds spec.md §4.9 step 5 names.
type Event string

const (
	EventSignalFlip     Event = "signal_flip"
	EventConfidenceJump Event = "confidence_jump"
	EventTagsChanged    Event = "tags_changed"
	EventRegimeChange   Event = "regime_change"
)

// Explainer is the AI-explain callback; composite/quality-gate layers wrap this with C10's
// admission decision before it reaches here. Result carries the fields C9 needs to persist.
type Explainer func(ctx context.Context, snap FeatureSnapshot) (ExplainResult, error)

type ExplainResult struct {
	Signal     string
	Confidence float64
	Tags       []string
}

// TickResult reports what the refresh pass did, for callers (C13) to log/act on.
type TickResult struct {
	Refreshed    bool
	Significant  bool
	AICalled     bool
	AIError      error
	AISkipReason string // e.g. "gating_ai_cooldown" when significant but the AI call was gated
	EventsFired  []Event
	NextState    State
}

// RunTick executes spec.md §4.9's five-step flow for one scheduled tick.
func RunTick(ctx context.Context, now time.Time, prev State, candidate FeatureSnapshot, cfg Config, eligible func(sig Significance) bool, explain Explainer) TickResult {
	trigRes := trigger.ShouldRefreshTF(now, prev.TriggerState, candidate.Trigger, cfg.TriggerOptions)
	next := prev
	next.TriggerState = trigRes.State

	if !trigRes.Refresh {
		return TickResult{Refreshed: false, NextState: next}
	}

	sig := computeSignificance(prev.Snapshot, candidate)
	if !sig.Any() {
		next.Snapshot = candidate
		next.LastUpdated = now
		return TickResult{Refreshed: true, Significant: false, NextState: next}
	}

	aiWorthy := sig.SignalChanged || sig.ConfidenceJump || sig.TagsChanged
	withinCooldown := now.Sub(prev.LastAiExplainedAt) < cfg.AICooldown
	aiEligible := aiWorthy && !withinCooldown
	if eligible != nil {
		aiEligible = aiEligible && eligible(sig)
	}

	result := TickResult{Refreshed: true, Significant: true}
	if aiWorthy && withinCooldown {
		result.AISkipReason = "gating_ai_cooldown"
	}
	finalSnap := candidate
	if aiEligible && explain != nil {
		res, err := explain(ctx, candidate)
		result.AICalled = true
		if err == nil {
			finalSnap.Signal = res.Signal
			finalSnap.Confidence = res.Confidence
			finalSnap.Tags = res.Tags
			next.LastAiExplainedAt = now
		} else {
			result.AIError = err
		}
	}

	next.Snapshot = finalSnap
	next.LastUpdated = now
	next.FlipTimestamps = pruneFlips(next.FlipTimestamps, now, cfg.UnstableWindow)
	if sig.SignalChanged {
		next.FlipTimestamps = append(next.FlipTimestamps, now)
	}
	next.Unstable = len(next.FlipTimestamps) >= cfg.UnstableFlipCount

	next.LastEventAt = cloneEventMap(prev.LastEventAt)
	result.EventsFired = emitEvents(next.LastEventAt, now, sig, cfg.EventThrottle)

	result.NextState = next
	return result
}

// Significance captures §4.9.1's five independent signals; Any() reports whether the pass is
// significant at all.
type Significance struct {
	SignalChanged   bool
	ConfidenceJump  bool // |Δconfidence| >= 10
	TagsChanged     bool
	ATRRankChanged  bool
	TrendRankChanged bool
	BreakoutCrossUp bool // breakout score crosses 0.8 upward
}

func (s Significance) Any() bool {
	return s.SignalChanged || s.ConfidenceJump || s.TagsChanged || s.ATRRankChanged || s.TrendRankChanged || s.BreakoutCrossUp
}

func computeSignificance(prev, cur FeatureSnapshot) Significance {
	return Significance{
		SignalChanged:    prev.Signal != cur.Signal,
		ConfidenceJump:   absf(cur.Confidence-prev.Confidence) >= 10,
		TagsChanged:      !sameTagSet(prev.Tags, cur.Tags),
		ATRRankChanged:   prev.ATRRank != cur.ATRRank,
		TrendRankChanged: prev.TrendRank != cur.TrendRank,
		BreakoutCrossUp:  prev.BreakoutScore < 0.8 && cur.BreakoutScore >= 0.8,
	}
}

func sameTagSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, t := range a {
		seen[t] = true
	}
	for _, t := range b {
		if !seen[t] {
			return false
		}
	}
	return true
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func pruneFlips(flips []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	out := flips[:0]
	for _, t := range flips {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

func cloneEventMap(m map[string]time.Time) map[string]time.Time {
	out := make(map[string]time.Time, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// emitEvents maps significance onto event kinds and applies per-event-name throttling.
func emitEvents(lastAt map[string]time.Time, now time.Time, sig Significance, throttle time.Duration) []Event {
	var candidates []Event
	if sig.SignalChanged {
		candidates = append(candidates, EventSignalFlip)
	}
	if sig.ConfidenceJump {
		candidates = append(candidates, EventConfidenceJump)
	}
	if sig.TagsChanged {
		candidates = append(candidates, EventTagsChanged)
	}
	if sig.TrendRankChanged {
		candidates = append(candidates, EventRegimeChange)
	}

	var fired []Event
	for _, ev := range candidates {
		key := string(ev)
		if last, ok := lastAt[key]; ok && now.Sub(last) < throttle {
			continue
		}
		lastAt[key] = now
		fired = append(fired, ev)
	}
	return fired
}
