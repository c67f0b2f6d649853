// Package trigger implements the refresh-decision engine of spec.md §4.8: hysteresis bucketing,
// debounce, and per-timeframe scheduled-refresh checks that decide whether a bot/timeframe pair
// needs a fresh prediction pass.
//
// Grounded on the teacher's internal/domain/gates/evaluate.go Inputs/Result-with-reasons shape,
// generalized from gate pass/fail into a refresh/no-refresh decision carrying trigger reasons.
package trigger

import "time"

// Reason names every trigger source spec.md §4.8 lists, evaluated in this order.
type Reason string

const (
	ReasonScheduledDue  Reason = "scheduled_due"
	ReasonTrendFlip     Reason = "trend_flip"
	ReasonTrendRank     Reason = "trend_rank_bucket_change"
	ReasonRSIBucket     Reason = "rsi_bucket_change"
	ReasonVolRank       Reason = "vol_rank_bucket_change"
	ReasonBreakout      Reason = "breakout_score_cross"
	ReasonFunding       Reason = "funding_magnitude_cross"
	ReasonBasis         Reason = "basis_cross"
	ReasonDataGap       Reason = "data_gap"
)

// Bucket is the output of a hysteresis classifier: a discrete state plus the raw value that
// produced it, so the next evaluation can test exit against enter*hysteresisRatio.
type Bucket struct {
	Name  string
	Value float64
}

// HysteresisClassifier buckets a continuous value with separate enter/exit thresholds: it only
// enters a higher bucket once the value exceeds `enter`, and only exits once the value drops
// below `enter * hysteresisRatio`, per spec.md §4.8.
type HysteresisClassifier struct {
	Enter            float64
	HysteresisRatio  float64 // default 0.6
}

// Classify returns the new bucket name given the previous bucket and current value. "high" once
// entered stays "high" until the value falls below Enter*HysteresisRatio; otherwise "low".
func (h HysteresisClassifier) Classify(prevBucket string, value float64) string {
	ratio := h.HysteresisRatio
	if ratio <= 0 {
		ratio = 0.6
	}
	exit := h.Enter * ratio
	if prevBucket == "high" {
		if value < exit {
			return "low"
		}
		return "high"
	}
	if value >= h.Enter {
		return "high"
	}
	return "low"
}

// Snapshot is the minimal feature state the trigger engine reads, sourced from C7's indicator
// output plus regime/funding/basis fields the prediction pipeline augments onto it.
type Snapshot struct {
	Trend         float64 // signed trend strength; sign flip is a trend-flip trigger
	TrendRank     float64
	RSI           float64
	VolRank       float64
	BreakoutScore float64
	FundingRate   float64
	BasisBps      float64
	DataGap       bool
}

// State is per-(bot,timeframe) persisted trigger state: last refresh time, previous buckets for
// hysteresis continuity, and the debounce candidate.
type State struct {
	LastUpdated time.Time

	TrendSign       int // -1, 0, +1
	TrendRankBucket string
	RSIBucket       string
	VolRankBucket   string
	BreakoutBucket  string
	FundingBucket   string
	BasisBucket     string

	CandidateReason Reason
	CandidateCount  int
	CandidateSince  time.Time
}

// Options carries the tunables spec.md §6 externalizes.
type Options struct {
	RefreshInterval   time.Duration
	TrendFlipEpsilon  float64 // dead zone around zero before a sign flip counts
	HysteresisRatio   float64
	TrendRankEnter    float64
	RSIEnter          float64
	VolRankEnter      float64
	BreakoutThreshold float64 // default 0.8
	FundingThreshold  float64 // default 0.0005
	BasisThresholdBps float64 // default 8
	DebounceSec       int     // default 90
}

func DefaultOptions(refreshInterval time.Duration) Options {
	return Options{
		RefreshInterval:   refreshInterval,
		TrendFlipEpsilon:  0.01,
		HysteresisRatio:   0.6,
		TrendRankEnter:    0.7,
		RSIEnter:          70,
		VolRankEnter:      0.7,
		BreakoutThreshold: 0.8,
		FundingThreshold:  0.0005,
		BasisThresholdBps: 8,
		DebounceSec:       90,
	}
}

// Result is shouldRefreshTF's output per spec.md §4.8.
type Result struct {
	Refresh bool
	Reasons []Reason
	State   State
}

// ShouldRefreshTF evaluates scheduled-due first, then each trigger source in spec.md §4.8's
// fixed order, applying hysteresis to bucket classifiers and debounce to the final decision.
func ShouldRefreshTF(now time.Time, prev State, snap Snapshot, opts Options) Result {
	next := prev

	if prev.LastUpdated.IsZero() || now.Sub(prev.LastUpdated) >= opts.RefreshInterval {
		next.LastUpdated = now
		next.CandidateReason = ""
		next.CandidateCount = 0
		return Result{Refresh: true, Reasons: []Reason{ReasonScheduledDue}, State: resetBuckets(next, snap, opts)}
	}

	var firing Reason
	if sign := trendSign(snap.Trend, opts.TrendFlipEpsilon); sign != 0 && prev.TrendSign != 0 && sign != prev.TrendSign {
		firing = ReasonTrendFlip
	} else if b := (HysteresisClassifier{Enter: opts.TrendRankEnter, HysteresisRatio: opts.HysteresisRatio}).Classify(prev.TrendRankBucket, snap.TrendRank); prev.TrendRankBucket != "" && b != prev.TrendRankBucket {
		next.TrendRankBucket = b
		firing = ReasonTrendRank
	} else if b := (HysteresisClassifier{Enter: opts.RSIEnter, HysteresisRatio: opts.HysteresisRatio}).Classify(prev.RSIBucket, snap.RSI); prev.RSIBucket != "" && b != prev.RSIBucket {
		next.RSIBucket = b
		firing = ReasonRSIBucket
	} else if b := (HysteresisClassifier{Enter: opts.VolRankEnter, HysteresisRatio: opts.HysteresisRatio}).Classify(prev.VolRankBucket, snap.VolRank); prev.VolRankBucket != "" && b != prev.VolRankBucket {
		next.VolRankBucket = b
		firing = ReasonVolRank
	} else if b := (HysteresisClassifier{Enter: opts.BreakoutThreshold, HysteresisRatio: opts.HysteresisRatio}).Classify(prev.BreakoutBucket, snap.BreakoutScore); prev.BreakoutBucket != "" && b != prev.BreakoutBucket {
		next.BreakoutBucket = b
		firing = ReasonBreakout
	} else if b := (HysteresisClassifier{Enter: opts.FundingThreshold, HysteresisRatio: opts.HysteresisRatio}).Classify(prev.FundingBucket, absf(snap.FundingRate)); prev.FundingBucket != "" && b != prev.FundingBucket {
		next.FundingBucket = b
		firing = ReasonFunding
	} else if b := (HysteresisClassifier{Enter: opts.BasisThresholdBps, HysteresisRatio: opts.HysteresisRatio}).Classify(prev.BasisBucket, absf(snap.BasisBps)); prev.BasisBucket != "" && b != prev.BasisBucket {
		next.BasisBucket = b
		firing = ReasonBasis
	} else if snap.DataGap {
		firing = ReasonDataGap
	}

	next.TrendSign = trendSign(snap.Trend, opts.TrendFlipEpsilon)

	if firing == "" {
		next.CandidateReason = ""
		next.CandidateCount = 0
		return Result{Refresh: false, State: next}
	}

	res := applyDebounce(now, next, firing, opts)
	if !res.Refresh { // a pending candidate keeps the previous sign and buckets, so the change is seen again
		prev.CandidateReason, prev.CandidateCount, prev.CandidateSince = res.State.CandidateReason, res.State.CandidateCount, res.State.CandidateSince
		res.State = prev
	}
	return res
}

// applyDebounce implements spec.md §4.8: a candidate reason fires once it either repeats
// (count>=2) or has remained the candidate for DebounceSec; otherwise it's recorded and
// no-refresh is returned.
func applyDebounce(now time.Time, next State, firing Reason, opts Options) Result {
	if next.CandidateReason == firing {
		next.CandidateCount++
	} else {
		next.CandidateReason = firing
		next.CandidateCount = 1
		next.CandidateSince = now
	}

	debounceWindow := time.Duration(opts.DebounceSec) * time.Second
	elapsed := now.Sub(next.CandidateSince)
	if next.CandidateCount >= 2 || elapsed >= debounceWindow {
		next.CandidateReason = ""
		next.CandidateCount = 0
		next.LastUpdated = now
		return Result{Refresh: true, Reasons: []Reason{firing}, State: next}
	}
	return Result{Refresh: false, State: next}
}

func resetBuckets(s State, snap Snapshot, opts Options) State {
	s.TrendSign = trendSign(snap.Trend, opts.TrendFlipEpsilon)
	s.TrendRankBucket = (HysteresisClassifier{Enter: opts.TrendRankEnter, HysteresisRatio: opts.HysteresisRatio}).Classify("", snap.TrendRank)
	s.RSIBucket = (HysteresisClassifier{Enter: opts.RSIEnter, HysteresisRatio: opts.HysteresisRatio}).Classify("", snap.RSI)
	s.VolRankBucket = (HysteresisClassifier{Enter: opts.VolRankEnter, HysteresisRatio: opts.HysteresisRatio}).Classify("", snap.VolRank)
	s.BreakoutBucket = (HysteresisClassifier{Enter: opts.BreakoutThreshold, HysteresisRatio: opts.HysteresisRatio}).Classify("", snap.BreakoutScore)
	s.FundingBucket = (HysteresisClassifier{Enter: opts.FundingThreshold, HysteresisRatio: opts.HysteresisRatio}).Classify("", absf(snap.FundingRate))
	s.BasisBucket = (HysteresisClassifier{Enter: opts.BasisThresholdBps, HysteresisRatio: opts.HysteresisRatio}).Classify("", absf(snap.BasisBps))
	return s
}

func trendSign(v, epsilon float64) int {
	if v > epsilon {
		return 1
	}
	if v < -epsilon {
		return -1
	}
	return 0
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
