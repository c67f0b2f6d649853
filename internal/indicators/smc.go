// Package indicators computes Smart Money Concepts structure (pivots, BOS/CHoCH, order blocks,
// fair-value gaps, equal highs/lows, premium/discount zones) from OHLCV candles, per spec.md
// §4.7. Pure functions throughout: no I/O, no shared state.
//
// Grounded on the teacher's internal/domain/indicators/technical.go (RSI/ATR calculation style:
// a Result struct with an IsValid/DataCount guard for insufficient history) generalized from
// single-indicator outputs into the richer SMCSnapshot the spec requires.
package indicators

import "math"

// Candle is one OHLCV bar. Candles passed to ComputeSmartMoneyConcepts must be sorted ascending.
type Candle struct {
	Open, High, Low, Close, Volume float64
	Ts                             int64
}

// Bias is the directional label attached to pivots, order blocks, and structure events.
type Bias string

const (
	BiasBullish Bias = "bullish"
	BiasBearish Bias = "bearish"
)

// StructureEventKind distinguishes a break-of-structure continuation from a character change.
type StructureEventKind string

const (
	EventBOS   StructureEventKind = "BOS"
	EventCHoCH StructureEventKind = "CHoCH"
)

type Pivot struct {
	Index int
	Price float64
	Bias  Bias // bullish pivot = swing low, bearish pivot = swing high
	Scale string // "internal" or "swing"
}

type StructureEvent struct {
	Kind  StructureEventKind
	Bias  Bias
	Index int
	Price float64
}

type OrderBlock struct {
	Bias       Bias
	FromIndex  int
	ToIndex    int
	High       float64
	Low        float64
	Mitigated  bool
}

type FairValueGap struct {
	Bias       Bias
	Index      int
	Top        float64
	Bottom     float64
	Mitigated  bool
}

type EqualLevel struct {
	Bias   Bias
	IndexA int
	IndexB int
	Price  float64
}

type Zone struct {
	Premium  [2]float64
	Discount [2]float64
	Equilib  float64
}

// Options tunes pivot detection scales and thresholds, with spec.md §4.7 defaults.
type Options struct {
	InternalLength int // default 5
	SwingLength    int // default 50
	ATRPeriod      int // default 200
	OrderBlockN    int // latest N order blocks to expose, default 20
	EqualLevelATRMult float64 // default 0.1
}

func DefaultOptions() Options {
	return Options{InternalLength: 5, SwingLength: 50, ATRPeriod: 200, OrderBlockN: 20, EqualLevelATRMult: 0.1}
}

// SMCSnapshot is the full structure-analysis output for one candle series.
type SMCSnapshot struct {
	DataGap         bool
	ATR             float64
	InternalPivots  []Pivot
	SwingPivots     []Pivot
	Events          []StructureEvent
	OrderBlocks     []OrderBlock
	FairValueGaps   []FairValueGap
	EqualHighs      []EqualLevel
	EqualLows       []EqualLevel
	Zone            Zone
}

// ComputeSmartMoneyConcepts requires >=30 candles sorted ascending; otherwise it returns an
// empty snapshot with DataGap=true, per spec.md §4.7.
func ComputeSmartMoneyConcepts(candles []Candle, opts Options) SMCSnapshot {
	if len(candles) < 30 {
		return SMCSnapshot{DataGap: true}
	}
	if opts.InternalLength <= 0 {
		opts.InternalLength = 5
	}
	if opts.SwingLength <= 0 {
		opts.SwingLength = 50
	}
	if opts.ATRPeriod <= 0 {
		opts.ATRPeriod = 200
	}
	if opts.OrderBlockN <= 0 {
		opts.OrderBlockN = 20
	}
	if opts.EqualLevelATRMult <= 0 {
		opts.EqualLevelATRMult = 0.1
	}

	trueRanges := computeTrueRanges(candles)
	atrSeries := rollingATR(trueRanges, opts.ATRPeriod)
	currentATR := atrSeries[len(atrSeries)-1]

	parsed := parseVolatilitySpikes(candles, atrSeries)

	internalPivots := detectPivots(parsed, opts.InternalLength, "internal")
	swingPivots := detectPivots(parsed, opts.SwingLength, "swing")

	events := detectStructureEvents(parsed, swingPivots)
	blocks := detectOrderBlocks(parsed, events, opts.OrderBlockN)
	fvgs := detectFairValueGaps(parsed)
	eqHighs, eqLows := detectEqualLevels(swingPivots, currentATR, opts.EqualLevelATRMult)
	zone := computeZone(swingPivots)

	return SMCSnapshot{
		ATR:            currentATR,
		InternalPivots: internalPivots,
		SwingPivots:    swingPivots,
		Events:         events,
		OrderBlocks:    blocks,
		FairValueGaps:  fvgs,
		EqualHighs:     eqHighs,
		EqualLows:      eqLows,
		Zone:           zone,
	}
}

func computeTrueRanges(candles []Candle) []float64 {
	tr := make([]float64, len(candles))
	for i := range candles {
		if i == 0 {
			tr[i] = candles[i].High - candles[i].Low
			continue
		}
		prevClose := candles[i-1].Close
		hl := candles[i].High - candles[i].Low
		hc := math.Abs(candles[i].High - prevClose)
		lc := math.Abs(candles[i].Low - prevClose)
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	return tr
}

// rollingATR is a simple rolling mean of true range over at most `period` bars, using Wilder
// smoothing once the window fills — the same EMA-after-seed shape as the teacher's RSI.
func rollingATR(tr []float64, period int) []float64 {
	out := make([]float64, len(tr))
	if len(tr) == 0 {
		return out
	}
	window := period
	if window > len(tr) {
		window = len(tr)
	}
	sum := 0.0
	for i := 0; i < window; i++ {
		sum += tr[i]
	}
	avg := sum / float64(window)
	for i := 0; i < window; i++ {
		out[i] = avg
	}
	alpha := 1.0 / float64(period)
	for i := window; i < len(tr); i++ {
		avg = avg*(1-alpha) + tr[i]*alpha
		out[i] = avg
	}
	return out
}

// parsedCandle swaps high/low role when a bar's range is a volatility spike (>= 2x ATR),
// neutralizing the bar for pivot purposes, per spec.md §4.7.
type parsedCandle struct {
	Candle
	ParsedHigh float64
	ParsedLow  float64
}

func parseVolatilitySpikes(candles []Candle, atr []float64) []parsedCandle {
	out := make([]parsedCandle, len(candles))
	for i, c := range candles {
		out[i] = parsedCandle{Candle: c, ParsedHigh: c.High, ParsedLow: c.Low}
		rng := c.High - c.Low
		if atr[i] > 0 && rng >= 2*atr[i] {
			out[i].ParsedHigh = c.Low
			out[i].ParsedLow = c.High
		}
	}
	return out
}

// detectPivots finds local extrema confirmed by `length` bars on both sides.
func detectPivots(candles []parsedCandle, length int, scale string) []Pivot {
	var pivots []Pivot
	for i := length; i < len(candles)-length; i++ {
		isHigh, isLow := true, true
		for j := i - length; j <= i+length; j++ {
			if j == i {
				continue
			}
			if candles[j].ParsedHigh > candles[i].ParsedHigh {
				isHigh = false
			}
			if candles[j].ParsedLow < candles[i].ParsedLow {
				isLow = false
			}
		}
		if isHigh {
			pivots = append(pivots, Pivot{Index: i, Price: candles[i].ParsedHigh, Bias: BiasBearish, Scale: scale})
		}
		if isLow {
			pivots = append(pivots, Pivot{Index: i, Price: candles[i].ParsedLow, Bias: BiasBullish, Scale: scale})
		}
	}
	return pivots
}

// detectStructureEvents walks candles forward; whenever a close crosses a still-unbroken
// pivot, emit BOS (trend continuation) or CHoCH (the prevailing bias flips).
func detectStructureEvents(candles []parsedCandle, pivots []Pivot) []StructureEvent {
	var events []StructureEvent
	broken := make(map[int]bool)
	var lastBreakBias Bias
	for _, p := range pivots {
		for i := p.Index + 1; i < len(candles); i++ {
			if broken[p.Index] {
				break
			}
			crossed := (p.Bias == BiasBearish && candles[i].Close > p.Price) ||
				(p.Bias == BiasBullish && candles[i].Close < p.Price)
			if !crossed {
				continue
			}
			broken[p.Index] = true
			breakBias := BiasBullish
			if p.Bias == BiasBullish {
				breakBias = BiasBearish
			}
			kind := EventBOS
			if lastBreakBias != "" && lastBreakBias != breakBias {
				kind = EventCHoCH
			}
			lastBreakBias = breakBias
			events = append(events, StructureEvent{Kind: kind, Bias: breakBias, Index: i, Price: candles[i].Close})
		}
	}
	return events
}

// detectOrderBlocks takes the highest-volume bar among the 50 bars before each structure break
// (the broken pivot's own position is not used to bound the window), keeping the latest `keepN`
// unmitigated blocks, per spec.md §4.7.
func detectOrderBlocks(candles []parsedCandle, events []StructureEvent, keepN int) []OrderBlock {
	var blocks []OrderBlock
	for _, ev := range events {
		from := ev.Index - 50
		if from < 0 {
			from = 0
		}
		extreme := from
		for i := from; i < ev.Index; i++ {
			if candles[i].Volume > candles[extreme].Volume {
				extreme = i
			}
		}
		ob := OrderBlock{Bias: ev.Bias, FromIndex: extreme, ToIndex: ev.Index, High: candles[extreme].High, Low: candles[extreme].Low}
		for i := ev.Index + 1; i < len(candles); i++ {
			if ob.Bias == BiasBullish && candles[i].Low < ob.Low {
				ob.Mitigated = true
				break
			}
			if ob.Bias == BiasBearish && candles[i].High > ob.High {
				ob.Mitigated = true
				break
			}
		}
		if !ob.Mitigated {
			blocks = append(blocks, ob)
		}
	}
	if len(blocks) > 100 {
		blocks = blocks[len(blocks)-100:]
	}
	if len(blocks) > keepN {
		blocks = blocks[len(blocks)-keepN:]
	}
	return blocks
}

// detectFairValueGaps finds the classic three-bar gap pattern with a running-mean-based
// body-percentile threshold, per spec.md §4.7.
func detectFairValueGaps(candles []parsedCandle) []FairValueGap {
	var gaps []FairValueGap
	runningBodySum, n := 0.0, 0
	for i := 2; i < len(candles); i++ {
		body := math.Abs(candles[i-1].Close - candles[i-1].Open)
		runningBodySum += body
		n++
		threshold := 2 * (runningBodySum / float64(n))

		left, right := candles[i-2], candles[i]
		if right.Low > left.High && right.Low-left.High >= threshold {
			gaps = append(gaps, FairValueGap{Bias: BiasBullish, Index: i - 1, Top: right.Low, Bottom: left.High})
		}
		if left.Low > right.High && left.Low-right.High >= threshold {
			gaps = append(gaps, FairValueGap{Bias: BiasBearish, Index: i - 1, Top: left.Low, Bottom: right.High})
		}
	}
	// Mitigate: a later candle re-entering the gap closes it.
	for gi := range gaps {
		g := &gaps[gi]
		for i := g.Index + 1; i < len(candles); i++ {
			if candles[i].Low <= g.Top && candles[i].High >= g.Bottom {
				g.Mitigated = true
				break
			}
		}
	}
	return gaps
}

// detectEqualLevels groups same-scale pivots within threshold*ATR of each other.
func detectEqualLevels(pivots []Pivot, atr, mult float64) (highs, lows []EqualLevel) {
	threshold := atr * mult
	for i := 0; i < len(pivots); i++ {
		for j := i + 1; j < len(pivots); j++ {
			if pivots[i].Bias != pivots[j].Bias || pivots[i].Scale != pivots[j].Scale {
				continue
			}
			if math.Abs(pivots[i].Price-pivots[j].Price) <= threshold {
				lvl := EqualLevel{Bias: pivots[i].Bias, IndexA: pivots[i].Index, IndexB: pivots[j].Index, Price: (pivots[i].Price + pivots[j].Price) / 2}
				if pivots[i].Bias == BiasBearish {
					highs = append(highs, lvl)
				} else {
					lows = append(lows, lvl)
				}
			}
		}
	}
	return highs, lows
}

// computeZone derives trailing premium/discount bands from the latest swing extrema using a
// 95/50/5 split, per spec.md §4.7.
func computeZone(swingPivots []Pivot) Zone {
	if len(swingPivots) == 0 {
		return Zone{}
	}
	high, low := swingPivots[0].Price, swingPivots[0].Price
	for _, p := range swingPivots {
		if p.Bias == BiasBearish && p.Price > high {
			high = p.Price
		}
		if p.Bias == BiasBullish && p.Price < low {
			low = p.Price
		}
	}
	rng := high - low
	return Zone{
		Premium:  [2]float64{low + rng*0.95, high},
		Discount: [2]float64{low, low + rng*0.05},
		Equilib:  low + rng*0.5,
	}
}
