// Package normalize rounds order prices/quantities down to venue precision and enforces
// minimum-notional/minimum-quantity constraints, per spec.md §4.2.
//
// Grounded on the teacher's gate-evaluation shape (internal/domain/gates: an Evidence/Reason
// struct returned instead of a bare bool) applied here to a simpler numeric domain.
package normalize

import (
	"math"
	"strconv"
)

// SymbolMeta mirrors spec.md §3's SymbolMeta entity. A zero field means "no constraint".
type SymbolMeta struct {
	PriceStep      float64
	QtyStep        float64
	PricePrecision int
	QtyPrecision   int
	MinQty         float64
	MinNotional    float64
}

// Price rounds p down to meta.PriceStep. A zero step leaves p unchanged.
func Price(p float64, meta SymbolMeta) float64 {
	return roundDown(p, meta.PriceStep)
}

// Qty rounds q down to meta.QtyStep. A zero step leaves q unchanged.
func Qty(q float64, meta SymbolMeta) float64 {
	return roundDown(q, meta.QtyStep)
}

func roundDown(x, step float64) float64 {
	if step <= 0 {
		return x
	}
	// The 1e-12 epsilon absorbs float64 division noise so values that are already an exact
	// multiple of step don't round down one extra increment.
	return math.Floor(x/step+1e-12) * step
}

// MinCheckInput is the order-shaped input to CheckMins.
type MinCheckInput struct {
	Price float64
	Qty   float64
	Meta  SymbolMeta
}

// MinCheckResult reports whether an order clears the venue's minimums.
type MinCheckResult struct {
	OK     bool
	Reason string
}

// CheckMins rejects orders below minQty or minNotional. The rejection is a non-retriable
// domain error surfaced to the caller (spec.md §4.2), modeled here as a result value rather
// than an error type so callers can inspect Reason without type assertions.
func CheckMins(in MinCheckInput) MinCheckResult {
	if in.Meta.MinQty > 0 && in.Qty < in.Meta.MinQty {
		return MinCheckResult{OK: false, Reason: formatBelow("qty", in.Qty, "minQty", in.Meta.MinQty)}
	}
	notional := in.Price * in.Qty
	if in.Meta.MinNotional > 0 && notional < in.Meta.MinNotional {
		return MinCheckResult{OK: false, Reason: formatNotionalBelow(in.Price, in.Qty, in.Meta.MinNotional)}
	}
	return MinCheckResult{OK: true}
}

func formatBelow(field string, val float64, limitName string, limit float64) string {
	return field + " " + trimFloat(val) + " < " + limitName + " " + trimFloat(limit)
}

func formatNotionalBelow(price, qty, minNotional float64) string {
	return "price*qty " + trimFloat(price*qty) + " < minNotional " + trimFloat(minNotional) +
		" (price=" + trimFloat(price) + " qty=" + trimFloat(qty) + ")"
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
