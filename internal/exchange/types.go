// Package exchange defines the canonical, venue-agnostic contract every adapter implements,
// per spec.md §4.4 and §6. The normalized shapes here are the exact bit-level contract —
// venue-specific fields are never exposed past an adapter boundary.
package exchange

import (
	"context"
	"time"

	"github.com/sawpanic/controlplane/internal/domain/symbol"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

type OrderStatus string

const (
	OrderOpen     OrderStatus = "open"
	OrderFilled   OrderStatus = "filled"
	OrderCanceled OrderStatus = "canceled"
	OrderUnknown  OrderStatus = "unknown"
)

// Quote is an order intent. Limit orders require Price > 0; a market buy MAY use QuoteQty in
// lieu of Qty where the venue supports it, per spec.md §3.
type Quote struct {
	Symbol        symbol.Canonical
	Side          Side
	Type          OrderType
	Price         float64
	Qty           float64
	QuoteQty      float64
	PostOnly      bool
	ClientOrderID string
}

type Order struct {
	ID            string
	Symbol        symbol.Canonical
	Side          Side
	Price         float64
	Qty           float64
	Status        OrderStatus
	ClientOrderID string
}

type MyTrade struct {
	ID        string
	OrderID   string
	Side      Side
	Price     float64
	Qty       float64
	Notional  float64
	Timestamp int64 // ms
}

type MidPrice struct {
	Bid  float64
	Ask  float64
	Mid  float64
	Last float64
	Ts   time.Time
}

// ResolveMid fills Mid from bid/ask, falling back to Last when either side is missing,
// per spec.md §3's MidPrice invariant.
func (m *MidPrice) ResolveMid() {
	if m.Bid > 0 && m.Ask > 0 {
		m.Mid = (m.Bid + m.Ask) / 2
		return
	}
	m.Mid = m.Last
}

type Balance struct {
	Asset  string
	Free   float64
	Locked float64
}

// TradeQuery narrows GetMyTrades per spec.md §4.4.
type TradeQuery struct {
	StartMs int64
	Limit   int
}

// Adapter is the uniform six-operation surface every venue implements, per spec.md §4.4.
type Adapter interface {
	Venue() string
	GetTicker(ctx context.Context, sym symbol.Canonical) (MidPrice, error)
	GetBalances(ctx context.Context) ([]Balance, error)
	GetOpenOrders(ctx context.Context, sym symbol.Canonical) ([]Order, error)
	PlaceOrder(ctx context.Context, q Quote) (Order, error)
	CancelOrder(ctx context.Context, sym symbol.Canonical, id string) error
	CancelAll(ctx context.Context, sym symbol.Canonical) error
	GetMyTrades(ctx context.Context, sym symbol.Canonical, q TradeQuery) ([]MyTrade, error)
}

// DedupTrades removes duplicate trade ids, keeping the first occurrence (newest-first order
// is preserved since callers are expected to hand in a newest-first slice), per spec.md §4.4.
func DedupTrades(trades []MyTrade) []MyTrade {
	seen := make(map[string]bool, len(trades))
	out := make([]MyTrade, 0, len(trades))
	for _, tr := range trades {
		if tr.ID != "" && seen[tr.ID] {
			continue
		}
		seen[tr.ID] = true
		out = append(out, tr)
	}
	return out
}

// DeriveAveragePrice computes price = notional/qty when only order-level fills are available
// and an average price was not reported directly, per spec.md §4.4.
func DeriveAveragePrice(notional, qty float64) float64 {
	if qty == 0 {
		return 0
	}
	return notional / qty
}

// OpenOrderWindow is the minimum server-side lookback widened for GetOpenOrders so recently
// placed orders remain visible past the venue's default window, per spec.md §4.4.
const OpenOrderWindow = 24 * time.Hour
