package venues

import (
	"time"

	"github.com/sawpanic/controlplane/internal/exchange"
	"github.com/sawpanic/controlplane/internal/exchange/core"
	"github.com/sawpanic/controlplane/internal/telemetry"
)

// NewBitmart builds the Bitmart adapter. Bitmart signs HMAC-SHA256 over
// timestamp+memo+body and uses an underscore symbol delimiter (BTC_USDT).
func NewBitmart(apiKey, apiSecret, memo string, minGap time.Duration, tel *telemetry.Telemetry) exchange.Adapter {
	signer := &core.HMACSigner{
		APIKey: apiKey, APISecret: apiSecret, Algo: core.HMACSHA256,
		HeaderKey: "X-BM-KEY", HeaderSign: "X-BM-SIGN", HeaderTime: "X-BM-TIMESTAMP",
		PreHashFn: func(ts int64, method, path, query, body string) string {
			return itoaForHash(ts) + "#" + memo + "#" + body
		},
	}
	client := core.NewClient("bitmart", "https://api-cloud.bitmart.com", signer, minGap, tel)
	return newRestAdapter("bitmart", client, Paths{
		Ticker:     "/spot/quotation/v3/ticker",
		Balances:   "/spot/v1/wallet",
		OpenOrders: "/spot/v4/query/open-orders",
		PlaceOrder: "/spot/v2/submit_order",
		CancelOne:  "/spot/v3/cancel_order",
		CancelAll:  "/spot/v4/cancel_all",
		MyTrades:   "/spot/v4/query/trades",
	}, ParseFuncs{
		Ticker:     wrappedTicker("bitmart", "data", "best_bid", "best_ask", "last_price"),
		Balances:   wrappedBalances("bitmart", "data", "wallet", "currency", "available", "frozen"),
		OpenOrders: wrappedOrders("bitmart", "data", "list", mapOkStateStatus),
		PlaceOrder: wrappedPlaceOrder("bitmart", "data"),
		MyTrades:   wrappedTrades("bitmart", "data", "trades"),
	}, 32)
}

func itoaForHash(ts int64) string {
	// Local helper kept separate from core.itoa (unexported there) to avoid a cross-package
	// dependency for a one-line integer format used only in bitmart's pre-hash string.
	s := ""
	n := ts
	if n == 0 {
		return "0"
	}
	for n > 0 {
		s = string(rune('0'+n%10)) + s
		n /= 10
	}
	return s
}
