package venues

import (
	"time"

	"github.com/sawpanic/controlplane/internal/exchange"
	"github.com/sawpanic/controlplane/internal/exchange/core"
	"github.com/sawpanic/controlplane/internal/telemetry"
)

// NewPionex builds the Pionex adapter. Pionex signs HMAC-SHA256 over method+path+canonical
// query and normally uses an underscore delimiter (BTC_USDT), but some legacy symbols omit
// it; symbol.FromVenue falls back to a known-quote suffix split for those, per spec.md §4.1.
func NewPionex(apiKey, apiSecret string, minGap time.Duration, tel *telemetry.Telemetry) exchange.Adapter {
	signer := &core.HMACSigner{
		APIKey: apiKey, APISecret: apiSecret, Algo: core.HMACSHA256,
		HeaderKey: "PIONEX-KEY", HeaderSign: "PIONEX-SIGNATURE",
		PreHashFn: func(ts int64, method, path, query, body string) string { return method + path + query },
	}
	client := core.NewClient("pionex", "https://api.pionex.com", signer, minGap, tel)
	return newRestAdapter("pionex", client, Paths{
		Ticker:     "/api/v1/market/tickers",
		Balances:   "/api/v1/account/balances",
		OpenOrders: "/api/v1/trade/openOrders",
		PlaceOrder: "/api/v1/trade/order",
		CancelOne:  "/api/v1/trade/order",
		CancelAll:  "/api/v1/trade/allOpenOrders",
		MyTrades:   "/api/v1/trade/fills",
	}, ParseFuncs{
		Ticker:     wrappedTicker("pionex", "data", "bid", "ask", "close"),
		Balances:   wrappedBalances("pionex", "data", "balances", "coin", "free", "frozen"),
		OpenOrders: wrappedOrders("pionex", "data", "orders", mapOkStateStatus),
		PlaceOrder: wrappedPlaceOrder("pionex", "data"),
		MyTrades:   wrappedTrades("pionex", "data", "fills"),
	}, 40)
}
