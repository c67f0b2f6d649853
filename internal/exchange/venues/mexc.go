package venues

import (
	"time"

	"github.com/sawpanic/controlplane/internal/exchange"
	"github.com/sawpanic/controlplane/internal/exchange/core"
	"github.com/sawpanic/controlplane/internal/telemetry"
)

// NewMEXC builds the MEXC adapter. MEXC signs HMAC-SHA256 over the canonical query string
// and uses an underscore symbol delimiter (BTC_USDT).
func NewMEXC(apiKey, apiSecret string, minGap time.Duration, tel *telemetry.Telemetry) exchange.Adapter {
	signer := &core.HMACSigner{
		APIKey: apiKey, APISecret: apiSecret, Algo: core.HMACSHA256,
		HeaderKey: "X-MEXC-APIKEY", HeaderSign: "signature",
		PreHashFn: func(ts int64, method, path, query, body string) string { return query },
	}
	client := core.NewClient("mexc", "https://api.mexc.com", signer, minGap, tel)
	return newRestAdapter("mexc", client, Paths{
		Ticker:     "/api/v3/ticker/bookTicker",
		Balances:   "/api/v3/account",
		OpenOrders: "/api/v3/openOrders",
		PlaceOrder: "/api/v3/order",
		CancelOne:  "/api/v3/order",
		CancelAll:  "/api/v3/openOrders",
		MyTrades:   "/api/v3/myTrades",
	}, ParseFuncs{
		Ticker:     wrappedTicker("mexc", "data", "bidPrice", "askPrice", "price"),
		Balances:   wrappedBalances("mexc", "data", "balances", "asset", "free", "locked"),
		OpenOrders: wrappedOrders("mexc", "data", "orders", mapOkStateStatus),
		PlaceOrder: wrappedPlaceOrder("mexc", "data"),
		MyTrades:   wrappedTrades("mexc", "data", "trades"),
	}, 32)
}
