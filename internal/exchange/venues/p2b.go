package venues

import (
	"time"

	"github.com/sawpanic/controlplane/internal/exchange"
	"github.com/sawpanic/controlplane/internal/exchange/core"
	"github.com/sawpanic/controlplane/internal/telemetry"
)

// NewP2B builds the P2B adapter. P2B signs HMAC-SHA512 over the request body and uses an
// underscore symbol delimiter (BTC_USDT).
func NewP2B(apiKey, apiSecret string, minGap time.Duration, tel *telemetry.Telemetry) exchange.Adapter {
	signer := &core.HMACSigner{
		APIKey: apiKey, APISecret: apiSecret, Algo: core.HMACSHA512,
		HeaderKey: "X-TXC-APIKEY", HeaderSign: "X-TXC-SIGNATURE",
		PreHashFn: func(ts int64, method, path, query, body string) string { return body },
	}
	client := core.NewClient("p2b", "https://api.p2pb2b.com", signer, minGap, tel)
	return newRestAdapter("p2b", client, Paths{
		Ticker:     "/api/v2/public/ticker",
		Balances:   "/api/v2/io/account/balances",
		OpenOrders: "/api/v2/io/orders",
		PlaceOrder: "/api/v2/io/orders",
		CancelOne:  "/api/v2/io/order/cancel",
		CancelAll:  "/api/v2/io/orders/cancel_all",
		MyTrades:   "/api/v2/io/account/trades",
	}, ParseFuncs{
		Ticker:     wrappedTicker("p2b", "result", "bid", "ask", "last"),
		Balances:   wrappedBalances("p2b", "result", "balances", "currency", "available", "freeze"),
		OpenOrders: wrappedOrders("p2b", "result", "orders", mapOkStateStatus),
		PlaceOrder: wrappedPlaceOrder("p2b", "result"),
		MyTrades:   wrappedTrades("p2b", "result", "trades"),
	}, 32)
}
