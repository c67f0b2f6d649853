package venues

import (
	"time"

	"github.com/sawpanic/controlplane/internal/exchange"
	"github.com/sawpanic/controlplane/internal/exchange/core"
	"github.com/sawpanic/controlplane/internal/telemetry"
)

// NewCoinstore builds the Coinstore adapter. Coinstore signs HMAC-SHA256 keyed directly by the
// API secret over the default timestamp+method+path+query+body pre-hash; no per-timestamp key
// is derived from the secret. It has no symbol delimiter (BTCUSDT).
func NewCoinstore(apiKey, apiSecret string, minGap time.Duration, tel *telemetry.Telemetry) exchange.Adapter {
	signer := &core.HMACSigner{
		APIKey: apiKey, APISecret: apiSecret, Algo: core.HMACSHA256,
		HeaderKey: "X-CS-APIKEY", HeaderSign: "X-CS-SIGN", HeaderTime: "X-CS-EXPIRES",
	}
	client := core.NewClient("coinstore", "https://api.coinstore.com", signer, minGap, tel)
	return newRestAdapter("coinstore", client, Paths{
		Ticker:     "/api/v1/market/tickers",
		Balances:   "/api/spot/accountList",
		OpenOrders: "/api/trade/order/active",
		PlaceOrder: "/api/trade/order/place",
		CancelOne:  "/api/trade/order/cancel",
		CancelAll:  "/api/trade/order/cancelAll",
		MyTrades:   "/api/trade/match/accountMatches",
	}, ParseFuncs{
		Ticker:     wrappedTicker("coinstore", "data", "bid", "ask", "close"),
		Balances:   wrappedBalances("coinstore", "data", "list", "currency", "available", "frozen"),
		OpenOrders: wrappedOrders("coinstore", "data", "list", mapOkStateStatus),
		PlaceOrder: wrappedPlaceOrder("coinstore", "data"),
		MyTrades:   wrappedTrades("coinstore", "data", "list"),
	}, 32)
}
