package venues

import (
	"time"

	"github.com/sawpanic/controlplane/internal/exchange"
	"github.com/sawpanic/controlplane/internal/exchange/core"
	"github.com/sawpanic/controlplane/internal/telemetry"
)

// NewBingX builds the BingX adapter. BingX signs HMAC-SHA256 over the canonical query string
// and has no symbol delimiter (BTCUSDT). Its min-gap is the BINGX_MIN_GAP_MS-tunable default
// named explicitly in spec.md §6.
func NewBingX(apiKey, apiSecret string, minGap time.Duration, tel *telemetry.Telemetry) exchange.Adapter {
	signer := &core.HMACSigner{
		APIKey: apiKey, APISecret: apiSecret, Algo: core.HMACSHA256,
		HeaderKey: "X-BX-APIKEY", HeaderSign: "signature",
		PreHashFn: func(ts int64, method, path, query, body string) string { return query },
	}
	client := core.NewClient("bingx", "https://open-api.bingx.com", signer, minGap, tel)
	return newRestAdapter("bingx", client, Paths{
		Ticker:     "/openApi/spot/v1/ticker/bookTicker",
		Balances:   "/openApi/spot/v1/account/balance",
		OpenOrders: "/openApi/spot/v1/trade/openOrders",
		PlaceOrder: "/openApi/spot/v1/trade/order",
		CancelOne:  "/openApi/spot/v1/trade/cancel",
		CancelAll:  "/openApi/spot/v1/trade/cancelOpenOrders",
		MyTrades:   "/openApi/spot/v1/trade/myTrades",
	}, ParseFuncs{
		Ticker:     wrappedTicker("bingx", "data", "bidPrice", "askPrice", "lastPrice"),
		Balances:   wrappedBalances("bingx", "data", "balances", "asset", "free", "locked"),
		OpenOrders: wrappedOrders("bingx", "data", "orders", mapOkStateStatus),
		PlaceOrder: wrappedPlaceOrder("bingx", "data"),
		MyTrades:   wrappedTrades("bingx", "data", "fills"),
	}, 40)
}
