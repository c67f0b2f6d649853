package venues

import (
	"time"

	"github.com/sawpanic/controlplane/internal/exchange"
	"github.com/sawpanic/controlplane/internal/exchange/core"
	"github.com/sawpanic/controlplane/internal/telemetry"
)

// NewBitget builds the Bitget adapter. Bitget signs HMAC-SHA256 over
// timestamp+method+path+query+body and uses an underscore symbol delimiter (BTC_USDT).
func NewBitget(apiKey, apiSecret, passphrase string, minGap time.Duration, tel *telemetry.Telemetry) exchange.Adapter {
	signer := &core.HMACSigner{
		APIKey: apiKey, APISecret: apiSecret, Algo: core.HMACSHA256,
		HeaderKey: "ACCESS-KEY", HeaderSign: "ACCESS-SIGN", HeaderTime: "ACCESS-TIMESTAMP",
		ExtraHeaders: map[string]string{"ACCESS-PASSPHRASE": passphrase},
	}
	client := core.NewClient("bitget", "https://api.bitget.com", signer, minGap, tel)
	return newRestAdapter("bitget", client, Paths{
		Ticker:     "/api/v2/spot/market/tickers",
		Balances:   "/api/v2/spot/account/assets",
		OpenOrders: "/api/v2/spot/trade/unfilled-orders",
		PlaceOrder: "/api/v2/spot/trade/place-order",
		CancelOne:  "/api/v2/spot/trade/cancel-order",
		CancelAll:  "/api/v2/spot/trade/cancel-symbol-order",
		MyTrades:   "/api/v2/spot/trade/fills",
	}, ParseFuncs{
		Ticker:     wrappedTicker("bitget", "data", "bidPr", "askPr", "lastPr"),
		Balances:   wrappedBalances("bitget", "data", "assets", "coin", "available", "frozen"),
		OpenOrders: wrappedOrders("bitget", "data", "orderList", mapOkStateStatus),
		PlaceOrder: wrappedPlaceOrder("bitget", "data"),
		MyTrades:   wrappedTrades("bitget", "data", "fillList"),
	}, 32)
}
