package venues

import (
	"time"

	"github.com/sawpanic/controlplane/internal/exchange"
	"github.com/sawpanic/controlplane/internal/exchange/core"
	"github.com/sawpanic/controlplane/internal/telemetry"
)

// NewKuCoin builds the KuCoin adapter. KuCoin signs HMAC-SHA256 over
// timestamp+method+path+query+body and uses a dash symbol delimiter (BTC-USDT).
func NewKuCoin(apiKey, apiSecret, passphrase string, minGap time.Duration, tel *telemetry.Telemetry) exchange.Adapter {
	signer := &core.HMACSigner{
		APIKey: apiKey, APISecret: apiSecret, Algo: core.HMACSHA256,
		HeaderKey: "KC-API-KEY", HeaderSign: "KC-API-SIGN", HeaderTime: "KC-API-TIMESTAMP",
		ExtraHeaders: map[string]string{"KC-API-PASSPHRASE": passphrase, "KC-API-KEY-VERSION": "2"},
	}
	client := core.NewClient("kucoin", "https://api.kucoin.com", signer, minGap, tel)
	return newRestAdapter("kucoin", client, Paths{
		Ticker:     "/api/v1/market/orderbook/level1",
		Balances:   "/api/v1/accounts",
		OpenOrders: "/api/v1/orders",
		PlaceOrder: "/api/v1/orders",
		CancelOne:  "/api/v1/orders",
		CancelAll:  "/api/v1/orders",
		MyTrades:   "/api/v1/fills",
	}, ParseFuncs{
		Ticker:     wrappedTicker("kucoin", "data", "bestBid", "bestAsk", "price"),
		Balances:   wrappedBalances("kucoin", "data", "accounts", "currency", "available", "holds"),
		OpenOrders: wrappedOrders("kucoin", "data", "items", mapOkStateStatus),
		PlaceOrder: wrappedPlaceOrder("kucoin", "data"),
		MyTrades:   wrappedTrades("kucoin", "data", "items"),
	}, 40)
}
