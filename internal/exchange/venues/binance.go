package venues

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/sawpanic/controlplane/internal/exchange"
	"github.com/sawpanic/controlplane/internal/exchange/core"
	"github.com/sawpanic/controlplane/internal/telemetry"
)

// NewBinance builds the Binance adapter. Binance signs with HMAC-SHA256 over a query string
// and has no symbol delimiter (BTCUSDT), per spec.md §4.1.
func NewBinance(apiKey, apiSecret string, minGap time.Duration, tel *telemetry.Telemetry) exchange.Adapter {
	signer := &core.HMACSigner{
		APIKey: apiKey, APISecret: apiSecret, Algo: core.HMACSHA256,
		HeaderKey: "X-MBX-APIKEY", HeaderSign: "signature",
		PreHashFn: func(ts int64, method, path, query, body string) string { return query },
	}
	client := core.NewClient("binance", "https://api.binance.com", signer, minGap, tel)
	return newRestAdapter("binance", client, Paths{
		Ticker:     "/api/v3/ticker/bookTicker",
		Balances:   "/api/v3/account",
		OpenOrders: "/api/v3/openOrders",
		PlaceOrder: "/api/v3/order",
		CancelOne:  "/api/v3/order",
		CancelAll:  "/api/v3/openOrders",
		MyTrades:   "/api/v3/myTrades",
	}, ParseFuncs{
		Ticker: func(body []byte) (exchange.MidPrice, error) {
			var t struct {
				BidPrice string `json:"bidPrice"`
				AskPrice string `json:"askPrice"`
			}
			if err := json.Unmarshal(body, &t); err != nil {
				return exchange.MidPrice{}, genericErr("binance", "ticker", err)
			}
			bid, _ := strconv.ParseFloat(t.BidPrice, 64)
			ask, _ := strconv.ParseFloat(t.AskPrice, 64)
			return exchange.MidPrice{Bid: bid, Ask: ask}, nil
		},
		Balances: func(body []byte) ([]exchange.Balance, error) {
			var acc struct {
				Balances []struct {
					Asset  string `json:"asset"`
					Free   string `json:"free"`
					Locked string `json:"locked"`
				} `json:"balances"`
			}
			if err := json.Unmarshal(body, &acc); err != nil {
				return nil, genericErr("binance", "balances", err)
			}
			out := make([]exchange.Balance, 0, len(acc.Balances))
			for _, b := range acc.Balances {
				free, _ := strconv.ParseFloat(b.Free, 64)
				locked, _ := strconv.ParseFloat(b.Locked, 64)
				out = append(out, exchange.Balance{Asset: b.Asset, Free: free, Locked: locked})
			}
			return out, nil
		},
		OpenOrders: func(body []byte) ([]exchange.Order, error) {
			var raw []struct {
				OrderID       int64  `json:"orderId"`
				Symbol        string `json:"symbol"`
				Side          string `json:"side"`
				Price         string `json:"price"`
				OrigQty       string `json:"origQty"`
				Status        string `json:"status"`
				ClientOrderID string `json:"clientOrderId"`
			}
			if err := json.Unmarshal(body, &raw); err != nil {
				return nil, genericErr("binance", "openOrders", err)
			}
			out := make([]exchange.Order, 0, len(raw))
			for _, o := range raw {
				price, _ := strconv.ParseFloat(o.Price, 64)
				qty, _ := strconv.ParseFloat(o.OrigQty, 64)
				out = append(out, exchange.Order{
					ID: strconv.FormatInt(o.OrderID, 10), Side: exchange.Side(o.Side),
					Price: price, Qty: qty, Status: mapBinanceStatus(o.Status), ClientOrderID: o.ClientOrderID,
				})
			}
			return out, nil
		},
		PlaceOrder: func(body []byte, req exchange.Quote) (exchange.Order, error) {
			var raw struct {
				OrderID       int64  `json:"orderId"`
				Status        string `json:"status"`
				ClientOrderID string `json:"clientOrderId"`
			}
			if err := json.Unmarshal(body, &raw); err != nil {
				return exchange.Order{}, genericErr("binance", "placeOrder", err)
			}
			return exchange.Order{
				ID: strconv.FormatInt(raw.OrderID, 10), Side: req.Side, Price: req.Price, Qty: req.Qty,
				Status: mapBinanceStatus(raw.Status), ClientOrderID: raw.ClientOrderID,
			}, nil
		},
		MyTrades: func(body []byte) ([]exchange.MyTrade, error) {
			var raw []struct {
				ID       int64  `json:"id"`
				OrderID  int64  `json:"orderId"`
				Side     string `json:"isBuyer"`
				Price    string `json:"price"`
				Qty      string `json:"qty"`
				QuoteQty string `json:"quoteQty"`
				Time     int64  `json:"time"`
			}
			if err := json.Unmarshal(body, &raw); err != nil {
				return nil, genericErr("binance", "myTrades", err)
			}
			out := make([]exchange.MyTrade, 0, len(raw))
			for _, t := range raw {
				price, _ := strconv.ParseFloat(t.Price, 64)
				qty, _ := strconv.ParseFloat(t.Qty, 64)
				notional, _ := strconv.ParseFloat(t.QuoteQty, 64)
				if notional == 0 {
					notional = price * qty
				}
				out = append(out, exchange.MyTrade{
					ID: strconv.FormatInt(t.ID, 10), OrderID: strconv.FormatInt(t.OrderID, 10),
					Price: price, Qty: qty, Notional: notional, Timestamp: t.Time,
				})
			}
			return out, nil
		},
	}, 36)
}

func mapBinanceStatus(s string) exchange.OrderStatus {
	switch s {
	case "NEW", "PARTIALLY_FILLED":
		return exchange.OrderOpen
	case "FILLED":
		return exchange.OrderFilled
	case "CANCELED", "EXPIRED", "REJECTED":
		return exchange.OrderCanceled
	default:
		return exchange.OrderUnknown
	}
}
