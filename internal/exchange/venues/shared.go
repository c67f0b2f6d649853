package venues

import (
	"encoding/json"
	"fmt"

	"github.com/sawpanic/controlplane/internal/exchange"
)

// dig walks a generic JSON document (decoded into map[string]interface{}/[]interface{}) along
// path, returning (nil, false) on any missing segment. This is the permissive-parser style named
// by spec.md §9: upstream payloads are tagged sum types with Optional fields, and parsing throws
// only on outright JSON violation, never on a missing key.
func dig(doc interface{}, path ...string) (interface{}, bool) {
	cur := doc
	for _, seg := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func asFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		var f float64
		fmt.Sscanf(t, "%f", &f)
		return f
	default:
		return 0
	}
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%v", t)
	default:
		return ""
	}
}

func decodeGeneric(body []byte) (interface{}, error) {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// wrappedTicker parses a {"data": {bidKey: ..., askKey: ...}} envelope used by the
// Bitmart/MEXC/P2B/BingX/Bitget/KuCoin/Coinstore/Pionex adapters, each under its own data-root name.
func wrappedTicker(venue, dataRoot, bidKey, askKey, lastKey string) func([]byte) (exchange.MidPrice, error) {
	return func(body []byte) (exchange.MidPrice, error) {
		doc, err := decodeGeneric(body)
		if err != nil {
			return exchange.MidPrice{}, genericErr(venue, "ticker", err)
		}
		bid, _ := dig(doc, dataRoot, bidKey)
		ask, _ := dig(doc, dataRoot, askKey)
		last, _ := dig(doc, dataRoot, lastKey)
		return exchange.MidPrice{Bid: asFloat(bid), Ask: asFloat(ask), Last: asFloat(last)}, nil
	}
}

// wrappedBalances parses a {"data": {"list": [{assetKey, freeKey, lockedKey}, ...]}} envelope.
func wrappedBalances(venue, dataRoot, listKey, assetKey, freeKey, lockedKey string) func([]byte) ([]exchange.Balance, error) {
	return func(body []byte) ([]exchange.Balance, error) {
		doc, err := decodeGeneric(body)
		if err != nil {
			return nil, genericErr(venue, "balances", err)
		}
		listRaw, ok := dig(doc, dataRoot, listKey)
		if !ok {
			return nil, nil
		}
		list, ok := listRaw.([]interface{})
		if !ok {
			return nil, nil
		}
		out := make([]exchange.Balance, 0, len(list))
		for _, item := range list {
			asset, _ := dig(item, assetKey)
			free, _ := dig(item, freeKey)
			locked, _ := dig(item, lockedKey)
			out = append(out, exchange.Balance{Asset: asString(asset), Free: asFloat(free), Locked: asFloat(locked)})
		}
		return out, nil
	}
}

// wrappedOrders parses a {"data": {"list": [...]}} open-order listing.
func wrappedOrders(venue, dataRoot, listKey string, statusMap func(string) exchange.OrderStatus) func([]byte) ([]exchange.Order, error) {
	return func(body []byte) ([]exchange.Order, error) {
		doc, err := decodeGeneric(body)
		if err != nil {
			return nil, genericErr(venue, "openOrders", err)
		}
		listRaw, ok := dig(doc, dataRoot, listKey)
		if !ok {
			return nil, nil
		}
		list, ok := listRaw.([]interface{})
		if !ok {
			return nil, nil
		}
		out := make([]exchange.Order, 0, len(list))
		for _, item := range list {
			id, _ := dig(item, "order_id")
			side, _ := dig(item, "side")
			price, _ := dig(item, "price")
			qty, _ := dig(item, "size")
			status, _ := dig(item, "state")
			clientID, _ := dig(item, "client_order_id")
			out = append(out, exchange.Order{
				ID: asString(id), Side: exchange.Side(asString(side)), Price: asFloat(price),
				Qty: asFloat(qty), Status: statusMap(asString(status)), ClientOrderID: asString(clientID),
			})
		}
		return out, nil
	}
}

// wrappedPlaceOrder parses a {"data": {"order_id": ...}} order-ack envelope.
func wrappedPlaceOrder(venue, dataRoot string) func([]byte, exchange.Quote) (exchange.Order, error) {
	return func(body []byte, req exchange.Quote) (exchange.Order, error) {
		doc, err := decodeGeneric(body)
		if err != nil {
			return exchange.Order{}, genericErr(venue, "placeOrder", err)
		}
		id, _ := dig(doc, dataRoot, "order_id")
		return exchange.Order{
			ID: asString(id), Side: req.Side, Price: req.Price, Qty: req.Qty,
			Status: exchange.OrderOpen, ClientOrderID: req.ClientOrderID,
		}, nil
	}
}

// wrappedTrades parses a {"data": {"list": [...]}} trade listing, deriving price from
// notional/qty when the venue reports only fill notional, per spec.md §4.4.
func wrappedTrades(venue, dataRoot, listKey string) func([]byte) ([]exchange.MyTrade, error) {
	return func(body []byte) ([]exchange.MyTrade, error) {
		doc, err := decodeGeneric(body)
		if err != nil {
			return nil, genericErr(venue, "myTrades", err)
		}
		listRaw, ok := dig(doc, dataRoot, listKey)
		if !ok {
			return nil, nil
		}
		list, ok := listRaw.([]interface{})
		if !ok {
			return nil, nil
		}
		out := make([]exchange.MyTrade, 0, len(list))
		for _, item := range list {
			id, _ := dig(item, "trade_id")
			orderID, _ := dig(item, "order_id")
			qty, _ := dig(item, "size")
			notional, _ := dig(item, "notional")
			ts, _ := dig(item, "create_time")
			q := asFloat(qty)
			n := asFloat(notional)
			rawPrice, _ := dig(item, "price")
			p := asFloat(rawPrice)
			if p == 0 {
				p = exchange.DeriveAveragePrice(n, q)
			}
			out = append(out, exchange.MyTrade{
				ID: asString(id), OrderID: asString(orderID), Qty: q, Notional: n,
				Price: p, Timestamp: int64(asFloat(ts)),
			})
		}
		return out, nil
	}
}

func mapOkStateStatus(s string) exchange.OrderStatus {
	switch s {
	case "open", "new", "partially_filled", "live":
		return exchange.OrderOpen
	case "filled", "done":
		return exchange.OrderFilled
	case "canceled", "cancelled", "expired":
		return exchange.OrderCanceled
	default:
		return exchange.OrderUnknown
	}
}
