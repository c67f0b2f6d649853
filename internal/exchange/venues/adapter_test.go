package venues

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sawpanic/controlplane/internal/ctlerr"
	"github.com/sawpanic/controlplane/internal/domain/normalize"
	"github.com/sawpanic/controlplane/internal/exchange"
	"github.com/sawpanic/controlplane/internal/exchange/core"
	"github.com/sawpanic/controlplane/internal/telemetry"
)

func newTestAdapter(t *testing.T, srv *httptest.Server) *restAdapter {
	t.Helper()
	tel := telemetry.New(prometheus.NewRegistry(), "test")
	client := core.NewClient("testvenue", srv.URL, nil, time.Millisecond, tel)
	return newRestAdapter("testvenue", client, Paths{
		Ticker:     "/ticker",
		Balances:   "/balances",
		OpenOrders: "/openOrders",
		PlaceOrder: "/order",
		CancelOne:  "/order",
		CancelAll:  "/orders",
		MyTrades:   "/trades",
	}, ParseFuncs{
		Ticker:     wrappedTicker("testvenue", "data", "bid", "ask", "last"),
		Balances:   wrappedBalances("testvenue", "data", "list", "asset", "free", "locked"),
		OpenOrders: wrappedOrders("testvenue", "data", "list", mapOkStateStatus),
		PlaceOrder: wrappedPlaceOrder("testvenue", "data"),
		MyTrades:   wrappedTrades("testvenue", "data", "list"),
	}, 32)
}

func TestPlaceOrderBelowMinimumsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"order_id":"1"}}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv)
	a.catalog.SetMeta("BTC_USDT", normalize.SymbolMeta{QtyStep: 0.001, MinQty: 0.01, MinNotional: 5})

	_, err := a.PlaceOrder(context.Background(), exchange.Quote{
		Symbol: "BTC/USDT", Side: exchange.SideBuy, Type: exchange.OrderTypeLimit,
		Price: 10, Qty: 0.005,
	})
	cpe, ok := err.(ctlerr.ControlPlaneError)
	if !ok || cpe.Code() != ctlerr.CodeBelowMinimums {
		t.Fatalf("expected below_minimums error, got %v", err)
	}
}

func TestPlaceOrderLimitRequiresPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"order_id":"1"}}`))
	}))
	defer srv.Close()
	a := newTestAdapter(t, srv)

	_, err := a.PlaceOrder(context.Background(), exchange.Quote{
		Symbol: "BTC/USDT", Side: exchange.SideBuy, Type: exchange.OrderTypeLimit, Qty: 1,
	})
	cpe, ok := err.(ctlerr.ControlPlaneError)
	if !ok || cpe.Code() != ctlerr.CodeUnsupportedType {
		t.Fatalf("expected unsupported_type error, got %v", err)
	}
}

func TestGetOpenOrdersFiltersToOpenOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"list":[
			{"order_id":"1","state":"open"},
			{"order_id":"2","state":"filled"}
		]}}`))
	}))
	defer srv.Close()
	a := newTestAdapter(t, srv)

	orders, err := a.GetOpenOrders(context.Background(), "BTC/USDT")
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 1 || orders[0].ID != "1" {
		t.Fatalf("expected only the open order, got %+v", orders)
	}
}
