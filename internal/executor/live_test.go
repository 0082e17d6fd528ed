package executor_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flemosr/quantoxide-sub000/internal/candle"
	"github.com/flemosr/quantoxide-sub000/internal/exchange/lnm"
	"github.com/flemosr/quantoxide-sub000/internal/executor"
	"github.com/flemosr/quantoxide-sub000/internal/money"
)

func TestLiveTradeExecutor_OpenAndClose(t *testing.T) {
	var closedPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/futures":
			json.NewEncoder(w).Encode(map[string]any{
				"id": "exch-1", "side": "b", "quantity": 100.0, "margin": 10000.0,
				"leverage": 2.0, "price": 50000.0, "liquidation": 25000.0, "running": true,
			})
		case "/v2/futures/cancel":
			closedPath = r.URL.Path
			json.NewEncoder(w).Encode(map[string]any{
				"id": "exch-1", "price": 51000.0, "closed": true,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	rest := lnm.NewREST("key", "secret", "pass", srv.URL, time.Second)
	exe := executor.NewLiveTradeExecutor(rest)

	qty, _ := money.NewQuantity(100)
	margin, _ := money.NewMargin(10000)
	lev, _ := money.NewLeverage(2)

	id, err := exe.Open(context.Background(), executor.OpenParams{
		Side: money.Buy, Quantity: qty, Margin: margin, Leverage: lev,
	})
	require.NoError(t, err)
	require.Equal(t, 1, exe.TradingState().RunningLen())

	require.NoError(t, exe.Close(context.Background(), id))
	require.Equal(t, "/v2/futures/cancel", closedPath)
	require.Equal(t, 0, exe.TradingState().RunningLen())
	require.Equal(t, 1, exe.TradingState().ClosedLen())
}

func TestLiveTradeExecutor_CloseUnknownID(t *testing.T) {
	exe := executor.NewLiveTradeExecutor(lnm.NewREST("k", "s", "p", "http://unused", time.Second))
	err := exe.Close(context.Background(), [16]byte{})
	require.Error(t, err)
}

func TestLiveTradeExecutor_CandleUpdateTracksMarketPrice(t *testing.T) {
	exe := executor.NewLiveTradeExecutor(lnm.NewREST("k", "s", "p", "http://unused", time.Second))
	err := exe.CandleUpdate(context.Background(), candle.OHLC{Open: 50000, High: 50000, Low: 50000, Close: 50000})
	require.NoError(t, err)
	require.Equal(t, 50000.0, exe.TradingState().MarketPrice().AsF64())
}
