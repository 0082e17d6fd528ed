package lnm_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flemosr/quantoxide-sub000/internal/exchange/lnm"
)

func TestClient_GetTicker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/futures/ticker", r.URL.Path)
		require.NotEmpty(t, r.Header.Get("LNM-ACCESS-SIGNATURE"))
		require.NotEmpty(t, r.Header.Get("LNM-ACCESS-TIMESTAMP"))
		json.NewEncoder(w).Encode(map[string]any{"lastPrice": 65000.5, "index": 65001.0, "time": 1700000000000})
	}))
	defer srv.Close()

	c := lnm.NewREST("key", "secret", "pass", srv.URL, time.Second)
	ticker, err := c.GetTicker()
	require.NoError(t, err)
	require.Equal(t, 65000.5, ticker.LastPrice)
}

func TestClient_OpenTrade(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v2/futures", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"id": "trade-1", "side": "b", "quantity": 100.0, "margin": 10000.0, "running": true,
		})
	}))
	defer srv.Close()

	c := lnm.NewREST("key", "secret", "pass", srv.URL, time.Second)
	trade, err := c.OpenTrade(lnm.OpenTradeRequest{Side: "b", Type: "m", Leverage: 10, Quantity: 100})
	require.NoError(t, err)
	require.Equal(t, "trade-1", trade.ID)
	require.True(t, trade.Running)
}

func TestClient_GetBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"balance": 1_500_000})
	}))
	defer srv.Close()

	c := lnm.NewREST("key", "secret", "pass", srv.URL, time.Second)
	balance, err := c.GetBalance()
	require.NoError(t, err)
	require.Equal(t, int64(1_500_000), balance)
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"code": 401, "message": "invalid signature"})
	}))
	defer srv.Close()

	c := lnm.NewREST("key", "secret", "pass", srv.URL, time.Second)
	_, err := c.GetTicker()
	require.Error(t, err)
}
