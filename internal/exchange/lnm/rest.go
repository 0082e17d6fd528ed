// Package lnm provides REST and WebSocket client implementations for the LN Markets
// exchange. It covers futures trade lifecycle operations, price and funding-settlement
// history, and the ticker WebSocket feed, with HMAC request signing per credential set.
package lnm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	pathPriceHistory      = "/v2/futures/history/price"
	pathFundingHistory    = "/v2/futures/history/funding"
	pathTrade             = "/v2/futures"
	pathTicker            = "/v2/futures/ticker"
	pathCancelTrade       = "/v2/futures/cancel"
	pathCancelAllTrades   = "/v2/futures/all/cancel"
	pathCloseAllTrades    = "/v2/futures/all/close"
	pathAddMargin         = "/v2/futures/add-margin"
	pathCashIn            = "/v2/futures/cash-in"
	pathUpdateStoploss    = "/v2/futures/stoploss"
	pathUser              = "/v2/user"
)

// Client provides signed REST access to the LN Markets exchange. It configures HTTP
// connection pooling and retries the way a production client should, independent of
// what any particular deployment's timeout budget looks like.
type Client struct {
	key, secret, passphrase, base string
	rest                          *resty.Client
}

// NewREST creates a REST client with pooled HTTP transport and retry policy.
func NewREST(key, secret, passphrase, base string, timeout time.Duration) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	r := resty.New()
	r.SetTransport(transport)

	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(10 * time.Second)
	}

	r.SetRetryCount(3)
	r.SetRetryWaitTime(500 * time.Millisecond)
	r.SetRetryMaxWaitTime(5 * time.Second)

	return &Client{key: key, secret: secret, passphrase: passphrase, base: base, rest: r}
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) isError() bool {
	return e != nil && e.Message != ""
}

// doSigned issues a signed request. body, when non-nil, is JSON-marshaled as the request
// body for POST/PUT/DELETE; params is the query string for GET requests, used verbatim (in
// the order the caller built it) as part of the signature prehash.
func (c *Client) doSigned(method, path, params string, body any, result any) error {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)

	signParams := params
	var req *resty.Request
	req = c.rest.R()

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("lnm: marshal request body: %w", err)
		}
		signParams = string(data)
		req.SetBody(data)
	}

	signature := sign(c.secret, ts, method, path, signParams)

	req.SetHeader("LNM-ACCESS-KEY", c.key).
		SetHeader("LNM-ACCESS-SIGNATURE", signature).
		SetHeader("LNM-ACCESS-PASSPHRASE", c.passphrase).
		SetHeader("LNM-ACCESS-TIMESTAMP", ts).
		SetHeader("Content-Type", "application/json")

	apiErr := &apiError{}
	req.SetError(apiErr)
	if result != nil {
		req.SetResult(result)
	}

	url := c.base + path
	if params != "" && method == http.MethodGet {
		url += "?" + params
	}

	resp, err := req.Execute(method, url)
	if err != nil {
		return fmt.Errorf("lnm: request failed: %w", err)
	}
	if apiErr.isError() {
		return fmt.Errorf("lnm: api error %d: %s", apiErr.Code, apiErr.Message)
	}
	if resp.IsError() {
		return fmt.Errorf("lnm: http status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// Ticker is the current market snapshot for the inverse perpetual contract.
type Ticker struct {
	LastPrice float64 `json:"lastPrice"`
	Index     float64 `json:"index"`
	Time      int64   `json:"time"`
}

// GetTicker fetches the current ticker snapshot.
func (c *Client) GetTicker() (*Ticker, error) {
	var t Ticker
	if err := c.doSigned(http.MethodGet, pathTicker, "", nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// PriceHistoryPoint is a single historical price-index observation.
type PriceHistoryPoint struct {
	Time  int64   `json:"time"`
	Price float64 `json:"price"`
}

// GetPriceHistory fetches historical index prices in [from, to], oldest first, capped at
// limit points.
func (c *Client) GetPriceHistory(from, to time.Time, limit int) ([]PriceHistoryPoint, error) {
	params := fmt.Sprintf("from=%d&to=%d&limit=%d", from.UnixMilli(), to.UnixMilli(), limit)
	var points []PriceHistoryPoint
	if err := c.doSigned(http.MethodGet, pathPriceHistory, params, nil, &points); err != nil {
		return nil, err
	}
	return points, nil
}

// FundingSettlementDTO is a single funding settlement event as returned by the exchange.
type FundingSettlementDTO struct {
	ID          string  `json:"id"`
	Time        int64   `json:"time"`
	FixingPrice float64 `json:"fixingPrice"`
	FundingRate float64 `json:"fundingRate"`
}

// GetFundingHistory fetches funding settlement events in [from, to], oldest first.
func (c *Client) GetFundingHistory(from, to time.Time, limit int) ([]FundingSettlementDTO, error) {
	params := fmt.Sprintf("from=%d&to=%d&limit=%d", from.UnixMilli(), to.UnixMilli(), limit)
	var settlements []FundingSettlementDTO
	if err := c.doSigned(http.MethodGet, pathFundingHistory, params, nil, &settlements); err != nil {
		return nil, err
	}
	return settlements, nil
}

// OpenTradeRequest is the payload for opening a new running trade.
type OpenTradeRequest struct {
	Side       string  `json:"side"`
	Type       string  `json:"type"` // "m" market, "l" limit
	Leverage   float64 `json:"leverage"`
	Quantity   float64 `json:"quantity"`
	Margin     float64 `json:"margin,omitempty"`
	Price      float64 `json:"price,omitempty"` // limit price
	Takeprofit float64 `json:"takeprofit,omitempty"`
	Stoploss   float64 `json:"stoploss,omitempty"`
}

// TradeDTO is the exchange's representation of a trade, running or closed.
type TradeDTO struct {
	ID           string  `json:"id"`
	Side         string  `json:"side"`
	Quantity     float64 `json:"quantity"`
	Margin       float64 `json:"margin"`
	Leverage     float64 `json:"leverage"`
	Price        float64 `json:"price"`
	Liquidation  float64 `json:"liquidation"`
	Stoploss     float64 `json:"stoploss"`
	Takeprofit   float64 `json:"takeprofit"`
	Open         bool    `json:"open"`
	Running      bool    `json:"running"`
	Closed       bool    `json:"closed"`
	PL           float64 `json:"pl"`
	CreationTs   int64   `json:"creation_ts"`
	MarketFilledTs int64 `json:"market_filled_ts"`
	ClosedTs     int64   `json:"closed_ts"`
	SumFunding   float64 `json:"sum_carry_fees"`
}

// OpenTrade opens a new trade.
func (c *Client) OpenTrade(req OpenTradeRequest) (*TradeDTO, error) {
	var dto TradeDTO
	if err := c.doSigned(http.MethodPost, pathTrade, "", req, &dto); err != nil {
		return nil, err
	}
	return &dto, nil
}

type idRequest struct {
	ID string `json:"id"`
}

// CloseTrade closes a single running trade by ID.
func (c *Client) CloseTrade(id string) (*TradeDTO, error) {
	var dto TradeDTO
	if err := c.doSigned(http.MethodDelete, pathCancelTrade, "", idRequest{ID: id}, &dto); err != nil {
		return nil, err
	}
	return &dto, nil
}

// CloseAllTrades closes every running trade.
func (c *Client) CloseAllTrades() error {
	return c.doSigned(http.MethodPost, pathCloseAllTrades, "", nil, nil)
}

// CancelAllTrades cancels every pending (not-yet-filled) trade.
func (c *Client) CancelAllTrades() error {
	return c.doSigned(http.MethodPost, pathCancelAllTrades, "", nil, nil)
}

type cashInRequest struct {
	ID     string  `json:"id"`
	Amount float64 `json:"amount"`
}

// CashIn withdraws realized profit from a running trade without closing it.
func (c *Client) CashIn(id string, amount float64) (*TradeDTO, error) {
	var dto TradeDTO
	if err := c.doSigned(http.MethodPost, pathCashIn, "", cashInRequest{ID: id, Amount: amount}, &dto); err != nil {
		return nil, err
	}
	return &dto, nil
}

type addMarginRequest struct {
	ID     string  `json:"id"`
	Amount float64 `json:"amount"`
}

// AddMargin adds margin to a running trade.
func (c *Client) AddMargin(id string, amount float64) (*TradeDTO, error) {
	var dto TradeDTO
	if err := c.doSigned(http.MethodPost, pathAddMargin, "", addMarginRequest{ID: id, Amount: amount}, &dto); err != nil {
		return nil, err
	}
	return &dto, nil
}

type updateStoplossRequest struct {
	ID       string  `json:"id"`
	Stoploss float64 `json:"stoploss"`
}

// UpdateStoploss sets a new stoploss on a running trade.
func (c *Client) UpdateStoploss(id string, stoploss float64) (*TradeDTO, error) {
	var dto TradeDTO
	if err := c.doSigned(http.MethodPut, pathUpdateStoploss, "", updateStoplossRequest{ID: id, Stoploss: stoploss}, &dto); err != nil {
		return nil, err
	}
	return &dto, nil
}

// UserInfo is the authenticated account snapshot.
type UserInfo struct {
	Balance int64 `json:"balance"` // sats
}

// GetBalance fetches the authenticated account's current balance in sats.
func (c *Client) GetBalance() (int64, error) {
	var u UserInfo
	if err := c.doSigned(http.MethodGet, pathUser, "", nil, &u); err != nil {
		return 0, err
	}
	return u.Balance, nil
}
