package lnm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Tick is a single ticker update received over the WebSocket feed.
type Tick struct {
	LastPrice float64
	Index     float64
	Time      time.Time
}

// WS streams ticker updates with automatic reconnection and exponential backoff.
type WS struct {
	url          string
	isConnected  int32
	reconnects   int32
}

// NewWS creates a ticker WebSocket client for the given endpoint.
func NewWS(url string) *WS {
	return &WS{url: url}
}

// Alive reports whether the most recent connection attempt is currently established.
func (w *WS) Alive() bool {
	return atomic.LoadInt32(&w.isConnected) == 1
}

// Reconnects returns the number of reconnection attempts made by the current Stream call.
func (w *WS) Reconnects() int32 {
	return atomic.LoadInt32(&w.reconnects)
}

// Stream connects to the ticker feed and pushes updates to ticks until ctx is canceled,
// reconnecting with exponential backoff on any connection failure.
func (w *WS) Stream(ctx context.Context, ticks chan<- Tick, errs chan<- error, ping time.Duration) error {
	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			atomic.StoreInt32(&w.isConnected, 0)
			return ctx.Err()
		default:
		}

		if err := w.streamOnce(ctx, ticks, errs, ping); err != nil {
			atomic.StoreInt32(&w.isConnected, 0)
			log.Warn().Err(err).Dur("backoff", backoff).Msg("lnm ticker stream disconnected, reconnecting")
			select {
			case errs <- fmt.Errorf("ws reconnect: %w", err):
			default:
			}

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}

			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			atomic.AddInt32(&w.reconnects, 1)
			continue
		}
		backoff = time.Second
	}
}

func (w *WS) streamOnce(ctx context.Context, ticks chan<- Tick, errs chan<- error, ping time.Duration) error {
	url := strings.TrimRight(w.url, "/")

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	if err := conn.WriteJSON(map[string]any{"op": "subscribe", "args": []string{"futures:btc_usd:last-price"}}); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}

	pingTicker := time.NewTicker(ping)
	defer pingTicker.Stop()

	atomic.StoreInt32(&w.isConnected, 1)

	msgCh := make(chan []byte)
	readErrCh := make(chan error, 1)
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				readErrCh <- err
				return
			}
			msgCh <- msg
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("ping failed: %w", err)
			}

		case err := <-readErrCh:
			return fmt.Errorf("read message failed: %w", err)

		case msg := <-msgCh:
			tick, err := parseTick(msg)
			if err != nil {
				log.Debug().Err(err).Str("message", string(msg)).Msg("failed to parse ticker message")
				continue
			}
			if tick == nil {
				continue // subscription ack or unrelated message
			}
			select {
			case ticks <- *tick:
			default:
				select {
				case errs <- fmt.Errorf("tick channel full, dropping update"):
				default:
				}
			}
		}
	}
}

func parseTick(msg []byte) (*Tick, error) {
	var raw map[string]any
	if err := json.Unmarshal(msg, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	if op, ok := raw["op"].(string); ok && op == "subscribe" {
		return nil, nil
	}

	data, ok := raw["data"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("missing data field")
	}

	lastPrice, err := toFloat(data["lastPrice"])
	if err != nil {
		return nil, fmt.Errorf("invalid lastPrice: %w", err)
	}
	index, _ := toFloat(data["index"])

	var ts time.Time
	if t, ok := data["time"].(float64); ok {
		ts = time.UnixMilli(int64(t))
	} else {
		ts = time.Now()
	}

	return &Tick{LastPrice: lastPrice, Index: index, Time: ts}, nil
}

func toFloat(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case string:
		var f float64
		_, err := fmt.Sscanf(val, "%f", &f)
		return f, err
	default:
		return 0, fmt.Errorf("value type %T is not convertible to float", v)
	}
}
