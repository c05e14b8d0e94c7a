package mexc_ws

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/charleschow/listing-sniper/internal/telemetry"
)

const DefaultURL = "wss://wbs.mexc.com/ws"

// ErrServer is returned when the exchange answers a subscription with a
// non-zero code.
var ErrServer = errors.New("mexc_ws: server error")

// Client watches the public deals stream. It is used only as a trigger
// source: the first trade on a new pair marks the listing open.
//
// Gorilla/websocket supports one concurrent reader and one concurrent
// writer, so all writes are serialized through mu.
type Client struct {
	url      string
	dialer   *websocket.Dialer
	pingWait time.Duration
	pingIvl  time.Duration

	mu sync.Mutex
	id int
}

func NewClient(wsURL string) *Client {
	if wsURL == "" {
		wsURL = DefaultURL
	}
	return &Client{
		url: wsURL,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 5 * time.Second,
		},
		// The server drops connections idle for 60s; keep well inside that.
		pingWait: 45 * time.Second,
		pingIvl:  20 * time.Second,
	}
}

// WaitFirstTrade blocks until a trade on symbol is seen or ctx ends. It
// reconnects with exponential backoff; a subscription rejected by the
// server is returned immediately.
func (c *Client) WaitFirstTrade(ctx context.Context, symbol string) (time.Time, error) {
	symbol = strings.ToUpper(symbol)
	backoff := 250 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for attempt := 1; ; attempt++ {
		at, err := c.watch(ctx, symbol)
		if err == nil {
			return at, nil
		}
		if ctx.Err() != nil {
			return time.Time{}, ctx.Err()
		}
		if errors.Is(err, ErrServer) {
			return time.Time{}, err
		}

		telemetry.Warnf("mexc_ws: %v; reconnecting (attempt %d) in %s", err, attempt, backoff)
		select {
		case <-ctx.Done():
			return time.Time{}, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *Client) watch(ctx context.Context, symbol string) (time.Time, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	// Unblock the read when ctx ends.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := c.send(conn, "SUBSCRIPTION", DealsTopic(symbol)); err != nil {
		return time.Time{}, fmt.Errorf("subscribe: %w", err)
	}
	telemetry.Infof("mexc_ws: subscribed %s", DealsTopic(symbol))

	pingDone := make(chan struct{})
	defer close(pingDone)
	go c.keepAlive(conn, pingDone)

	conn.SetReadDeadline(time.Now().Add(c.pingWait))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return time.Time{}, fmt.Errorf("read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(c.pingWait))

		f := ParseMessage(data)
		switch f.Kind {
		case FrameTrade:
			if f.Symbol == "" || f.Symbol == symbol {
				telemetry.Infof("mexc_ws: first trade %s at %s", symbol, f.TradeAt.Format("15:04:05.000"))
				return f.TradeAt, nil
			}
		case FrameError:
			return time.Time{}, fmt.Errorf("%w: %s", ErrServer, f.Msg)
		}
	}
}

func (c *Client) keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	t := time.NewTicker(c.pingIvl)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			if err := c.send(conn, "PING"); err != nil {
				return
			}
		}
	}
}

type command struct {
	Method string   `json:"method"`
	Params []string `json:"params,omitempty"`
	ID     int      `json:"id,omitempty"`
}

func (c *Client) send(conn *websocket.Conn, method string, params ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id++
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(command{Method: method, Params: params, ID: c.id})
}

// MeasurePing opens a connection and times n PING/PONG round trips.
func (c *Client) MeasurePing(ctx context.Context, n int) ([]time.Duration, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	rtts := make([]time.Duration, 0, n)
	for i := 0; i < n; i++ {
		start := time.Now()
		if err := c.send(conn, "PING"); err != nil {
			return rtts, fmt.Errorf("ping: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return rtts, fmt.Errorf("read: %w", err)
			}
			if ParseMessage(data).Kind == FramePong {
				break
			}
		}
		rtts = append(rtts, time.Since(start))
	}
	return rtts, nil
}
