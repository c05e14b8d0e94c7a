package mexc_http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/charleschow/listing-sniper/internal/core/latency"
	"github.com/charleschow/listing-sniper/internal/core/trading"
)

// Ping hits the unauthenticated ping endpoint. Its only use is to open
// (and TLS-handshake) a pooled connection ahead of the timed buy.
func (c *Client) Ping(ctx context.Context) (latency.Sample, error) {
	resp, err := c.do(ctx, "ping", http.MethodGet, pathPing, "", "")
	if err != nil {
		return resp.sample, err
	}
	if resp.status != http.StatusOK {
		return resp.sample, rejection("ping", resp, "unexpected status")
	}
	return resp.sample, nil
}

type serverTimeResponse struct {
	ServerTime int64 `json:"serverTime"`
}

// GetServerTime returns the exchange clock in epoch milliseconds.
func (c *Client) GetServerTime(ctx context.Context) (int64, latency.Sample, error) {
	resp, err := c.do(ctx, "server_time", http.MethodGet, pathTime, "", "")
	if err != nil {
		return 0, resp.sample, err
	}
	if resp.status != http.StatusOK {
		return 0, resp.sample, rejection("server_time", resp, "unexpected status")
	}

	var st serverTimeResponse
	if err := json.Unmarshal(resp.body, &st); err != nil || st.ServerTime <= 0 {
		return 0, resp.sample, &trading.ExchangeRejection{
			Op:     "server_time",
			Status: resp.status,
			Reason: "missing serverTime",
			Body:   string(resp.body),
		}
	}
	return st.ServerTime, resp.sample, nil
}
