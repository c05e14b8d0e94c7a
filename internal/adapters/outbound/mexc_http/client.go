package mexc_http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/charleschow/listing-sniper/internal/adapters/mexc_auth"
	"github.com/charleschow/listing-sniper/internal/core/latency"
	"github.com/charleschow/listing-sniper/internal/core/trading"
	"github.com/charleschow/listing-sniper/internal/telemetry"
)

const (
	DefaultBaseURL = "https://api.mexc.com"

	pathPing  = "/api/v3/ping"
	pathTime  = "/api/v3/time"
	pathOrder = "/api/v3/order"

	apiKeyHeader = "X-MEXC-APIKEY"
)

// Client talks to the MEXC spot v3 REST API. It owns its transport, so one
// client per run keeps connections (and timestamps) from leaking between
// runs. Call Close when the run ends.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	transport    *http.Transport
	clock        mexc_auth.TimeSource
	recvWindowMs int64
	readLimiter  *rate.Limiter
	writeLimiter *rate.Limiter
}

type Option func(*Client)

// WithHTTPTimeout bounds every request, including the body read.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithTimeSource sets the clock used for the signed timestamp.
func WithTimeSource(ts mexc_auth.TimeSource) Option {
	return func(c *Client) {
		if ts != nil {
			c.clock = ts
		}
	}
}

func WithRecvWindow(ms int64) Option {
	return func(c *Client) {
		if ms > 0 {
			c.recvWindowMs = ms
		}
	}
}

// WithHTTPClient replaces the owned client. Close then only drops idle
// connections when the replacement uses an *http.Transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc == nil {
			return
		}
		c.httpClient = hc
		if tr, ok := hc.Transport.(*http.Transport); ok {
			c.transport = tr
		} else {
			c.transport = nil
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	c := &Client{
		baseURL:      baseURL,
		transport:    tr,
		httpClient:   &http.Client{Transport: tr, Timeout: 10 * time.Second},
		clock:        mexc_auth.LocalClock{},
		recvWindowMs: mexc_auth.DefaultRecvWindowMs,
		readLimiter:  rate.NewLimiter(rate.Limit(20), 20),
		writeLimiter: rate.NewLimiter(rate.Limit(10), 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close drops pooled connections.
func (c *Client) Close() {
	if c.transport != nil {
		c.transport.CloseIdleConnections()
	}
}

// response is one completed round trip.
type response struct {
	body   []byte
	status int
	sample latency.Sample
}

// do issues a request with an empty body. query is appended verbatim (it is
// already canonical and signed where required). The returned sample covers
// only the Do call plus the body read; it is non-zero whenever the request
// was handed to the transport, even on error.
func (c *Client) do(ctx context.Context, op, method, path, query, apiKey string) (response, error) {
	lim := c.readLimiter
	if method != http.MethodGet {
		lim = c.writeLimiter
	}
	waitStart := time.Now()
	if err := lim.Wait(ctx); err != nil {
		return response{}, &trading.TransportError{Op: op, Err: fmt.Errorf("rate limit wait: %w", err)}
	}
	telemetry.Metrics.RateLimiterWait.Record(time.Since(waitStart))

	target := c.baseURL + path
	if query != "" {
		target += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, method, target, http.NoBody)
	if err != nil {
		return response{}, &trading.TransportError{Op: op, Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set(apiKeyHeader, apiKey)
	}

	telemetry.Metrics.ExchangeCalls.Inc()
	sent := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The signed query must not reach logs or alerts.
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = c.baseURL + path
		}
		return response{sample: latency.NewSample(op, sent, time.Now())},
			&trading.TransportError{Op: op, Err: err}
	}
	body, err := io.ReadAll(resp.Body)
	received := time.Now()
	resp.Body.Close()

	sample := latency.NewSample(op, sent, received)
	telemetry.Metrics.RoundTripLatency.Record(sample.Duration())
	if err != nil {
		return response{status: resp.StatusCode, sample: sample},
			&trading.TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	telemetry.Infof("mexc_http: %s %s -> %d (%dms)", method, path, resp.StatusCode, sample.Millis)

	return response{body: body, status: resp.StatusCode, sample: sample}, nil
}

// signed builds the signed query for params with the client's clock and
// receive window.
func (c *Client) signed(creds trading.Credentials, params map[string]string) (string, error) {
	signer, err := mexc_auth.NewSigner(creds.APISecret)
	if err != nil {
		return "", err
	}
	return signer.SignWithTime(params, c.clock, c.recvWindowMs).Encode(), nil
}
