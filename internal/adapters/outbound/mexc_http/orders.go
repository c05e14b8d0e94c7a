package mexc_http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/charleschow/listing-sniper/internal/core/latency"
	"github.com/charleschow/listing-sniper/internal/core/trading"
	"github.com/charleschow/listing-sniper/internal/telemetry"
)

// flexString accepts a JSON string or number. The exchange returns orderId
// and error codes as either depending on endpoint and account.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// orderResponse covers both the place-order and query-order bodies, plus
// the {code,msg} error shape.
type orderResponse struct {
	OrderID             flexString  `json:"orderId"`
	Symbol              string      `json:"symbol"`
	Side                string      `json:"side"`
	Type                string      `json:"type"`
	Status              string      `json:"status"`
	Price               flexString  `json:"price"`
	OrigQty             flexString  `json:"origQty"`
	OrigQuoteOrderQty   flexString  `json:"origQuoteOrderQty"`
	ExecutedQty         *flexString `json:"executedQty"`
	CummulativeQuoteQty flexString  `json:"cummulativeQuoteQty"`

	Code flexString `json:"code"`
	Msg  string     `json:"msg"`
}

// PlaceMarketBuy spends quoteAmount of the quote currency at market.
func (c *Client) PlaceMarketBuy(ctx context.Context, symbol string, quoteAmount decimal.Decimal, creds trading.Credentials) (*trading.OrderRecord, latency.Sample, error) {
	params := map[string]string{
		"symbol":        symbol,
		"side":          string(trading.SideBuy),
		"type":          string(trading.OrderMarket),
		"quoteOrderQty": quoteAmount.String(),
	}
	rec, sample, err := c.placeOrder(ctx, "place_market_buy", params, creds)
	if err != nil {
		return nil, sample, err
	}
	rec.Side = trading.SideBuy
	rec.Type = trading.OrderMarket
	rec.RequestedQuote = quoteAmount
	return rec, sample, nil
}

// PlaceLimitSell rests a GTC sell. Quantity and price go out with exactly
// eight fractional digits.
func (c *Client) PlaceLimitSell(ctx context.Context, symbol string, qty, price decimal.Decimal, creds trading.Credentials) (*trading.OrderRecord, latency.Sample, error) {
	params := map[string]string{
		"symbol":      symbol,
		"side":        string(trading.SideSell),
		"type":        string(trading.OrderLimit),
		"timeInForce": trading.TimeInForceGTC,
		"quantity":    trading.FormatFixed(qty),
		"price":       trading.FormatFixed(price),
	}
	rec, sample, err := c.placeOrder(ctx, "place_limit_sell", params, creds)
	if err != nil {
		return nil, sample, err
	}
	rec.Side = trading.SideSell
	rec.Type = trading.OrderLimit
	rec.RequestedQty = qty
	rec.Price = price
	return rec, sample, nil
}

func (c *Client) placeOrder(ctx context.Context, op string, params map[string]string, creds trading.Credentials) (*trading.OrderRecord, latency.Sample, error) {
	query, err := c.signed(creds, params)
	if err != nil {
		return nil, latency.Sample{}, err
	}

	resp, err := c.do(ctx, op, http.MethodPost, pathOrder, query, creds.APIKey)
	if err != nil {
		telemetry.Metrics.OrderErrors.Inc()
		return nil, resp.sample, err
	}

	parsed, perr := parseOrder(resp.body)
	if resp.status != http.StatusOK {
		telemetry.Metrics.OrderErrors.Inc()
		return nil, resp.sample, rejectionWith(op, resp, parsed, "unexpected status")
	}
	if perr != nil || parsed.OrderID == "" {
		telemetry.Metrics.OrderErrors.Inc()
		return nil, resp.sample, rejectionWith(op, resp, parsed, "response has no orderId")
	}

	telemetry.Metrics.OrdersSent.Inc()
	telemetry.Infof("mexc: %s %s placed -> %s", params["side"], params["symbol"], parsed.OrderID)

	return &trading.OrderRecord{
		OrderID: string(parsed.OrderID),
		Symbol:  params["symbol"],
		Status:  parsed.Status,
		Raw:     string(resp.body),
	}, resp.sample, nil
}

// GetOrder queries an order's fill. executedQty is required; a response
// without it fails closed rather than reading as zero.
func (c *Client) GetOrder(ctx context.Context, symbol, orderID string, creds trading.Credentials) (*trading.OrderRecord, latency.Sample, error) {
	const op = "get_order"
	query, err := c.signed(creds, map[string]string{
		"symbol":  symbol,
		"orderId": orderID,
	})
	if err != nil {
		return nil, latency.Sample{}, err
	}

	resp, err := c.do(ctx, op, http.MethodGet, pathOrder, query, creds.APIKey)
	if err != nil {
		return nil, resp.sample, err
	}

	parsed, perr := parseOrder(resp.body)
	if resp.status != http.StatusOK {
		return nil, resp.sample, rejectionWith(op, resp, parsed, "unexpected status")
	}
	if perr != nil {
		return nil, resp.sample, rejectionWith(op, resp, parsed, "unparseable order body")
	}
	if parsed.ExecutedQty == nil {
		return nil, resp.sample, rejectionWith(op, resp, parsed, "response has no executedQty")
	}

	rec, err := toRecord(parsed)
	if err != nil {
		return nil, resp.sample, rejectionWith(op, resp, parsed, err.Error())
	}
	if rec.OrderID == "" {
		rec.OrderID = orderID
	}
	if rec.Symbol == "" {
		rec.Symbol = symbol
	}
	rec.Raw = string(resp.body)
	return rec, resp.sample, nil
}

func parseOrder(body []byte) (orderResponse, error) {
	var r orderResponse
	err := json.Unmarshal(body, &r)
	return r, err
}

func toRecord(r orderResponse) (*trading.OrderRecord, error) {
	executed, err := decimalField("executedQty", string(*r.ExecutedQty))
	if err != nil {
		return nil, err
	}
	if r.Price == "" && r.CummulativeQuoteQty == "" {
		return nil, &fieldError{name: "price", missing: true}
	}
	price, err := decimalField("price", string(r.Price))
	if err != nil {
		return nil, err
	}
	quote, err := decimalField("cummulativeQuoteQty", string(r.CummulativeQuoteQty))
	if err != nil {
		return nil, err
	}
	origQty, err := decimalField("origQty", string(r.OrigQty))
	if err != nil {
		return nil, err
	}
	origQuote, err := decimalField("origQuoteOrderQty", string(r.OrigQuoteOrderQty))
	if err != nil {
		return nil, err
	}

	// Market orders report price 0; the average fill is quote spent over
	// quantity received.
	execPrice := price
	if !execPrice.IsPositive() && quote.IsPositive() && executed.IsPositive() {
		execPrice = quote.DivRound(executed, trading.PriceScale)
	}

	return &trading.OrderRecord{
		OrderID:        string(r.OrderID),
		Symbol:         r.Symbol,
		Side:           trading.Side(r.Side),
		Type:           trading.OrderType(r.Type),
		Status:         r.Status,
		RequestedQty:   origQty,
		RequestedQuote: origQuote,
		Price:          price,
		ExecutedQty:    executed,
		ExecutedPrice:  execPrice,
	}, nil
}

// decimalField parses an optional decimal; empty means zero.
func decimalField(name, v string) (decimal.Decimal, error) {
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, &fieldError{name: name, value: v}
	}
	return d, nil
}

type fieldError struct {
	name, value string
	missing     bool
}

func (e *fieldError) Error() string {
	if e.missing {
		return "response has no " + e.name
	}
	return "bad " + e.name + " " + strconv.Quote(e.value)
}

func rejection(op string, resp response, reason string) *trading.ExchangeRejection {
	parsed, _ := parseOrder(resp.body)
	return rejectionWith(op, resp, parsed, reason)
}

func rejectionWith(op string, resp response, parsed orderResponse, reason string) *trading.ExchangeRejection {
	code, _ := strconv.Atoi(string(parsed.Code))
	return &trading.ExchangeRejection{
		Op:     op,
		Status: resp.status,
		Code:   code,
		Msg:    parsed.Msg,
		Reason: reason,
		Body:   string(resp.body),
	}
}
