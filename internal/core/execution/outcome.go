package execution

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/charleschow/listing-sniper/internal/core/latency"
	"github.com/charleschow/listing-sniper/internal/core/trading"
	"github.com/charleschow/listing-sniper/internal/events"
)

// Process exit codes.
const (
	ExitOK     = 0
	ExitFailed = 1
	ExitConfig = 2
)

// Outcome is the result of one run.
type Outcome struct {
	RunID  string
	Symbol string
	State  State

	// FailedAt is the state the run was in when it failed. Empty on success.
	FailedAt    State
	Err         error
	RawResponse string

	Buy  *trading.OrderRecord
	Fill *trading.OrderRecord
	Sell *trading.OrderRecord

	QuoteAmount decimal.Decimal
	TakeProfit  decimal.Decimal
	SellQty     decimal.Decimal

	// BuyUnknown is set when the buy request reached the transport but no
	// answer was read. The order may have filled.
	BuyUnknown bool

	// OpenPosition is true when a buy was confirmed (or may have filled) and
	// no take-profit was.
	OpenPosition bool

	Samples    []latency.Sample
	StartedAt  time.Time
	FinishedAt time.Time
}

func (o Outcome) Succeeded() bool {
	return o.State == StateSellConfirmed
}

func (o Outcome) ExitCode() int {
	if o.Succeeded() {
		return ExitOK
	}
	var cfgErr *trading.ConfigurationError
	var signErr *trading.SigningError
	if errors.As(o.Err, &cfgErr) || errors.As(o.Err, &signErr) {
		return ExitConfig
	}
	return ExitFailed
}

// BuyOrderID returns the confirmed buy's order ID, or "unknown" when the
// buy's fate was never read.
func (o Outcome) BuyOrderID() string {
	if o.Buy != nil {
		return o.Buy.OrderID
	}
	return "unknown"
}

// Event flattens the outcome for bus subscribers.
func (o Outcome) Event() events.RunFinishedEvent {
	e := events.RunFinishedEvent{
		RunID:        o.RunID,
		Symbol:       o.Symbol,
		FinalState:   string(o.State),
		FailedAt:     string(o.FailedAt),
		StartedAt:    o.StartedAt,
		FinishedAt:   o.FinishedAt,
		QuoteAmount:  o.QuoteAmount.String(),
		OpenPosition: o.OpenPosition,
		RawResponse:  o.RawResponse,
		Samples:      o.Samples,
	}
	if o.Err != nil {
		e.Error = o.Err.Error()
	}
	if o.Buy != nil {
		e.BuyOrderID = o.Buy.OrderID
	}
	if o.Fill != nil {
		e.ExecutedQty = trading.FormatFixed(o.Fill.ExecutedQty)
		e.ExecutedPrice = trading.FormatFixed(o.Fill.ExecutedPrice)
	}
	if o.Sell != nil {
		e.SellOrderID = o.Sell.OrderID
	}
	if !o.TakeProfit.IsZero() {
		e.TakeProfit = trading.FormatFixed(o.TakeProfit)
		e.SellQty = trading.FormatFixed(o.SellQty)
	}
	return e
}
