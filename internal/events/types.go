package events

import (
	"time"

	"github.com/charleschow/listing-sniper/internal/core/latency"
)

// StageChangeEvent is published on every sequencer state transition.
type StageChangeEvent struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// RunFinishedEvent is published once per run, success or failure.
// Decimal values are pre-formatted with 8 fractional digits so subscribers
// don't need to know about the decimal type.
type RunFinishedEvent struct {
	RunID      string    `json:"run_id"`
	Symbol     string    `json:"symbol"`
	FinalState string    `json:"final_state"`
	FailedAt   string    `json:"failed_at,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	QuoteAmount   string `json:"quote_amount"`
	BuyOrderID    string `json:"buy_order_id,omitempty"`
	ExecutedQty   string `json:"executed_qty,omitempty"`
	ExecutedPrice string `json:"executed_price,omitempty"`
	SellOrderID   string `json:"sell_order_id,omitempty"`
	SellQty       string `json:"sell_qty,omitempty"`
	TakeProfit    string `json:"take_profit,omitempty"`

	// OpenPosition is set when a buy was confirmed but no take-profit was:
	// the operator holds an unhedged position.
	OpenPosition bool   `json:"open_position"`
	Error        string `json:"error,omitempty"`
	RawResponse  string `json:"raw_response,omitempty"`

	Samples []latency.Sample `json:"samples"`
}

// Succeeded reports whether the run reached SELL_CONFIRMED.
func (e RunFinishedEvent) Succeeded() bool {
	return e.FailedAt == "" && e.Error == ""
}

// ListingEvent is published by the scheduler when a listing is armed or fires.
type ListingEvent struct {
	ListingID   string    `json:"listing_id"`
	Symbol      string    `json:"symbol"`
	ListingTime time.Time `json:"listing_time"`
	RunAt       time.Time `json:"run_at"`
}
