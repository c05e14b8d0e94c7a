package trading

import (
	"errors"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
)

// TimeInForceGTC keeps the take-profit resting until filled or cancelled.
const TimeInForceGTC = "GTC"

// PriceScale is the number of fractional digits the exchange accepts for
// quantity and price on this asset class.
const PriceScale int32 = 8

// ErrInvalidFill is returned when a fill lacks a positive quantity or price.
var ErrInvalidFill = errors.New("fill has no positive executed quantity and price")

// OrderRecord is the parsed view of an exchange order response.
type OrderRecord struct {
	OrderID        string
	Symbol         string
	Side           Side
	Type           OrderType
	RequestedQty   decimal.Decimal
	RequestedQuote decimal.Decimal
	Price          decimal.Decimal
	ExecutedQty    decimal.Decimal
	ExecutedPrice  decimal.Decimal
	Status         string

	// Raw is the response body the record was parsed from.
	Raw string
}

// HasFill reports whether both executed quantity and price are positive.
// A take-profit may only be derived from a record for which this holds.
func (o *OrderRecord) HasFill() bool {
	return o != nil && o.ExecutedQty.IsPositive() && o.ExecutedPrice.IsPositive()
}

// FormatFixed renders d with exactly PriceScale fractional digits.
func FormatFixed(d decimal.Decimal) string {
	return d.StringFixed(PriceScale)
}

// TakeProfitPrice returns round(price * (1 + pct/100), 8).
func TakeProfitPrice(price, pct decimal.Decimal) (decimal.Decimal, error) {
	if !price.IsPositive() {
		return decimal.Zero, ErrInvalidFill
	}
	factor := decimal.NewFromInt(1).Add(pct.Div(hundred))
	return price.Mul(factor).Round(PriceScale), nil
}

// SellQuantity nets the fee percentage off the executed quantity and
// truncates to PriceScale, so the sell never asks for more than was bought.
func SellQuantity(executed, feePct decimal.Decimal) (decimal.Decimal, error) {
	if !executed.IsPositive() {
		return decimal.Zero, ErrInvalidFill
	}
	if feePct.IsZero() {
		return executed.Truncate(PriceScale), nil
	}
	net := executed.Mul(decimal.NewFromInt(1).Sub(feePct.Div(hundred)))
	return net.Truncate(PriceScale), nil
}
