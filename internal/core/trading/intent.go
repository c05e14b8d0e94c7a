package trading

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// DefaultProfitPct is applied when a trade intent omits profit_pct.
var DefaultProfitPct = decimal.NewFromInt(12)

var hundred = decimal.NewFromInt(100)

// Credentials are the exchange API key pair. The key travels in a header,
// the secret only ever keys the HMAC.
type Credentials struct {
	APIKey    string
	APISecret string
}

// TradeIntent is everything one run needs. It is built once at startup and
// never modified afterwards.
type TradeIntent struct {
	Symbol      string
	QuoteAmount decimal.Decimal
	ProfitPct   decimal.Decimal
	FeePct      decimal.Decimal
	Credentials Credentials

	// ListingTime is when the pair opens for trading. Zero when the run
	// fires on an external signal instead.
	ListingTime time.Time
}

// Normalize uppercases the symbol and fills defaults. Symbols copied out of
// listing announcements sometimes carry full-width letters; NFKC folds
// them to ASCII.
func (t TradeIntent) Normalize() TradeIntent {
	t.Symbol = strings.ToUpper(strings.TrimSpace(norm.NFKC.String(t.Symbol)))
	if t.ProfitPct.IsZero() {
		t.ProfitPct = DefaultProfitPct
	}
	return t
}

// Validate checks required fields. The returned error is always a
// *ConfigurationError.
func (t TradeIntent) Validate() error {
	switch {
	case t.Symbol == "":
		return &ConfigurationError{Field: "symbol", Reason: "required"}
	case strings.ContainsAny(t.Symbol, " /-&=?"):
		return &ConfigurationError{Field: "symbol", Reason: "must be a ticker pair like ABCUSDT"}
	case !t.QuoteAmount.IsPositive():
		return &ConfigurationError{Field: "quote_amount", Reason: "must be positive"}
	case !t.ProfitPct.IsPositive():
		return &ConfigurationError{Field: "profit_pct", Reason: "must be positive"}
	case t.FeePct.IsNegative() || t.FeePct.GreaterThanOrEqual(hundred):
		return &ConfigurationError{Field: "fee_pct", Reason: "must be in [0, 100)"}
	case t.Credentials.APIKey == "":
		return &ConfigurationError{Field: "api_key", Reason: "required"}
	case strings.TrimSpace(t.Credentials.APISecret) == "":
		return &ConfigurationError{Field: "api_secret", Reason: "required"}
	}
	return nil
}
