package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/charleschow/listing-sniper/internal/core/trading"
)

// amount accepts both quoted and bare numbers ("100", 100, 0.5).
type amount struct {
	decimal.Decimal
	set bool
}

func (a *amount) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a number", node.Line)
	}
	d, err := decimal.NewFromString(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %q is not a decimal", node.Line, node.Value)
	}
	a.Decimal, a.set = d, true
	return nil
}

// IntentFile is the on-disk trade intent. JSON is valid YAML, so the
// original current_listing.json files load unchanged.
type IntentFile struct {
	ID          string `yaml:"id"`
	Symbol      string `yaml:"symbol"`
	QuoteAmount amount `yaml:"quote_amount"`
	ProfitPct   amount `yaml:"profit_pct"`
	FeePct      amount `yaml:"fee_pct"`
	APIKey      string `yaml:"api_key"`
	APISecret   string `yaml:"api_secret"`
	ListingTime string `yaml:"listing_time"`
}

// LoadTradeIntent reads and validates a trade intent. Validation failures
// are *trading.ConfigurationError.
func LoadTradeIntent(path string, defaultProfitPct decimal.Decimal) (trading.TradeIntent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return trading.TradeIntent{}, &trading.ConfigurationError{Field: "intent_path", Reason: err.Error()}
	}
	return ParseTradeIntent(data, defaultProfitPct)
}

func ParseTradeIntent(data []byte, defaultProfitPct decimal.Decimal) (trading.TradeIntent, error) {
	var f IntentFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return trading.TradeIntent{}, &trading.ConfigurationError{Field: "intent", Reason: fmt.Sprintf("parse: %v", err)}
	}

	intent := trading.TradeIntent{
		Symbol:      f.Symbol,
		QuoteAmount: f.QuoteAmount.Decimal,
		ProfitPct:   f.ProfitPct.Decimal,
		FeePct:      f.FeePct.Decimal,
		Credentials: trading.Credentials{APIKey: f.APIKey, APISecret: f.APISecret},
	}
	if !f.ProfitPct.set && defaultProfitPct.IsPositive() {
		intent.ProfitPct = defaultProfitPct
	}

	if f.ListingTime != "" {
		t, err := time.Parse(time.RFC3339Nano, f.ListingTime)
		if err != nil {
			return trading.TradeIntent{}, &trading.ConfigurationError{Field: "listing_time", Reason: "must be RFC3339 with offset"}
		}
		intent.ListingTime = t.UTC()
	}

	intent = intent.Normalize()
	if err := intent.Validate(); err != nil {
		return trading.TradeIntent{}, err
	}
	return intent, nil
}
