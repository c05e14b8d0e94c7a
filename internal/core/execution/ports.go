package execution

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/charleschow/listing-sniper/internal/adapters/mexc_auth"
	"github.com/charleschow/listing-sniper/internal/adapters/outbound/mexc_http"
	"github.com/charleschow/listing-sniper/internal/core/latency"
	"github.com/charleschow/listing-sniper/internal/core/trading"
)

// Exchange is the order surface the sequencer drives.
// Satisfied by *mexc_http.Client. Tests substitute a fake: every order call
// against the real thing risks a real trade.
type Exchange interface {
	GetServerTime(ctx context.Context) (int64, latency.Sample, error)
	PlaceMarketBuy(ctx context.Context, symbol string, quoteAmount decimal.Decimal, creds trading.Credentials) (*trading.OrderRecord, latency.Sample, error)
	PlaceLimitSell(ctx context.Context, symbol string, qty, price decimal.Decimal, creds trading.Credentials) (*trading.OrderRecord, latency.Sample, error)
	GetOrder(ctx context.Context, symbol, orderID string, creds trading.Credentials) (*trading.OrderRecord, latency.Sample, error)
}

// Warmer primes a connection before the timed buy. Its result is discarded.
type Warmer interface {
	Ping(ctx context.Context) (latency.Sample, error)
}

// ClockSync learns the exchange clock offset from a server time reading.
type ClockSync interface {
	Observe(serverMs int64, sent, received time.Time)
}

// Trigger blocks until the listing signal fires.
type Trigger interface {
	Name() string
	Wait(ctx context.Context) error
}

var (
	_ Exchange  = (*mexc_http.Client)(nil)
	_ Warmer    = (*mexc_http.Client)(nil)
	_ ClockSync = (*mexc_auth.OffsetClock)(nil)
)
