package trigger

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/charleschow/listing-sniper/internal/telemetry"
)

// Immediate fires as soon as it is waited on.
type Immediate struct{}

func (Immediate) Name() string                   { return "immediate" }
func (Immediate) Wait(ctx context.Context) error { return ctx.Err() }

// spinWindow is how long before the target AtTime stops sleeping and
// spins. Timer wakeups can land a millisecond or more late.
const spinWindow = 2 * time.Millisecond

// AtTime fires at a wall-clock instant, optionally in exchange time.
type AtTime struct {
	At time.Time

	// NowMillis, when set, supplies the current time in epoch ms (an
	// exchange-offset clock). Defaults to the local clock.
	NowMillis func() int64
}

func (t AtTime) Name() string { return "at_time" }

func (t AtTime) now() time.Time {
	if t.NowMillis != nil {
		return time.UnixMilli(t.NowMillis())
	}
	return time.Now()
}

// Wait sleeps until just before At, then spins to it. A target already in
// the past fires immediately.
func (t AtTime) Wait(ctx context.Context) error {
	if t.At.IsZero() {
		return fmt.Errorf("at_time trigger: no target time")
	}
	remaining := t.At.Sub(t.now())
	if remaining <= 0 {
		telemetry.Warnf("trigger: target %s already passed by %s", t.At.Format(time.RFC3339Nano), -remaining)
		return ctx.Err()
	}

	if coarse := remaining - spinWindow; coarse > 0 {
		timer := time.NewTimer(coarse)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	for t.now().Before(t.At) {
		if err := ctx.Err(); err != nil {
			return err
		}
		runtime.Gosched()
	}
	return nil
}

// TradeWatcher reports the time of the first trade on a symbol.
// Satisfied by *mexc_ws.Client.
type TradeWatcher interface {
	WaitFirstTrade(ctx context.Context, symbol string) (time.Time, error)
}

// FirstTrade fires when the first public trade on Symbol is seen.
type FirstTrade struct {
	Watcher TradeWatcher
	Symbol  string
}

func (t FirstTrade) Name() string { return "first_trade" }

func (t FirstTrade) Wait(ctx context.Context) error {
	at, err := t.Watcher.WaitFirstTrade(ctx, t.Symbol)
	if err != nil {
		return err
	}
	if !at.IsZero() {
		telemetry.Infof("trigger: %s opened, first trade %s ago", t.Symbol, time.Since(at).Round(time.Millisecond))
	}
	return nil
}
