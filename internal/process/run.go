package process

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/charleschow/listing-sniper/internal/adapters/inbound/mexc_ws"
	"github.com/charleschow/listing-sniper/internal/adapters/mexc_auth"
	"github.com/charleschow/listing-sniper/internal/adapters/outbound/mexc_http"
	"github.com/charleschow/listing-sniper/internal/config"
	"github.com/charleschow/listing-sniper/internal/core/execution"
	"github.com/charleschow/listing-sniper/internal/core/latency"
	"github.com/charleschow/listing-sniper/internal/core/schedule"
	"github.com/charleschow/listing-sniper/internal/core/trading"
	"github.com/charleschow/listing-sniper/internal/core/trigger"
	"github.com/charleschow/listing-sniper/internal/events"
	"github.com/charleschow/listing-sniper/internal/telemetry"
)

// RunOptions carries the per-run pieces that differ between the one-shot
// binary and scheduled runs.
type RunOptions struct {
	RunID string

	// TriggerMode overrides cfg.TriggerMode when set.
	TriggerMode string

	// Out receives the latency table and the failure report.
	Out io.Writer
}

// Run wires one sequencer against the live exchange (or whatever
// cfg.MexcBaseURL points at) and executes it. The HTTP client and its pooled
// connection are released before Run returns.
func Run(ctx context.Context, cfg *config.Config, intent trading.TradeIntent, bus *events.Bus, ro RunOptions) execution.Outcome {
	if ro.Out == nil {
		ro.Out = io.Discard
	}

	// ── Exchange client ────────────────────────────────────────
	var clock *mexc_auth.OffsetClock
	clientOpts := []mexc_http.Option{
		mexc_http.WithHTTPTimeout(cfg.HTTPTimeout),
		mexc_http.WithRecvWindow(cfg.RecvWindowMs),
	}
	if cfg.ServerTimeSync {
		clock = mexc_auth.NewOffsetClock()
		clientOpts = append(clientOpts, mexc_http.WithTimeSource(clock))
	}
	client := mexc_http.NewClient(cfg.MexcBaseURL, clientOpts...)
	defer client.Close()

	// ── Trigger ────────────────────────────────────────────────
	mode := cfg.TriggerMode
	if ro.TriggerMode != "" {
		mode = ro.TriggerMode
	}
	trig, err := buildTrigger(mode, cfg, intent, clock)
	if err != nil {
		return configFailure(ro, intent, err)
	}

	// ── Sequencer ──────────────────────────────────────────────
	opts := []execution.Option{
		execution.WithTrigger(trig),
		execution.WithBus(bus),
		execution.WithRunID(ro.RunID),
		execution.WithSettleDelay(cfg.SettleDelay),
	}
	if cfg.WarmupEnabled {
		opts = append(opts, execution.WithWarmer(client))
	}
	if clock != nil {
		opts = append(opts, execution.WithClockSync(clock))
	}

	seq, err := execution.New(intent, client, opts...)
	if err != nil {
		return configFailure(ro, intent, err)
	}

	out := seq.Run(ctx)
	Report(ro.Out, out)
	if clock != nil {
		telemetry.Debugf("process: run=%s exchange clock offset %dms", out.RunID, clock.Offset())
	}
	return out
}

func buildTrigger(mode string, cfg *config.Config, intent trading.TradeIntent, clock *mexc_auth.OffsetClock) (execution.Trigger, error) {
	switch mode {
	case "", config.TriggerImmediate:
		return trigger.Immediate{}, nil
	case config.TriggerAtTime:
		if intent.ListingTime.IsZero() {
			return nil, &trading.ConfigurationError{Field: "listing_time", Reason: "required for at_time trigger"}
		}
		t := trigger.AtTime{At: intent.ListingTime}
		if clock != nil {
			t.NowMillis = clock.NowMillis
		}
		return t, nil
	case config.TriggerFirstTrade:
		return trigger.FirstTrade{Watcher: mexc_ws.NewClient(cfg.MexcWSURL), Symbol: intent.Symbol}, nil
	}
	return nil, &trading.ConfigurationError{Field: "trigger_mode", Reason: fmt.Sprintf("unknown mode %q", mode)}
}

func configFailure(ro RunOptions, intent trading.TradeIntent, err error) execution.Outcome {
	now := time.Now()
	if ro.RunID == "" {
		ro.RunID = uuid.NewString()
	}
	out := execution.Outcome{
		RunID:       ro.RunID,
		Symbol:      intent.Symbol,
		State:       execution.StateFailed,
		FailedAt:    execution.StateStart,
		Err:         err,
		QuoteAmount: intent.QuoteAmount,
		StartedAt:   now,
		FinishedAt:  now,
	}
	telemetry.Errorf("process: %v", err)
	Report(ro.Out, out)
	return out
}

// Report prints the latency table followed by the run result. On failure
// the raw exchange response is included verbatim.
func Report(w io.Writer, out execution.Outcome) {
	if len(out.Samples) > 0 {
		r := latency.NewReporter()
		for _, sample := range out.Samples {
			r.Add(sample)
		}
		if err := r.Render(w); err != nil {
			telemetry.Warnf("process: render latency table: %v", err)
		}
		fmt.Fprintln(w)
	}

	if out.Succeeded() {
		fmt.Fprintf(w, "SELL_CONFIRMED  %s  buy=%s  sell=%s  qty=%s @ %s\n",
			out.Symbol, out.Buy.OrderID, out.Sell.OrderID,
			trading.FormatFixed(out.SellQty), trading.FormatFixed(out.TakeProfit))
		return
	}

	fmt.Fprintf(w, "FAILED at %s  %s: %v\n", out.FailedAt, out.Symbol, out.Err)
	if out.RawResponse != "" {
		fmt.Fprintf(w, "exchange response: %s\n", out.RawResponse)
	}
	if out.OpenPosition {
		if out.BuyUnknown {
			fmt.Fprintf(w, "OPEN POSITION?: the buy was sent but its response was lost; check %s on the exchange\n", out.Symbol)
		} else {
			fmt.Fprintf(w, "OPEN POSITION: buy order %s filled without a take-profit; close it manually\n", out.Buy.OrderID)
		}
	}
}

// ScheduledRunner adapts Run to the scheduler. Scheduled runs wait for the
// listing time unless the process is configured to fire on first trade.
func ScheduledRunner(cfg *config.Config, bus *events.Bus, w io.Writer) schedule.Runner {
	return func(ctx context.Context, l schedule.Listing) string {
		mode := config.TriggerAtTime
		if cfg.TriggerMode == config.TriggerFirstTrade {
			mode = config.TriggerFirstTrade
		}
		out := Run(ctx, cfg, l.Intent, bus, RunOptions{TriggerMode: mode, Out: w})
		telemetry.Infof("process: listing %s finished run=%s state=%s", l.ID, out.RunID, out.State)
		return out.RunID
	}
}
