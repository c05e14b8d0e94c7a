// One-shot listing sniper: market buy, confirm the fill, place the
// take-profit, print the latency table and exit.
//
// Exit codes: 0 take-profit placed, 1 run failed, 2 bad intent or
// credentials (nothing was sent).
//
// Usage:
//
//	go run ./cmd/sniper                                # reads INTENT_PATH
//	go run ./cmd/sniper -intent listing.json -trigger at_time
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charleschow/listing-sniper/internal/adapters/outbound/discord"
	"github.com/charleschow/listing-sniper/internal/config"
	"github.com/charleschow/listing-sniper/internal/core/execution"
	"github.com/charleschow/listing-sniper/internal/core/tracking"
	"github.com/charleschow/listing-sniper/internal/events"
	"github.com/charleschow/listing-sniper/internal/process"
	"github.com/charleschow/listing-sniper/internal/telemetry"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()

	intentPath := flag.String("intent", cfg.IntentPath, "Path to the trade intent (JSON or YAML)")
	triggerMode := flag.String("trigger", cfg.TriggerMode, "immediate, at_time or first_trade")
	flag.Parse()

	var extra []io.Writer
	if cfg.DiagLogPath != "" {
		diag, err := telemetry.OpenDiagnosticLog(cfg.DiagLogPath)
		if err != nil {
			telemetry.Warnf("Diagnostic log disabled: %v", err)
		} else {
			defer diag.Close()
			extra = append(extra, diag)
		}
	}
	telemetry.Init(telemetry.ParseLogLevel(cfg.LogLevel), extra...)

	intent, err := config.LoadTradeIntent(*intentPath, cfg.DefaultProfitPct)
	if err != nil {
		telemetry.Errorf("Trade intent: %v", err)
		return execution.ExitConfig
	}

	bus := events.NewBus()

	// ── Run journal ─────────────────────────────────────────────
	db, err := tracking.Open(cfg.StorePath)
	if err != nil {
		telemetry.Warnf("Run journal disabled: %v", err)
	} else {
		defer db.Close()
		store, err := tracking.NewStore(db)
		if err != nil {
			telemetry.Warnf("Run journal disabled: %v", err)
		} else {
			tracking.NewJournal(store).Attach(bus)
		}
	}

	// ── Discord ─────────────────────────────────────────────────
	discord.NewNotifier(cfg.DiscordWebhookURL).Attach(bus)

	// Ctrl-C before the buy aborts cleanly; after it the run finishes.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry.Infof("Sniping %s  quote=%s  profit=%s%%  trigger=%s", intent.Symbol, intent.QuoteAmount, intent.ProfitPct, *triggerMode)
	out := process.Run(ctx, cfg, intent, bus, process.RunOptions{TriggerMode: *triggerMode, Out: os.Stdout})

	telemetry.Infof("Run %s finished  state=%s  exit=%d  calls=%d  orders=%d  errors=%d",
		out.RunID, out.State, out.ExitCode(),
		telemetry.Metrics.ExchangeCalls.Value(),
		telemetry.Metrics.OrdersSent.Value(),
		telemetry.Metrics.OrderErrors.Value(),
	)
	return out.ExitCode()
}
