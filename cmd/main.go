package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charleschow/listing-sniper/internal/adapters/inbound/listing_api"
	"github.com/charleschow/listing-sniper/internal/adapters/outbound/discord"
	"github.com/charleschow/listing-sniper/internal/config"
	"github.com/charleschow/listing-sniper/internal/core/schedule"
	"github.com/charleschow/listing-sniper/internal/core/tracking"
	"github.com/charleschow/listing-sniper/internal/events"
	"github.com/charleschow/listing-sniper/internal/process"
	"github.com/charleschow/listing-sniper/internal/telemetry"
)

func main() {
	cfg := config.Load()

	var extra []io.Writer
	if diag, err := telemetry.OpenDiagnosticLog(cfg.DiagLogPath); err != nil {
		telemetry.Warnf("Diagnostic log disabled: %v", err)
	} else if diag != nil {
		defer diag.Close()
		extra = append(extra, diag)
	}
	telemetry.Init(telemetry.ParseLogLevel(cfg.LogLevel), extra...)
	telemetry.Infof("Starting listing scheduler  api=%s  trigger=%s  lead=%s", cfg.MexcBaseURL, cfg.TriggerMode, cfg.ScheduleLead)

	bus := events.NewBus()

	// ── Store ───────────────────────────────────────────────────
	db, err := tracking.Open(cfg.StorePath)
	if err != nil {
		telemetry.Errorf("Store: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	runStore, err := tracking.NewStore(db)
	if err != nil {
		telemetry.Errorf("Run journal: %v", err)
		os.Exit(1)
	}
	tracking.NewJournal(runStore).Attach(bus)

	if open, err := runStore.OpenPositions(); err == nil && open > 0 {
		telemetry.Warnf("%d journalled runs left an open position without a take-profit", open)
	}

	listingStore, err := schedule.NewStore(db)
	if err != nil {
		telemetry.Errorf("Listing store: %v", err)
		os.Exit(1)
	}

	// ── Discord ─────────────────────────────────────────────────
	notifier := discord.NewNotifier(cfg.DiscordWebhookURL)
	notifier.Attach(bus)
	if notifier.Enabled() {
		telemetry.Infof("Discord notifications enabled")
	}

	// ── Scheduler ───────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := schedule.NewScheduler(listingStore, process.ScheduledRunner(cfg, bus, os.Stdout), bus, cfg.ScheduleLead)
	if err := scheduler.Start(ctx); err != nil {
		telemetry.Errorf("Scheduler: %v", err)
		os.Exit(1)
	}

	// ── Listing API ─────────────────────────────────────────────
	handler := listing_api.NewHandler(scheduler, runStore, cfg.DefaultProfitPct)

	addr := fmt.Sprintf("%s:%d", cfg.ListingAPIHost, cfg.ListingAPIPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Errorf("HTTP server: %v", err)
			os.Exit(1)
		}
	}()
	telemetry.Infof("Listing API on %q", addr)

	// ── Shutdown ────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	telemetry.Infof("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	// In-flight runs past their buy finish regardless; give them time to.
	cancel()
	runCtx, runCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer runCancel()
	if err := scheduler.Stop(runCtx); err != nil {
		telemetry.Warnf("Scheduler stop: %v (runs still in flight)", err)
	}

	telemetry.Infof("Shutdown complete  runs=%d  ok=%d  failed=%d  orders=%d  open=%d",
		telemetry.Metrics.RunsStarted.Value(),
		telemetry.Metrics.RunsSucceeded.Value(),
		telemetry.Metrics.RunsFailed.Value(),
		telemetry.Metrics.OrdersSent.Value(),
		telemetry.Metrics.OpenPositions.Value(),
	)
}
