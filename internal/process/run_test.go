package process

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/charleschow/listing-sniper/internal/config"
	"github.com/charleschow/listing-sniper/internal/core/execution"
	"github.com/charleschow/listing-sniper/internal/core/schedule"
	"github.com/charleschow/listing-sniper/internal/core/trading"
	"github.com/charleschow/listing-sniper/internal/events"
)

// fakeMexc answers the four REST endpoints a run touches.
type fakeMexc struct {
	mu        sync.Mutex
	paths     []string
	buyStatus int
	buyBody   string
	sellQuery map[string]string
	onBuy     func()
}

func (f *fakeMexc) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, r.Method+" "+r.URL.Path)

	q := r.URL.Query()
	switch {
	case r.URL.Path == "/api/v3/ping":
		w.Write([]byte(`{}`))
	case r.URL.Path == "/api/v3/time":
		w.Write([]byte(`{"serverTime":` + strconv.FormatInt(time.Now().UnixMilli(), 10) + `}`))
	case r.Method == http.MethodPost && q.Get("side") == "BUY":
		if f.onBuy != nil {
			f.onBuy()
		}
		if f.buyStatus != 0 {
			w.WriteHeader(f.buyStatus)
			w.Write([]byte(f.buyBody))
			return
		}
		w.Write([]byte(`{"orderId":"B1","symbol":"ABCUSDT"}`))
	case r.Method == http.MethodGet && r.URL.Path == "/api/v3/order":
		w.Write([]byte(`{"orderId":"B1","executedQty":"25","price":"2","status":"FILLED"}`))
	case r.Method == http.MethodPost && q.Get("side") == "SELL":
		f.sellQuery = map[string]string{"quantity": q.Get("quantity"), "price": q.Get("price"), "type": q.Get("type")}
		w.Write([]byte(`{"orderId":"S1"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		MexcBaseURL:   baseURL,
		RecvWindowMs:  5000,
		HTTPTimeout:   5 * time.Second,
		SettleDelay:   0,
		WarmupEnabled: true,
		TriggerMode:   config.TriggerImmediate,
	}
}

func testIntent() trading.TradeIntent {
	return trading.TradeIntent{
		Symbol:      "ABCUSDT",
		QuoteAmount: decimal.NewFromInt(50),
		ProfitPct:   decimal.NewFromInt(12),
		Credentials: trading.Credentials{APIKey: "key", APISecret: "secret"},
	}
}

func TestRunEndToEnd(t *testing.T) {
	fake := &fakeMexc{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.ServerTimeSync = true

	bus := events.NewBus()
	var finished []events.RunFinishedEvent
	bus.Subscribe(events.EventRunFinished, func(e events.Event) error {
		finished = append(finished, e.Payload.(events.RunFinishedEvent))
		return nil
	})

	var buf bytes.Buffer
	out := Run(context.Background(), cfg, testIntent(), bus, RunOptions{RunID: "run-e2e", Out: &buf})

	if out.ExitCode() != execution.ExitOK {
		t.Fatalf("Expected exit 0, got %d (%v)", out.ExitCode(), out.Err)
	}
	if fake.sellQuery["quantity"] != "25.00000000" || fake.sellQuery["price"] != "2.24000000" || fake.sellQuery["type"] != "LIMIT" {
		t.Errorf("unexpected sell params %+v", fake.sellQuery)
	}
	want := []string{"GET /api/v3/time", "GET /api/v3/ping", "POST /api/v3/order", "GET /api/v3/order", "POST /api/v3/order"}
	if strings.Join(fake.paths, ",") != strings.Join(want, ",") {
		t.Errorf("Expected calls %v, got %v", want, fake.paths)
	}
	if len(finished) != 1 || finished[0].RunID != "run-e2e" {
		t.Errorf("Expected one finished event for run-e2e, got %+v", finished)
	}

	report := buf.String()
	for _, s := range []string{"Latency(ms)", "SELL_CONFIRMED", "place_market_buy"} {
		if !strings.Contains(report, s) {
			t.Errorf("report missing %q:\n%s", s, report)
		}
	}
}

func TestRunBuyRejectedPrintsRawResponse(t *testing.T) {
	fake := &fakeMexc{buyStatus: http.StatusBadRequest, buyBody: `{"code":30004,"msg":"Insufficient position"}`}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	var buf bytes.Buffer
	out := Run(context.Background(), testConfig(srv.URL), testIntent(), nil, RunOptions{Out: &buf})

	if out.ExitCode() != execution.ExitFailed {
		t.Errorf("Expected exit 1, got %d", out.ExitCode())
	}
	if out.FailedAt != execution.StateBuySent {
		t.Errorf("Expected failure at BUY_SENT, got %s", out.FailedAt)
	}
	if !strings.Contains(buf.String(), "Insufficient position") {
		t.Errorf("report should carry the raw response:\n%s", buf.String())
	}
	for _, p := range fake.paths {
		if p == "GET /api/v3/order" {
			t.Error("no fill query after a rejected buy")
		}
	}
}

func TestSignalDuringBuyStillPlacesTakeProfit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fake := &fakeMexc{onBuy: cancel}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	var buf bytes.Buffer
	out := Run(ctx, testConfig(srv.URL), testIntent(), nil, RunOptions{Out: &buf})

	if out.State != execution.StateSellConfirmed {
		t.Fatalf("Expected SELL_CONFIRMED after cancel mid-buy, got %s at %s (%v)", out.State, out.FailedAt, out.Err)
	}
	if out.OpenPosition {
		t.Error("Expected the take-profit to cover the position")
	}
	if fake.sellQuery == nil {
		t.Error("Expected a take-profit at the exchange")
	}
}

func TestLostBuyResponseReportsPossiblePosition(t *testing.T) {
	var srv *httptest.Server
	fake := &fakeMexc{onBuy: func() { srv.CloseClientConnections() }}
	srv = httptest.NewServer(fake)
	defer srv.Close()

	var buf bytes.Buffer
	out := Run(context.Background(), testConfig(srv.URL), testIntent(), nil, RunOptions{Out: &buf})

	if out.FailedAt != execution.StateBuySent {
		t.Fatalf("Expected failure at BUY_SENT, got %s at %s (%v)", out.State, out.FailedAt, out.Err)
	}
	if !out.BuyUnknown || !out.OpenPosition {
		t.Errorf("Expected possible open position, got unknown=%v open=%v", out.BuyUnknown, out.OpenPosition)
	}
	if !strings.Contains(buf.String(), "OPEN POSITION?") {
		t.Errorf("report should warn about the lost buy:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), "signature=") {
		t.Errorf("report leaks the signed query:\n%s", buf.String())
	}
}

func TestRunConfigErrorsExitTwo(t *testing.T) {
	tests := []struct {
		name   string
		mode   string
		intent func() trading.TradeIntent
	}{
		{"at_time without listing time", config.TriggerAtTime, testIntent},
		{"unknown trigger", "whenever", testIntent},
		{"blank secret", config.TriggerImmediate, func() trading.TradeIntent {
			in := testIntent()
			in.Credentials.APISecret = "  "
			return in
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeMexc{}
			srv := httptest.NewServer(fake)
			defer srv.Close()

			out := Run(context.Background(), testConfig(srv.URL), tt.intent(), nil, RunOptions{TriggerMode: tt.mode})
			if out.ExitCode() != execution.ExitConfig {
				t.Errorf("Expected exit 2, got %d (%v)", out.ExitCode(), out.Err)
			}
			if len(fake.paths) != 0 {
				t.Errorf("Expected no requests, got %v", fake.paths)
			}
		})
	}
}

func TestScheduledRunnerUsesListingTime(t *testing.T) {
	fake := &fakeMexc{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	intent := testIntent()
	intent.ListingTime = time.Now().Add(30 * time.Millisecond)

	runner := ScheduledRunner(testConfig(srv.URL), nil, nil)
	start := time.Now()
	runID := runner(context.Background(), schedule.Listing{ID: "L1", Intent: intent})

	if runID == "" {
		t.Error("Expected a run ID")
	}
	if !time.Now().After(intent.ListingTime) {
		t.Error("run finished before the listing time")
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("Expected the runner to wait for the listing, took %s", elapsed)
	}
	if fake.sellQuery == nil {
		t.Error("Expected the scheduled run to place a take-profit")
	}
}
