package tracking

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/charleschow/listing-sniper/internal/core/latency"
	"github.com/charleschow/listing-sniper/internal/events"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "data", "sniper.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	s, err := NewStore(db)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func finishedRun(id string, open bool) events.RunFinishedEvent {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return events.RunFinishedEvent{
		RunID:        id,
		Symbol:       "ABCUSDT",
		FinalState:   "SELL_CONFIRMED",
		StartedAt:    start,
		FinishedAt:   start.Add(1200 * time.Millisecond),
		QuoteAmount:  "100",
		BuyOrderID:   "1",
		SellOrderID:  "2",
		TakeProfit:   "2.24000000",
		OpenPosition: open,
		Samples: []latency.Sample{
			latency.NewSample("place_market_buy", start, start.Add(8*time.Millisecond)),
			latency.NewSample("get_order", start.Add(time.Second), start.Add(time.Second+6*time.Millisecond)),
		},
	}
}

func TestInsertAndRecent(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.InsertRun(finishedRun("run-a", false)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertRun(finishedRun("run-b", true)); err != nil {
		t.Fatal(err)
	}

	runs, err := s.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}
	if runs[0].RunID != "run-b" {
		t.Errorf("Expected newest first, got %s", runs[0].RunID)
	}
	if !runs[0].OpenPosition || runs[1].OpenPosition {
		t.Errorf("open_position not round-tripped: %+v", runs)
	}
	if len(runs[1].Samples) != 2 || runs[1].Samples[0].Label != "place_market_buy" || runs[1].Samples[0].Millis != 8 {
		t.Errorf("unexpected samples %+v", runs[1].Samples)
	}
	if runs[1].TakeProfit != "2.24000000" {
		t.Errorf("Expected take profit, got %q", runs[1].TakeProfit)
	}

	n, err := s.OpenPositions()
	if err != nil || n != 1 {
		t.Errorf("Expected 1 open position, got %d (%v)", n, err)
	}
}

func TestDuplicateRunIDRejected(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.InsertRun(finishedRun("run-a", false)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertRun(finishedRun("run-a", false)); err == nil {
		t.Error("Expected unique constraint error")
	}
}

func TestJournalSubscribes(t *testing.T) {
	s := openTestStore(t)
	bus := events.NewBus()
	NewJournal(s).Attach(bus)

	bus.Publish(events.Event{Type: events.EventRunFinished, Payload: finishedRun("run-z", false)})

	runs, err := s.Recent(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].RunID != "run-z" {
		t.Errorf("Expected journalled run-z, got %+v", runs)
	}
}
