package schedule

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/charleschow/listing-sniper/internal/core/tracking"
	"github.com/charleschow/listing-sniper/internal/core/trading"
	"github.com/charleschow/listing-sniper/internal/events"
)

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	db, err := tracking.Open(path)
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

func intentAt(at time.Time) trading.TradeIntent {
	return trading.TradeIntent{
		Symbol:      "abcusdt",
		QuoteAmount: decimal.NewFromInt(100),
		Credentials: trading.Credentials{APIKey: "mx0vglKEY1234", APISecret: "secret"},
		ListingTime: at,
	}
}

func TestAddFiresRunner(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "sniper.db"))
	fired := make(chan Listing, 1)
	bus := events.NewBus()
	var armed []events.ListingEvent
	bus.Subscribe(events.EventListingScheduled, func(e events.Event) error {
		armed = append(armed, e.Payload.(events.ListingEvent))
		return nil
	})

	s := NewScheduler(store, func(_ context.Context, l Listing) string {
		fired <- l
		return "run-1"
	}, bus, 20*time.Millisecond)

	l, err := s.Add(intentAt(time.Now().Add(80 * time.Millisecond)))
	if err != nil {
		t.Fatal(err)
	}
	if l.Intent.Symbol != "ABCUSDT" || !l.Intent.ProfitPct.Equal(trading.DefaultProfitPct) {
		t.Errorf("Expected normalized intent, got %+v", l.Intent)
	}
	if len(armed) != 1 || armed[0].ListingID != l.ID {
		t.Errorf("Expected one armed event, got %+v", armed)
	}

	select {
	case got := <-fired:
		if got.ID != l.ID || got.Intent.Credentials.APISecret != "secret" {
			t.Errorf("runner got wrong listing %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listing never fired")
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	stored, err := store.Get(l.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != StatusFired || stored.RunID != "run-1" {
		t.Errorf("Expected fired with run-1, got %s %q", stored.Status, stored.RunID)
	}
	if !s.once.HasSeen(l.ID) {
		t.Error("guard should record the fired listing")
	}
}

func TestAddTooLate(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "sniper.db"))
	s := NewScheduler(store, func(context.Context, Listing) string { return "" }, nil, 10*time.Second)

	_, err := s.Add(intentAt(time.Now().Add(5 * time.Second)))
	if !errors.Is(err, ErrTooLate) {
		t.Errorf("Expected ErrTooLate, got %v", err)
	}
	if all, _ := store.List(); len(all) != 0 {
		t.Errorf("too-late listing should not be stored, got %d", len(all))
	}
}

func TestAddRequiresListingTime(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "sniper.db"))
	s := NewScheduler(store, func(context.Context, Listing) string { return "" }, nil, 0)

	_, err := s.Add(intentAt(time.Time{}))
	var cfgErr *trading.ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "listing_time" {
		t.Errorf("Expected listing_time error, got %v", err)
	}
}

func TestRemoveCancelsTimer(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "sniper.db"))
	fired := make(chan struct{}, 1)
	s := NewScheduler(store, func(context.Context, Listing) string {
		fired <- struct{}{}
		return ""
	}, nil, 10*time.Millisecond)

	l, err := s.Add(intentAt(time.Now().Add(60 * time.Millisecond)))
	if err != nil {
		t.Fatal(err)
	}
	if s.Pending() != 1 {
		t.Errorf("Expected 1 pending, got %d", s.Pending())
	}
	if err := s.Remove(l.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(l.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second remove, got %v", err)
	}

	select {
	case <-fired:
		t.Error("removed listing fired")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestStartRestoresAndExpires(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sniper.db")
	store := openStore(t, path)

	now := time.Now()
	future := Listing{ID: "future", Intent: intentAt(now.Add(time.Hour)).Normalize(), Status: StatusPending, CreatedAt: now}
	past := Listing{ID: "past", Intent: intentAt(now.Add(-time.Minute)).Normalize(), Status: StatusPending, CreatedAt: now}
	done := Listing{ID: "done", Intent: intentAt(now.Add(time.Hour)).Normalize(), Status: StatusFired, CreatedAt: now}
	for _, l := range []Listing{future, past, done} {
		if err := store.Insert(l); err != nil {
			t.Fatal(err)
		}
	}

	s := NewScheduler(store, func(context.Context, Listing) string { return "" }, nil, 10*time.Second)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop(context.Background())

	if s.Pending() != 1 {
		t.Errorf("Expected only the future listing armed, got %d", s.Pending())
	}
	got, err := store.Get("past")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusExpired {
		t.Errorf("Expected past listing expired, got %s", got.Status)
	}
}

func TestViewRedactsSecrets(t *testing.T) {
	l := Listing{ID: "x", Intent: intentAt(time.Now()).Normalize()}
	v := l.View()
	if v.APIKey != "****1234" {
		t.Errorf("Expected redacted key, got %s", v.APIKey)
	}
	if redact("ab") != "****" {
		t.Error("short keys should be fully masked")
	}
}

func TestOnceGuard(t *testing.T) {
	g := newOnceGuard()
	if !g.Claim("a") || g.Claim("a") {
		t.Error("Claim should succeed exactly once")
	}
}
