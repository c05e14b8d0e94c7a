package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/charleschow/listing-sniper/internal/core/trading"
	"github.com/charleschow/listing-sniper/internal/events"
	"github.com/charleschow/listing-sniper/internal/telemetry"
)

const DefaultLead = 10 * time.Second

// ErrTooLate rejects a listing whose run would have to start in the past.
var ErrTooLate = errors.New("listing time is too close or already passed")

// Runner executes one listing and returns its run ID.
type Runner func(ctx context.Context, l Listing) string

// Scheduler arms one timer per pending listing and hands each to the
// runner on its own goroutine when the timer fires.
type Scheduler struct {
	store  *Store
	runner Runner
	bus    *events.Bus
	lead   time.Duration
	now    func() time.Time

	mu     sync.Mutex
	timers map[string]*time.Timer
	once   *onceGuard
	ctx    context.Context
	wg     sync.WaitGroup
}

func NewScheduler(store *Store, runner Runner, bus *events.Bus, lead time.Duration) *Scheduler {
	if lead <= 0 {
		lead = DefaultLead
	}
	return &Scheduler{
		store:  store,
		runner: runner,
		bus:    bus,
		lead:   lead,
		now:    time.Now,
		timers: make(map[string]*time.Timer),
		once:   newOnceGuard(),
		ctx:    context.Background(),
	}
}

// Start sets the context handed to runs and re-arms persisted listings.
// Listings whose start time passed while the process was down are marked
// expired, never fired late.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	listings, err := s.store.List()
	if err != nil {
		return fmt.Errorf("restore listings: %w", err)
	}
	armed := 0
	for _, l := range listings {
		if l.Status != StatusPending {
			continue
		}
		if !l.RunAt(s.lead).After(s.now()) {
			telemetry.Warnf("schedule: %s %s missed its start while down; expiring", l.ID, l.Intent.Symbol)
			if err := s.store.SetStatus(l.ID, StatusExpired, ""); err != nil {
				telemetry.Warnf("schedule: expire %s: %v", l.ID, err)
			}
			continue
		}
		s.arm(l)
		armed++
	}
	telemetry.Infof("schedule: restored %d pending listings", armed)
	return nil
}

// Add validates and persists a listing, then arms it.
func (s *Scheduler) Add(intent trading.TradeIntent) (Listing, error) {
	intent = intent.Normalize()
	if err := intent.Validate(); err != nil {
		return Listing{}, err
	}
	if intent.ListingTime.IsZero() {
		return Listing{}, &trading.ConfigurationError{Field: "listing_time", Reason: "required"}
	}

	l := Listing{
		ID:        uuid.NewString(),
		Intent:    intent,
		Status:    StatusPending,
		CreatedAt: s.now().UTC(),
	}
	if !l.RunAt(s.lead).After(s.now()) {
		return Listing{}, fmt.Errorf("%w: %s starts at %s", ErrTooLate, intent.Symbol, l.RunAt(s.lead).Format(time.RFC3339))
	}

	if err := s.store.Insert(l); err != nil {
		return Listing{}, err
	}
	s.arm(l)
	return l, nil
}

// Remove cancels a listing's timer and deletes it.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
		telemetry.Metrics.ListingsScheduled.Dec()
	}
	s.mu.Unlock()

	if err := s.store.Delete(id); err != nil {
		return err
	}
	telemetry.Infof("schedule: removed %s", id)
	return nil
}

func (s *Scheduler) List() ([]Listing, error) {
	return s.store.List()
}

// Pending is the number of armed timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop disarms every timer and waits for in-flight runs, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	telemetry.Metrics.ListingsScheduled.Set(0)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) arm(l Listing) {
	runAt := l.RunAt(s.lead)
	delay := runAt.Sub(s.now())

	s.mu.Lock()
	if old, ok := s.timers[l.ID]; ok {
		old.Stop()
	} else {
		telemetry.Metrics.ListingsScheduled.Inc()
	}
	s.timers[l.ID] = time.AfterFunc(delay, func() { s.fire(l.ID) })
	s.mu.Unlock()

	telemetry.Infof("schedule: %s %s armed, run at %s (in %s)", l.ID, l.Intent.Symbol,
		runAt.UTC().Format("15:04:05.000"), delay.Round(time.Millisecond))

	s.bus.Publish(events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventListingScheduled,
		Symbol:    l.Intent.Symbol,
		Timestamp: s.now(),
		Payload:   events.ListingEvent{ListingID: l.ID, Symbol: l.Intent.Symbol, ListingTime: l.Intent.ListingTime, RunAt: runAt},
	})
}

func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	if _, ok := s.timers[id]; !ok {
		// removed after the timer already fired
		s.mu.Unlock()
		return
	}
	delete(s.timers, id)
	telemetry.Metrics.ListingsScheduled.Dec()
	ctx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	if !s.once.Claim(id) {
		return
	}

	l, err := s.store.Get(id)
	if err != nil {
		telemetry.Errorf("schedule: fire %s: %v", id, err)
		return
	}
	if l.Status != StatusPending {
		return
	}
	if err := s.store.SetStatus(id, StatusFired, ""); err != nil {
		telemetry.Errorf("schedule: mark %s fired: %v", id, err)
		return
	}

	telemetry.Infof("schedule: firing %s %s (opens %s)", id, l.Intent.Symbol, l.Intent.ListingTime.UTC().Format(time.RFC3339))
	s.bus.Publish(events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventListingFired,
		Symbol:    l.Intent.Symbol,
		Timestamp: s.now(),
		Payload:   events.ListingEvent{ListingID: l.ID, Symbol: l.Intent.Symbol, ListingTime: l.Intent.ListingTime, RunAt: s.now()},
	})

	runID := s.runner(ctx, l)
	if runID != "" {
		if err := s.store.SetStatus(id, StatusFired, runID); err != nil {
			telemetry.Warnf("schedule: record run for %s: %v", id, err)
		}
	}
}
