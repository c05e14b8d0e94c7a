package execution

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/charleschow/listing-sniper/internal/adapters/mexc_auth"
	"github.com/charleschow/listing-sniper/internal/core/latency"
	"github.com/charleschow/listing-sniper/internal/core/trading"
	"github.com/charleschow/listing-sniper/internal/events"
	"github.com/charleschow/listing-sniper/internal/telemetry"
)

const DefaultSettleDelay = time.Second

// Sequencer drives one buy -> fill -> take-profit run. It is single-use and
// owns its intent; concurrent runs each get their own Sequencer and client.
//
// Every stage is attempted exactly once. A market buy is never retried and
// a sell is never sent without a confirmed positive fill.
type Sequencer struct {
	intent   trading.TradeIntent
	exchange Exchange

	warmer   Warmer
	clock    ClockSync
	trigger  Trigger
	bus      *events.Bus
	reporter *latency.Reporter

	runID       string
	settleDelay time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time

	state State
	used  atomic.Bool
}

type Option func(*Sequencer)

// WithWarmer issues a throwaway unauthenticated call before the buy.
func WithWarmer(w Warmer) Option {
	return func(s *Sequencer) { s.warmer = w }
}

// WithClockSync reads the exchange clock before any order and feeds the
// reading to c. The client signing orders should use the same clock.
func WithClockSync(c ClockSync) Option {
	return func(s *Sequencer) { s.clock = c }
}

func WithTrigger(t Trigger) Option {
	return func(s *Sequencer) { s.trigger = t }
}

func WithBus(b *events.Bus) Option {
	return func(s *Sequencer) { s.bus = b }
}

func WithReporter(r *latency.Reporter) Option {
	return func(s *Sequencer) { s.reporter = r }
}

func WithRunID(id string) Option {
	return func(s *Sequencer) {
		if id != "" {
			s.runID = id
		}
	}
}

func WithSettleDelay(d time.Duration) Option {
	return func(s *Sequencer) {
		if d >= 0 {
			s.settleDelay = d
		}
	}
}

// WithSleep replaces the settle wait (tests).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Sequencer) { s.sleep = fn }
}

// New validates the intent and credentials. The error is a
// *trading.ConfigurationError or *trading.SigningError; nothing has touched
// the network yet.
func New(intent trading.TradeIntent, ex Exchange, opts ...Option) (*Sequencer, error) {
	intent = intent.Normalize()
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	if _, err := mexc_auth.NewSigner(intent.Credentials.APISecret); err != nil {
		return nil, err
	}
	if ex == nil {
		return nil, &trading.ConfigurationError{Field: "exchange", Reason: "required"}
	}

	s := &Sequencer{
		intent:      intent,
		exchange:    ex,
		runID:       uuid.NewString(),
		settleDelay: DefaultSettleDelay,
		sleep:       sleepCtx,
		now:         time.Now,
		state:       StateStart,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.reporter == nil {
		s.reporter = latency.NewReporter()
	}
	return s, nil
}

func (s *Sequencer) RunID() string               { return s.runID }
func (s *Sequencer) Reporter() *latency.Reporter { return s.reporter }

// Run executes the pipeline. ctx bounds the pre-buy phase (sync, warm-up,
// trigger wait). Once the buy is handed to the exchange the remaining stages
// ignore cancellation: the run either places the take-profit or reports the
// open position.
func (s *Sequencer) Run(ctx context.Context) (out Outcome) {
	if !s.used.CompareAndSwap(false, true) {
		panic("execution: sequencer is single-use")
	}

	in := s.intent
	out = Outcome{
		RunID:       s.runID,
		Symbol:      in.Symbol,
		State:       StateStart,
		QuoteAmount: in.QuoteAmount,
		StartedAt:   s.now(),
	}
	telemetry.Metrics.RunsStarted.Inc()
	defer s.finish(&out)

	telemetry.Infof("execution: run=%s symbol=%s quote=%s profit=%s%%", s.runID, in.Symbol, in.QuoteAmount, in.ProfitPct)

	if s.clock != nil {
		serverMs, sample, err := s.exchange.GetServerTime(ctx)
		s.record(&out, sample)
		if err != nil {
			s.fail(&out, fmt.Errorf("server time sync: %w", err))
			return
		}
		s.clock.Observe(serverMs, sample.Sent, sample.Received)
		telemetry.Infof("execution: server time %d (rtt %dms)", serverMs, sample.Millis)
	}

	if s.warmer != nil {
		sample, err := s.warmer.Ping(ctx)
		s.record(&out, sample)
		if err != nil {
			telemetry.Warnf("execution: warm-up failed, continuing cold: %v", err)
		}
	}

	if s.trigger != nil {
		telemetry.Infof("execution: waiting on %s trigger", s.trigger.Name())
		if err := s.trigger.Wait(ctx); err != nil {
			s.fail(&out, fmt.Errorf("trigger %s: %w", s.trigger.Name(), err))
			return
		}
	}

	if err := ctx.Err(); err != nil {
		s.fail(&out, fmt.Errorf("cancelled before buy: %w", err))
		return
	}

	// From here on a position may exist.
	held := context.WithoutCancel(ctx)

	// ── Buy ──────────────────────────────────────────────────────────
	s.transition(&out, StateBuySent)
	buy, sample, err := s.exchange.PlaceMarketBuy(held, in.Symbol, in.QuoteAmount, in.Credentials)
	s.record(&out, sample)
	if err != nil {
		// A transport failure after the request left says nothing about
		// whether the order filled.
		var te *trading.TransportError
		if errors.As(err, &te) && !sample.IsZero() {
			out.BuyUnknown = true
		}
		s.fail(&out, err)
		return
	}
	if buy == nil || buy.OrderID == "" {
		s.fail(&out, &trading.ExchangeRejection{Op: "place_market_buy", Status: 200, Reason: "response has no orderId", Body: rawOf(buy)})
		return
	}
	out.Buy = buy
	s.transition(&out, StateBuyConfirmed)
	telemetry.Infof("execution: buy confirmed order=%s", buy.OrderID)

	// ── Fill ─────────────────────────────────────────────────────────
	if s.settleDelay > 0 {
		if err := s.sleep(held, s.settleDelay); err != nil {
			s.fail(&out, fmt.Errorf("settle wait: %w", err))
			return
		}
	}
	fill, sample, err := s.exchange.GetOrder(held, in.Symbol, buy.OrderID, in.Credentials)
	s.record(&out, sample)
	if err != nil {
		s.fail(&out, err)
		return
	}
	if !fill.HasFill() {
		s.fail(&out, &trading.ExchangeRejection{
			Op:     "get_order",
			Status: 200,
			Reason: trading.ErrInvalidFill.Error(),
			Body:   rawOf(fill),
		})
		return
	}
	if fill.OrderID != buy.OrderID {
		s.fail(&out, &trading.ExchangeRejection{
			Op:     "get_order",
			Status: 200,
			Reason: fmt.Sprintf("fill is for order %s, not %s", fill.OrderID, buy.OrderID),
			Body:   rawOf(fill),
		})
		return
	}
	out.Fill = fill
	s.transition(&out, StateFillQueried)

	tp, err := trading.TakeProfitPrice(fill.ExecutedPrice, in.ProfitPct)
	if err != nil {
		s.fail(&out, err)
		return
	}
	qty, err := trading.SellQuantity(fill.ExecutedQty, in.FeePct)
	if err != nil {
		s.fail(&out, err)
		return
	}
	if !qty.IsPositive() {
		s.fail(&out, fmt.Errorf("sell quantity %s rounds to zero: %w", fill.ExecutedQty, trading.ErrInvalidFill))
		return
	}
	out.TakeProfit = tp
	out.SellQty = qty
	telemetry.Infof("execution: filled qty=%s price=%s -> take-profit %s x %s",
		fill.ExecutedQty, fill.ExecutedPrice, trading.FormatFixed(qty), trading.FormatFixed(tp))

	// ── Sell ─────────────────────────────────────────────────────────
	s.transition(&out, StateSellSent)
	sell, sample, err := s.exchange.PlaceLimitSell(held, in.Symbol, qty, tp, in.Credentials)
	s.record(&out, sample)
	if err != nil {
		s.fail(&out, err)
		return
	}
	if sell == nil || sell.OrderID == "" {
		s.fail(&out, &trading.ExchangeRejection{Op: "place_limit_sell", Status: 200, Reason: "response has no orderId", Body: rawOf(sell)})
		return
	}
	out.Sell = sell
	s.transition(&out, StateSellConfirmed)
	telemetry.Infof("execution: take-profit placed order=%s", sell.OrderID)
	return
}

func (s *Sequencer) transition(out *Outcome, to State) {
	from := s.state
	s.state = to
	out.State = to
	s.bus.Publish(events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventStageChanged,
		RunID:     s.runID,
		Symbol:    s.intent.Symbol,
		Timestamp: s.now(),
		Payload:   events.StageChangeEvent{From: string(from), To: string(to)},
	})
}

func (s *Sequencer) fail(out *Outcome, err error) {
	at := s.state
	out.FailedAt = at
	out.Err = &StageError{State: at, Err: err}

	var rej *trading.ExchangeRejection
	if errors.As(err, &rej) {
		out.RawResponse = rej.Body
	}
	s.transition(out, StateFailed)
}

func (s *Sequencer) record(out *Outcome, sample latency.Sample) {
	if sample.IsZero() {
		return
	}
	out.Samples = append(out.Samples, sample)
	s.reporter.Add(sample)
}

func (s *Sequencer) finish(out *Outcome) {
	out.FinishedAt = s.now()
	out.OpenPosition = (out.Buy != nil || out.BuyUnknown) && out.State != StateSellConfirmed

	if out.Succeeded() {
		telemetry.Metrics.RunsSucceeded.Inc()
		telemetry.Infof("execution: run=%s %s in %s", s.runID, out.State, out.FinishedAt.Sub(out.StartedAt))
	} else {
		telemetry.Metrics.RunsFailed.Inc()
		telemetry.Errorf("execution: run=%s FAILED at %s: %v", s.runID, out.FailedAt, out.Err)
		if out.RawResponse != "" {
			telemetry.Errorf("execution: raw response: %s", out.RawResponse)
		}
	}
	if out.OpenPosition {
		telemetry.Metrics.OpenPositions.Inc()
		telemetry.Warnf("execution: OPEN POSITION %s buy order=%s has no take-profit; manual action required",
			out.Symbol, out.BuyOrderID())
	}

	s.bus.Publish(events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventRunFinished,
		RunID:     s.runID,
		Symbol:    out.Symbol,
		Timestamp: out.FinishedAt,
		Payload:   out.Event(),
	})
}

func rawOf(rec *trading.OrderRecord) string {
	if rec == nil {
		return ""
	}
	return rec.Raw
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
