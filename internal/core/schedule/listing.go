package schedule

import (
	"time"

	"github.com/charleschow/listing-sniper/internal/core/trading"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusFired     Status = "fired"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Listing is one armed trade intent waiting for its pair to open.
type Listing struct {
	ID        string
	Intent    trading.TradeIntent
	Status    Status
	CreatedAt time.Time
	RunID     string // set once fired
}

// RunAt is when the run starts: lead before the listing opens, leaving
// room for clock sync and connection warm-up.
func (l Listing) RunAt(lead time.Duration) time.Time {
	return l.Intent.ListingTime.Add(-lead)
}

// View is the API representation. Credentials never leave the process.
type View struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	QuoteAmount string    `json:"quote_amount"`
	ProfitPct   string    `json:"profit_pct"`
	FeePct      string    `json:"fee_pct"`
	APIKey      string    `json:"api_key"`
	ListingTime time.Time `json:"listing_time"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	RunID       string    `json:"run_id,omitempty"`
}

func (l Listing) View() View {
	return View{
		ID:          l.ID,
		Symbol:      l.Intent.Symbol,
		QuoteAmount: l.Intent.QuoteAmount.String(),
		ProfitPct:   l.Intent.ProfitPct.String(),
		FeePct:      l.Intent.FeePct.String(),
		APIKey:      redact(l.Intent.Credentials.APIKey),
		ListingTime: l.Intent.ListingTime,
		Status:      l.Status,
		CreatedAt:   l.CreatedAt,
		RunID:       l.RunID,
	}
}

// redact keeps the last four characters so operators can tell keys apart.
func redact(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
