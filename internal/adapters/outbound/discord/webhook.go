package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charleschow/listing-sniper/internal/events"
	"github.com/charleschow/listing-sniper/internal/telemetry"
)

type Notifier struct {
	webhookURL string
	httpClient *http.Client
}

func NewNotifier(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *Notifier) Enabled() bool { return n.webhookURL != "" }

type Embed struct {
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Color       int     `json:"color,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
}

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type webhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

func (n *Notifier) SendText(ctx context.Context, msg string) error {
	return n.send(ctx, webhookPayload{Content: msg})
}

func (n *Notifier) SendEmbed(ctx context.Context, embed Embed) error {
	if embed.Timestamp == "" {
		embed.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	return n.send(ctx, webhookPayload{Embeds: []Embed{embed}})
}

func (n *Notifier) send(ctx context.Context, payload webhookPayload) error {
	if !n.Enabled() {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 429 {
		telemetry.Warnf("discord: rate limited")
		return fmt.Errorf("discord rate limited")
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook: status=%d", resp.StatusCode)
	}

	return nil
}

// --- Convenience methods for common alert types ---

const (
	ColorGreen  = 0x2ECC71
	ColorRed    = 0xE74C3C
	ColorYellow = 0xF1C40F
	ColorBlue   = 0x3498DB
)

// RunResult reports a finished run. An open position gets its own red
// alert so it stands out in the channel.
func (n *Notifier) RunResult(ctx context.Context, r events.RunFinishedEvent) error {
	if r.OpenPosition {
		return n.OpenPosition(ctx, r)
	}
	if r.Succeeded() {
		return n.SendEmbed(ctx, Embed{
			Title: fmt.Sprintf("Take-profit placed: %s", r.Symbol),
			Color: ColorGreen,
			Fields: []Field{
				{Name: "Bought", Value: fmt.Sprintf("%s @ %s", r.ExecutedQty, r.ExecutedPrice), Inline: true},
				{Name: "Sell", Value: fmt.Sprintf("%s @ %s", r.SellQty, r.TakeProfit), Inline: true},
				{Name: "Latency", Value: latencySummary(r), Inline: false},
				{Name: "Run", Value: r.RunID, Inline: false},
			},
		})
	}
	return n.SendEmbed(ctx, Embed{
		Title:       fmt.Sprintf("Run failed: %s", r.Symbol),
		Description: truncate(r.Error, 1024),
		Color:       ColorYellow,
		Fields: []Field{
			{Name: "Failed at", Value: r.FailedAt, Inline: true},
			{Name: "Response", Value: "```" + truncate(r.RawResponse, 900) + "```", Inline: false},
			{Name: "Run", Value: r.RunID, Inline: false},
		},
	})
}

func (n *Notifier) OpenPosition(ctx context.Context, r events.RunFinishedEvent) error {
	return n.SendEmbed(ctx, Embed{
		Title:       fmt.Sprintf("OPEN POSITION: %s", r.Symbol),
		Description: "Buy confirmed but no take-profit was placed. Manual action required.",
		Color:       ColorRed,
		Fields: []Field{
			{Name: "Buy order", Value: orDash(r.BuyOrderID), Inline: true},
			{Name: "Filled", Value: orDash(r.ExecutedQty) + " @ " + orDash(r.ExecutedPrice), Inline: true},
			{Name: "Failed at", Value: r.FailedAt, Inline: true},
			{Name: "Error", Value: truncate(r.Error, 1024), Inline: false},
		},
	})
}

func (n *Notifier) ListingScheduled(ctx context.Context, l events.ListingEvent) error {
	return n.SendEmbed(ctx, Embed{
		Title: fmt.Sprintf("Listing armed: %s", l.Symbol),
		Color: ColorBlue,
		Fields: []Field{
			{Name: "Opens", Value: l.ListingTime.UTC().Format(time.RFC3339), Inline: true},
			{Name: "Fires", Value: l.RunAt.UTC().Format("15:04:05.000"), Inline: true},
			{Name: "ID", Value: l.ListingID, Inline: false},
		},
	})
}

// Attach forwards run results and newly armed listings from bus.
func (n *Notifier) Attach(bus *events.Bus) {
	if !n.Enabled() {
		return
	}
	bus.Subscribe(events.EventRunFinished, func(evt events.Event) error {
		r, ok := evt.Payload.(events.RunFinishedEvent)
		if !ok {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return n.RunResult(ctx, r)
	})
	bus.Subscribe(events.EventListingScheduled, func(evt events.Event) error {
		l, ok := evt.Payload.(events.ListingEvent)
		if !ok {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return n.ListingScheduled(ctx, l)
	})
}

func latencySummary(r events.RunFinishedEvent) string {
	if len(r.Samples) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(r.Samples))
	for _, s := range r.Samples {
		parts = append(parts, fmt.Sprintf("%s %dms", s.Label, s.Millis))
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, n int) string {
	if s == "" {
		return "-"
	}
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
