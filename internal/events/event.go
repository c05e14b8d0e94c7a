package events

import "time"

// Event is the envelope that flows through the event bus.
// Every run lifecycle event (stage change, run finished, listing due) is
// wrapped in one.
type Event struct {
	ID        string
	Type      EventType
	RunID     string
	Symbol    string
	Timestamp time.Time
	Payload   any
}

type EventType string

const (
	// Sequencer events
	EventStageChanged EventType = "stage_changed"
	EventRunFinished  EventType = "run_finished"
	// Scheduler events
	EventListingScheduled EventType = "listing_scheduled"
	EventListingFired     EventType = "listing_fired"
)
