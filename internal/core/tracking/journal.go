package tracking

import (
	"fmt"

	"github.com/charleschow/listing-sniper/internal/events"
	"github.com/charleschow/listing-sniper/internal/telemetry"
)

// Journal writes every finished run to the store.
type Journal struct {
	store *Store
}

func NewJournal(store *Store) *Journal {
	return &Journal{store: store}
}

// Attach subscribes the journal to run completions on bus.
func (j *Journal) Attach(bus *events.Bus) {
	bus.Subscribe(events.EventRunFinished, j.onRunFinished)
}

func (j *Journal) onRunFinished(evt events.Event) error {
	run, ok := evt.Payload.(events.RunFinishedEvent)
	if !ok {
		return nil
	}
	id, err := j.store.InsertRun(run)
	if err != nil {
		return fmt.Errorf("journal run %s: %w", run.RunID, err)
	}
	telemetry.Debugf("tracking: journalled run=%s row=%d state=%s", run.RunID, id, run.FinalState)
	return nil
}
