package execution

import "fmt"

type State string

const (
	StateStart         State = "START"
	StateBuySent       State = "BUY_SENT"
	StateBuyConfirmed  State = "BUY_CONFIRMED"
	StateFillQueried   State = "FILL_QUERIED"
	StateSellSent      State = "SELL_SENT"
	StateSellConfirmed State = "SELL_CONFIRMED"
	StateFailed        State = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSellConfirmed || s == StateFailed
}

// StageError records which state a run was in when it failed.
type StageError struct {
	State State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.State, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
