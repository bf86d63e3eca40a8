package live

import "time"

type State string

const (
	StateConnecting  State = "connecting"
	StateOpen        State = "open"
	StateInterrupted State = "interrupted"
	StateFailed      State = "failed"
	StateClosed      State = "closed"
)

// Terminal reports whether no further transitions happen except to closed
func (s State) Terminal() bool {
	return s == StateFailed || s == StateClosed
}

// Status is a snapshot of a session for the view layer
type Status struct {
	Partner        string        `json:"partner"`
	State          State         `json:"state"`
	Muted          bool          `json:"muted"`
	Error          string        `json:"error,omitempty"`
	Elapsed        time.Duration `json:"-"`
	ElapsedSeconds int           `json:"elapsed_seconds"`
}
