package live

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyStarted = errors.New("session already started")
	ErrClosed         = errors.New("session closed")
	ErrNoSession      = errors.New("no call in progress")
	ErrCallActive     = errors.New("a call is already in progress")
)

// TransportError is a network or protocol failure of the streaming connection
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("live transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
