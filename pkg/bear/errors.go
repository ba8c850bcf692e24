package bear

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned when a performance is already in progress. It is
	// returned unwrapped.
	ErrBusy = errors.New("bear: busy")

	// ErrNotRunning is returned for commands issued before Start or after Stop.
	ErrNotRunning = errors.New("bear: not running")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("bear: already started")
)

// Error wraps an actuator or audio failure surfaced by a Service command.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("bear %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
