package reconnect

import (
	"errors"
	"fmt"

	"github.com/mosaicnetworks/murmur/src/roster"
)

var (
	// ErrNoConsumer is returned by Provide when nobody waits for the state
	// anymore.
	ErrNoConsumer = errors.New("no consumer waiting")

	// ErrNoPermit is returned by Provide when the caller does not hold the
	// provide permit.
	ErrNoPermit = errors.New("provide permit not held")

	// ErrAlreadyWaiting is returned by Await when another consumer waits.
	ErrAlreadyWaiting = errors.New("a consumer is already waiting")

	// ErrTooManyFailures is returned by the Controller when the reconnect
	// failed too many times in a row.
	ErrTooManyFailures = errors.New("too many reconnect failures")

	// ErrNoRole is returned when the protocol runs without having been
	// initiated or accepted.
	ErrNoRole = errors.New("unclear whether teacher or learner")
)

// ValidationError is returned when a state received from a teacher does not
// validate. The state is discarded.
type ValidationError struct {
	Peer  roster.NodeID
	Round uint64
	Err   error
}

// Error ...
func (e *ValidationError) Error() string {
	return fmt.Sprintf("state of round %d from node %d is invalid: %v", e.Round, e.Peer, e.Err)
}

// Unwrap ...
func (e *ValidationError) Unwrap() error {
	return e.Err
}
