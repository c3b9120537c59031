package schedz

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors returned by setup, admission, and steady-state paths.
var (
	// ErrNilController is returned by New when no process controller is provided.
	ErrNilController = errors.New("nil process controller")

	// ErrMalformedWorkload is returned when a workload line does not match
	// the exec grammar. Admission is aborted; no further lines are read.
	ErrMalformedWorkload = errors.New("malformed workload line")

	// ErrSpawnFailed is returned when a child could not be started or
	// suspended. The child is never enqueued.
	ErrSpawnFailed = errors.New("child spawn failed")

	// ErrInboxFull is returned by Inbox.Post when the bounded ring is at
	// capacity. Steady-state workloads never approach the bound; hitting it
	// indicates a runaway signal source.
	ErrInboxFull = errors.New("signal inbox full")

	// ErrDuplicateProcess is returned by Admit when the pid is already
	// tracked by the scheduler.
	ErrDuplicateProcess = errors.New("process already admitted")
)

// Error provides context about a scheduler failure: which operation was in
// flight, the process it concerned, and when it happened. It wraps the
// underlying error for use with errors.Is and errors.As.
type Error struct {
	Timestamp time.Time
	Err       error
	Op        string
	PID       int
	Tier      int
	Canceled  bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.PID > 0 {
		return fmt.Sprintf("%s pid %d (tier %d): %v", e.Op, e.PID, e.Tier, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error, supporting error wrapping patterns.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsCanceled returns true if the error was caused by context cancellation,
// which indicates intentional shutdown rather than failure.
func (e *Error) IsCanceled() bool {
	if e == nil {
		return false
	}
	return e.Canceled
}
