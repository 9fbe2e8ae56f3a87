package asyncbridge

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrLoopAlreadyRunning is returned when Run is called on a loop that is
	// already running.
	ErrLoopAlreadyRunning = errors.New("asyncbridge: loop is already running")

	// ErrLoopTerminated is returned when operations are attempted on a
	// terminated loop, and is the rejection reason for promises left pending
	// at termination.
	ErrLoopTerminated = errors.New("asyncbridge: loop has been terminated")

	// ErrReentrantRun is returned when Run is called from within the loop
	// goroutine itself.
	ErrReentrantRun = errors.New("asyncbridge: cannot call Run from within the loop")

	// ErrGoexit rejects a promise when a promisified function's goroutine
	// exits via runtime.Goexit.
	ErrGoexit = errors.New("asyncbridge: goroutine exited via runtime.Goexit")
)

// UsageError reports work that cannot be dispatched: a value that is neither
// an [Awaitable] nor a func producing one, arguments that do not match the
// func's signature, or arguments combined with an already in-flight
// awaitable. It is always detected before anything is scheduled.
type UsageError struct {
	Cause   error
	Message string
}

// Error implements the error interface.
func (e *UsageError) Error() string {
	if e.Message == "" {
		return "asyncbridge: usage error"
	}
	return e.Message
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *UsageError) Unwrap() error {
	return e.Cause
}

// TimeoutError indicates the calling goroutine's bounded wait elapsed before
// the dispatched work settled. The work itself is not stopped, see
// [WithCancelOnTimeout].
type TimeoutError struct {
	Cause   error
	Message string
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	if e.Message == "" {
		return "asyncbridge: operation timed out"
	}
	return e.Message
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
// The cause is [context.DeadlineExceeded] for deadline-based waits.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// PanicError wraps a panic value recovered from dispatched or promisified
// work.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("asyncbridge: recovered panic: %v", e.Value)
}

// Unwrap returns the underlying error if the panic value is an error type,
// enabling [errors.Is] and [errors.As] matching through the cause chain.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// RejectionError carries a non-error rejection value across the bridge
// boundary, where an error return is required.
type RejectionError struct {
	Value any
}

// Error implements the error interface.
func (e *RejectionError) Error() string {
	return fmt.Sprintf("asyncbridge: operation rejected: %v", e.Value)
}
