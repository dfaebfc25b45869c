package framebridge

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrBridgeAlreadyRunning is returned when Run() is called on a bridge
	// that is already running.
	ErrBridgeAlreadyRunning = errors.New("framebridge: bridge is already running")

	// ErrBridgeStopped is returned when operations are attempted on a
	// bridge that has been shut down.
	ErrBridgeStopped = errors.New("framebridge: bridge has been stopped")

	// ErrShutdownTimeout is returned by Shutdown when a worker loop fails
	// to exit within the caller's deadline. The stuck goroutine is
	// abandoned, not killed; this is a loud, unsafe escape hatch rather
	// than a clean exit path.
	ErrShutdownTimeout = errors.New("framebridge: shutdown timed out waiting for worker loops")

	// ErrContinuationExpired is delivered as the error result of a pending
	// continuation whose deadline elapsed before a result arrived.
	ErrContinuationExpired = errors.New("framebridge: continuation deadline elapsed")

	// ErrNoHandler is recorded when a consumed command's op has no
	// registered handler. Exactly one handler must execute per command, so
	// a missing handler is a fault on the command, not on the batch.
	ErrNoHandler = errors.New("framebridge: no handler registered for op")
)

// PanicError wraps a value recovered from a panicking command handler.
type PanicError struct {
	// Value is the recovered panic value.
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("framebridge: handler panic: %v", e.Value)
}

// Unwrap returns the underlying error if the panic value is an error type,
// enabling [errors.Is] and [errors.As] through the cause chain. Returns nil
// for non-error panic values (strings etc.).
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// HandlerError records a fault that occurred while processing a single
// command. It identifies the originating command so the fault can be
// reported without halting the rest of the batch.
type HandlerError struct {
	// Err is the handler's error, or a [PanicError] if it panicked.
	Err error

	// Op is the logical type of the originating command.
	Op CommandOp

	// Correlation is the originating command's correlation id, zero when
	// the requester did not ask for a result.
	Correlation uint64
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("framebridge: command op=%d correlation=%d failed: %v", e.Op, e.Correlation, e.Err)
}

// Unwrap returns the underlying handler error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// SwapValidationError reports a back buffer that failed pre-swap
// validation. The swap is skipped and the previous front buffer continues
// to serve reads; availability is preferred over freshness.
type SwapValidationError struct {
	// Err is the validator's error.
	Err error

	// Size is the back buffer's entry count at validation time.
	Size int
}

func (e *SwapValidationError) Error() string {
	return fmt.Sprintf("framebridge: back buffer validation failed (size=%d): %v", e.Size, e.Err)
}

// Unwrap returns the validator's error.
func (e *SwapValidationError) Unwrap() error {
	return e.Err
}
