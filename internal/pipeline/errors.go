package pipeline

import (
	"context"
	"errors"
)

// ErrorKind classifies errors surfaced through Observer.OnError.
type ErrorKind string

const (
	KindCapture ErrorKind = "capture"
	KindNetwork ErrorKind = "network"
	KindCamera  ErrorKind = "camera"
)

var (
	// ErrCapture means no frame was available for a tick.
	ErrCapture = errors.New("capture failed")
	// ErrBusy means a request is already in flight. Not a failure.
	ErrBusy = errors.New("request already in flight")
	// ErrCancelled marks the result of a request superseded by a cancellation.
	ErrCancelled = errors.New("request cancelled")

	ErrCameraInactive = errors.New("start camera first")
	ErrCameraActive   = errors.New("camera already active")
	ErrNameRequired   = errors.New("enter name for registration")
	ErrModeActive     = errors.New("another mode is active; cancel it first")
	ErrNotRegistering = errors.New("not registering")
	ErrClosed         = errors.New("controller closed")
)

// NetworkError is a backend round trip that failed: unreachable, timed out,
// or answered non-2xx. The next tick retries naturally.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// classify maps a dispatch outcome onto the taxonomy. A request whose context
// was cancelled is ErrCancelled even if the transport reported something else.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return ErrCancelled
	}
	return &NetworkError{Err: err}
}
