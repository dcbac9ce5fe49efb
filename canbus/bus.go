package canbus

import (
	"context"
	"errors"
)

// Bus represents a CAN bus connection which can send and receive CAN frames.
type Bus interface {
	// Send transmits a frame. It may block until the frame is queued or sent.
	// Context cancellation should abort the operation and return the context error.
	Send(ctx context.Context, frame Frame) error

	// Receive retrieves the next available frame. It blocks until a frame
	// is available or the context is done, in which case the context error
	// is returned. Implementations must not block past the context deadline.
	Receive(ctx context.Context) (Frame, error)

	// Close releases resources. Further Send/Receive return ErrClosed.
	Close() error
}

// ErrClosed indicates the bus or endpoint has been closed.
var ErrClosed = errors.New("canbus: closed")
