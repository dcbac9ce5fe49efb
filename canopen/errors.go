package canopen

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by Client operations outside Connect/Disconnect.
	ErrNotConnected = errors.New("canopen: not connected")
	// ErrTimeout means no matching response arrived within the timeout.
	ErrTimeout = errors.New("canopen: sdo timeout")
	// ErrUnsupportedEncoding is returned for encodings outside the fixed set.
	ErrUnsupportedEncoding = errors.New("canopen: unsupported encoding")
	// ErrPayloadTooLarge is returned for expedited downloads over 4 bytes.
	ErrPayloadTooLarge = errors.New("canopen: expedited payload larger than 4 bytes")
	// ErrEmptyPayload is returned for downloads without data.
	ErrEmptyPayload = errors.New("canopen: empty download payload")
	// ErrValueOutOfRange is returned when a value does not fit its encoding.
	ErrValueOutOfRange = errors.New("canopen: value out of range")
)

// TransportError reports a failure at the bus boundary.
type TransportError struct {
	Op  string // "connect", "send" or "receive"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("canopen: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
