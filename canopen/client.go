package canopen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/notnil/canbms/canbus"
)

// Default timeouts for object access.
const (
	DefaultUploadTimeout   = 500 * time.Millisecond
	DefaultDownloadTimeout = 2 * time.Second
	DefaultScanTimeout     = 100 * time.Millisecond

	// downloadReceiveSlice bounds each receive while waiting for a download
	// acknowledgement.
	downloadReceiveSlice = 100 * time.Millisecond
)

// Dialer opens the bus connection owned by a Client.
type Dialer func() (canbus.Bus, error)

// Client performs expedited SDO uploads and downloads against any node on
// one bus connection.
//
// Response correlation assumes one outstanding request per bus, so the
// client serializes its transactions: concurrent callers on the same Client
// are safe but wait for each other. Frames from other nodes, unexpected
// commands and malformed frames seen while waiting are discarded.
type Client struct {
	dial   Dialer
	logger *slog.Logger

	mu  sync.Mutex
	bus canbus.Bus
}

// NewClient returns a disconnected client. A nil logger uses slog.Default().
func NewClient(dial Dialer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{dial: dial, logger: logger}
}

// Connect opens the bus. It is a no-op when already connected. On failure
// the client stays disconnected.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bus != nil {
		return nil
	}
	if c.dial == nil {
		return &TransportError{Op: "connect", Err: errors.New("no dialer")}
	}
	bus, err := c.dial()
	if err != nil {
		return &TransportError{Op: "connect", Err: err}
	}
	if bus == nil {
		return &TransportError{Op: "connect", Err: errors.New("dialer returned nil bus")}
	}
	c.bus = bus
	c.logger.Info("canopen connected")
	return nil
}

// Disconnect releases the bus. It is safe to call repeatedly or before
// Connect; the bus is closed exactly once.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bus == nil {
		return nil
	}
	err := c.bus.Close()
	c.bus = nil
	c.logger.Info("canopen disconnected")
	return err
}

// Connected reports whether Connect has succeeded and Disconnect has not
// been called since.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bus != nil
}

// Upload reads ref from node with an initiate upload request and returns
// response bytes 4..7. The error is ErrTimeout (wrapped) when no matching
// response arrives before timeout, an *AbortError when the node rejects the
// access, ErrNotConnected, or a *TransportError. A non-positive timeout
// selects DefaultUploadTimeout.
func (c *Client) Upload(node NodeID, ref ObjectRef, timeout time.Duration) ([]byte, error) {
	req, err := UploadRequest(node, ref)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultUploadTimeout
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bus == nil {
		return nil, ErrNotConnected
	}

	deadline := time.Now().Add(timeout)
	if err := c.send(deadline, req); err != nil {
		return nil, err
	}
	match := SDOResponse(node)
	for {
		f, ok, err := c.receive(deadline, 0)
		if err != nil {
			return nil, err
		}
		if !ok {
			if !time.Now().Before(deadline) {
				c.logger.Debug("sdo upload timeout", "node", node, "object", ref)
				return nil, fmt.Errorf("%w: upload node %d @ %v", ErrTimeout, node, ref)
			}
			continue
		}
		if !match(f) {
			continue
		}
		rsp := ClassifyResponse(f)
		switch rsp.Kind {
		case ResponseAbort:
			code := rsp.AbortCode()
			c.logger.Debug("sdo upload abort", "node", node, "object", ref, "code", fmt.Sprintf("0x%08X", code))
			return nil, &AbortError{Node: node, Ref: ref, Code: code}
		case ResponseUpload:
			out := make([]byte, 4)
			copy(out, rsp.Data[:])
			return out, nil
		}
	}
}

// Download writes 1..4 bytes to ref on node with an expedited download.
// Acknowledgements echoing a different object are ignored; an abort ends the
// wait immediately. Payloads over 4 bytes fail with ErrPayloadTooLarge
// before anything is sent. A non-positive timeout selects
// DefaultDownloadTimeout.
func (c *Client) Download(node NodeID, ref ObjectRef, data []byte, timeout time.Duration) error {
	req, err := DownloadRequest(node, ref, data)
	if err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = DefaultDownloadTimeout
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bus == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(timeout)
	if err := c.send(deadline, req); err != nil {
		return err
	}
	c.logger.Debug("sdo download", "node", node, "object", ref, "data", fmt.Sprintf("%X", data))
	match := SDOResponse(node)
	for {
		f, ok, err := c.receive(deadline, downloadReceiveSlice)
		if err != nil {
			return err
		}
		if !ok {
			if !time.Now().Before(deadline) {
				c.logger.Warn("sdo download timeout", "node", node, "object", ref)
				return fmt.Errorf("%w: download node %d @ %v", ErrTimeout, node, ref)
			}
			continue
		}
		if !match(f) {
			continue
		}
		rsp := ClassifyResponse(f)
		switch rsp.Kind {
		case ResponseDownload:
			if rsp.Ref != ref {
				c.logger.Warn("sdo download ack for other object", "node", node, "object", ref, "echoed", rsp.Ref)
				continue
			}
			return nil
		case ResponseAbort:
			code := rsp.AbortCode()
			c.logger.Warn("sdo download abort", "node", node, "object", ref, "code", fmt.Sprintf("0x%08X", code))
			return &AbortError{Node: node, Ref: ref, Code: code}
		}
	}
}

// ReadValue uploads ref and decodes it with enc.
func (c *Client) ReadValue(node NodeID, ref ObjectRef, enc Encoding, timeout time.Duration) (int64, error) {
	if !enc.Valid() {
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedEncoding, enc)
	}
	b, err := c.Upload(node, ref, timeout)
	if err != nil {
		return 0, err
	}
	return Decode(b, enc)
}

// WriteValue encodes v with enc and downloads it to ref.
func (c *Client) WriteValue(node NodeID, ref ObjectRef, enc Encoding, v int64, timeout time.Duration) error {
	b, err := Encode(v, enc)
	if err != nil {
		return err
	}
	return c.Download(node, ref, b, timeout)
}

// Scan probes each node in order by uploading the device type object
// (0x1000:00) and returns the nodes that answered with data, in probe order.
// Aborts and timeouts mark a node inactive; connection and transport errors
// stop the scan and are returned with the nodes found so far.
func (c *Client) Scan(nodes []NodeID, timeout time.Duration) ([]NodeID, error) {
	c.logger.Info("scanning for canopen nodes", "candidates", len(nodes))
	var active []NodeID
	for _, node := range nodes {
		b, err := c.Upload(node, IdentityObject, timeout)
		var abort *AbortError
		switch {
		case err == nil:
			deviceType, _ := Decode(b, Uint32)
			c.logger.Info("found node", "node", node, "device_type", fmt.Sprintf("0x%08X", deviceType))
			active = append(active, node)
		case errors.Is(err, ErrTimeout), errors.As(err, &abort):
		default:
			return active, err
		}
	}
	c.logger.Info("scan complete", "found", len(active))
	return active, nil
}

func (c *Client) send(deadline time.Time, f canbus.Frame) error {
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()
	if err := c.bus.Send(ctx, f); err != nil {
		c.logger.Error("sdo send failed", "frame", f.String(), "error", err)
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

// receive waits for one frame until deadline, or for at most slice when
// slice > 0. ok is false when the wait elapsed without a frame.
func (c *Client) receive(deadline time.Time, slice time.Duration) (canbus.Frame, bool, error) {
	wait := time.Until(deadline)
	if wait <= 0 {
		return canbus.Frame{}, false, nil
	}
	if slice > 0 && slice < wait {
		wait = slice
	}
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	f, err := c.bus.Receive(ctx)
	switch {
	case err == nil:
		return f, true, nil
	case errors.Is(err, context.DeadlineExceeded):
		return canbus.Frame{}, false, nil
	default:
		c.logger.Error("sdo receive failed", "error", err)
		return canbus.Frame{}, false, &TransportError{Op: "receive", Err: err}
	}
}
