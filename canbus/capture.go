package canbus

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// LinkTypeCANSocketCAN is LINKTYPE_CAN_SOCKETCAN. Each record is a can_frame
// with the identifier in network byte order.
const LinkTypeCANSocketCAN = layers.LinkType(227)

const captureSnapLen = 16

// NewCaptureBus wraps inner and appends every frame it sends or receives to a
// pcap stream on w, readable by Wireshark. The pcap file header is written
// immediately. Capture write failures never fail the bus operation; the first
// one is kept and reported by Close.
func NewCaptureBus(inner Bus, w io.Writer) (Bus, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(captureSnapLen, LinkTypeCANSocketCAN); err != nil {
		return nil, fmt.Errorf("canbus: write pcap header: %w", err)
	}
	return &captureBus{inner: inner, w: pw, now: time.Now}, nil
}

type captureBus struct {
	inner Bus
	now   func() time.Time

	mu   sync.Mutex
	w    *pcapgo.Writer
	werr error
}

func (c *captureBus) record(f Frame) {
	data := EncodeCaptureRecord(f)
	ci := gopacket.CaptureInfo{
		Timestamp:     c.now(),
		CaptureLength: len(data),
		Length:        len(data),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.werr != nil {
		return
	}
	c.werr = c.w.WritePacket(ci, data)
}

func (c *captureBus) Send(ctx context.Context, frame Frame) error {
	err := c.inner.Send(ctx, frame)
	if err == nil {
		c.record(frame)
	}
	return err
}

func (c *captureBus) Receive(ctx context.Context) (Frame, error) {
	f, err := c.inner.Receive(ctx)
	if err == nil {
		c.record(f)
	}
	return f, err
}

func (c *captureBus) Close() error {
	err := c.inner.Close()
	c.mu.Lock()
	werr := c.werr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if werr != nil {
		return fmt.Errorf("canbus: pcap write: %w", werr)
	}
	return nil
}

// EncodeCaptureRecord renders f as a LINKTYPE_CAN_SOCKETCAN record.
func EncodeCaptureRecord(f Frame) []byte {
	buf := make([]byte, 8+int(f.Len))
	binary.BigEndian.PutUint32(buf[0:4], f.canID())
	buf[4] = f.Len
	copy(buf[8:], f.Payload())
	return buf
}

// DecodeCaptureRecord parses a LINKTYPE_CAN_SOCKETCAN record.
func DecodeCaptureRecord(data []byte) (Frame, error) {
	if len(data) < 8 {
		return Frame{}, fmt.Errorf("canbus: capture record too short: %d", len(data))
	}
	id := binary.BigEndian.Uint32(data[0:4])
	var f Frame
	f.Extended = id&canEffFlag != 0
	f.RTR = id&canRtrFlag != 0
	if f.Extended {
		f.ID = id & canEffMask
	} else {
		f.ID = id & canStdMask
	}
	f.Len = data[4]
	if int(f.Len) > 8 || len(data) < 8+int(f.Len) {
		return Frame{}, ErrInvalidLen
	}
	copy(f.Data[:], data[8:8+int(f.Len)])
	return f, f.Validate()
}
