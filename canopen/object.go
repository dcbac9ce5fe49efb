package canopen

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ObjectRef names one entry of a node's object dictionary.
type ObjectRef struct {
	Index    uint16
	Subindex uint8
}

// IdentityObject is the device type entry (0x1000:00) every node implements.
var IdentityObject = ObjectRef{Index: 0x1000, Subindex: 0x00}

// String formats the reference as "6060:00".
func (r ObjectRef) String() string {
	return fmt.Sprintf("%04X:%02X", r.Index, r.Subindex)
}

// ParseObjectRef parses "0x6060:00", "6060:0" or "6060" (sub-index 0).
// Both parts are hexadecimal.
func ParseObjectRef(s string) (ObjectRef, error) {
	idx, sub, found := strings.Cut(strings.TrimSpace(s), ":")
	idx = strings.TrimPrefix(strings.TrimPrefix(idx, "0x"), "0X")
	i, err := strconv.ParseUint(idx, 16, 16)
	if err != nil {
		return ObjectRef{}, fmt.Errorf("canopen: invalid object index in %q", s)
	}
	var si uint64
	if found {
		sub = strings.TrimPrefix(strings.TrimPrefix(sub, "0x"), "0X")
		si, err = strconv.ParseUint(sub, 16, 8)
		if err != nil {
			return ObjectRef{}, fmt.Errorf("canopen: invalid object sub-index in %q", s)
		}
	}
	return ObjectRef{Index: uint16(i), Subindex: uint8(si)}, nil
}

// Encoding is the primitive integer type of an object value. Values are
// little-endian on the wire.
type Encoding uint8

const (
	Uint8 Encoding = iota + 1
	Int8
	Uint16
	Int16
	Uint32
	Int32
)

var encodingNames = map[Encoding]string{
	Uint8:  "UINT8",
	Int8:   "INT8",
	Uint16: "UINT16",
	Int16:  "INT16",
	Uint32: "UINT32",
	Int32:  "INT32",
}

func (e Encoding) String() string {
	if s, ok := encodingNames[e]; ok {
		return s
	}
	return fmt.Sprintf("Encoding(%d)", uint8(e))
}

// Valid reports whether e is one of the supported encodings.
func (e Encoding) Valid() bool {
	_, ok := encodingNames[e]
	return ok
}

// Width returns the encoded size in bytes, or 0 for an unsupported encoding.
func (e Encoding) Width() int {
	switch e {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32:
		return 4
	default:
		return 0
	}
}

// Signed reports whether e is two's-complement signed.
func (e Encoding) Signed() bool {
	return e == Int8 || e == Int16 || e == Int32
}

// Range returns the smallest and largest value representable by e.
func (e Encoding) Range() (lo, hi int64) {
	switch e {
	case Uint8:
		return 0, math.MaxUint8
	case Int8:
		return math.MinInt8, math.MaxInt8
	case Uint16:
		return 0, math.MaxUint16
	case Int16:
		return math.MinInt16, math.MaxInt16
	case Uint32:
		return 0, math.MaxUint32
	case Int32:
		return math.MinInt32, math.MaxInt32
	default:
		return 0, 0
	}
}

// ParseEncoding accepts "UINT8"/"uint8"/"u8" style names.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "uint8", "u8":
		return Uint8, nil
	case "int8", "i8":
		return Int8, nil
	case "uint16", "u16":
		return Uint16, nil
	case "int16", "i16":
		return Int16, nil
	case "uint32", "u32":
		return Uint32, nil
	case "int32", "i32":
		return Int32, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (e Encoding) MarshalText() ([]byte, error) {
	if !e.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedEncoding, uint8(e))
	}
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Encoding) UnmarshalText(b []byte) error {
	v, err := ParseEncoding(string(b))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// Decode reinterprets the first Width() bytes of b as a little-endian
// integer of the given encoding.
func Decode(b []byte, enc Encoding) (int64, error) {
	w := enc.Width()
	if w == 0 {
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedEncoding, enc)
	}
	if len(b) < w {
		return 0, fmt.Errorf("canopen: decode %v: need %d bytes, got %d", enc, w, len(b))
	}
	switch enc {
	case Uint8:
		return int64(b[0]), nil
	case Int8:
		return int64(int8(b[0])), nil
	case Uint16:
		return int64(binary.LittleEndian.Uint16(b)), nil
	case Int16:
		return int64(int16(binary.LittleEndian.Uint16(b))), nil
	case Uint32:
		return int64(binary.LittleEndian.Uint32(b)), nil
	default: // Int32
		return int64(int32(binary.LittleEndian.Uint32(b))), nil
	}
}

// Encode renders v as Width() little-endian bytes. Values outside the
// encoding's range fail with ErrValueOutOfRange.
func Encode(v int64, enc Encoding) ([]byte, error) {
	w := enc.Width()
	if w == 0 {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedEncoding, enc)
	}
	lo, hi := enc.Range()
	if v < lo || v > hi {
		return nil, fmt.Errorf("%w: %d for %v", ErrValueOutOfRange, v, enc)
	}
	b := make([]byte, w)
	switch w {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	default:
		binary.LittleEndian.PutUint32(b, uint32(v))
	}
	return b, nil
}
