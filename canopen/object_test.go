package canopen

import (
	"errors"
	"testing"
)

func TestEncodingRoundTrip(t *testing.T) {
	// Exhaustive for 8 and 16 bit encodings.
	for _, enc := range []Encoding{Uint8, Int8, Uint16, Int16} {
		lo, hi := enc.Range()
		for v := lo; v <= hi; v++ {
			b, err := Encode(v, enc)
			if err != nil {
				t.Fatalf("%v: encode %d: %v", enc, v, err)
			}
			if len(b) != enc.Width() {
				t.Fatalf("%v: encoded width %d", enc, len(b))
			}
			got, err := Decode(b, enc)
			if err != nil || got != v {
				t.Fatalf("%v: roundtrip %d -> %d (err=%v)", enc, v, got, err)
			}
		}
	}
	// Edges and a stride through the 32 bit range.
	for _, enc := range []Encoding{Uint32, Int32} {
		lo, hi := enc.Range()
		values := []int64{lo, lo + 1, 0, 1, hi - 1, hi}
		for v := lo; v < hi-65537; v += 65537 * 257 {
			values = append(values, v)
		}
		for _, v := range values {
			b, err := Encode(v, enc)
			if err != nil {
				t.Fatalf("%v: encode %d: %v", enc, v, err)
			}
			got, err := Decode(b, enc)
			if err != nil || got != v {
				t.Fatalf("%v: roundtrip %d -> %d (err=%v)", enc, v, got, err)
			}
		}
	}
}

func TestDecodeLittleEndianSigned(t *testing.T) {
	cases := []struct {
		raw  []byte
		enc  Encoding
		want int64
	}{
		{[]byte{0xFF, 0, 0, 0}, Uint8, 255},
		{[]byte{0xFF, 0, 0, 0}, Int8, -1},
		{[]byte{0x00, 0x80, 0, 0}, Int16, -32768},
		{[]byte{0x00, 0x80, 0, 0}, Uint16, 32768},
		{[]byte{0xE8, 0x03, 0x00, 0x00}, Int32, 1000},
		{[]byte{0x18, 0xFC, 0xFF, 0xFF}, Int32, -1000},
		{[]byte{0xFF, 0xFF, 0xFF, 0xFF}, Uint32, 4294967295},
	}
	for _, tc := range cases {
		got, err := Decode(tc.raw, tc.enc)
		if err != nil || got != tc.want {
			t.Fatalf("Decode(% X, %v) = %d, %v; want %d", tc.raw, tc.enc, got, err, tc.want)
		}
	}
}

func TestDecodeEncodeErrors(t *testing.T) {
	for _, enc := range []Encoding{0, Encoding(42)} {
		if _, err := Decode([]byte{1, 2, 3, 4}, enc); !errors.Is(err, ErrUnsupportedEncoding) {
			t.Fatalf("Decode with %v: want ErrUnsupportedEncoding, got %v", enc, err)
		}
		if _, err := Encode(1, enc); !errors.Is(err, ErrUnsupportedEncoding) {
			t.Fatalf("Encode with %v: want ErrUnsupportedEncoding, got %v", enc, err)
		}
	}
	if _, err := Decode([]byte{1}, Uint16); err == nil {
		t.Fatalf("short payload should fail")
	}
	if _, err := Encode(256, Uint8); !errors.Is(err, ErrValueOutOfRange) {
		t.Fatalf("want ErrValueOutOfRange, got %v", err)
	}
	if _, err := Encode(-1, Uint32); !errors.Is(err, ErrValueOutOfRange) {
		t.Fatalf("want ErrValueOutOfRange, got %v", err)
	}
}

func TestParseEncoding(t *testing.T) {
	for in, want := range map[string]Encoding{
		"UINT8": Uint8, "i8": Int8, "uint16": Uint16, " INT16 ": Int16, "u32": Uint32, "Int32": Int32,
	} {
		got, err := ParseEncoding(in)
		if err != nil || got != want {
			t.Fatalf("ParseEncoding(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseEncoding("float32"); !errors.Is(err, ErrUnsupportedEncoding) {
		t.Fatalf("float32 should be unsupported, got %v", err)
	}
	var e Encoding
	if err := e.UnmarshalText([]byte("INT16")); err != nil || e != Int16 {
		t.Fatalf("UnmarshalText: %v %v", e, err)
	}
	if b, err := Int32.MarshalText(); err != nil || string(b) != "INT32" {
		t.Fatalf("MarshalText: %q %v", b, err)
	}
}

func TestObjectRefParseAndString(t *testing.T) {
	cases := map[string]ObjectRef{
		"0x6060:00":  {0x6060, 0x00},
		"1018:04":    {0x1018, 0x04},
		"2010":       {0x2010, 0x00},
		"0X1018:0x1": {0x1018, 0x01},
	}
	for in, want := range cases {
		got, err := ParseObjectRef(in)
		if err != nil || got != want {
			t.Fatalf("ParseObjectRef(%q) = %v, %v", in, got, err)
		}
	}
	for _, bad := range []string{"", "zz", "6060:100", "12345"} {
		if _, err := ParseObjectRef(bad); err == nil {
			t.Fatalf("ParseObjectRef(%q) should fail", bad)
		}
	}
	if s := (ObjectRef{0x6060, 0}).String(); s != "6060:00" {
		t.Fatalf("String() = %q", s)
	}
}
