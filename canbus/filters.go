package canbus

// Composable FrameFilter helpers.

// ByID returns a filter that matches frames with the exact identifier.
func ByID(id uint32) FrameFilter {
	return func(f Frame) bool { return f.ID == id }
}

// ByRange matches frames whose ID is within [minID, maxID], inclusive.
func ByRange(minID, maxID uint32) FrameFilter {
	if maxID < minID {
		minID, maxID = maxID, minID
	}
	return func(f Frame) bool { return f.ID >= minID && f.ID <= maxID }
}

// ByMask matches when (frame.ID & mask) == (id & mask).
func ByMask(id uint32, mask uint32) FrameFilter {
	want := id & mask
	return func(f Frame) bool { return (f.ID & mask) == want }
}

// StandardOnly matches standard (11-bit) identifiers.
func StandardOnly() FrameFilter {
	return func(f Frame) bool { return !f.Extended }
}

// DataOnly matches non-RTR frames.
func DataOnly() FrameFilter {
	return func(f Frame) bool { return !f.RTR }
}

// LenExactly matches frames with data length == n.
func LenExactly(n uint8) FrameFilter {
	return func(f Frame) bool { return f.Len == n }
}

// And composes filters; the result matches when all match. Nil filters are
// ignored, so And() with no usable filters matches everything.
func And(filters ...FrameFilter) FrameFilter {
	set := compact(filters)
	return func(f Frame) bool {
		for _, m := range set {
			if !m(f) {
				return false
			}
		}
		return true
	}
}

// Or composes filters; the result matches when any matches.
func Or(filters ...FrameFilter) FrameFilter {
	set := compact(filters)
	return func(f Frame) bool {
		for _, m := range set {
			if m(f) {
				return true
			}
		}
		return false
	}
}

// Not inverts a filter. Not(nil) matches nothing.
func Not(a FrameFilter) FrameFilter {
	if a == nil {
		return func(Frame) bool { return false }
	}
	return func(f Frame) bool { return !a(f) }
}

func compact(filters []FrameFilter) []FrameFilter {
	out := make([]FrameFilter, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}
