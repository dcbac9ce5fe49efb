//go:build !linux

package canbus

import "errors"

// ErrUnsupportedPlatform is returned by SocketCAN helpers outside Linux.
var ErrUnsupportedPlatform = errors.New("canbus: socketcan requires linux")

// DialSocketCAN is only available on Linux.
func DialSocketCAN(iface string) (Bus, error) {
	return nil, ErrUnsupportedPlatform
}

// PrepareInterface is only available on Linux.
func PrepareInterface(name string, bitrate uint32) error {
	return ErrUnsupportedPlatform
}
