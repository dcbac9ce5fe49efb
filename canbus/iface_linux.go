//go:build linux

package canbus

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"syscall"
	"unsafe"
)

// Linux network interface helpers. Link flags are toggled via ioctl on a
// SOCK_DGRAM socket; CAN timing is applied through iproute2. Changing either
// requires CAP_NET_ADMIN.

const (
	ifNameSize   = 16     // IFNAMSIZ
	siocGIFFlags = 0x8913 // SIOCGIFFLAGS
	siocSIFFlags = 0x8914 // SIOCSIFFLAGS
	iffUp        = 0x1    // IFF_UP
)

// ifreqFlags mirrors the layout of struct ifreq for flag operations on Linux.
type ifreqFlags struct {
	Name  [ifNameSize]byte
	Flags uint16
	pad   [22]byte
}

func validIfName(name string) error {
	if len(name) == 0 || len(name) >= ifNameSize {
		return fmt.Errorf("canbus: invalid interface name %q", name)
	}
	return nil
}

func ifFlagsIoctl(name string, req uintptr, ifr *ifreqFlags) error {
	if err := validIfName(name); err != nil {
		return err
	}
	fd, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_DGRAM, 0)
	if err != nil {
		return err
	}
	defer syscall.Close(fd)
	copy(ifr.Name[:], name)
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), req, uintptr(unsafe.Pointer(ifr)))
	if errno != 0 {
		return errno
	}
	return nil
}

func getInterfaceFlags(name string) (uint16, error) {
	var ifr ifreqFlags
	if err := ifFlagsIoctl(name, siocGIFFlags, &ifr); err != nil {
		return 0, err
	}
	return ifr.Flags, nil
}

func setInterfaceFlags(name string, flags uint16) error {
	ifr := ifreqFlags{Flags: flags}
	return ifFlagsIoctl(name, siocSIFFlags, &ifr)
}

// IsInterfaceUp returns true if the Linux network interface has IFF_UP set.
func IsInterfaceUp(name string) (bool, error) {
	flags, err := getInterfaceFlags(name)
	if err != nil {
		return false, err
	}
	return flags&iffUp != 0, nil
}

// SetInterfaceUp sets IFF_UP on the given interface.
func SetInterfaceUp(name string) error {
	flags, err := getInterfaceFlags(name)
	if err != nil {
		return err
	}
	if flags&iffUp != 0 {
		return nil
	}
	return RequireRootOrCapNetAdmin(setInterfaceFlags(name, flags|iffUp))
}

// SetInterfaceDown clears IFF_UP on the given interface.
func SetInterfaceDown(name string) error {
	flags, err := getInterfaceFlags(name)
	if err != nil {
		return err
	}
	if flags&iffUp == 0 {
		return nil
	}
	return RequireRootOrCapNetAdmin(setInterfaceFlags(name, flags&^iffUp))
}

// RequireRootOrCapNetAdmin maps EPERM to an error advising CAP_NET_ADMIN.
func RequireRootOrCapNetAdmin(err error) error {
	if errors.Is(err, syscall.EPERM) {
		return fmt.Errorf("operation requires CAP_NET_ADMIN (or root): %w", err)
	}
	return err
}

// SetBitrate applies the arbitration bit-rate with `ip link set ... type can`.
// The interface must be down.
func SetBitrate(name string, bitrate uint32) error {
	if err := validIfName(name); err != nil {
		return err
	}
	cmd := exec.Command("ip", "link", "set", "dev", name, "type", "can", "bitrate", strconv.FormatUint(uint64(bitrate), 10))
	if out, err := cmd.CombinedOutput(); err != nil {
		return RequireRootOrCapNetAdmin(fmt.Errorf("ip link set type can failed: %w; output: %s", err, string(out)))
	}
	return nil
}

// PrepareInterface takes the interface down, applies bitrate and brings it
// back up. A zero bitrate only ensures the link is up.
func PrepareInterface(name string, bitrate uint32) error {
	if bitrate == 0 {
		return SetInterfaceUp(name)
	}
	if err := SetInterfaceDown(name); err != nil {
		return err
	}
	if err := SetBitrate(name, bitrate); err != nil {
		return err
	}
	return SetInterfaceUp(name)
}
