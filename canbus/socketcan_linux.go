//go:build linux

package canbus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"
	"unsafe"
)

// socketCAN implements Bus over Linux SocketCAN using raw syscalls only.
type socketCAN struct {
	fd     int
	file   *os.File
	closed chan struct{}
}

// DialSocketCAN opens a raw CAN socket bound to the given interface name (e.g., "can0").
func DialSocketCAN(iface string) (Bus, error) {
	// AF_CAN, SOCK_RAW, CAN_RAW (protocol 1)
	const afCAN = 29
	const canRaw = 1
	fd, err := syscall.Socket(afCAN, syscall.SOCK_RAW, canRaw)
	if err != nil {
		return nil, fmt.Errorf("canbus: socket: %w", err)
	}

	netIf, err := net.InterfaceByName(iface)
	if err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("canbus: interface %q: %w", iface, err)
	}

	// struct sockaddr_can { sa_family_t can_family; int can_ifindex; union { ... } addr; };
	type sockaddrCAN struct {
		Family  uint16
		_pad    uint16
		Ifindex int32
		Addr    [8]byte
	}
	sa := sockaddrCAN{Family: afCAN, Ifindex: int32(netIf.Index)}
	_, _, e := syscall.Syscall(syscall.SYS_BIND, uintptr(fd), uintptr(unsafe.Pointer(&sa)), unsafe.Sizeof(sa))
	if e != 0 {
		syscall.Close(fd)
		return nil, fmt.Errorf("canbus: bind %q: %w", iface, e)
	}

	if err := syscall.SetNonblock(fd, true); err != nil {
		syscall.Close(fd)
		return nil, err
	}

	f := os.NewFile(uintptr(fd), "socketcan")
	return &socketCAN{fd: fd, file: f, closed: make(chan struct{})}, nil
}

func (s *socketCAN) Close() error {
	select {
	case <-s.closed:
		return nil
	default:
	}
	close(s.closed)
	// Closing file also closes the fd
	return s.file.Close()
}

func (s *socketCAN) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Send writes one frame using the Linux can_frame binary layout.
func (s *socketCAN) Send(ctx context.Context, frame Frame) error {
	if s.isClosed() {
		return ErrClosed
	}
	buf, err := frame.MarshalBinary()
	if err != nil {
		return err
	}
	for {
		n, werr := syscall.Write(s.fd, buf)
		if werr == nil {
			if n != len(buf) {
				return errors.New("canbus: short write")
			}
			return nil
		}
		if werr == syscall.EAGAIN || werr == syscall.EWOULDBLOCK || werr == syscall.ENOBUFS {
			if err := s.wait(ctx, false); err != nil {
				return err
			}
			continue
		}
		return werr
	}
}

// Receive reads one frame, waiting no longer than the context allows.
func (s *socketCAN) Receive(ctx context.Context) (Frame, error) {
	var f Frame
	buf := make([]byte, 16)
	for {
		if s.isClosed() {
			return Frame{}, ErrClosed
		}
		n, rerr := syscall.Read(s.fd, buf)
		if rerr == nil {
			if n != len(buf) {
				return Frame{}, errors.New("canbus: short read")
			}
			if err := f.UnmarshalBinary(buf); err != nil {
				return Frame{}, err
			}
			return f, nil
		}
		if rerr == syscall.EAGAIN || rerr == syscall.EWOULDBLOCK {
			if err := s.wait(ctx, true); err != nil {
				return Frame{}, err
			}
			continue
		}
		return Frame{}, rerr
	}
}

// maxWaitSlice bounds a single select(2) so Close and cancellation are noticed.
const maxWaitSlice = 50 * time.Millisecond

// wait blocks until the fd is readable (or writable) or ctx is done.
func (s *socketCAN) wait(ctx context.Context, read bool) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		d := maxWaitSlice
		if deadline, ok := ctx.Deadline(); ok {
			left := time.Until(deadline)
			if left <= 0 {
				return context.DeadlineExceeded
			}
			if left < d {
				d = left
			}
		}
		tv := syscall.NsecToTimeval(d.Nanoseconds())

		var set syscall.FdSet
		fdSetAdd(&set, s.fd)
		var n int
		var err error
		if read {
			n, err = syscall.Select(s.fd+1, &set, nil, nil, &tv)
		} else {
			n, err = syscall.Select(s.fd+1, nil, &set, nil, &tv)
		}
		switch {
		case err == syscall.EINTR:
			continue
		case err != nil:
			return err
		case n > 0:
			return nil
		}
		if s.isClosed() {
			return ErrClosed
		}
	}
}

// fdSetAdd sets fd in set; the word size of FdSet.Bits differs per GOARCH.
func fdSetAdd(set *syscall.FdSet, fd int) {
	bits := 8 * int(unsafe.Sizeof(set.Bits[0]))
	set.Bits[fd/bits] |= 1 << (uint(fd) % uint(bits))
}
