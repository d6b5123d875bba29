//go:build linux || darwin || freebsd || netbsd || openbsd

package network

import (
	"errors"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// nonBlockingReader issues recvfrom with MSG_DONTWAIT on the socket's file
// descriptor, so an empty queue returns EAGAIN instead of parking.
type nonBlockingReader struct {
	raw syscall.RawConn
}

func newNonBlockingReader(conn *net.UDPConn) (nonBlockingReader, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nonBlockingReader{}, err
	}
	return nonBlockingReader{raw: raw}, nil
}

func (r nonBlockingReader) tryRead(b []byte) (int, error) {
	var (
		n     int
		opErr error
	)
	err := r.raw.Read(func(fd uintptr) bool {
		n, _, opErr = unix.Recvfrom(int(fd), b, unix.MSG_DONTWAIT)
		// Returning true stops the runtime from waiting for readiness.
		return true
	})
	if err != nil {
		return 0, err
	}
	if errors.Is(opErr, unix.EAGAIN) || errors.Is(opErr, unix.EWOULDBLOCK) || errors.Is(opErr, unix.EINTR) {
		return 0, ErrWouldBlock
	}
	if opErr != nil {
		return 0, &net.OpError{Op: "recvfrom", Net: "udp", Err: opErr}
	}
	return n, nil
}
