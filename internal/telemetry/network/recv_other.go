//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package network

import (
	"net"
	"time"
)

// pollWindow is how long a fallback TryRead waits for a queued datagram.
const pollWindow = time.Millisecond

// nonBlockingReader approximates a non-blocking receive with a short read
// deadline on platforms without MSG_DONTWAIT.
type nonBlockingReader struct {
	conn *net.UDPConn
}

func newNonBlockingReader(conn *net.UDPConn) (nonBlockingReader, error) {
	return nonBlockingReader{conn: conn}, nil
}

func (r nonBlockingReader) tryRead(b []byte) (int, error) {
	if err := r.conn.SetReadDeadline(time.Now().Add(pollWindow)); err != nil {
		return 0, err
	}
	n, _, err := r.conn.ReadFromUDP(b)
	if err != nil {
		if isTimeout(err) {
			return 0, ErrWouldBlock
		}
		return 0, err
	}
	return n, nil
}
