package network

import (
	"errors"
	"net"
	"sync"
	"time"
)

// ErrWouldBlock is returned by TryRead when no datagram is queued. It marks
// the end of a drain cycle and is never a failure.
var ErrWouldBlock = errors.New("receive would block")

// UDPSocket defines the socket operations the ingestion loop needs.
// This abstraction enables unit testing without real network connections.
type UDPSocket interface {
	// ReadFromUDP blocks until a datagram arrives or the read deadline passes.
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)

	// TryRead returns a queued datagram without waiting, or ErrWouldBlock.
	TryRead(b []byte) (n int, err error)

	// SetReadBuffer sets the size of the operating system's receive buffer.
	SetReadBuffer(bytes int) error

	// SetReadDeadline sets the deadline for future ReadFromUDP calls.
	SetReadDeadline(t time.Time) error

	// Close closes the socket.
	Close() error

	// LocalAddr returns the local network address.
	LocalAddr() net.Addr
}

// UDPSocketFactory creates UDP sockets.
type UDPSocketFactory interface {
	ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error)
}

// RealUDPSocket wraps *net.UDPConn to implement UDPSocket.
type RealUDPSocket struct {
	conn *net.UDPConn
	nb   nonBlockingReader
}

// NewRealUDPSocket wraps an existing *net.UDPConn.
func NewRealUDPSocket(conn *net.UDPConn) (*RealUDPSocket, error) {
	nb, err := newNonBlockingReader(conn)
	if err != nil {
		return nil, err
	}
	return &RealUDPSocket{conn: conn, nb: nb}, nil
}

// ReadFromUDP reads from the UDP connection.
func (r *RealUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	return r.conn.ReadFromUDP(b)
}

// TryRead reads one queued datagram without blocking.
func (r *RealUDPSocket) TryRead(b []byte) (int, error) {
	return r.nb.tryRead(b)
}

// SetReadBuffer sets the receive buffer size.
func (r *RealUDPSocket) SetReadBuffer(bytes int) error {
	return r.conn.SetReadBuffer(bytes)
}

// SetReadDeadline sets the read deadline.
func (r *RealUDPSocket) SetReadDeadline(t time.Time) error {
	return r.conn.SetReadDeadline(t)
}

// Close closes the UDP connection.
func (r *RealUDPSocket) Close() error {
	return r.conn.Close()
}

// LocalAddr returns the local network address.
func (r *RealUDPSocket) LocalAddr() net.Addr {
	return r.conn.LocalAddr()
}

// RealUDPSocketFactory implements UDPSocketFactory using net.ListenUDP.
type RealUDPSocketFactory struct{}

// NewRealUDPSocketFactory creates a new RealUDPSocketFactory.
func NewRealUDPSocketFactory() *RealUDPSocketFactory {
	return &RealUDPSocketFactory{}
}

// ListenUDP creates a new UDP socket.
func (f *RealUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, err
	}
	sock, err := NewRealUDPSocket(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return sock, nil
}

// isTimeout reports whether err is a read-deadline expiry.
func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// MockUDPSocket implements UDPSocket for testing. It is safe to Enqueue from
// a test goroutine while a listener reads.
type MockUDPSocket struct {
	mu sync.Mutex

	// Packets holds the datagrams to return, in order.
	Packets []MockUDPPacket
	// ReadIndex tracks the current position in Packets.
	ReadIndex int
	// Closed indicates whether Close was called.
	Closed bool
	// ReadBufferSize holds the value set by SetReadBuffer.
	ReadBufferSize int
	// ReadDeadline holds the value set by SetReadDeadline.
	ReadDeadline time.Time
	// LocalAddress is returned by LocalAddr.
	LocalAddress *net.UDPAddr
	// ReadError is returned by the next read call if set.
	ReadError error
	// SetReadBufferError is returned by SetReadBuffer if set.
	SetReadBufferError error
	// BlockingReads and TryReads count calls to each read method.
	BlockingReads int
	TryReads      int

	arrived chan struct{}
}

// MockUDPPacket represents a datagram for mock testing.
type MockUDPPacket struct {
	Data []byte
	Addr *net.UDPAddr
}

// NewMockUDPSocket creates a new MockUDPSocket with the given packets queued.
func NewMockUDPSocket(packets []MockUDPPacket) *MockUDPSocket {
	return &MockUDPSocket{
		Packets: packets,
		LocalAddress: &net.UDPAddr{
			IP:   net.ParseIP("127.0.0.1"),
			Port: 20777,
		},
		arrived: make(chan struct{}, 1),
	}
}

// Enqueue appends datagrams as one burst.
func (m *MockUDPSocket) Enqueue(data ...[]byte) {
	m.mu.Lock()
	for _, d := range data {
		m.Packets = append(m.Packets, MockUDPPacket{Data: d})
	}
	m.mu.Unlock()

	select {
	case m.arrived <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued datagrams not yet read.
func (m *MockUDPSocket) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Packets) - m.ReadIndex
}

// FailNextRead makes the next read return err.
func (m *MockUDPSocket) FailNextRead(err error) {
	m.mu.Lock()
	m.ReadError = err
	m.mu.Unlock()

	select {
	case m.arrived <- struct{}{}:
	default:
	}
}

func (m *MockUDPSocket) next(b []byte) (n int, addr *net.UDPAddr, ok bool, err error) {
	if m.Closed {
		return 0, nil, true, net.ErrClosed
	}
	if m.ReadError != nil {
		err = m.ReadError
		m.ReadError = nil
		return 0, nil, true, err
	}
	if m.ReadIndex >= len(m.Packets) {
		return 0, nil, false, nil
	}
	pkt := m.Packets[m.ReadIndex]
	m.ReadIndex++
	return copy(b, pkt.Data), pkt.Addr, true, nil
}

// ReadFromUDP returns the next queued datagram. With nothing queued it waits
// until Enqueue is called or until a short interval passes, then reports a
// timeout.
func (m *MockUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	m.mu.Lock()
	m.BlockingReads++
	n, addr, ok, err := m.next(b)
	m.mu.Unlock()
	if ok {
		return n, addr, err
	}

	select {
	case <-m.arrived:
	case <-time.After(5 * time.Millisecond):
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if n, addr, ok, err := m.next(b); ok {
		return n, addr, err
	}
	return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: &timeoutError{}}
}

// TryRead returns the next queued datagram or ErrWouldBlock.
func (m *MockUDPSocket) TryRead(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TryReads++
	n, _, ok, err := m.next(b)
	if !ok {
		return 0, ErrWouldBlock
	}
	return n, err
}

// SetReadBuffer records the buffer size.
func (m *MockUDPSocket) SetReadBuffer(bytes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetReadBufferError != nil {
		return m.SetReadBufferError
	}
	m.ReadBufferSize = bytes
	return nil
}

// SetReadDeadline records the deadline.
func (m *MockUDPSocket) SetReadDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadDeadline = t
	return nil
}

// Close marks the socket as closed.
func (m *MockUDPSocket) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (m *MockUDPSocket) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Closed
}

// LocalAddr returns the mock local address.
func (m *MockUDPSocket) LocalAddr() net.Addr {
	return m.LocalAddress
}

// MockUDPSocketFactory implements UDPSocketFactory for testing.
type MockUDPSocketFactory struct {
	// Socket is the socket to return from ListenUDP.
	Socket *MockUDPSocket
	// Error is returned by ListenUDP if set.
	Error error
	// ListenCalls records all ListenUDP calls.
	ListenCalls []MockListenCall
}

// MockListenCall records a call to ListenUDP.
type MockListenCall struct {
	Network string
	Addr    *net.UDPAddr
}

// NewMockUDPSocketFactory creates a new MockUDPSocketFactory.
func NewMockUDPSocketFactory(socket *MockUDPSocket) *MockUDPSocketFactory {
	return &MockUDPSocketFactory{Socket: socket}
}

// ListenUDP returns the configured mock socket.
func (f *MockUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	f.ListenCalls = append(f.ListenCalls, MockListenCall{Network: network, Addr: laddr})
	if f.Error != nil {
		return nil, f.Error
	}
	return f.Socket, nil
}

// timeoutError implements net.Error for timeout simulation.
type timeoutError struct{}

func (e *timeoutError) Error() string   { return "i/o timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }
