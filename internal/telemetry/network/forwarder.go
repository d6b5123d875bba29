package network

import (
	"context"
	"fmt"
	"net"
	"time"
)

// DropCounter receives a count for each datagram the forwarder drops.
type DropCounter interface {
	AddDropped()
}

// forwardQueue is the number of datagrams buffered for forwarding.
const forwardQueue = 1000

// PacketForwarder re-sends raw datagrams to another UDP address, so a second
// telemetry consumer can run next to this one. Forwarding never blocks the
// ingestion loop: when the queue is full the datagram is dropped and counted.
type PacketForwarder struct {
	conn        *net.UDPConn
	channel     chan []byte
	stats       DropCounter
	logInterval time.Duration
	address     string
}

// NewPacketForwarder creates a forwarder sending to addr:port.
func NewPacketForwarder(addr string, port int, stats DropCounter, logInterval time.Duration) (*PacketForwarder, error) {
	forwardAddress := net.JoinHostPort(addr, fmt.Sprint(port))
	forwardUDPAddr, err := net.ResolveUDPAddr("udp", forwardAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve forward address: %w", err)
	}

	conn, err := net.DialUDP("udp", nil, forwardUDPAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create forward connection: %w", err)
	}
	if logInterval <= 0 {
		logInterval = DefaultStatsInterval
	}

	return &PacketForwarder{
		conn:        conn,
		channel:     make(chan []byte, forwardQueue),
		stats:       stats,
		logInterval: logInterval,
		address:     forwardAddress,
	}, nil
}

// Address returns the destination as host:port.
func (f *PacketForwarder) Address() string { return f.address }

// Start runs the sending goroutine until ctx is done. Write errors are
// summarised once per log interval.
func (f *PacketForwarder) Start(ctx context.Context) {
	go func() {
		failed := 0
		var lastError error
		ticker := time.NewTicker(f.logInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case packet := <-f.channel:
				if _, err := f.conn.Write(packet); err != nil {
					failed++
					lastError = err
				}
			case <-ticker.C:
				if failed > 0 && lastError != nil {
					logf("Dropped %d forwarded packets due to errors (latest: %v)", failed, lastError)
					failed = 0
					lastError = nil
				}
			}
		}
	}()

	logf("Forwarding packets to %s", f.address)
}

// ForwardAsync queues a copy of packet without blocking.
func (f *PacketForwarder) ForwardAsync(packet []byte) {
	packetCopy := make([]byte, len(packet))
	copy(packetCopy, packet)

	select {
	case f.channel <- packetCopy:
	default:
		if f.stats != nil {
			f.stats.AddDropped()
		}
	}
}

// Close closes the outgoing connection. The channel is left open so a late
// ForwardAsync cannot panic.
func (f *PacketForwarder) Close() error {
	return f.conn.Close()
}
