// Package network receives telemetry datagrams, from a live UDP socket or a
// capture file, and feeds them through the decode and aggregate pipeline.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/pitwall/internal/monitoring"
	"github.com/banshee-data/pitwall/internal/telemetry/parse"
	"github.com/banshee-data/pitwall/internal/timeutil"
)

var logf = monitoring.Component("ingest")

// Defaults for ListenerConfig.
const (
	DefaultPollInterval  = 100 * time.Millisecond
	DefaultStatsInterval = time.Minute
	DefaultRcvBuf        = 1 << 20
)

// ListenerConfig contains configuration options for the UDP listener.
type ListenerConfig struct {
	Address       string
	RcvBuf        int
	PollInterval  time.Duration
	StatsInterval time.Duration
	Pipeline      *Pipeline
	SocketFactory UDPSocketFactory
	Clock         timeutil.Clock
}

// Listener is the ingestion loop. It is the only reader of its socket and the
// only writer of the pipeline's state.
type Listener struct {
	address       string
	rcvBuf        int
	pollInterval  time.Duration
	statsInterval time.Duration
	pipeline      *Pipeline
	factory       UDPSocketFactory
	clock         timeutil.Clock
	buf           []byte
}

// NewListener creates a listener with defaults filled in.
func NewListener(config ListenerConfig) *Listener {
	l := &Listener{
		address:       config.Address,
		rcvBuf:        config.RcvBuf,
		pollInterval:  config.PollInterval,
		statsInterval: config.StatsInterval,
		pipeline:      config.Pipeline,
		factory:       config.SocketFactory,
		clock:         config.Clock,
		buf:           make([]byte, parse.MaxPacketSize),
	}
	if l.rcvBuf <= 0 {
		l.rcvBuf = DefaultRcvBuf
	}
	if l.pollInterval <= 0 {
		l.pollInterval = DefaultPollInterval
	}
	if l.statsInterval <= 0 {
		l.statsInterval = DefaultStatsInterval
	}
	if l.factory == nil {
		l.factory = NewRealUDPSocketFactory()
	}
	if l.clock == nil {
		l.clock = timeutil.RealClock{}
	}
	return l
}

// Run listens on the configured address until ctx is cancelled, returning
// ctx.Err(). Any receive error other than a timeout ends the loop and is
// returned.
func (l *Listener) Run(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	sock, err := l.factory.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	defer sock.Close()

	if err := sock.SetReadBuffer(l.rcvBuf); err != nil {
		logf("Warning: failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
	}
	logf("UDP listener started on %s with receive buffer %d bytes", sock.LocalAddr(), l.rcvBuf)

	if l.pipeline.Forwarder != nil {
		l.pipeline.Forwarder.Start(ctx)
	}

	statsDone := make(chan struct{})
	go func() {
		defer close(statsDone)
		l.logStats(ctx)
	}()
	defer func() { <-statsDone }()

	for {
		if err := ctx.Err(); err != nil {
			logf("UDP listener stopping due to context cancellation")
			return err
		}
		if _, err := l.drain(ctx, sock); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

// drain waits up to the poll interval for a datagram, then reads every
// datagram already queued without waiting, and publishes one snapshot for the
// whole burst when any datagram was accepted. It returns the number of
// datagrams handled.
func (l *Listener) drain(ctx context.Context, sock UDPSocket) (int, error) {
	if err := sock.SetReadDeadline(l.clock.Now().Add(l.pollInterval)); err != nil {
		return 0, fmt.Errorf("set read deadline: %w", err)
	}
	n, _, err := sock.ReadFromUDP(l.buf)
	if err != nil {
		if isTimeout(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("UDP receive failed: %w", err)
	}
	changed := l.pipeline.Handle(l.buf[:n])
	handled := 1

	for ctx.Err() == nil {
		n, err := sock.TryRead(l.buf)
		if errors.Is(err, ErrWouldBlock) {
			break
		}
		if err != nil {
			// Publish what was already applied before giving up.
			if changed {
				l.pipeline.Publish()
			}
			return handled, fmt.Errorf("UDP receive failed: %w", err)
		}
		if l.pipeline.Handle(l.buf[:n]) {
			changed = true
		}
		handled++
	}

	if changed {
		l.pipeline.Publish()
	}
	return handled, nil
}

// logStats periodically logs packet statistics until ctx is done.
func (l *Listener) logStats(ctx context.Context) {
	ticker := l.clock.NewTicker(l.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			l.pipeline.Stats.LogStats()
		}
	}
}
