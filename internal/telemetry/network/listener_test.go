package network

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pitwall/internal/telemetry"
	"github.com/banshee-data/pitwall/internal/telemetry/racestate"
	"github.com/banshee-data/pitwall/internal/testutil"
	"github.com/banshee-data/pitwall/internal/timeutil"
)

type fixture struct {
	clock    *timeutil.MockClock
	state    *racestate.State
	store    *racestate.Store
	stats    *telemetry.PacketStats
	pipeline *Pipeline
	sock     *MockUDPSocket
	listener *Listener
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2025, 7, 6, 14, 0, 0, 0, time.UTC))
	state := racestate.New(racestate.Options{Clock: clock})
	store := racestate.NewStore(state.Snapshot())
	stats := telemetry.NewPacketStatsWithClock(clock)
	pipeline := NewPipeline(state, store, stats)
	sock := NewMockUDPSocket(nil)

	l := NewListener(ListenerConfig{
		Address:       "127.0.0.1:20777",
		Pipeline:      pipeline,
		SocketFactory: NewMockUDPSocketFactory(sock),
		Clock:         clock,
	})
	return &fixture{clock: clock, state: state, store: store, stats: stats, pipeline: pipeline, sock: sock, listener: l}
}

func motionAt(x float32) []byte {
	return testutil.MotionPacket(0, map[int]testutil.CarPosition{0: {X: x, Z: 1}})
}

func TestNewListener_Defaults(t *testing.T) {
	t.Parallel()

	l := NewListener(ListenerConfig{Address: ":20777"})
	assert.Equal(t, DefaultRcvBuf, l.rcvBuf)
	assert.Equal(t, DefaultPollInterval, l.pollInterval)
	assert.Equal(t, DefaultStatsInterval, l.statsInterval)
	assert.IsType(t, &RealUDPSocketFactory{}, l.factory)
	assert.IsType(t, timeutil.RealClock{}, l.clock)
}

func TestListener_DrainBurstPublishesOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	before := f.store.Load()
	f.sock.Enqueue(motionAt(10), motionAt(20), motionAt(30), motionAt(40), motionAt(50))

	n, err := f.listener.drain(context.Background(), f.sock)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	assert.Equal(t, uint64(5), f.state.Applied())
	after := f.store.Load()
	assert.Equal(t, before.Sequence+1, after.Sequence, "one publication per burst")
	assert.Equal(t, 50.0, after.Cars[0].X)
	assert.Equal(t, uint64(5), after.Health.Count[0])

	assert.Equal(t, 1, f.sock.BlockingReads)
	assert.Equal(t, 5, f.sock.TryReads, "four datagrams then would-block")
	assert.Equal(t, f.clock.Now().Add(DefaultPollInterval), f.sock.ReadDeadline)

	w := f.stats.GetAndReset()
	assert.Equal(t, int64(5), w.Packets)
	assert.Equal(t, int64(1), w.Publishes)
}

func TestListener_DrainShortDatagramsLeaveStateUnchanged(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	before := f.store.Load()
	f.sock.Enqueue(testutil.ShortPacket(0, 0), testutil.ShortPacket(0, 12), testutil.ShortPacket(0, 23))

	n, err := f.listener.drain(context.Background(), f.sock)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Zero(t, f.state.Applied())
	assert.Same(t, before, f.store.Load(), "nothing accepted, nothing published")
	assert.Equal(t, int64(3), f.stats.GetAndReset().Rejected)
}

func TestListener_DrainTimeoutIsNotAnError(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	n, err := f.listener.drain(context.Background(), f.sock)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, f.sock.TryReads)
}

func TestListener_DrainTryReadErrorIsFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.sock.Enqueue(motionAt(10), motionAt(20))
	boom := errors.New("connection refused")

	// The first datagram arrives via the blocking read, then the
	// non-blocking read fails.
	_, err := f.listener.drain(context.Background(), &failingTrySocket{MockUDPSocket: f.sock, err: boom})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, 10.0, f.store.Load().Cars[0].X, "the datagram before the failure is published")
}

// failingTrySocket fails every non-blocking read.
type failingTrySocket struct {
	*MockUDPSocket
	err error
}

func (s *failingTrySocket) TryRead([]byte) (int, error) { return 0, s.err }

func TestListener_RunAppliesBursts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.listener.Run(ctx) }()

	f.sock.Enqueue(motionAt(11), motionAt(22), motionAt(33))
	require.Eventually(t, func() bool {
		return f.store.Load().Cars[0].X == 33
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
	assert.True(t, f.sock.IsClosed())
}

func TestListener_RunFatalReceiveError(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	boom := &net.OpError{Op: "read", Net: "udp", Err: errors.New("network is down")}
	f.sock.FailNextRead(boom)

	err := f.listener.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "UDP receive failed")
	assert.True(t, f.sock.IsClosed())
}

func TestListener_RunListenError(t *testing.T) {
	t.Parallel()

	factory := NewMockUDPSocketFactory(nil)
	factory.Error = errors.New("address in use")
	l := NewListener(ListenerConfig{Address: "127.0.0.1:20777", SocketFactory: factory})

	err := l.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
	require.Len(t, factory.ListenCalls, 1)
	assert.Equal(t, 20777, factory.ListenCalls[0].Addr.Port)
}

func TestListener_RunBadAddress(t *testing.T) {
	t.Parallel()

	l := NewListener(ListenerConfig{Address: "not-an-address:port"})
	err := l.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to resolve UDP address")
}

func TestListener_ReceiveBufferWarningIsNotFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.sock.SetReadBufferError = errors.New("not permitted")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.listener.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
