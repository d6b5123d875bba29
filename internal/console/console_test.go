package console

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pitwall/internal/telemetry/parse"
	"github.com/banshee-data/pitwall/internal/telemetry/racestate"
	"github.com/banshee-data/pitwall/internal/testutil"
	"github.com/banshee-data/pitwall/internal/timeutil"
	"github.com/banshee-data/pitwall/internal/units"
)

var testEpoch = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func raceState(t *testing.T, clock timeutil.Clock) *racestate.State {
	t.Helper()
	s := racestate.New(racestate.Options{Clock: clock, TrackThreshold: 2, MinDistance: 1})
	for _, data := range [][]byte{
		testutil.MotionPacket(1, map[int]testutil.CarPosition{
			0: {X: 10, Z: 10},
			1: {X: 20, Z: 20},
		}),
		testutil.LapDataPacket(map[int]testutil.LapEntry{
			0: {TotalDistance: 2000, LapNumber: 3},
			1: {TotalDistance: 1900, LapNumber: 3, Sector: 2, CurrentLapTimeMs: 83456},
		}),
		testutil.ParticipantsPacket([]testutil.ParticipantEntry{
			{Name: []byte("LEC")},
			{Name: []byte("NOR")},
		}),
		testutil.TelemetryPacket(map[int]testutil.TelemetryEntry{
			1: {SpeedKPH: 360, Gear: 8, EngineRPM: 11500},
		}),
	} {
		pkt, err := parse.Decode(data)
		require.NoError(t, err)
		s.Apply(pkt)
	}
	return s
}

func TestRender_StandingsAndPlayer(t *testing.T) {
	t.Parallel()

	s := raceState(t, timeutil.NewMockClock(testEpoch))
	c := New(Config{Store: racestate.NewStore(s.Snapshot()), Out: &bytes.Buffer{}})
	out := c.Render(c.store.Load())

	lines := strings.Split(out, "\n")
	assert.True(t, strings.HasPrefix(lines[0], "== session "))
	assert.NotContains(t, out, "\x1b[")

	lec := strings.Index(out, "LEC")
	nor := strings.Index(out, "NOR")
	require.NotEqual(t, -1, lec)
	require.NotEqual(t, -1, nor)
	assert.Less(t, lec, nor, "leader is listed first")
	assert.Contains(t, out, "Leader")
	assert.Contains(t, out, "+1.00s")
	assert.Contains(t, out, "╭")

	assert.Contains(t, out, "P02  360 kph  gear 8  11500 rpm  lap 3  S3  1:23.456  ahead 1.00s  behind Clear Air")
}

func TestRender_SpeedUnits(t *testing.T) {
	t.Parallel()

	s := raceState(t, timeutil.NewMockClock(testEpoch))
	c := New(Config{Store: racestate.NewStore(s.Snapshot()), Out: &bytes.Buffer{}, SpeedUnits: units.MPS})
	assert.Contains(t, c.Render(c.store.Load()), "100 mps")
}

func TestRender_Empty(t *testing.T) {
	t.Parallel()

	c := New(Config{Store: racestate.NewStore(racestate.New(racestate.Options{}).Snapshot()), Out: &bytes.Buffer{}})
	assert.Contains(t, c.Render(c.store.Load()), "waiting for telemetry")
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	store := racestate.NewStore(racestate.New(racestate.Options{}).Snapshot())
	c := New(Config{Store: store, Out: &bytes.Buffer{}})
	assert.Equal(t, time.Second, c.Interval())
	assert.Equal(t, units.KPH, c.units)
	assert.False(t, c.colorize)

	c = New(Config{Store: store, Out: &bytes.Buffer{}, FPS: 4})
	assert.Equal(t, 250*time.Millisecond, c.Interval())
}

func TestDraw_SkipsUnchangedSnapshot(t *testing.T) {
	t.Parallel()

	s := raceState(t, timeutil.NewMockClock(testEpoch))
	store := racestate.NewStore(s.Snapshot())
	var out bytes.Buffer
	c := New(Config{Store: store, Out: &out})

	require.NoError(t, c.Draw())
	first := out.Len()
	require.Positive(t, first)

	require.NoError(t, c.Draw())
	assert.Equal(t, first, out.Len())

	store.Publish(s.Snapshot())
	require.NoError(t, c.Draw())
	assert.Greater(t, out.Len(), first)
}

func TestRun_DrawsOnTickUntilCancelled(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(testEpoch)
	s := raceState(t, clock)
	out := &syncBuffer{}
	c := New(Config{Store: racestate.NewStore(s.Snapshot()), Out: out, Clock: clock})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return len(clock.Tickers()) == 1 }, time.Second, time.Millisecond)
	assert.Empty(t, out.String())

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "NOR") }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, clock.Tickers()[0].Stopped())
}

func TestFormatLapTime(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0:00.000", formatLapTime(0))
	assert.Equal(t, "1:23.456", formatLapTime(83456))
	assert.Equal(t, "10:05.007", formatLapTime(605007))
}

func TestGearLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "R", gearLabel(-1))
	assert.Equal(t, "N", gearLabel(0))
	assert.Equal(t, "5", gearLabel(5))
}
