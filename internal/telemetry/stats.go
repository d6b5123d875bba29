package telemetry

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/pitwall/internal/monitoring"
	"github.com/banshee-data/pitwall/internal/timeutil"
)

var logf = monitoring.Component("ingest")

// PacketStats tracks ingestion counters with thread-safe operations.
type PacketStats struct {
	mu           sync.Mutex
	clock        timeutil.Clock
	packetCount  int64
	byteCount    int64
	rejectCount  int64
	skippedSlots int64
	droppedCount int64
	publishCount int64
	lastReset    time.Time
}

// StatsWindow is one period of counters returned by GetAndReset.
type StatsWindow struct {
	Packets   int64
	Bytes     int64
	Rejected  int64
	Skipped   int64
	Dropped   int64
	Publishes int64
	Duration  time.Duration
}

// NewPacketStats creates a PacketStats using the wall clock.
func NewPacketStats() *PacketStats {
	return NewPacketStatsWithClock(timeutil.RealClock{})
}

// NewPacketStatsWithClock creates a PacketStats reading time from clock.
func NewPacketStatsWithClock(clock timeutil.Clock) *PacketStats {
	return &PacketStats{clock: clock, lastReset: clock.Now()}
}

// AddPacket counts one received datagram of the given length.
func (ps *PacketStats) AddPacket(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.packetCount++
	ps.byteCount += int64(bytes)
}

// AddRejected counts a datagram too short to classify.
func (ps *PacketStats) AddRejected() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.rejectCount++
}

// AddSkippedSlots counts per-car records dropped while decoding.
func (ps *PacketStats) AddSkippedSlots(n int) {
	if n <= 0 {
		return
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.skippedSlots += int64(n)
}

// AddDropped counts a datagram the forwarder could not queue.
func (ps *PacketStats) AddDropped() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.droppedCount++
}

// AddPublish counts one snapshot publication.
func (ps *PacketStats) AddPublish() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.publishCount++
}

// GetAndReset returns the current window and starts a new one.
func (ps *PacketStats) GetAndReset() StatsWindow {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := ps.clock.Now()
	w := StatsWindow{
		Packets:   ps.packetCount,
		Bytes:     ps.byteCount,
		Rejected:  ps.rejectCount,
		Skipped:   ps.skippedSlots,
		Dropped:   ps.droppedCount,
		Publishes: ps.publishCount,
		Duration:  now.Sub(ps.lastReset),
	}

	ps.packetCount = 0
	ps.byteCount = 0
	ps.rejectCount = 0
	ps.skippedSlots = 0
	ps.droppedCount = 0
	ps.publishCount = 0
	ps.lastReset = now
	return w
}

// FormatLine renders a window as a single log line. It returns "" when the
// window saw no traffic.
func (w StatsWindow) FormatLine() string {
	if w.Packets == 0 && w.Rejected == 0 && w.Dropped == 0 {
		return ""
	}
	secs := w.Duration.Seconds()
	if secs <= 0 {
		secs = 1
	}

	line := fmt.Sprintf("telemetry stats (/sec): %.1f packets, %.1f KB, %.1f publishes",
		float64(w.Packets)/secs, float64(w.Bytes)/secs/1024, float64(w.Publishes)/secs)
	if w.Rejected > 0 {
		line += fmt.Sprintf(", %d rejected", w.Rejected)
	}
	if w.Skipped > 0 {
		line += fmt.Sprintf(", %s skipped slots", FormatWithCommas(w.Skipped))
	}
	if w.Dropped > 0 {
		line += fmt.Sprintf(", %d dropped on forward", w.Dropped)
	}
	return line
}

// LogStats logs and resets the current window.
func (ps *PacketStats) LogStats() {
	if line := ps.GetAndReset().FormatLine(); line != "" {
		logf("%s", line)
	}
}

// FormatWithCommas formats a number with thousands separators.
func FormatWithCommas(n int64) string {
	if n < 0 {
		return "-" + FormatWithCommas(-n)
	}
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	result := ""
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(char)
	}
	return result
}
