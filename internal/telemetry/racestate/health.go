package racestate

import (
	"time"

	"github.com/banshee-data/pitwall/internal/telemetry/parse"
)

// NumTags is the size of the packet-kind tag domain.
const NumTags = 256

// Health records per packet kind when a datagram was last received and how
// many have been received. It is a plain value; copying it copies the arrays.
type Health struct {
	LastSeen [NumTags]time.Time
	Count    [NumTags]uint64
}

// Record notes a datagram carrying tag at time now.
func (h *Health) Record(tag uint8, now time.Time) {
	h.LastSeen[tag] = now
	h.Count[tag]++
}

// Seen reports whether tag has ever been received.
func (h *Health) Seen(tag uint8) bool {
	return h.Count[tag] > 0
}

// Stale reports whether tag has not been received within maxAge of now.
// A tag that was never received is stale.
func (h *Health) Stale(tag uint8, now time.Time, maxAge time.Duration) bool {
	if !h.Seen(tag) {
		return true
	}
	return now.Sub(h.LastSeen[tag]) > maxAge
}

// HealthEntry is one row of the liveness table.
type HealthEntry struct {
	Tag      uint8     `json:"tag"`
	Name     string    `json:"name"`
	Count    uint64    `json:"count"`
	LastSeen time.Time `json:"last_seen"`
	AgeMs    int64     `json:"age_ms"`
	Stale    bool      `json:"stale"`
}

// Entries lists every known packet kind plus any other tag that has been
// received, in tag order.
func (h *Health) Entries(now time.Time, maxAge time.Duration) []HealthEntry {
	var out []HealthEntry
	for tag := 0; tag < NumTags; tag++ {
		id := parse.PacketID(tag)
		if !h.Seen(uint8(tag)) && !isKnown(id) {
			continue
		}
		e := HealthEntry{
			Tag:   uint8(tag),
			Name:  id.String(),
			Count: h.Count[tag],
			Stale: h.Stale(uint8(tag), now, maxAge),
		}
		if h.Seen(uint8(tag)) {
			e.LastSeen = h.LastSeen[tag]
			e.AgeMs = now.Sub(e.LastSeen).Milliseconds()
		}
		out = append(out, e)
	}
	return out
}

func isKnown(id parse.PacketID) bool {
	for _, k := range parse.KnownPacketIDs {
		if k == id {
			return true
		}
	}
	return false
}
