package network

import (
	"github.com/banshee-data/pitwall/internal/telemetry"
	"github.com/banshee-data/pitwall/internal/telemetry/parse"
	"github.com/banshee-data/pitwall/internal/telemetry/racestate"
)

// Pipeline carries a datagram from raw bytes into the race state. It is used
// by one goroutine at a time: the live listener or a capture replay.
type Pipeline struct {
	Decoder   *parse.Decoder
	State     *racestate.State
	Store     *racestate.Store
	Stats     *telemetry.PacketStats
	Forwarder *PacketForwarder
}

// NewPipeline creates a pipeline publishing state into store.
func NewPipeline(state *racestate.State, store *racestate.Store, stats *telemetry.PacketStats) *Pipeline {
	if stats == nil {
		stats = telemetry.NewPacketStats()
	}
	return &Pipeline{
		Decoder: parse.NewDecoder(),
		State:   state,
		Store:   store,
		Stats:   stats,
	}
}

// Handle decodes one datagram and applies it. Datagrams too short to carry a
// header are counted and otherwise ignored. It reports whether the state
// changed.
func (p *Pipeline) Handle(data []byte) bool {
	p.Stats.AddPacket(len(data))

	if p.Forwarder != nil {
		p.Forwarder.ForwardAsync(data)
	}

	pkt, err := p.Decoder.Decode(data)
	if err != nil {
		p.Stats.AddRejected()
		return false
	}
	p.Stats.AddSkippedSlots(pkt.SkippedSlots)
	p.State.Apply(pkt)
	return true
}

// Publish makes the current state visible to readers.
func (p *Pipeline) Publish() {
	p.Store.Publish(p.State.Snapshot())
	p.Stats.AddPublish()
}
