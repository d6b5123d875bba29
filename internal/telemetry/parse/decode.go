package parse

import (
	"errors"
	"fmt"

	"github.com/banshee-data/pitwall/internal/monitoring"
)

// ErrShortPacket is returned for datagrams shorter than the header.
var ErrShortPacket = errors.New("datagram shorter than header")

var logf = monitoring.Component("parse")

// PeekPacketID classifies a datagram without decoding it.
func PeekPacketID(data []byte) (PacketID, error) {
	if len(data) < HeaderSize {
		return 0, fmt.Errorf("%w: got %d bytes, need %d", ErrShortPacket, len(data), HeaderSize)
	}
	id, err := ReadUint8(data, 0, FieldPacketID)
	if err != nil {
		return 0, err
	}
	return PacketID(id), nil
}

// Decoder turns raw telemetry datagrams into typed records. A Decoder is not
// safe for concurrent use; the ingestion loop owns one.
type Decoder struct {
	packetCount  int
	debug        bool
	debugPackets int
}

// NewDecoder creates a decoder with debug logging disabled.
func NewDecoder() *Decoder {
	return &Decoder{debugPackets: 10}
}

// SetDebug enables or disables debug logging of the first decoded packets.
func (d *Decoder) SetDebug(enabled bool) {
	d.debug = enabled
}

// SetDebugPackets sets the number of initial packets to debug log.
func (d *Decoder) SetDebugPackets(count int) {
	d.debugPackets = count
}

// PacketCount returns the number of datagrams passed to Decode.
func (d *Decoder) PacketCount() int {
	return d.packetCount
}

// Decode classifies data by its packet id and extracts the record for the
// four kinds that carry race state. Datagrams shorter than the header are
// rejected with ErrShortPacket. A slot whose fields fall outside the buffer
// is marked invalid and counted in SkippedSlots; the rest of the packet is
// still decoded. The returned record does not alias data.
func (d *Decoder) Decode(data []byte) (*Packet, error) {
	d.packetCount++

	id, err := PeekPacketID(data)
	if err != nil {
		return nil, err
	}

	pkt := &Packet{ID: id, Length: len(data)}
	switch id {
	case PacketMotion:
		pkt.Motion, pkt.SkippedSlots = decodeMotion(data)
	case PacketLapData:
		pkt.LapData, pkt.SkippedSlots = decodeLapData(data)
	case PacketParticipants:
		pkt.Participants, pkt.SkippedSlots = decodeParticipants(data)
	case PacketCarTelemetry:
		pkt.Telemetry, pkt.SkippedSlots = decodeTelemetry(data)
	}

	if d.debug && d.packetCount <= d.debugPackets {
		logf("packet %d: id=%d (%s) len=%d skipped_slots=%d",
			d.packetCount, uint8(id), id, len(data), pkt.SkippedSlots)
	}
	return pkt, nil
}

// Decode decodes a single datagram without debug bookkeeping.
func Decode(data []byte) (*Packet, error) {
	var d Decoder
	return d.Decode(data)
}

func decodeMotion(data []byte) (*Motion, int) {
	m := &Motion{}
	// The header is already known to be long enough for this read.
	m.PlayerCarIndex, _ = ReadUint8(data, 0, FieldPlayerCarIndex)

	skipped := 0
	for i := 0; i < MotionLayout.Slots; i++ {
		r := slotReader{buf: data, base: MotionLayout.SlotOffset(i)}
		x := r.f32(FieldWorldPositionX)
		z := r.f32(FieldWorldPositionZ)
		if r.err != nil {
			skipped++
			continue
		}
		if x == 0 {
			continue
		}
		m.Cars[i] = MotionCar{Valid: true, X: x, Z: z}
	}
	return m, skipped
}

func decodeLapData(data []byte) (*LapData, int) {
	ld := &LapData{}
	skipped := 0
	for i := 0; i < LapDataLayout.Slots; i++ {
		r := slotReader{buf: data, base: LapDataLayout.SlotOffset(i)}
		car := LapCar{
			LastLapTimeMs:    r.u32(FieldLastLapTimeMs),
			CurrentLapTimeMs: r.u32(FieldCurrentLapTimeMs),
			LapDistance:      r.f32(FieldLapDistance),
			TotalDistance:    r.f32(FieldTotalDistance),
			LapNumber:        r.u8(FieldCurrentLapNum),
			Sector:           r.u8(FieldSector),
			TrackPosition:    r.u8(FieldTrackPosition),
		}
		if r.err != nil {
			skipped++
			continue
		}
		car.Valid = true
		ld.Cars[i] = car
	}
	return ld, skipped
}

func decodeParticipants(data []byte) (*Participants, int) {
	p := &Participants{}
	active, err := ReadUint8(data, 0, FieldNumActiveCars)
	if err != nil {
		// Header-only datagram: nothing to decode, every slot is missing.
		return p, NumCars
	}
	p.NumActive = active

	n := int(active)
	if n > ParticipantsLayout.Slots {
		n = ParticipantsLayout.Slots
	}

	skipped := 0
	for i := 0; i < n; i++ {
		r := slotReader{buf: data, base: ParticipantsLayout.SlotOffset(i)}
		teamID := r.u8(FieldTeamID)
		raceNumber := r.u8(FieldRaceNumber)
		raw := r.raw(FieldName)
		if r.err != nil {
			skipped++
			continue
		}
		name, ok := DisplayName(raw)
		p.Cars[i] = Participant{
			Valid:      true,
			TeamID:     teamID,
			RaceNumber: raceNumber,
			Name:       name,
			NameOK:     ok,
		}
	}
	return p, skipped
}

func decodeTelemetry(data []byte) (*Telemetry, int) {
	t := &Telemetry{}
	skipped := 0
	for i := 0; i < TelemetryLayout.Slots; i++ {
		r := slotReader{buf: data, base: TelemetryLayout.SlotOffset(i)}
		car := CarTelemetry{
			SpeedKPH:  r.u16(FieldSpeedKPH),
			Throttle:  r.f32(FieldThrottle),
			Brake:     r.f32(FieldBrake),
			Gear:      r.i8(FieldGear),
			EngineRPM: r.u16(FieldEngineRPM),
		}
		if r.err != nil {
			skipped++
			continue
		}
		car.Valid = true
		t.Cars[i] = car
	}
	return t, skipped
}
