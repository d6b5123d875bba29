package testutil

import (
	"encoding/binary"
	"math"
)

// Datagram builders for tests. Offsets are spelled out here instead of being
// taken from the decoder's layout tables, so tests cross-check the decoder.
const (
	headerSize = 24
	numCars    = 22

	motionStride       = 60
	lapDataStride      = 43
	participantsBase   = 25
	participantsStride = 56
	telemetryStride    = 60

	// Full-size datagram lengths.
	MotionPacketSize       = headerSize + numCars*motionStride
	LapDataPacketSize      = headerSize + numCars*lapDataStride
	ParticipantsPacketSize = participantsBase + numCars*participantsStride
	TelemetryPacketSize    = headerSize + numCars*telemetryStride
)

// Packet ids used by the builders.
const (
	MotionID       uint8 = 0
	LapDataID      uint8 = 2
	ParticipantsID uint8 = 4
	TelemetryID    uint8 = 6
)

// CarPosition is a world-space position for a Motion slot.
type CarPosition struct {
	X, Y, Z float32
}

// LapEntry is one Lap Data slot.
type LapEntry struct {
	LastLapTimeMs    uint32
	CurrentLapTimeMs uint32
	LapDistance      float32
	TotalDistance    float32
	LapNumber        uint8
	Sector           uint8
	TrackPosition    uint8
}

// ParticipantEntry is one Participants slot. Name is written verbatim, so
// tests can supply invalid UTF-8.
type ParticipantEntry struct {
	TeamID     uint8
	RaceNumber uint8
	Name       []byte
}

// TelemetryEntry is one Car Telemetry slot.
type TelemetryEntry struct {
	SpeedKPH  uint16
	Throttle  float32
	Brake     float32
	Gear      int8
	EngineRPM uint16
}

// HeaderPacket returns a zeroed datagram of the given size carrying id at
// offset 5 and the player index at offset 20. size is raised to the header
// length when smaller, unless it is deliberately short (use ShortPacket).
func HeaderPacket(id, playerIndex uint8, size int) []byte {
	if size < headerSize {
		size = headerSize
	}
	buf := make([]byte, size)
	buf[5] = id
	buf[20] = playerIndex
	return buf
}

// ShortPacket returns a datagram of n bytes (n < 24 is rejected by the decoder).
// When n > 5 the id byte is set so tests show rejection is length based.
func ShortPacket(id uint8, n int) []byte {
	buf := make([]byte, n)
	if n > 5 {
		buf[5] = id
	}
	return buf
}

// MotionPacket builds a full Motion datagram.
func MotionPacket(playerIndex uint8, cars map[int]CarPosition) []byte {
	buf := HeaderPacket(MotionID, playerIndex, MotionPacketSize)
	for i, c := range cars {
		off := headerSize + i*motionStride
		putFloat32(buf[off:], c.X)
		putFloat32(buf[off+4:], c.Y)
		putFloat32(buf[off+8:], c.Z)
	}
	return buf
}

// LapDataPacket builds a full Lap Data datagram.
func LapDataPacket(cars map[int]LapEntry) []byte {
	buf := HeaderPacket(LapDataID, 0, LapDataPacketSize)
	for i, c := range cars {
		off := headerSize + i*lapDataStride
		binary.LittleEndian.PutUint32(buf[off:], c.LastLapTimeMs)
		binary.LittleEndian.PutUint32(buf[off+4:], c.CurrentLapTimeMs)
		putFloat32(buf[off+12:], c.LapDistance)
		putFloat32(buf[off+16:], c.TotalDistance)
		buf[off+25] = c.LapNumber
		buf[off+28] = c.Sector
		buf[off+33] = c.TrackPosition
	}
	return buf
}

// ParticipantsPacket builds a full Participants datagram whose active count
// is len(entries).
func ParticipantsPacket(entries []ParticipantEntry) []byte {
	buf := HeaderPacket(ParticipantsID, 0, ParticipantsPacketSize)
	buf[24] = uint8(len(entries))
	for i, e := range entries {
		off := participantsBase + i*participantsStride
		buf[off+3] = e.TeamID
		buf[off+5] = e.RaceNumber
		copy(buf[off+7:off+7+48], e.Name)
	}
	return buf
}

// TelemetryPacket builds a full Car Telemetry datagram.
func TelemetryPacket(cars map[int]TelemetryEntry) []byte {
	buf := HeaderPacket(TelemetryID, 0, TelemetryPacketSize)
	for i, c := range cars {
		off := headerSize + i*telemetryStride
		binary.LittleEndian.PutUint16(buf[off:], c.SpeedKPH)
		putFloat32(buf[off+2:], c.Throttle)
		putFloat32(buf[off+10:], c.Brake)
		buf[off+15] = uint8(c.Gear)
		binary.LittleEndian.PutUint16(buf[off+16:], c.EngineRPM)
	}
	return buf
}

func putFloat32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}
