package parse

import "fmt"

// PacketID is the single byte at offset 5 that identifies a datagram's kind.
type PacketID uint8

const (
	PacketMotion              PacketID = 0
	PacketSession             PacketID = 1
	PacketLapData             PacketID = 2
	PacketEvent               PacketID = 3
	PacketParticipants        PacketID = 4
	PacketCarSetups           PacketID = 5
	PacketCarTelemetry        PacketID = 6
	PacketCarStatus           PacketID = 7
	PacketFinalClassification PacketID = 8
	PacketLobbyInfo           PacketID = 9
	PacketCarDamage           PacketID = 10
	PacketSessionHistory      PacketID = 11
)

// KnownPacketIDs lists every packet kind the stream is documented to carry.
var KnownPacketIDs = []PacketID{
	PacketMotion, PacketSession, PacketLapData, PacketEvent,
	PacketParticipants, PacketCarSetups, PacketCarTelemetry, PacketCarStatus,
	PacketFinalClassification, PacketLobbyInfo, PacketCarDamage, PacketSessionHistory,
}

var packetNames = [...]string{
	PacketMotion:              "Motion",
	PacketSession:             "Session",
	PacketLapData:             "Lap Data",
	PacketEvent:               "Event",
	PacketParticipants:        "Participants",
	PacketCarSetups:           "Car Setups",
	PacketCarTelemetry:        "Car Telemetry",
	PacketCarStatus:           "Car Status",
	PacketFinalClassification: "Final Classification",
	PacketLobbyInfo:           "Lobby Info",
	PacketCarDamage:           "Car Damage",
	PacketSessionHistory:      "Session History",
}

func (id PacketID) String() string {
	if int(id) < len(packetNames) {
		return packetNames[id]
	}
	return fmt.Sprintf("Unknown(%d)", uint8(id))
}

// Decoded reports whether the decoder extracts fields from this kind.
// Every other kind is counted for liveness only.
func (id PacketID) Decoded() bool {
	switch id {
	case PacketMotion, PacketLapData, PacketParticipants, PacketCarTelemetry:
		return true
	}
	return false
}

// MotionCar is one car's slot in a Motion packet. Valid is false when the
// slot could not be read or its X coordinate is exactly zero (not yet
// populated by the game).
type MotionCar struct {
	Valid bool
	X     float32
	Z     float32
}

// Motion is a decoded Motion packet.
type Motion struct {
	PlayerCarIndex uint8
	Cars           [NumCars]MotionCar
}

// LapCar is one car's slot in a Lap Data packet.
type LapCar struct {
	Valid            bool
	LastLapTimeMs    uint32
	CurrentLapTimeMs uint32
	LapDistance      float32
	TotalDistance    float32
	LapNumber        uint8
	Sector           uint8
	TrackPosition    uint8
}

// LapData is a decoded Lap Data packet.
type LapData struct {
	Cars [NumCars]LapCar
}

// Participant is one car's slot in a Participants packet. NameOK is false
// when the raw name produced nothing usable; Name then holds UnknownName.
type Participant struct {
	Valid      bool
	TeamID     uint8
	RaceNumber uint8
	Name       string
	NameOK     bool
}

// Participants is a decoded Participants packet.
type Participants struct {
	NumActive uint8
	Cars      [NumCars]Participant
}

// CarTelemetry is one car's slot in a Car Telemetry packet.
type CarTelemetry struct {
	Valid     bool
	SpeedKPH  uint16
	Throttle  float32
	Brake     float32
	Gear      int8
	EngineRPM uint16
}

// Telemetry is a decoded Car Telemetry packet.
type Telemetry struct {
	Cars [NumCars]CarTelemetry
}

// Packet is the tagged result of decoding one datagram. At most one of the
// record pointers is set; none are set for kinds that are only counted.
type Packet struct {
	ID           PacketID
	Length       int
	SkippedSlots int // Slots dropped because a field fell outside the buffer

	Motion       *Motion
	LapData      *LapData
	Participants *Participants
	Telemetry    *Telemetry
}

// Recognized reports whether the packet carried a record the decoder extracts.
func (p *Packet) Recognized() bool {
	return p.Motion != nil || p.LapData != nil || p.Participants != nil || p.Telemetry != nil
}
