package parse

import "fmt"

/*
Telemetry datagram layout

Every datagram starts with a 24-byte header. Only two header bytes are read:
the packet id at offset 5 and the player car index at offset 20. Everything
after the header is a fixed-stride array of per-car records whose geometry
depends on the packet id:

	packet          base  stride  slots
	Motion (0)        24      60     22
	Lap Data (2)      24      43     22
	Participants (4)  25      56     22 (byte 24 holds the active count)
	Car Telemetry (6) 24      60     22

All multi-byte fields are little-endian. Offsets inside a record are listed
below as Field values; the decoders never slice the buffer directly, they go
through fieldBytes so every offset is bounds checked in one place.
*/

// Datagram geometry constants.
const (
	HeaderSize    = 24   // Minimum datagram length; shorter buffers are rejected
	NumCars       = 22   // Car slots per multi-car packet
	MaxPacketSize = 2048 // Largest datagram the stream produces
	NameFieldSize = 48   // Participant name field width in bytes
)

// FieldKind identifies the wire encoding of a field.
type FieldKind int

const (
	KindUint8 FieldKind = iota
	KindInt8
	KindUint16
	KindUint32
	KindFloat32
	KindBytes
)

func (k FieldKind) String() string {
	switch k {
	case KindUint8:
		return "uint8"
	case KindInt8:
		return "int8"
	case KindUint16:
		return "uint16"
	case KindUint32:
		return "uint32"
	case KindFloat32:
		return "float32"
	case KindBytes:
		return "bytes"
	default:
		return fmt.Sprintf("FieldKind(%d)", int(k))
	}
}

// Field describes one value inside a record: its byte offset relative to the
// record start and its encoding. Size is only consulted for KindBytes.
type Field struct {
	Name   string
	Offset int
	Kind   FieldKind
	Size   int
}

// Width returns the number of bytes the field occupies.
func (f Field) Width() int {
	switch f.Kind {
	case KindUint8, KindInt8:
		return 1
	case KindUint16:
		return 2
	case KindUint32, KindFloat32:
		return 4
	default:
		return f.Size
	}
}

// RecordLayout describes a fixed-stride array of per-car records.
type RecordLayout struct {
	Name   string
	Base   int // Offset of slot 0 from the start of the datagram
	Stride int // Bytes per slot
	Slots  int
}

// SlotOffset returns the datagram offset where the given slot begins.
func (l RecordLayout) SlotOffset(slot int) int {
	return l.Base + slot*l.Stride
}

// Header fields, relative to the start of the datagram.
var (
	FieldPacketID       = Field{Name: "packet_id", Offset: 5, Kind: KindUint8}
	FieldPlayerCarIndex = Field{Name: "player_car_index", Offset: 20, Kind: KindUint8}
)

// Motion packet (id 0).
var (
	MotionLayout = RecordLayout{Name: "motion", Base: 24, Stride: 60, Slots: NumCars}

	// World Y sits at offset 4 and is not read.
	FieldWorldPositionX = Field{Name: "world_position_x", Offset: 0, Kind: KindFloat32}
	FieldWorldPositionZ = Field{Name: "world_position_z", Offset: 8, Kind: KindFloat32}
)

// Lap data packet (id 2).
var (
	LapDataLayout = RecordLayout{Name: "lap_data", Base: 24, Stride: 43, Slots: NumCars}

	FieldLastLapTimeMs    = Field{Name: "last_lap_time_ms", Offset: 0, Kind: KindUint32}
	FieldCurrentLapTimeMs = Field{Name: "current_lap_time_ms", Offset: 4, Kind: KindUint32}
	FieldLapDistance      = Field{Name: "lap_distance", Offset: 12, Kind: KindFloat32}
	FieldTotalDistance    = Field{Name: "total_distance", Offset: 16, Kind: KindFloat32}
	FieldCurrentLapNum    = Field{Name: "current_lap_num", Offset: 25, Kind: KindUint8}
	FieldSector           = Field{Name: "sector", Offset: 28, Kind: KindUint8}
	FieldTrackPosition    = Field{Name: "track_position", Offset: 33, Kind: KindUint8}
)

// Participants packet (id 4). The active-car count precedes the records.
var (
	FieldNumActiveCars = Field{Name: "num_active_cars", Offset: 24, Kind: KindUint8}

	ParticipantsLayout = RecordLayout{Name: "participants", Base: 25, Stride: 56, Slots: NumCars}

	FieldTeamID     = Field{Name: "team_id", Offset: 3, Kind: KindUint8}
	FieldRaceNumber = Field{Name: "race_number", Offset: 5, Kind: KindUint8}
	FieldName       = Field{Name: "name", Offset: 7, Kind: KindBytes, Size: NameFieldSize}
)

// Car telemetry packet (id 6).
var (
	TelemetryLayout = RecordLayout{Name: "car_telemetry", Base: 24, Stride: 60, Slots: NumCars}

	FieldSpeedKPH  = Field{Name: "speed_kph", Offset: 0, Kind: KindUint16}
	FieldThrottle  = Field{Name: "throttle", Offset: 2, Kind: KindFloat32}
	FieldBrake     = Field{Name: "brake", Offset: 10, Kind: KindFloat32}
	FieldGear      = Field{Name: "gear", Offset: 15, Kind: KindInt8}
	FieldEngineRPM = Field{Name: "engine_rpm", Offset: 16, Kind: KindUint16}
)
