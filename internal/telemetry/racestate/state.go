// Package racestate holds the live race aggregate. A single ingestion
// goroutine owns the mutable State and publishes immutable Snapshots through a
// Store; every other goroutine reads snapshots only.
package racestate

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/pitwall/internal/telemetry/parse"
	"github.com/banshee-data/pitwall/internal/telemetry/standings"
	"github.com/banshee-data/pitwall/internal/telemetry/trackmap"
	"github.com/banshee-data/pitwall/internal/timeutil"
)

// NumCars is the number of car slots in a session.
const NumCars = parse.NumCars

// UnknownTeam is the team id of a car whose participant record has not been
// decoded.
const UnknownTeam = -1

// NoPlayer is the player index before any Motion packet names one.
const NoPlayer = -1

// CarState is everything known about one car slot.
type CarState struct {
	Index int  `json:"index"`
	Seen  bool `json:"seen"`

	X float64 `json:"x"`
	Z float64 `json:"z"`

	Distance         float64 `json:"distance"`
	LapDistance      float64 `json:"lap_distance"`
	LapNumber        uint8   `json:"lap_number"`
	Sector           uint8   `json:"sector"`
	TrackPosition    uint8   `json:"track_position"`
	CurrentLapTimeMs uint32  `json:"current_lap_time_ms"`
	LastLapTimeMs    uint32  `json:"last_lap_time_ms"`

	TeamID     int    `json:"team_id"`
	RaceNumber uint8  `json:"race_number"`
	Name       string `json:"name"`
	NameKnown  bool   `json:"name_known"`

	SpeedKPH uint16 `json:"speed_kph"`
}

// DefaultCarName is the label used until a participant name is decoded.
func DefaultCarName(index int) string {
	return fmt.Sprintf("CAR %d", index)
}

// PlayerTelemetry is the player car's instrument cluster. GapAhead and
// GapBehind are zero when there is no car in that direction or the gap is
// unknown; GapAheadState and GapBehindState tell the two apart.
type PlayerTelemetry struct {
	SpeedKPH      uint16  `json:"speed_kph"`
	Throttle      float64 `json:"throttle"`
	Brake         float64 `json:"brake"`
	Gear          int8    `json:"gear"`
	EngineRPM     uint16  `json:"engine_rpm"`
	LapTimeMs     uint32  `json:"lap_time_ms"`
	LastLapTimeMs uint32  `json:"last_lap_time_ms"`
	LapNumber     uint8   `json:"lap_number"`
	Sector        uint8   `json:"sector"`
	GapAhead      float64 `json:"gap_ahead"`
	GapBehind     float64 `json:"gap_behind"`
	Position      string  `json:"position"`

	GapAheadState  standings.GapState `json:"gap_ahead_state"`
	GapBehindState standings.GapState `json:"gap_behind_state"`
}

// Options configures a new State.
type Options struct {
	Clock timeutil.Clock
	// SessionID identifies this aggregate; a random id is used when zero.
	SessionID uuid.UUID
	// TrackThreshold is the track-map dedup distance in meters.
	TrackThreshold float64
	// MinDistance is the distance a car must exceed to be classified.
	MinDistance float64
}

// State is the mutable aggregate. It is not safe for concurrent use.
type State struct {
	clock     timeutil.Clock
	sessionID uuid.UUID
	startedAt time.Time

	cars        [NumCars]CarState
	playerIndex int
	player      PlayerTelemetry
	track       *trackmap.Builder
	health      Health
	calc        standings.Calculator

	applied  uint64
	sequence uint64
}

// New creates an empty aggregate.
func New(opts Options) *State {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.SessionID == uuid.Nil {
		opts.SessionID = uuid.New()
	}
	s := &State{
		clock:       opts.Clock,
		sessionID:   opts.SessionID,
		startedAt:   opts.Clock.Now(),
		playerIndex: NoPlayer,
		track:       trackmap.NewBuilder(opts.TrackThreshold),
		calc:        standings.New(opts.MinDistance),
	}
	for i := range s.cars {
		s.cars[i] = CarState{Index: i, TeamID: UnknownTeam, Name: DefaultCarName(i)}
	}
	return s
}

// SessionID returns the aggregate's id.
func (s *State) SessionID() uuid.UUID { return s.sessionID }

// PlayerIndex returns the current player slot and whether one is known.
func (s *State) PlayerIndex() (int, bool) {
	return s.playerIndex, s.playerIndex != NoPlayer
}

// Car returns a copy of one car slot.
func (s *State) Car(index int) CarState { return s.cars[index] }

// Applied returns the number of records applied so far.
func (s *State) Applied() uint64 { return s.applied }

// Apply records liveness for pkt and applies its record, if any.
func (s *State) Apply(pkt *parse.Packet) {
	s.RecordHealth(uint8(pkt.ID))
	switch {
	case pkt.Motion != nil:
		s.ApplyMotion(pkt.Motion)
	case pkt.LapData != nil:
		s.ApplyLapData(pkt.LapData)
	case pkt.Participants != nil:
		s.ApplyParticipants(pkt.Participants)
	case pkt.Telemetry != nil:
		s.ApplyTelemetry(pkt.Telemetry)
	}
}

// RecordHealth notes that a datagram carrying tag arrived now.
func (s *State) RecordHealth(tag uint8) {
	s.health.Record(tag, s.clock.Now())
}

// ApplyMotion updates the player index and the positions of populated slots.
// A player index outside the car range means no player. The player's new
// position is offered to the track map.
func (s *State) ApplyMotion(m *parse.Motion) {
	s.applied++
	if int(m.PlayerCarIndex) < NumCars {
		s.playerIndex = int(m.PlayerCarIndex)
	} else {
		s.playerIndex = NoPlayer
	}

	for i := range m.Cars {
		mc := m.Cars[i]
		if !mc.Valid {
			continue
		}
		car := &s.cars[i]
		car.Seen = true
		car.X = float64(mc.X)
		car.Z = float64(mc.Z)
	}

	if p, ok := s.PlayerIndex(); ok && m.Cars[p].Valid {
		s.track.AddSample(s.cars[p].X, s.cars[p].Z, s.player.Sector)
	}
}

// ApplyLapData updates progress fields of cars already seen in a Motion
// packet, and the player's lap timing.
func (s *State) ApplyLapData(ld *parse.LapData) {
	s.applied++
	for i := range ld.Cars {
		lc := ld.Cars[i]
		if !lc.Valid {
			continue
		}
		if p, ok := s.PlayerIndex(); ok && p == i {
			s.player.LapTimeMs = lc.CurrentLapTimeMs
			s.player.LastLapTimeMs = lc.LastLapTimeMs
			s.player.LapNumber = lc.LapNumber
			s.player.Sector = lc.Sector
		}
		car := &s.cars[i]
		if !car.Seen {
			continue
		}
		car.Distance = float64(lc.TotalDistance)
		car.LapDistance = float64(lc.LapDistance)
		car.LapNumber = lc.LapNumber
		car.Sector = lc.Sector
		car.TrackPosition = lc.TrackPosition
		car.CurrentLapTimeMs = lc.CurrentLapTimeMs
		car.LastLapTimeMs = lc.LastLapTimeMs
	}
}

// ApplyParticipants updates identity fields of cars already seen in a Motion
// packet. A known name is never replaced by an undecodable one.
func (s *State) ApplyParticipants(p *parse.Participants) {
	s.applied++
	for i := range p.Cars {
		pc := p.Cars[i]
		car := &s.cars[i]
		if !pc.Valid || !car.Seen {
			continue
		}
		car.TeamID = int(pc.TeamID)
		car.RaceNumber = pc.RaceNumber
		if pc.NameOK {
			car.Name = pc.Name
			car.NameKnown = true
		}
	}
}

// ApplyTelemetry updates per-car speed and the player's instruments.
func (s *State) ApplyTelemetry(t *parse.Telemetry) {
	s.applied++
	for i := range t.Cars {
		ct := t.Cars[i]
		if !ct.Valid {
			continue
		}
		s.cars[i].SpeedKPH = ct.SpeedKPH
		if p, ok := s.PlayerIndex(); ok && p == i {
			s.player.SpeedKPH = ct.SpeedKPH
			s.player.Throttle = float64(ct.Throttle)
			s.player.Brake = float64(ct.Brake)
			s.player.Gear = ct.Gear
			s.player.EngineRPM = ct.EngineRPM
		}
	}
}

// Snapshot builds an immutable copy of the aggregate with the player's
// classification fields filled in.
func (s *State) Snapshot() *Snapshot {
	s.sequence++
	snap := &Snapshot{
		SessionID:   s.sessionID.String(),
		Sequence:    s.sequence,
		StartedAt:   s.startedAt,
		PublishedAt: s.clock.Now(),
		PlayerIndex: s.playerIndex,
		Cars:        s.cars,
		Player:      s.player,
		Track:       s.track.Snapshot(),
		Health:      s.health,
		calc:        s.calc,
	}

	snap.Player.Position = standings.FormatPosition(0)
	snap.Player.GapAhead = 0
	snap.Player.GapBehind = 0
	snap.Player.GapAheadState = standings.GapClear
	snap.Player.GapBehindState = standings.GapClear
	if snap.PlayerIndex != NoPlayer {
		if n, ok := standings.Locate(snap.Standings(), snap.PlayerIndex); ok {
			snap.Player.Position = standings.FormatPosition(n.Rank)
			snap.Player.GapAhead = n.GapAhead
			snap.Player.GapBehind = n.GapBehind
			snap.Player.GapAheadState = n.AheadState
			snap.Player.GapBehindState = n.BehindState
		}
	}
	return snap
}
