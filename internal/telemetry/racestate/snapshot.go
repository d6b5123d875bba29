package racestate

import (
	"sync/atomic"
	"time"

	"github.com/banshee-data/pitwall/internal/telemetry/standings"
	"github.com/banshee-data/pitwall/internal/telemetry/trackmap"
)

// Snapshot is an immutable view of the aggregate after one drain cycle.
// Readers must not modify it.
type Snapshot struct {
	SessionID   string            `json:"session_id"`
	Sequence    uint64            `json:"sequence"`
	StartedAt   time.Time         `json:"started_at"`
	PublishedAt time.Time         `json:"published_at"`
	PlayerIndex int               `json:"player_index"`
	Cars        [NumCars]CarState `json:"cars"`
	Player      PlayerTelemetry   `json:"player"`
	Track       trackmap.Map      `json:"-"`
	Health      Health            `json:"-"`

	calc standings.Calculator
}

// HasPlayer reports whether a Motion packet has named the player car.
func (s *Snapshot) HasPlayer() bool {
	return s.PlayerIndex != NoPlayer
}

// SeenCars returns the slots that have appeared in a Motion packet, in index
// order.
func (s *Snapshot) SeenCars() []CarState {
	out := make([]CarState, 0, NumCars)
	for _, c := range s.Cars {
		if c.Seen {
			out = append(out, c)
		}
	}
	return out
}

// Standings computes the classification of seen cars.
func (s *Snapshot) Standings() []standings.Entry {
	cars := make([]standings.Car, 0, NumCars)
	for _, c := range s.Cars {
		if c.Seen {
			cars = append(cars, standings.Car{Index: c.Index, Distance: c.Distance})
		}
	}
	return s.calc.Compute(cars, float64(s.Player.SpeedKPH))
}

// EngineerView is the narrow read the race engineer needs.
type EngineerView struct {
	Position      string  `json:"position"`
	GapAhead      float64 `json:"gap_ahead"`
	GapBehind     float64 `json:"gap_behind"`
	SpeedKPH      uint16  `json:"speed_kph"`
	GapAheadText  string  `json:"gap_ahead_text"`
	GapBehindText string  `json:"gap_behind_text"`
}

// Engineer returns the player's position, neighbour gaps and speed.
func (s *Snapshot) Engineer() EngineerView {
	return EngineerView{
		Position:      s.Player.Position,
		GapAhead:      s.Player.GapAhead,
		GapBehind:     s.Player.GapBehind,
		SpeedKPH:      s.Player.SpeedKPH,
		GapAheadText:  standings.FormatNeighbourGap(s.Player.GapAheadState, s.Player.GapAhead),
		GapBehindText: standings.FormatNeighbourGap(s.Player.GapBehindState, s.Player.GapBehind),
	}
}

// Reader gives access to the latest published snapshot.
type Reader interface {
	Load() *Snapshot
}

// Store publishes snapshots from the writer to any number of readers without
// locking.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore creates a store holding initial, which must not be nil.
func NewStore(initial *Snapshot) *Store {
	s := &Store{}
	s.current.Store(initial)
	return s
}

// Publish replaces the current snapshot.
func (s *Store) Publish(snap *Snapshot) {
	s.current.Store(snap)
}

// Load returns the latest snapshot.
func (s *Store) Load() *Snapshot {
	return s.current.Load()
}
