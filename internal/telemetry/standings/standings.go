// Package standings derives the running classification from per-car track
// distances.
//
// Gaps are estimated by dividing the distance between neighbouring cars by a
// single reference speed, the player's current speed. This is an
// approximation: it ignores each car's own pace and any closing rate.
package standings

import (
	"fmt"
	"sort"

	"github.com/banshee-data/pitwall/internal/units"
)

// DefaultMinDistance is the distance, in meters, a car must exceed before it
// is classified.
const DefaultMinDistance = 1.0

// Car is the input the calculator needs for one car.
type Car struct {
	Index    int
	Distance float64
}

// Entry is one row of the classification.
type Entry struct {
	Rank     int     `json:"rank"`
	CarIndex int     `json:"car_index"`
	Distance float64 `json:"distance"`
	// Gap is the estimated time to the car one place ahead, in seconds.
	// It is zero for the leader and when HasGap is false.
	Gap    float64 `json:"gap"`
	HasGap bool    `json:"has_gap"`
}

// Calculator computes classifications. The zero value uses
// DefaultMinDistance.
type Calculator struct {
	MinDistance float64
}

// New creates a calculator that excludes cars at or below minDistance.
func New(minDistance float64) Calculator {
	return Calculator{MinDistance: minDistance}
}

func (c Calculator) minDistance() float64 {
	if c.MinDistance <= 0 {
		return DefaultMinDistance
	}
	return c.MinDistance
}

// Compute orders cars by descending distance. Ties keep ascending car index
// order. referenceSpeedKPH is the player's speed; when it is not positive no
// gaps are produced.
func (c Calculator) Compute(cars []Car, referenceSpeedKPH float64) []Entry {
	minDist := c.minDistance()

	ranked := make([]Car, 0, len(cars))
	for _, car := range cars {
		if car.Distance > minDist {
			ranked = append(ranked, car)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Index < ranked[j].Index })
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Distance > ranked[j].Distance })

	refMPS := units.KPHToMPS(referenceSpeedKPH)
	out := make([]Entry, len(ranked))
	for i, car := range ranked {
		e := Entry{Rank: i + 1, CarIndex: car.Index, Distance: car.Distance}
		if i > 0 && refMPS > 0 {
			e.Gap = (ranked[i-1].Distance - car.Distance) / refMPS
			e.HasGap = true
		}
		out[i] = e
	}
	return out
}

// GapState says what is known about the gap to a neighbouring car.
type GapState uint8

const (
	// GapClear means there is no classified car on that side.
	GapClear GapState = iota
	// GapUnknown means a car is there but no reference speed was available.
	GapUnknown
	// GapKnown means the gap value is an estimate in seconds.
	GapKnown
)

var gapStateNames = [...]string{GapClear: "clear", GapUnknown: "unknown", GapKnown: "known"}

func (g GapState) String() string {
	if int(g) < len(gapStateNames) {
		return gapStateNames[g]
	}
	return fmt.Sprintf("GapState(%d)", uint8(g))
}

// MarshalText renders the state by name in JSON.
func (g GapState) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// UnmarshalText parses a state name.
func (g *GapState) UnmarshalText(b []byte) error {
	for i, name := range gapStateNames {
		if name == string(b) {
			*g = GapState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown gap state %q", b)
}

func gapState(e Entry) GapState {
	if e.HasGap {
		return GapKnown
	}
	return GapUnknown
}

// Neighbours describes the player's place in a classification.
type Neighbours struct {
	Rank        int
	GapAhead    float64
	GapBehind   float64
	AheadState  GapState
	BehindState GapState
}

// Locate finds carIndex in entries. GapAhead is zero for the leader and
// GapBehind is zero for the last classified car; both are also zero when
// the gap could not be estimated, which the states tell apart. ok is false
// when the car is not classified.
func Locate(entries []Entry, carIndex int) (n Neighbours, ok bool) {
	for i, e := range entries {
		if e.CarIndex != carIndex {
			continue
		}
		n.Rank = e.Rank
		if i > 0 {
			n.GapAhead = e.Gap
			n.AheadState = gapState(e)
		}
		if i+1 < len(entries) {
			n.GapBehind = entries[i+1].Gap
			n.BehindState = gapState(entries[i+1])
		}
		return n, true
	}
	return Neighbours{}, false
}

// FormatPosition renders a rank as "P03", or "P--" when rank is not positive.
func FormatPosition(rank int) string {
	if rank <= 0 {
		return "P--"
	}
	return fmt.Sprintf("P%02d", rank)
}

// FormatGap renders an entry's gap column.
func FormatGap(e Entry) string {
	switch {
	case e.Rank == 1:
		return "Leader"
	case !e.HasGap:
		return "--"
	default:
		return fmt.Sprintf("+%.2fs", e.Gap)
	}
}

// FormatNeighbourGap renders a neighbour gap for the race engineer: "Clear
// Air" with no car on that side, "--" when the gap is unknown.
func FormatNeighbourGap(state GapState, gap float64) string {
	switch state {
	case GapKnown:
		return fmt.Sprintf("%.2fs", gap)
	case GapUnknown:
		return "--"
	default:
		return "Clear Air"
	}
}
