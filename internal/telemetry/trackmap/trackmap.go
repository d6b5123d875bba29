// Package trackmap reconstructs a circuit outline from the player car's world
// positions and projects it into arbitrary output rectangles.
package trackmap

import "math"

// DefaultThreshold is the minimum planar distance, in meters, between two
// kept samples.
const DefaultThreshold = 2.0

// DefaultSpan is the half-width of the seeded bounding box on both axes.
const DefaultSpan = 500.0

// Sample is one kept point of the player's path.
type Sample struct {
	X      float64 `json:"x"`
	Z      float64 `json:"z"`
	Sector uint8   `json:"sector"`
}

// Bounds is an axis-aligned box in world coordinates.
type Bounds struct {
	MinX float64 `json:"min_x"`
	MaxX float64 `json:"max_x"`
	MinZ float64 `json:"min_z"`
	MaxZ float64 `json:"max_z"`
}

// DefaultBounds returns the seed box every new map starts from.
func DefaultBounds() Bounds {
	return Bounds{MinX: -DefaultSpan, MaxX: DefaultSpan, MinZ: -DefaultSpan, MaxZ: DefaultSpan}
}

// Include returns b widened to contain (x, z). It never shrinks.
func (b Bounds) Include(x, z float64) Bounds {
	b.MinX = math.Min(b.MinX, x)
	b.MaxX = math.Max(b.MaxX, x)
	b.MinZ = math.Min(b.MinZ, z)
	b.MaxZ = math.Max(b.MaxZ, z)
	return b
}

// Contains reports whether (x, z) lies inside b, edges included.
func (b Bounds) Contains(x, z float64) bool {
	return x >= b.MinX && x <= b.MaxX && z >= b.MinZ && z <= b.MaxZ
}

// Builder accumulates deduplicated samples. It is owned by a single writer;
// readers take a Map with Snapshot.
type Builder struct {
	threshold float64
	samples   []Sample
	bounds    Bounds
}

// NewBuilder creates a builder seeded with DefaultBounds. A non-positive
// threshold selects DefaultThreshold.
func NewBuilder(threshold float64) *Builder {
	return NewBuilderWithBounds(threshold, DefaultBounds())
}

// NewBuilderWithBounds creates a builder seeded with a custom box.
func NewBuilderWithBounds(threshold float64, seed Bounds) *Builder {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Builder{threshold: threshold, bounds: seed}
}

// AddSample appends (x, z, sector) when it lies more than the threshold away
// from the last kept sample, and widens the bounding box to contain it.
// It reports whether the sample was kept.
func (b *Builder) AddSample(x, z float64, sector uint8) bool {
	if math.IsNaN(x) || math.IsNaN(z) || math.IsInf(x, 0) || math.IsInf(z, 0) {
		return false
	}
	if n := len(b.samples); n > 0 {
		last := b.samples[n-1]
		if math.Hypot(x-last.X, z-last.Z) <= b.threshold {
			return false
		}
	}
	b.samples = append(b.samples, Sample{X: x, Z: z, Sector: sector})
	b.bounds = b.bounds.Include(x, z)
	return true
}

// Len returns the number of kept samples.
func (b *Builder) Len() int { return len(b.samples) }

// Bounds returns the current bounding box.
func (b *Builder) Bounds() Bounds { return b.bounds }

// Threshold returns the dedup distance in meters.
func (b *Builder) Threshold() float64 { return b.threshold }

// Snapshot returns an immutable view of the map. The sample slice shares the
// builder's backing array with its capacity capped at its length, so later
// appends never write into memory a snapshot can see.
func (b *Builder) Snapshot() Map {
	n := len(b.samples)
	return Map{Samples: b.samples[:n:n], Bounds: b.bounds}
}

// Map is a read-only view of the track map at one instant.
type Map struct {
	Samples []Sample `json:"samples"`
	Bounds  Bounds   `json:"bounds"`
}

// SectorMarkers returns the indices of samples whose sector differs from the
// previous sample.
func (m Map) SectorMarkers() []int {
	var out []int
	for i := 1; i < len(m.Samples); i++ {
		if m.Samples[i].Sector != m.Samples[i-1].Sector {
			out = append(out, i)
		}
	}
	return out
}

// ProjectAll projects every sample into r using the map's current bounds.
// Results are only valid for this Map; re-project after the box widens.
func (m Map) ProjectAll(r Rect, padding float64) []Point {
	out := make([]Point, len(m.Samples))
	for i, s := range m.Samples {
		out[i] = Project(m.Bounds, s.X, s.Z, r, padding)
	}
	return out
}
