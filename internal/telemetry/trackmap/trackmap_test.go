package trackmap

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_DedupSamePoint(t *testing.T) {
	t.Parallel()

	b := NewBuilder(2.0)
	assert.True(t, b.AddSample(10, 20, 0))
	assert.False(t, b.AddSample(10, 20, 0))
	assert.Equal(t, 1, b.Len())
}

func TestBuilder_DedupThreshold(t *testing.T) {
	t.Parallel()

	b := NewBuilder(2.0)
	require.True(t, b.AddSample(0, 0, 0))
	assert.False(t, b.AddSample(1.2, 1.2, 0), "1.70 m is within the threshold")
	assert.False(t, b.AddSample(2, 0, 0), "exactly the threshold is not kept")
	assert.True(t, b.AddSample(1.5, 1.5, 0), "2.12 m is kept")
	assert.Equal(t, 2, b.Len())
}

func TestBuilder_BoundsWidenOnly(t *testing.T) {
	t.Parallel()

	b := NewBuilder(1)
	assert.Equal(t, DefaultBounds(), b.Bounds())

	b.AddSample(100, 100, 0)
	assert.Equal(t, DefaultBounds(), b.Bounds(), "points inside the seed leave it unchanged")

	b.AddSample(-800, 650, 1)
	b.AddSample(900, -700, 2)
	assert.Equal(t, Bounds{MinX: -800, MaxX: 900, MinZ: -700, MaxZ: 650}, b.Bounds())

	b.AddSample(0, 0, 2)
	assert.Equal(t, Bounds{MinX: -800, MaxX: 900, MinZ: -700, MaxZ: 650}, b.Bounds())
}

func TestBuilder_TwoDistantPointsWidenBox(t *testing.T) {
	t.Parallel()

	b := NewBuilderWithBounds(2, Bounds{})
	b.AddSample(-10, 3, 0)
	b.AddSample(40, -7, 0)
	assert.Equal(t, 2, b.Len())
	box := b.Bounds()
	assert.True(t, box.Contains(-10, 3))
	assert.True(t, box.Contains(40, -7))
}

func TestBuilder_RejectsNonFinite(t *testing.T) {
	t.Parallel()

	b := NewBuilder(0)
	assert.Equal(t, DefaultThreshold, b.Threshold())
	assert.False(t, b.AddSample(math.NaN(), 0, 0))
	assert.False(t, b.AddSample(0, math.Inf(1), 0))
	assert.Zero(t, b.Len())
}

func TestBuilder_SnapshotIsolation(t *testing.T) {
	t.Parallel()

	b := NewBuilder(1)
	b.AddSample(0, 0, 0)
	b.AddSample(10, 0, 0)

	snap := b.Snapshot()
	require.Len(t, snap.Samples, 2)
	assert.Equal(t, 2, cap(snap.Samples))

	for i := 2; i < 50; i++ {
		b.AddSample(float64(i*10), 0, 1)
	}
	assert.Len(t, snap.Samples, 2)
	assert.Equal(t, Sample{X: 10, Z: 0, Sector: 0}, snap.Samples[1])

	// Appending to the snapshot must not alias the builder.
	grown := append(snap.Samples, Sample{X: -1})
	assert.Equal(t, float64(20), b.Snapshot().Samples[2].X)
	assert.Len(t, grown, 3)
}

func TestMap_SectorMarkers(t *testing.T) {
	t.Parallel()

	m := Map{Samples: []Sample{
		{X: 0, Sector: 0}, {X: 10, Sector: 0}, {X: 20, Sector: 1},
		{X: 30, Sector: 1}, {X: 40, Sector: 2}, {X: 50, Sector: 0},
	}}
	if diff := cmp.Diff([]int{2, 4, 5}, m.SectorMarkers()); diff != "" {
		t.Errorf("SectorMarkers mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, Map{}.SectorMarkers())
}

func TestProject_Corners(t *testing.T) {
	t.Parallel()

	b := Bounds{MinX: -100, MaxX: 100, MinZ: 0, MaxZ: 50}
	r := Rect{X: 10, Y: 20, W: 200, H: 100}

	assertPoint(t, Point{X: 20, Y: 115}, Project(b, -100, 0, r, 0.05))
	assertPoint(t, Point{X: 200, Y: 25}, Project(b, 100, 50, r, 0.05))
	assertPoint(t, Point{X: 110, Y: 70}, Project(b, 0, 25, r, 0.05))
}

func TestProject_StaysInsideRect(t *testing.T) {
	t.Parallel()

	b := NewBuilder(1)
	for _, p := range [][2]float64{{-900, 10}, {30, 720}, {610, -640}, {0, 0}} {
		b.AddSample(p[0], p[1], 0)
	}
	m := b.Snapshot()
	r := Rect{W: 320, H: 240}

	for _, pad := range []float64{0, 0.05, 0.2} {
		for _, pt := range m.ProjectAll(r, pad) {
			assert.GreaterOrEqual(t, pt.X, r.W*pad-eps)
			assert.LessOrEqual(t, pt.X, r.W-r.W*pad+eps)
			assert.GreaterOrEqual(t, pt.Y, r.H*pad-eps)
			assert.LessOrEqual(t, pt.Y, r.H-r.H*pad+eps)
		}
	}
}

func TestProject_DegenerateBox(t *testing.T) {
	t.Parallel()

	b := Bounds{MinX: 5, MaxX: 5, MinZ: 7, MaxZ: 7}
	r := Rect{W: 100, H: 100}

	p := Project(b, 5, 7, r, 0.1)
	assert.False(t, math.IsNaN(p.X) || math.IsNaN(p.Y))
	assertPoint(t, Point{X: 10, Y: 90}, p)

	// Points outside the box clamp to the padded edges.
	assertPoint(t, Point{X: 90, Y: 10}, Project(b, 500, 500, r, 0.1))
	assertPoint(t, Point{X: 10, Y: 90}, Project(b, -500, -500, r, 0.1))
}

func TestProject_PaddingClamped(t *testing.T) {
	t.Parallel()

	b := Bounds{MinX: 0, MaxX: 10, MinZ: 0, MaxZ: 10}
	r := Rect{W: 100, H: 100}
	assert.Equal(t, Project(b, 10, 10, r, MaxPadding), Project(b, 10, 10, r, 0.9))
	assert.Equal(t, Project(b, 10, 10, r, 0), Project(b, 10, 10, r, -1))
}

const eps = 1e-9

func assertPoint(t *testing.T, want, got Point) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, eps, "x")
	assert.InDelta(t, want.Y, got.Y, eps, "y")
}
