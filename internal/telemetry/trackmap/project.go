package trackmap

import "math"

// MaxPadding bounds the padding fraction so the inner rectangle keeps a
// positive size.
const MaxPadding = 0.45

// Rect is an output rectangle in pixel or unit space. Y grows downwards.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Point is a projected position inside a Rect.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Project maps world (x, z) into r using bounds b. Each side of r is inset by
// padding times the rect's width or height. Normalised coordinates are
// clamped to [0, 1] and the world span on each axis is taken as at least one
// meter, so a degenerate box never divides by zero. World Z increases up the
// screen.
func Project(b Bounds, x, z float64, r Rect, padding float64) Point {
	padding = clamp(padding, 0, MaxPadding)
	padW := r.W * padding
	padH := r.H * padding

	nx := clamp((x-b.MinX)/math.Max(b.MaxX-b.MinX, 1), 0, 1)
	nz := clamp((z-b.MinZ)/math.Max(b.MaxZ-b.MinZ, 1), 0, 1)

	return Point{
		X: r.X + padW + nx*(r.W-2*padW),
		Y: r.Y + r.H - padH - nz*(r.H-2*padH),
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
