package utils

import (
	"image"
	"math"
)

// Point is a 2D coordinate in image pixel space.
type Point struct {
	X float64
	Y float64
}

// Box is an axis-aligned rectangle in image pixel space.
type Box struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// NewBox builds a Box from two corners in any order.
func NewBox(x1, y1, x2, y2 float64) Box {
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	return Box{MinX: x1, MinY: y1, MaxX: x2, MaxY: y2}
}

func (b Box) Width() float64  { return b.MaxX - b.MinX }
func (b Box) Height() float64 { return b.MaxY - b.MinY }

// Empty reports whether the box has no area.
func (b Box) Empty() bool { return b.Width() <= 0 || b.Height() <= 0 }

// Clip intersects the box with [0,w]x[0,h].
func (b Box) Clip(w, h int) Box {
	return Box{
		MinX: clampFloat(b.MinX, 0, float64(w)),
		MinY: clampFloat(b.MinY, 0, float64(h)),
		MaxX: clampFloat(b.MaxX, 0, float64(w)),
		MaxY: clampFloat(b.MaxY, 0, float64(h)),
	}
}

// ToRect converts the box to integer pixel bounds, clamped to bounds.
func (b Box) ToRect(bounds image.Rectangle) image.Rectangle {
	x1 := clampInt(int(math.Floor(b.MinX)), bounds.Min.X, bounds.Max.X)
	y1 := clampInt(int(math.Floor(b.MinY)), bounds.Min.Y, bounds.Max.Y)
	x2 := clampInt(int(math.Ceil(b.MaxX)), bounds.Min.X, bounds.Max.X)
	y2 := clampInt(int(math.Ceil(b.MaxY)), bounds.Min.Y, bounds.Max.Y)
	if x2 < x1 {
		x2 = x1
	}
	if y2 < y1 {
		y2 = y1
	}
	return image.Rect(x1, y1, x2, y2)
}

// BoundingBox returns the smallest axis-aligned box enclosing pts.
func BoundingBox(pts []Point) Box {
	if len(pts) == 0 {
		return Box{}
	}
	box := Box{MinX: pts[0].X, MinY: pts[0].Y, MaxX: pts[0].X, MaxY: pts[0].Y}
	for _, p := range pts[1:] {
		box.MinX = math.Min(box.MinX, p.X)
		box.MinY = math.Min(box.MinY, p.Y)
		box.MaxX = math.Max(box.MaxX, p.X)
		box.MaxY = math.Max(box.MaxY, p.Y)
	}
	return box
}

// ScalePoints returns a copy of pts scaled by sx, sy.
func ScalePoints(pts []Point, sx, sy float64) []Point {
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = Point{X: p.X * sx, Y: p.Y * sy}
	}
	return out
}

// ClampPoints returns a copy of pts clamped into [0,w]x[0,h].
func ClampPoints(pts []Point, w, h int) []Point {
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = Point{X: clampFloat(p.X, 0, float64(w)), Y: clampFloat(p.Y, 0, float64(h))}
	}
	return out
}

// PolygonArea returns the absolute shoelace area of a closed polygon.
func PolygonArea(pts []Point) float64 {
	if len(pts) < 3 {
		return 0
	}
	sum := 0.0
	for i := range pts {
		j := (i + 1) % len(pts)
		sum += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return math.Abs(sum) / 2
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
