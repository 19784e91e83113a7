package utils

import (
	"math"
	"sort"
)

// ConvexHull computes the hull of pts with the monotone chain algorithm.
// The result is counter-clockwise and does not repeat the first point.
func ConvexHull(pts []Point) []Point {
	if len(pts) <= 1 {
		return append([]Point(nil), pts...)
	}
	p := append([]Point(nil), pts...)
	sort.Slice(p, func(i, j int) bool {
		if p[i].X != p[j].X {
			return p[i].X < p[j].X
		}
		return p[i].Y < p[j].Y
	})
	p = dedupSorted(p)
	if len(p) <= 2 {
		return p
	}

	hull := make([]Point, 0, 2*len(p))
	for _, pt := range p {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], pt) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, pt)
	}
	lower := len(hull) + 1
	for i := len(p) - 2; i >= 0; i-- {
		pt := p[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], pt) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, pt)
	}
	return hull[:len(hull)-1]
}

func dedupSorted(p []Point) []Point {
	out := p[:1]
	for _, pt := range p[1:] {
		last := out[len(out)-1]
		if pt.X != last.X || pt.Y != last.Y {
			out = append(out, pt)
		}
	}
	return out
}

func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// MinimumAreaRectangle returns the four corners of the smallest rotated
// rectangle enclosing pts, found by projecting the hull onto each edge.
func MinimumAreaRectangle(pts []Point) []Point {
	hull := ConvexHull(pts)
	switch len(hull) {
	case 0:
		return nil
	case 1:
		p := hull[0]
		return []Point{p, {p.X + 1, p.Y}, {p.X + 1, p.Y + 1}, {p.X, p.Y + 1}}
	case 2:
		a, b := hull[0], hull[1]
		return []Point{a, b, {b.X, b.Y + 1}, {a.X, a.Y + 1}}
	}

	best := math.Inf(1)
	var u, v Point
	var s0, s1, t0, t1 float64
	for i := range hull {
		a, b := hull[i], hull[(i+1)%len(hull)]
		l := math.Hypot(b.X-a.X, b.Y-a.Y)
		if l == 0 {
			continue
		}
		ux, uy := (b.X-a.X)/l, (b.Y-a.Y)/l
		minS, maxS := math.Inf(1), math.Inf(-1)
		minT, maxT := math.Inf(1), math.Inf(-1)
		for _, p := range hull {
			s := p.X*ux + p.Y*uy
			t := -p.X*uy + p.Y*ux
			minS, maxS = math.Min(minS, s), math.Max(maxS, s)
			minT, maxT = math.Min(minT, t), math.Max(maxT, t)
		}
		if area := (maxS - minS) * (maxT - minT); area < best {
			best = area
			u, v = Point{ux, uy}, Point{-uy, ux}
			s0, s1, t0, t1 = minS, maxS, minT, maxT
		}
	}
	corner := func(s, t float64) Point {
		return Point{X: u.X*s + v.X*t, Y: u.Y*s + v.Y*t}
	}
	return []Point{corner(s0, t0), corner(s1, t0), corner(s1, t1), corner(s0, t1)}
}

// SimplifyPolygon applies Douglas-Peucker with tolerance epsilon.
func SimplifyPolygon(pts []Point, epsilon float64) []Point {
	if len(pts) <= 3 || epsilon <= 0 {
		return append([]Point(nil), pts...)
	}
	keep := make([]bool, len(pts))
	keep[0], keep[len(pts)-1] = true, true
	simplifyRange(pts, 0, len(pts)-1, epsilon, keep)
	out := make([]Point, 0, len(pts))
	for i, k := range keep {
		if k {
			out = append(out, pts[i])
		}
	}
	return out
}

func simplifyRange(pts []Point, start, end int, eps float64, keep []bool) {
	if end <= start+1 {
		return
	}
	maxDist, index := -1.0, -1
	for i := start + 1; i < end; i++ {
		if d := segmentDistance(pts[i], pts[start], pts[end]); d > maxDist {
			maxDist, index = d, i
		}
	}
	if maxDist > eps {
		keep[index] = true
		simplifyRange(pts, start, index, eps, keep)
		simplifyRange(pts, index, end, eps, keep)
	}
}

func segmentDistance(p, a, b Point) float64 {
	vx, vy := b.X-a.X, b.Y-a.Y
	if vx == 0 && vy == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	return math.Abs((p.X-a.X)*vy-(p.Y-a.Y)*vx) / math.Hypot(vx, vy)
}

// UnclipPolygon grows pts away from their centroid by ratio.
// DB detectors shrink text kernels during training, so detected
// contours are expanded before being reported.
func UnclipPolygon(pts []Point, ratio float64) []Point {
	if len(pts) == 0 || ratio <= 0 || ratio == 1 {
		return append([]Point(nil), pts...)
	}
	cx, cy := 0.0, 0.0
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	cx /= float64(len(pts))
	cy /= float64(len(pts))
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = Point{X: cx + (p.X-cx)*ratio, Y: cy + (p.Y-cy)*ratio}
	}
	return out
}
