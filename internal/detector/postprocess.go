package detector

import (
	"math"
	"sort"

	"github.com/MeKo-Tech/ocrsam/internal/mempool"
	"github.com/MeKo-Tech/ocrsam/internal/utils"
)

// Region is one detected text area.
type Region struct {
	Polygon    []utils.Point
	Box        utils.Box
	Confidence float64 // mean probability over the component
}

// PostProcessOptions controls DB post-processing.
type PostProcessOptions struct {
	Thresh         float32
	BoxThresh      float32
	UnclipRatio    float64
	MinSize        int
	UseMinAreaRect bool
}

type component struct {
	count    int
	sum      float64
	boundary []utils.Point
	minX     int
	minY     int
	maxX     int
	maxY     int
}

// PostProcessDB turns a probability map into regions in map coordinates:
// binarize, 4-connected components, hull or min-area rectangle, unclip.
func PostProcessDB(prob []float32, w, h int, opts PostProcessOptions) []Region {
	if w <= 0 || h <= 0 || len(prob) != w*h {
		return nil
	}
	mask := mempool.GetBool(w * h)
	defer mempool.PutBool(mask)
	for i, p := range prob {
		mask[i] = p >= opts.Thresh
	}

	comps := connectedComponents(mask, prob, w, h)
	regions := make([]Region, 0, len(comps))
	for _, c := range comps {
		if c.maxX-c.minX+1 < opts.MinSize || c.maxY-c.minY+1 < opts.MinSize {
			continue
		}
		conf := c.sum / float64(c.count)
		if conf < float64(opts.BoxThresh) {
			continue
		}
		poly := utils.ConvexHull(c.boundary)
		if opts.UseMinAreaRect || len(poly) < 3 {
			poly = utils.MinimumAreaRectangle(c.boundary)
		}
		poly = utils.UnclipPolygon(poly, opts.UnclipRatio)
		poly = utils.ClampPoints(poly, w, h)
		regions = append(regions, Region{Polygon: poly, Box: utils.BoundingBox(poly), Confidence: conf})
	}
	return regions
}

// connectedComponents labels 4-connected foreground pixels with a BFS.
// Boundary pixels are recorded as pixel-corner points so a single-row
// component still has a non-degenerate hull.
func connectedComponents(mask []bool, prob []float32, w, h int) []component {
	visited := mempool.GetBool(w * h)
	defer mempool.PutBool(visited)

	var comps []component
	queue := make([]int, 0, 64)
	for start := range mask {
		if !mask[start] || visited[start] {
			continue
		}
		c := component{minX: start % w, minY: start / w, maxX: start % w, maxY: start / w}
		visited[start] = true
		queue = append(queue[:0], start)
		for len(queue) > 0 {
			i := queue[0]
			queue = queue[1:]
			x, y := i%w, i/w
			c.count++
			c.sum += float64(prob[i])
			c.minX, c.maxX = min(c.minX, x), max(c.maxX, x)
			c.minY, c.maxY = min(c.minY, y), max(c.maxY, y)

			edge := false
			for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					edge = true
					continue
				}
				n := ny*w + nx
				if !mask[n] {
					edge = true
					continue
				}
				if !visited[n] {
					visited[n] = true
					queue = append(queue, n)
				}
			}
			if edge {
				fx, fy := float64(x), float64(y)
				c.boundary = append(c.boundary,
					utils.Point{X: fx, Y: fy}, utils.Point{X: fx + 1, Y: fy},
					utils.Point{X: fx + 1, Y: fy + 1}, utils.Point{X: fx, Y: fy + 1})
			}
		}
		comps = append(comps, c)
	}
	return comps
}

// ScaleRegionsToOriginal maps regions from map space to image space.
func ScaleRegionsToOriginal(regions []Region, mapW, mapH, origW, origH int) []Region {
	if mapW == 0 || mapH == 0 {
		return regions
	}
	sx := float64(origW) / float64(mapW)
	sy := float64(origH) / float64(mapH)
	out := make([]Region, len(regions))
	for i, r := range regions {
		poly := utils.ClampPoints(utils.ScalePoints(r.Polygon, sx, sy), origW, origH)
		out[i] = Region{Polygon: poly, Box: utils.BoundingBox(poly), Confidence: r.Confidence}
	}
	return out
}

// SortReadingOrder orders regions top-to-bottom, then left-to-right for
// regions whose vertical centers lie within half a line height.
func SortReadingOrder(regions []Region) {
	sort.SliceStable(regions, func(i, j int) bool {
		a, b := regions[i].Box, regions[j].Box
		ay, by := (a.MinY+a.MaxY)/2, (b.MinY+b.MaxY)/2
		tol := math.Min(a.Height(), b.Height()) / 2
		if math.Abs(ay-by) > tol {
			return ay < by
		}
		return a.MinX < b.MinX
	})
}
