package utils

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ToRGBA returns an RGBA copy of img with bounds starting at the origin.
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// BlendMask paints col over dst wherever bits is set, mixing with the
// existing pixel by alpha. bits is row-major with the given width.
func BlendMask(dst *image.RGBA, bits []bool, width int, col color.RGBA, alpha float64) {
	if width <= 0 || alpha <= 0 {
		return
	}
	alpha = math.Min(alpha, 1)
	b := dst.Bounds()
	for i, set := range bits {
		if !set {
			continue
		}
		x, y := b.Min.X+i%width, b.Min.Y+i/width
		if !image.Pt(x, y).In(b) {
			continue
		}
		off := dst.PixOffset(x, y)
		px := dst.Pix[off : off+4 : off+4]
		px[0] = mix(px[0], col.R, alpha)
		px[1] = mix(px[1], col.G, alpha)
		px[2] = mix(px[2], col.B, alpha)
	}
}

func mix(under, over uint8, alpha float64) uint8 {
	return uint8(math.Round(float64(under)*(1-alpha) + float64(over)*alpha))
}

// DrawRect draws an axis-aligned rectangle outline into dst.
func DrawRect(dst *image.RGBA, rect image.Rectangle, col color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	rect = rect.Intersect(dst.Bounds())
	if rect.Empty() {
		return
	}
	for t := range thickness {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			dst.Set(x, rect.Min.Y+t, col)
			dst.Set(x, rect.Max.Y-1-t, col)
		}
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			dst.Set(rect.Min.X+t, y, col)
			dst.Set(rect.Max.X-1-t, y, col)
		}
	}
}

// DrawPolygon strokes the closed polygon pts into dst.
func DrawPolygon(dst *image.RGBA, pts []Point, col color.Color, thickness int) {
	drawPolygon(dst, pts, col, thickness, nil)
}

// DrawDashedPolygon strokes the closed polygon pts with dash pixels on and
// gap pixels off. The pattern runs on across vertices.
func DrawDashedPolygon(dst *image.RGBA, pts []Point, col color.Color, thickness, dash, gap int) {
	if dash <= 0 || gap <= 0 {
		DrawPolygon(dst, pts, col, thickness)
		return
	}
	drawPolygon(dst, pts, col, thickness, &dashPattern{on: dash, off: gap})
}

type dashPattern struct {
	on, off int
	pos     int
}

// next reports whether the current pixel is drawn and advances the pattern.
func (d *dashPattern) next() bool {
	if d == nil {
		return true
	}
	visible := d.pos%(d.on+d.off) < d.on
	d.pos++
	return visible
}

func drawPolygon(dst *image.RGBA, pts []Point, col color.Color, thickness int, dash *dashPattern) {
	if len(pts) < 2 {
		return
	}
	ip := make([]image.Point, len(pts))
	for i, p := range pts {
		ip[i] = image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
	}
	for i := range ip {
		drawLine(dst, ip[i], ip[(i+1)%len(ip)], col, thickness, dash)
	}
}

// drawLine is Bresenham with a square brush. The end point is left to the
// next segment.
func drawLine(dst *image.RGBA, a, b image.Point, col color.Color, thickness int, dash *dashPattern) {
	dx := absInt(b.X - a.X)
	dy := -absInt(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	x, y := a.X, a.Y
	e := dx + dy
	for {
		if x == b.X && y == b.Y {
			if dash == nil {
				brush(dst, x, y, col, thickness)
			}
			return
		}
		if dash.next() {
			brush(dst, x, y, col, thickness)
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x += sx
		}
		if e2 <= dx {
			e += dx
			y += sy
		}
	}
}

func brush(dst *image.RGBA, x, y int, col color.Color, thickness int) {
	r := max(thickness-1, 0) / 2
	for yy := y - r; yy <= y+r; yy++ {
		for xx := x - r; xx <= x+r; xx++ {
			if image.Pt(xx, yy).In(dst.Bounds()) {
				dst.Set(xx, yy, col)
			}
		}
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// LabelHeight is the pixel height of text drawn by DrawLabel.
const LabelHeight = 13

// DrawLabel writes text with its top-left corner at (x, y). The label is
// kept inside dst when it would otherwise start above the image.
func DrawLabel(dst *image.RGBA, x, y int, text string, col color.Color) {
	face := basicfont.Face7x13
	if y < 0 {
		y = 0
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(x, y+face.Ascent),
	}
	d.DrawString(text)
}
