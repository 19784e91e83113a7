package pipeline

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/MeKo-Tech/ocrsam/internal/segmenter"
	"github.com/MeKo-Tech/ocrsam/internal/spotter"
	"github.com/MeKo-Tech/ocrsam/internal/utils"
)

// RenderOptions controls the annotated preview.
type RenderOptions struct {
	MaskAlpha        float64
	OutlineColor     color.RGBA
	OutlineThickness int
	// OutlineDash and OutlineGap give the outline dash pattern in pixels.
	// A zero OutlineDash draws a solid line.
	OutlineDash int
	OutlineGap  int
	LabelColor       color.RGBA
	ShowLabels       bool
}

// DefaultRenderOptions returns a 0.6 mask alpha, dashed blue outlines and
// yellow labels.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		MaskAlpha:        0.6,
		OutlineColor:     color.RGBA{R: 30, G: 144, B: 255, A: 255},
		OutlineThickness: 2,
		OutlineDash:      6,
		OutlineGap:       4,
		LabelColor:       color.RGBA{R: 255, G: 255, A: 255},
		ShowLabels:       true,
	}
}

// MaskColor returns a stable color for a region index. Hues are spread by
// the golden angle so neighbouring indices differ clearly.
func MaskColor(index int) color.RGBA {
	hue := math.Mod(float64(index)*137.508, 360)
	return hsvToRGB(hue, 0.75, 0.95)
}

func hsvToRGB(h, s, v float64) color.RGBA {
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c
	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	to8 := func(f float64) uint8 { return uint8(math.Round((f + m) * 255)) }
	return color.RGBA{R: to8(r), G: to8(g), B: to8(b), A: 255}
}

// RenderAnnotated draws each mask, polygon and "idx:N, text" label over a
// copy of img. With no regions the copy is returned unchanged.
func RenderAnnotated(img image.Image, regions []spotter.Region, masks []segmenter.Mask, opts RenderOptions) *image.RGBA {
	if img == nil {
		return nil
	}
	dst := utils.ToRGBA(img)
	for i, m := range masks {
		if m.Width != dst.Bounds().Dx() || m.Height != dst.Bounds().Dy() {
			continue
		}
		utils.BlendMask(dst, m.Bits, m.Width, MaskColor(i), opts.MaskAlpha)
	}
	for i, r := range regions {
		utils.DrawDashedPolygon(dst, r.Polygon, opts.OutlineColor, opts.OutlineThickness, opts.OutlineDash, opts.OutlineGap)
		if !opts.ShowLabels {
			continue
		}
		rect := r.Box.ToRect(dst.Bounds())
		utils.DrawLabel(dst, rect.Min.X, rect.Min.Y-utils.LabelHeight, fmt.Sprintf("idx:%d, %s", i, r.Text), opts.LabelColor)
	}
	return dst
}
