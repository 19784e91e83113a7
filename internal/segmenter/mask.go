package segmenter

import (
	"fmt"
	"image"
	"image/color"
)

// Mask is a binary segmentation at image resolution. Bits is row-major.
type Mask struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Bits   []bool  `json:"-"`
	Index  int     `json:"index"`
	Score  float64 `json:"score"`
}

// NewMask returns an empty mask of the given size.
func NewMask(width, height int) Mask {
	return Mask{Width: width, Height: height, Bits: make([]bool, width*height)}
}

// Valid reports whether Bits matches the dimensions.
func (m Mask) Valid() error {
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("invalid mask size %dx%d", m.Width, m.Height)
	}
	if len(m.Bits) != m.Width*m.Height {
		return fmt.Errorf("mask has %d bits, want %d", len(m.Bits), m.Width*m.Height)
	}
	return nil
}

// At reports whether (x, y) is inside the mask. Out-of-range is false.
func (m Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Bits[y*m.Width+x]
}

// Count returns the number of set pixels.
func (m Mask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}

// Bounds returns the smallest rectangle containing every set pixel.
func (m Mask) Bounds() image.Rectangle {
	r := image.Rectangle{}
	for i, b := range m.Bits {
		if b {
			r = r.Union(image.Rect(i%m.Width, i/m.Width, i%m.Width+1, i/m.Width+1))
		}
	}
	return r
}

// Resize samples the mask at a new size with nearest neighbour.
func (m Mask) Resize(width, height int) Mask {
	out := NewMask(width, height)
	out.Index, out.Score = m.Index, m.Score
	if m.Width == 0 || m.Height == 0 {
		return out
	}
	for y := range height {
		sy := min(y*m.Height/height, m.Height-1)
		for x := range width {
			sx := min(x*m.Width/width, m.Width-1)
			out.Bits[y*width+x] = m.Bits[sy*m.Width+sx]
		}
	}
	return out
}

// Image renders the mask as white-on-black grayscale.
func (m Mask) Image() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, b := range m.Bits {
		if b {
			img.Pix[i] = 0xff
		}
	}
	return img
}

// MaskFromImage sets every pixel whose luminance exceeds threshold (0-1).
func MaskFromImage(img image.Image, threshold float64) Mask {
	b := img.Bounds()
	m := NewMask(b.Dx(), b.Dy())
	limit := uint8(threshold * 255)
	for y := range b.Dy() {
		for x := range b.Dx() {
			g := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray) //nolint:forcetypeassert // GrayModel returns color.Gray
			m.Bits[y*m.Width+x] = g.Y > limit
		}
	}
	return m
}
