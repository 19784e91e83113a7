package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/ocrsam/internal/utils"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ImageSize represents common image dimensions.
type ImageSize struct {
	Width  int
	Height int
}

var (
	// Common test image sizes.
	SmallSize  = ImageSize{320, 240}
	MediumSize = ImageSize{640, 480}
)

// PlacedText is a word drawn at a fixed top-left position.
type PlacedText struct {
	Text string
	X, Y int
}

// TestImageConfig holds configuration for generating test images.
type TestImageConfig struct {
	Size       ImageSize
	Background color.Color
	Foreground color.Color
	Words      []PlacedText
	Rotation   float64 // degrees, counter-clockwise
}

// DefaultTestImageConfig returns a white image with one word near the top-left.
func DefaultTestImageConfig() TestImageConfig {
	return TestImageConfig{
		Size:       SmallSize,
		Background: color.White,
		Foreground: color.Black,
		Words:      []PlacedText{{Text: "Sample", X: 20, Y: 20}},
	}
}

// GenerateTextImage renders the configured words and returns the image
// along with the box each word occupies.
func GenerateTextImage(config TestImageConfig) (*image.RGBA, []utils.Box) {
	img := image.NewRGBA(image.Rect(0, 0, config.Size.Width, config.Size.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{config.Background}, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: img, Src: &image.Uniform{config.Foreground}, Face: face}
	boxes := make([]utils.Box, len(config.Words))
	for i, w := range config.Words {
		drawer.Dot = fixed.P(w.X, w.Y+face.Ascent)
		drawer.DrawString(w.Text)
		width := font.MeasureString(face, w.Text).Ceil()
		boxes[i] = utils.NewBox(float64(w.X), float64(w.Y), float64(w.X+width), float64(w.Y+face.Height))
	}

	if config.Rotation != 0 {
		return utils.ToRGBA(imaging.Rotate(img, config.Rotation, config.Background)), nil
	}
	return img, boxes
}

// CreateTestImage creates a solid image with the specified dimensions and color.
func CreateTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{c}, image.Point{}, draw.Src)
	return img
}

// CreateGradientImage creates an image whose pixels all differ from their
// neighbours, useful for spotting unintended modifications.
func CreateGradientImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 11), B: uint8(x*3 + y*5), A: 255})
		}
	}
	return img
}

// SaveImage writes img as PNG, creating parent directories.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()
	require.NoError(t, EnsureDir(filepath.Dir(path)))
	require.NoError(t, utils.SavePNG(path, img))
}

// LoadImage loads an image from path.
func LoadImage(t *testing.T, path string) image.Image {
	t.Helper()
	img, err := utils.LoadImage(path)
	require.NoError(t, err, "Failed to load image %s", path)
	return img
}

// PixelsEqual reports whether a and b have the same size and identical
// RGBA values at (x, y).
func PixelsEqual(a, b image.Image, x, y int) bool {
	ar, ag, ab, aa := a.At(a.Bounds().Min.X+x, a.Bounds().Min.Y+y).RGBA()
	br, bg, bb, ba := b.At(b.Bounds().Min.X+x, b.Bounds().Min.Y+y).RGBA()
	return ar == br && ag == bg && ab == bb && aa == ba
}

// CountDiff returns how many pixels differ between a and b, split by
// whether inside(x, y) holds. Images must have the same size.
func CountDiff(a, b image.Image, inside func(x, y int) bool) (in, out int) {
	bounds := a.Bounds()
	for y := range bounds.Dy() {
		for x := range bounds.Dx() {
			if PixelsEqual(a, b, x, y) {
				continue
			}
			if inside != nil && inside(x, y) {
				in++
			} else {
				out++
			}
		}
	}
	return in, out
}
