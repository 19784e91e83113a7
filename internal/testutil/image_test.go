package testutil

import (
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTextImage(t *testing.T) {
	config := DefaultTestImageConfig()
	config.Words = []PlacedText{{Text: "HELLO", X: 10, Y: 10}, {Text: "WORLD", X: 100, Y: 50}}

	img, boxes := GenerateTextImage(config)
	require.NotNil(t, img)
	assert.Equal(t, SmallSize.Width, img.Bounds().Dx())
	require.Len(t, boxes, 2)

	// 5 glyphs of 7px each.
	assert.InDelta(t, 10.0, boxes[0].MinX, 1e-9)
	assert.InDelta(t, 45.0, boxes[0].MaxX, 1e-9)
	assert.InDelta(t, 13.0, boxes[0].Height(), 1e-9)

	in, _ := CountDiff(img, CreateTestImage(SmallSize.Width, SmallSize.Height, color.White),
		func(x, y int) bool { return float64(x) >= boxes[0].MinX && float64(x) < boxes[0].MaxX })
	assert.Positive(t, in, "text pixels must be drawn inside the reported box")
}

func TestGenerateRotatedTextImage(t *testing.T) {
	config := DefaultTestImageConfig()
	config.Rotation = 90

	img, boxes := GenerateTextImage(config)
	require.NotNil(t, img)
	assert.Nil(t, boxes)
	assert.Equal(t, SmallSize.Height, img.Bounds().Dx())
}

func TestSaveAndLoadImage(t *testing.T) {
	img := CreateGradientImage(16, 8)
	path := filepath.Join(t.TempDir(), "nested", "gradient.png")
	SaveImage(t, img, path)
	assert.True(t, FileExists(path))

	loaded := LoadImage(t, path)
	in, out := CountDiff(img, loaded, nil)
	assert.Zero(t, in)
	assert.Zero(t, out)
}

func TestCountDiff(t *testing.T) {
	a := CreateTestImage(4, 4, color.White)
	b := CreateTestImage(4, 4, color.White)
	b.Set(0, 0, color.Black)
	b.Set(3, 3, color.Black)

	in, out := CountDiff(a, b, func(x, y int) bool { return x < 2 && y < 2 })
	assert.Equal(t, 1, in)
	assert.Equal(t, 1, out)
}
