package recognizer

import (
	"image"
	"testing"

	"github.com/MeKo-Tech/ocrsam/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCropPolygon(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 60))

	patch, rotated, err := CropPolygon(img, []utils.Point{{X: 10, Y: 10}, {X: 50, Y: 10}, {X: 50, Y: 30}, {X: 10, Y: 30}})
	require.NoError(t, err)
	assert.False(t, rotated)
	assert.Equal(t, 40, patch.Bounds().Dx())
	assert.Equal(t, 20, patch.Bounds().Dy())

	patch, rotated, err = CropPolygon(img, []utils.Point{{X: 10, Y: 0}, {X: 20, Y: 0}, {X: 20, Y: 40}, {X: 10, Y: 40}})
	require.NoError(t, err)
	assert.True(t, rotated)
	assert.Equal(t, 40, patch.Bounds().Dx())

	_, _, err = CropPolygon(img, []utils.Point{{X: 200, Y: 200}, {X: 300, Y: 200}, {X: 300, Y: 300}})
	require.Error(t, err)
	_, _, err = CropPolygon(nil, nil)
	require.Error(t, err)
}

func TestResizeForRecognition(t *testing.T) {
	tests := []struct {
		name      string
		w, h      int
		maxWidth  int
		pad       int
		wantWidth int
	}{
		{"aspect kept", 40, 20, 0, 0, 96},
		{"padded to multiple", 25, 20, 0, 8, 64},
		{"clamped", 400, 10, 320, 8, 320},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ResizeForRecognition(image.NewRGBA(image.Rect(0, 0, tt.w, tt.h)), 48, tt.maxWidth, tt.pad)
			require.NoError(t, err)
			assert.Equal(t, tt.wantWidth, out.Bounds().Dx())
			assert.Equal(t, 48, out.Bounds().Dy())
		})
	}

	_, err := ResizeForRecognition(image.NewRGBA(image.Rect(0, 0, 4, 4)), 0, 0, 0)
	require.Error(t, err)
}
