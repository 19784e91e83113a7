package segmenter

import (
	"image"
	"testing"

	"github.com/MeKo-Tech/ocrsam/internal/mempool"
	"github.com/MeKo-Tech/ocrsam/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransform(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		wantW, wantH int
	}{
		{"landscape", 200, 100, 1024, 512},
		{"portrait", 100, 400, 256, 1024},
		{"square", 50, 50, 1024, 1024},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTransform(tt.w, tt.h, 1024)
			assert.Equal(t, tt.wantW, tr.ResizedW)
			assert.Equal(t, tt.wantH, tr.ResizedH)
		})
	}
}

func TestTransformApplyBox(t *testing.T) {
	tr := NewTransform(200, 100, 1024)
	got := tr.ApplyBox(utils.Box{MinX: 10, MinY: 10, MaxX: 50, MaxY: 30})
	assert.InDeltaSlice(t, []float32{51.2, 51.2, 256, 153.6}, got[:], 1e-3)
}

func TestPreprocess(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	tensor, tr, err := Preprocess(img, 64)
	require.NoError(t, err)
	defer mempool.PutFloat32(tensor.Data)

	assert.Equal(t, []int64{1, 3, 64, 64}, tensor.Shape)
	assert.Equal(t, 64, tr.ResizedW)
	assert.Equal(t, 32, tr.ResizedH)

	// Black pixels normalize to -mean/std; padding stays zero.
	want := -utils.ImageNet.Mean[0] / utils.ImageNet.Std[0]
	assert.InDelta(t, want, tensor.Data[0], 1e-5)
	assert.InDelta(t, 0, tensor.Data[40*64], 1e-9)
}

func TestMaskFromLogits(t *testing.T) {
	t.Run("same size", func(t *testing.T) {
		m := MaskFromLogits([]float32{-1, 2, 0, 0.1}, 2, 2, 2, 2, 0)
		assert.Equal(t, []bool{false, true, false, true}, m.Bits)
	})

	t.Run("upsampled", func(t *testing.T) {
		// Left column positive, right column negative.
		m := MaskFromLogits([]float32{5, -5, 5, -5}, 2, 2, 8, 8, 0)
		assert.True(t, m.At(0, 0))
		assert.True(t, m.At(2, 7))
		assert.False(t, m.At(7, 0))
		assert.Equal(t, 32, m.Count())
	})

	t.Run("probability threshold", func(t *testing.T) {
		m := MaskFromLogits([]float32{0.4, 0.6}, 2, 1, 2, 1, 0.5)
		assert.Equal(t, []bool{false, true}, m.Bits)
	})
}
