package segmenter

import (
	"image"
	"math"

	"github.com/MeKo-Tech/ocrsam/internal/mempool"
	"github.com/MeKo-Tech/ocrsam/internal/onnx"
	"github.com/MeKo-Tech/ocrsam/internal/utils"
)

// Transform maps between original image coordinates and the encoder frame.
type Transform struct {
	OrigW, OrigH       int
	ResizedW, ResizedH int
	InputSize          int
}

// NewTransform computes the longest-side resize for an image.
func NewTransform(w, h, inputSize int) Transform {
	scale := float64(inputSize) / float64(max(w, h))
	return Transform{
		OrigW:     w,
		OrigH:     h,
		ResizedW:  max(int(math.Round(float64(w)*scale)), 1),
		ResizedH:  max(int(math.Round(float64(h)*scale)), 1),
		InputSize: inputSize,
	}
}

// ApplyBox maps a box into encoder coordinates as two corner points.
func (t Transform) ApplyBox(b utils.Box) [4]float32 {
	sx := float64(t.ResizedW) / float64(t.OrigW)
	sy := float64(t.ResizedH) / float64(t.OrigH)
	return [4]float32{
		float32(b.MinX * sx), float32(b.MinY * sy),
		float32(b.MaxX * sx), float32(b.MaxY * sy),
	}
}

// Preprocess resizes img, applies ImageNet normalization and zero-pads the
// result to a square [1,3,S,S] tensor. Return the data with mempool.PutFloat32.
func Preprocess(img image.Image, inputSize int) (onnx.Tensor, Transform, error) {
	b := img.Bounds()
	t := NewTransform(b.Dx(), b.Dy(), inputSize)
	resized, _ := utils.ResizeLongestSide(img, inputSize)
	chw, w, h, err := utils.NormalizeImage(resized, utils.ImageNet)
	if err != nil {
		return onnx.Tensor{}, t, err
	}
	defer mempool.PutFloat32(chw)

	s := inputSize
	data := mempool.GetFloat32(3 * s * s)
	clear(data)
	for c := range 3 {
		for y := range min(h, s) {
			src := chw[c*w*h+y*w : c*w*h+y*w+min(w, s)]
			copy(data[c*s*s+y*s:], src)
		}
	}
	tensor, err := onnx.NewImageTensor(data, 3, s, s)
	return tensor, t, err
}

// MaskFromLogits resizes a [H,W] logit plane to the original size with
// bilinear sampling and thresholds it.
func MaskFromLogits(logits []float32, lw, lh, w, h int, threshold float64) Mask {
	m := NewMask(w, h)
	if lw == w && lh == h {
		for i, v := range logits[:w*h] {
			m.Bits[i] = float64(v) > threshold
		}
		return m
	}
	sx := float64(lw) / float64(w)
	sy := float64(lh) / float64(h)
	for y := range h {
		fy := math.Max((float64(y)+0.5)*sy-0.5, 0)
		y0 := min(int(fy), lh-1)
		y1 := min(y0+1, lh-1)
		wy := fy - float64(y0)
		for x := range w {
			fx := math.Max((float64(x)+0.5)*sx-0.5, 0)
			x0 := min(int(fx), lw-1)
			x1 := min(x0+1, lw-1)
			wx := fx - float64(x0)
			top := float64(logits[y0*lw+x0])*(1-wx) + float64(logits[y0*lw+x1])*wx
			bot := float64(logits[y1*lw+x0])*(1-wx) + float64(logits[y1*lw+x1])*wx
			m.Bits[y*w+x] = top*(1-wy)+bot*wy > threshold
		}
	}
	return m
}
