package utils

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/MeKo-Tech/ocrsam/internal/mempool"
	"github.com/disintegration/imaging"
)

// ImageProcessingError reports a failed image operation.
type ImageProcessingError struct {
	Operation string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// ImageConstraints bounds the size an image is resized to before detection.
type ImageConstraints struct {
	MaxWidth  int
	MaxHeight int
	MinWidth  int
	MinHeight int
}

// DefaultImageConstraints returns the constraints used by the text detector.
func DefaultImageConstraints() ImageConstraints {
	return ImageConstraints{MaxWidth: 960, MaxHeight: 960, MinWidth: 32, MinHeight: 32}
}

// ResizeImage scales img down to fit the constraints, keeping aspect ratio
// and rounding both sides to multiples of 32.
func ResizeImage(img image.Image, c ImageConstraints) (image.Image, error) {
	if img == nil {
		return nil, &ImageProcessingError{Operation: "resize", Err: errors.New("input image is nil")}
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w <= 0 || h <= 0 {
		return nil, &ImageProcessingError{Operation: "resize", Err: fmt.Errorf("invalid dimensions %dx%d", w, h)}
	}
	scale := math.Min(1, math.Min(float64(c.MaxWidth)/float64(w), float64(c.MaxHeight)/float64(h)))
	nw := max(int(float64(w)*scale)/32*32, c.MinWidth, 32)
	nh := max(int(float64(h)*scale)/32*32, c.MinHeight, 32)
	return imaging.Resize(img, nw, nh, imaging.Lanczos), nil
}

// ResizeLongestSide scales img so its longer side equals target and returns
// the applied scale factor.
func ResizeLongestSide(img image.Image, target int) (image.Image, float64) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	scale := float64(target) / float64(max(w, h))
	nw := max(int(math.Round(float64(w)*scale)), 1)
	nh := max(int(math.Round(float64(h)*scale)), 1)
	return imaging.Resize(img, nw, nh, imaging.Linear), scale
}

// PadBottomRight places img at the origin of a black width x height canvas.
func PadBottomRight(img image.Image, width, height int) *image.NRGBA {
	canvas := imaging.New(width, height, color.Black)
	return imaging.Paste(canvas, img, image.Pt(0, 0))
}

// Normalization describes per-channel mean/std applied to 0-1 pixel values.
type Normalization struct {
	Mean [3]float32
	Std  [3]float32
}

var (
	// UnitScale maps pixels to [0,1].
	UnitScale = Normalization{Mean: [3]float32{0, 0, 0}, Std: [3]float32{1, 1, 1}}
	// CenteredScale maps pixels to [-1,1].
	CenteredScale = Normalization{Mean: [3]float32{0.5, 0.5, 0.5}, Std: [3]float32{0.5, 0.5, 0.5}}
	// ImageNet is the mean/std used by most vision backbones.
	ImageNet = Normalization{
		Mean: [3]float32{0.485, 0.456, 0.406},
		Std:  [3]float32{0.229, 0.224, 0.225},
	}
)

// NormalizeImage converts img to a CHW float32 tensor using n.
// The buffer comes from mempool; return it with mempool.PutFloat32.
func NormalizeImage(img image.Image, n Normalization) ([]float32, int, int, error) {
	if img == nil {
		return nil, 0, 0, &ImageProcessingError{Operation: "normalize", Err: errors.New("input image is nil")}
	}
	src := imaging.Clone(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if w <= 0 || h <= 0 {
		return nil, 0, 0, &ImageProcessingError{Operation: "normalize", Err: errors.New("invalid image dimensions")}
	}
	plane := w * h
	data := mempool.GetFloat32(3 * plane)
	for y := range h {
		row := src.Pix[y*src.Stride:]
		for x := range w {
			px := row[x*4 : x*4+3]
			idx := y*w + x
			for c := range 3 {
				data[c*plane+idx] = (float32(px[c])/255 - n.Mean[c]) / n.Std[c]
			}
		}
	}
	return data, w, h, nil
}
