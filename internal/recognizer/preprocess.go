package recognizer

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/MeKo-Tech/ocrsam/internal/utils"
	"github.com/disintegration/imaging"
)

// verticalRatio is the height/width ratio above which a crop is treated
// as vertical text and rotated before recognition.
const verticalRatio = 1.5

// CropPolygon cuts the polygon's bounding box out of img and rotates tall
// crops by 90 degrees counter-clockwise.
func CropPolygon(img image.Image, poly []utils.Point) (image.Image, bool, error) {
	if img == nil {
		return nil, false, errors.New("input image is nil")
	}
	rect := utils.BoundingBox(poly).ToRect(img.Bounds())
	if rect.Empty() {
		return nil, false, fmt.Errorf("polygon %v has no area inside the image", poly)
	}
	patch := imaging.Crop(img, rect)
	if float64(rect.Dy()) >= verticalRatio*float64(rect.Dx()) {
		return imaging.Rotate90(patch), true, nil
	}
	return patch, false, nil
}

// ResizeForRecognition scales img to targetHeight keeping aspect ratio,
// clamps the width to maxWidth and right-pads it to padToMultiple.
func ResizeForRecognition(img image.Image, targetHeight, maxWidth, padToMultiple int) (image.Image, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	if targetHeight <= 0 {
		return nil, fmt.Errorf("invalid targetHeight: %d", targetHeight)
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w == 0 || h == 0 {
		return nil, errors.New("empty crop")
	}
	newW := max(int(float64(w)*float64(targetHeight)/float64(h)), 1)
	if maxWidth > 0 {
		newW = min(newW, maxWidth)
	}
	resized := imaging.Resize(img, newW, targetHeight, imaging.Lanczos)

	outW := newW
	if padToMultiple > 0 && newW%padToMultiple != 0 {
		outW = newW + padToMultiple - newW%padToMultiple
	}
	if outW == newW {
		return resized, nil
	}
	canvas := imaging.New(outW, targetHeight, color.Black)
	return imaging.Paste(canvas, resized, image.Pt(0, 0)), nil
}
