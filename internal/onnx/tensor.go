package onnx

import (
	"errors"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// Tensor is a float32 buffer with a row-major shape.
type Tensor struct {
	Data  []float32
	Shape []int64
}

// NewImageTensor wraps CHW data as a [1, C, H, W] tensor.
func NewImageTensor(data []float32, c, h, w int) (Tensor, error) {
	if data == nil {
		return Tensor{}, errors.New("nil data")
	}
	if len(data) != c*h*w {
		return Tensor{}, fmt.Errorf("unexpected data length: got %d, want %d", len(data), c*h*w)
	}
	return Tensor{Data: data, Shape: []int64{1, int64(c), int64(h), int64(w)}}, nil
}

// ValidateNCHW ensures a shape is [N, C, H, W] with positive dimensions.
func ValidateNCHW(shape []int64) error {
	if len(shape) != 4 {
		return fmt.Errorf("shape rank %d != 4", len(shape))
	}
	for i, v := range shape {
		if v <= 0 {
			return fmt.Errorf("dimension %d must be > 0, got %d", i, v)
		}
	}
	return nil
}

// Elements returns the element count implied by shape.
func Elements(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}

// Verify checks that the data length matches the shape.
func (t Tensor) Verify() error {
	if len(t.Shape) == 0 {
		return errors.New("empty shape")
	}
	if want := Elements(t.Shape); len(t.Data) != want {
		return fmt.Errorf("tensor data length %d != expected %d for shape %v", len(t.Data), want, t.Shape)
	}
	return nil
}

// Value creates the runtime tensor. The caller destroys it.
func (t Tensor) Value() (*ort.Tensor[float32], error) {
	if err := t.Verify(); err != nil {
		return nil, err
	}
	v, err := ort.NewTensor(ort.NewShape(t.Shape...), t.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	return v, nil
}
