package recognizer

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/MeKo-Tech/ocrsam/internal/models"
	"github.com/MeKo-Tech/ocrsam/internal/onnx"
)

// Config holds configuration for the text recognizer.
type Config struct {
	ModelPath        string         // Path to the CTC recognition model
	DictPath         string         // Character dictionary, one token per line
	ImageHeight      int            // Input height; 0 adopts the model's fixed height
	MaxWidth         int            // Width clamp after resizing, 0 = none
	PadWidthMultiple int            // Right-pad width to this multiple
	Language         string         // Language tag for text cleanup rules
	NumThreads       int            // Intra-op threads, 0 = runtime default
	Workers          int            // Concurrent region recognitions per image
	GPU              onnx.GPUConfig // CUDA settings
}

// DefaultConfig returns a default recognizer configuration.
func DefaultConfig() Config {
	return Config{
		ModelPath:        models.GetRecognitionModelPath(""),
		DictPath:         models.GetDictionaryPath(""),
		ImageHeight:      48,
		MaxWidth:         960,
		PadWidthMultiple: 8,
		Workers:          max(runtime.NumCPU()/2, 1),
		GPU:              onnx.DefaultGPUConfig(),
	}
}

// UpdateModelPath resolves model and dictionary paths under modelsDir.
func (c *Config) UpdateModelPath(modelsDir string) {
	c.ModelPath = models.GetRecognitionModelPath(modelsDir)
	c.DictPath = models.GetDictionaryPath(modelsDir)
}

// Validate checks paths and sizes.
func (c Config) Validate() error {
	if c.ModelPath == "" {
		return errors.New("model path cannot be empty")
	}
	if c.DictPath == "" {
		return errors.New("dictionary path cannot be empty")
	}
	if c.ImageHeight < 0 || c.MaxWidth < 0 || c.PadWidthMultiple < 0 {
		return fmt.Errorf("image height, max width and pad multiple must be non-negative")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	return onnx.ValidateGPUConfig(c.GPU)
}
