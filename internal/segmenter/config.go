package segmenter

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/ocrsam/internal/models"
	"github.com/MeKo-Tech/ocrsam/internal/onnx"
)

// Config holds configuration for the SAM segmenter.
type Config struct {
	EncoderPath   string         // Image encoder model
	DecoderPath   string         // Prompt decoder model
	InputSize     int            // Encoder input side (1024 for SAM)
	MaskThreshold float64        // Logit cut-off; 0.5 for probability outputs
	NumThreads    int            // Intra-op threads, 0 = runtime default
	GPU           onnx.GPUConfig // CUDA settings
}

// DefaultConfig returns the standard SAM settings.
func DefaultConfig() Config {
	return Config{
		EncoderPath: models.GetSAMEncoderPath(""),
		DecoderPath: models.GetSAMDecoderPath(""),
		InputSize:   1024,
		GPU:         onnx.DefaultGPUConfig(),
	}
}

// UpdateModelPath resolves encoder and decoder paths under modelsDir.
func (c *Config) UpdateModelPath(modelsDir string) {
	c.EncoderPath = models.GetSAMEncoderPath(modelsDir)
	c.DecoderPath = models.GetSAMDecoderPath(modelsDir)
}

// Validate checks paths and sizes.
func (c Config) Validate() error {
	if c.EncoderPath == "" || c.DecoderPath == "" {
		return errors.New("encoder and decoder paths are required")
	}
	if c.InputSize < 64 {
		return fmt.Errorf("input size must be at least 64, got %d", c.InputSize)
	}
	return onnx.ValidateGPUConfig(c.GPU)
}
