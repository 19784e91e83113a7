package detector

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/ocrsam/internal/models"
	"github.com/MeKo-Tech/ocrsam/internal/onnx"
)

const (
	PolygonModeMinRect = "minrect"
	PolygonModeContour = "contour"
)

// Config holds configuration for the text detector.
type Config struct {
	ModelPath    string         // Path to the DB detection model
	DbThresh     float32        // Binarization threshold on the probability map
	DbBoxThresh  float32        // Minimum mean probability for a region to be kept
	MaxImageSize int            // Longest side fed to the model
	UnclipRatio  float64        // Outward growth applied to each region
	MinSize      int            // Components smaller than this (pixels, map space) are dropped
	PolygonMode  string         // "minrect" or "contour"
	UseNMS       bool           // Apply NMS on regions
	NMSThreshold float64        // IoU threshold for NMS
	NumThreads   int            // Intra-op threads, 0 = runtime default
	GPU          onnx.GPUConfig // CUDA settings
}

// DefaultConfig returns a default detector configuration.
func DefaultConfig() Config {
	return Config{
		ModelPath:    models.GetDetectionModelPath(""),
		DbThresh:     0.3,
		DbBoxThresh:  0.5,
		MaxImageSize: 960,
		UnclipRatio:  1.5,
		MinSize:      3,
		PolygonMode:  PolygonModeMinRect,
		UseNMS:       true,
		NMSThreshold: 0.3,
		GPU:          onnx.DefaultGPUConfig(),
	}
}

// UpdateModelPath resolves the model path under modelsDir.
func (c *Config) UpdateModelPath(modelsDir string) {
	c.ModelPath = models.GetDetectionModelPath(modelsDir)
}

// Validate checks thresholds and sizes.
func (c Config) Validate() error {
	if c.ModelPath == "" {
		return errors.New("model path cannot be empty")
	}
	if c.DbThresh <= 0 || c.DbThresh >= 1 {
		return fmt.Errorf("db threshold must be in (0,1), got %v", c.DbThresh)
	}
	if c.DbBoxThresh < 0 || c.DbBoxThresh > 1 {
		return fmt.Errorf("db box threshold must be in [0,1], got %v", c.DbBoxThresh)
	}
	if c.MaxImageSize < 32 {
		return fmt.Errorf("max image size must be at least 32, got %d", c.MaxImageSize)
	}
	if c.PolygonMode != PolygonModeMinRect && c.PolygonMode != PolygonModeContour {
		return fmt.Errorf("unknown polygon mode %q", c.PolygonMode)
	}
	if c.UseNMS && (c.NMSThreshold <= 0 || c.NMSThreshold > 1) {
		return fmt.Errorf("nms threshold must be in (0,1], got %v", c.NMSThreshold)
	}
	return onnx.ValidateGPUConfig(c.GPU)
}

func (c Config) postProcessOptions() PostProcessOptions {
	return PostProcessOptions{
		Thresh:         c.DbThresh,
		BoxThresh:      c.DbBoxThresh,
		UnclipRatio:    c.UnclipRatio,
		MinSize:        c.MinSize,
		UseMinAreaRect: c.PolygonMode != PolygonModeContour,
	}
}
