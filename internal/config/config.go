package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/ocrsam/internal/detector"
	"github.com/MeKo-Tech/ocrsam/internal/inpaint"
	"github.com/MeKo-Tech/ocrsam/internal/models"
	"github.com/MeKo-Tech/ocrsam/internal/pipeline"
	"github.com/MeKo-Tech/ocrsam/internal/recognizer"
	"github.com/MeKo-Tech/ocrsam/internal/segmenter"
	"github.com/MeKo-Tech/ocrsam/internal/server"
)

var (
	validLogLevels    = []string{"debug", "info", "warn", "error"}
	validPolygonModes = []string{detector.PolygonModeMinRect, detector.PolygonModeContour}
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	det := detector.DefaultConfig()
	rec := recognizer.DefaultConfig()
	seg := segmenter.DefaultConfig()
	inp := inpaint.DefaultConfig()

	return Config{
		ModelsDir: models.DefaultModelsDir,
		LogLevel:  "info",
		Spotter: SpotterConfig{
			Detector: DetectorConfig{
				DbThresh:     det.DbThresh,
				DbBoxThresh:  det.DbBoxThresh,
				MaxImageSize: det.MaxImageSize,
				PolygonMode:  det.PolygonMode,
				UseNMS:       det.UseNMS,
				NMSThreshold: det.NMSThreshold,
				NumThreads:   det.NumThreads,
			},
			Recognizer: RecognizerConfig{
				ImageHeight: rec.ImageHeight,
				MaxWidth:    rec.MaxWidth,
				Language:    rec.Language,
				NumThreads:  rec.NumThreads,
				Workers:     rec.Workers,
			},
		},
		Segmenter: SegmenterConfig{
			InputSize:     seg.InputSize,
			MaskThreshold: seg.MaskThreshold,
			NumThreads:    seg.NumThreads,
		},
		Inpaint: InpaintConfig{
			Endpoint:        inp.Endpoint,
			TimeoutSec:      int(inp.Timeout / time.Second),
			Width:           inp.Width,
			Height:          inp.Height,
			Steps:           inp.Steps,
			Seed:            inp.Seed,
			GuidanceScale:   inp.GuidanceScale,
			NegativePrompt:  inp.NegativePrompt,
			MaxPromptLength: inp.MaxPromptLength,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     50,
			TimeoutSec:      300,
			ShutdownTimeout: 10,
		},
	}
}

// Validate validates the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	det := c.Spotter.Detector
	if err := validateThreshold(float64(det.DbThresh), "spotter.detector.db_thresh"); err != nil {
		return err
	}
	if err := validateThreshold(float64(det.DbBoxThresh), "spotter.detector.db_box_thresh"); err != nil {
		return err
	}
	if err := validateThreshold(det.NMSThreshold, "spotter.detector.nms_threshold"); err != nil {
		return err
	}
	if !slices.Contains(validPolygonModes, det.PolygonMode) {
		return fmt.Errorf("invalid polygon mode: %s (must be one of: %s)", det.PolygonMode, strings.Join(validPolygonModes, ", "))
	}
	if det.MaxImageSize <= 0 {
		return fmt.Errorf("invalid spotter.detector.max_image_size: %d (must be positive)", det.MaxImageSize)
	}
	if c.Spotter.Recognizer.Workers < 0 {
		return fmt.Errorf("invalid spotter.recognizer.workers: %d (must not be negative)", c.Spotter.Recognizer.Workers)
	}

	if c.Segmenter.InputSize < 64 {
		return fmt.Errorf("invalid segmenter.input_size: %d (must be at least 64)", c.Segmenter.InputSize)
	}

	if err := validateEndpoint(c.Inpaint.Endpoint); err != nil {
		return err
	}
	if c.Inpaint.Width <= 0 || c.Inpaint.Height <= 0 || c.Inpaint.Width%8 != 0 || c.Inpaint.Height%8 != 0 {
		return fmt.Errorf("invalid inpaint size: %dx%d (must be positive multiples of 8)", c.Inpaint.Width, c.Inpaint.Height)
	}
	if c.Inpaint.Steps <= 0 {
		return fmt.Errorf("invalid inpaint.steps: %d (must be positive)", c.Inpaint.Steps)
	}
	if c.Inpaint.TimeoutSec <= 0 {
		return fmt.Errorf("invalid inpaint.timeout_sec: %d (must be positive)", c.Inpaint.TimeoutSec)
	}
	if c.Inpaint.MaxPromptLength < 0 {
		return fmt.Errorf("invalid inpaint.max_prompt_length: %d", c.Inpaint.MaxPromptLength)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.GPU.Device < 0 {
		return fmt.Errorf("invalid gpu.device: %d", c.GPU.Device)
	}
	if c.WarmupIterations < 0 {
		return fmt.Errorf("invalid warmup_iterations: %d", c.WarmupIterations)
	}
	return nil
}

// ToPipelineConfig converts the config to the pipeline configuration.
// Model paths default to their locations under ModelsDir.
func (c *Config) ToPipelineConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.ModelsDir = models.GetModelsDir(c.ModelsDir)
	cfg.Spotter.Detector = c.toDetectorConfig(cfg.ModelsDir)
	cfg.Spotter.Recognizer = c.toRecognizerConfig(cfg.ModelsDir)
	cfg.Segmenter = c.toSegmenterConfig(cfg.ModelsDir)
	cfg.Inpaint = c.toInpaintConfig()
	cfg.WarmupIterations = c.WarmupIterations
	return cfg
}

// ToServerConfig converts the config to the HTTP server configuration.
func (c *Config) ToServerConfig() server.Config {
	return server.Config{
		Host:            c.Server.Host,
		Port:            c.Server.Port,
		CORSOrigin:      c.Server.CORSOrigin,
		MaxUploadMB:     int64(c.Server.MaxUploadMB),
		TimeoutSec:      c.Server.TimeoutSec,
		ShutdownTimeout: c.Server.ShutdownTimeout,
		ExamplesDir:     c.Server.ExamplesDir,
		PipelineConfig:  c.ToPipelineConfig(),
	}
}

func (c *Config) toDetectorConfig(modelsDir string) detector.Config {
	cfg := detector.DefaultConfig()
	cfg.UpdateModelPath(modelsDir)
	cfg.DbThresh = c.Spotter.Detector.DbThresh
	cfg.DbBoxThresh = c.Spotter.Detector.DbBoxThresh
	cfg.MaxImageSize = c.Spotter.Detector.MaxImageSize
	cfg.PolygonMode = c.Spotter.Detector.PolygonMode
	cfg.UseNMS = c.Spotter.Detector.UseNMS
	cfg.NMSThreshold = c.Spotter.Detector.NMSThreshold
	cfg.NumThreads = c.Spotter.Detector.NumThreads
	cfg.GPU.UseGPU = c.GPU.Enabled
	cfg.GPU.DeviceID = c.GPU.Device
	if c.Spotter.Detector.ModelPath != "" {
		cfg.ModelPath = c.Spotter.Detector.ModelPath
	}
	return cfg
}

func (c *Config) toRecognizerConfig(modelsDir string) recognizer.Config {
	cfg := recognizer.DefaultConfig()
	cfg.UpdateModelPath(modelsDir)
	cfg.ImageHeight = c.Spotter.Recognizer.ImageHeight
	cfg.MaxWidth = c.Spotter.Recognizer.MaxWidth
	cfg.Language = c.Spotter.Recognizer.Language
	cfg.NumThreads = c.Spotter.Recognizer.NumThreads
	if c.Spotter.Recognizer.Workers > 0 {
		cfg.Workers = c.Spotter.Recognizer.Workers
	}
	cfg.GPU.UseGPU = c.GPU.Enabled
	cfg.GPU.DeviceID = c.GPU.Device
	if c.Spotter.Recognizer.ModelPath != "" {
		cfg.ModelPath = c.Spotter.Recognizer.ModelPath
	}
	if c.Spotter.Recognizer.DictPath != "" {
		cfg.DictPath = c.Spotter.Recognizer.DictPath
	}
	return cfg
}

func (c *Config) toSegmenterConfig(modelsDir string) segmenter.Config {
	cfg := segmenter.DefaultConfig()
	cfg.UpdateModelPath(modelsDir)
	cfg.InputSize = c.Segmenter.InputSize
	cfg.MaskThreshold = c.Segmenter.MaskThreshold
	cfg.NumThreads = c.Segmenter.NumThreads
	cfg.GPU.UseGPU = c.GPU.Enabled
	cfg.GPU.DeviceID = c.GPU.Device
	if c.Segmenter.EncoderPath != "" {
		cfg.EncoderPath = c.Segmenter.EncoderPath
	}
	if c.Segmenter.DecoderPath != "" {
		cfg.DecoderPath = c.Segmenter.DecoderPath
	}
	return cfg
}

func (c *Config) toInpaintConfig() inpaint.Config {
	cfg := inpaint.DefaultConfig()
	cfg.Endpoint = c.Inpaint.Endpoint
	cfg.APIKey = c.Inpaint.APIKey
	cfg.Timeout = time.Duration(c.Inpaint.TimeoutSec) * time.Second
	cfg.Width = c.Inpaint.Width
	cfg.Height = c.Inpaint.Height
	cfg.Steps = c.Inpaint.Steps
	cfg.Seed = c.Inpaint.Seed
	cfg.GuidanceScale = c.Inpaint.GuidanceScale
	cfg.NegativePrompt = c.Inpaint.NegativePrompt
	cfg.MaxPromptLength = c.Inpaint.MaxPromptLength
	return cfg
}

// validateThreshold validates that a value is between 0.0 and 1.0.
func validateThreshold(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %.2f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}

func validateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid inpaint.endpoint: %q (must be an http or https URL)", endpoint)
	}
	return nil
}
