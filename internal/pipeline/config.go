package pipeline

import (
	"fmt"
	"os"

	"github.com/MeKo-Tech/ocrsam/internal/inpaint"
	"github.com/MeKo-Tech/ocrsam/internal/models"
	"github.com/MeKo-Tech/ocrsam/internal/segmenter"
	"github.com/MeKo-Tech/ocrsam/internal/spotter"
)

// Config holds configuration for both pipeline stages and their backends.
type Config struct {
	ModelsDir        string
	Spotter          spotter.Config
	Segmenter        segmenter.Config
	Inpaint          inpaint.Config
	Render           RenderOptions
	WarmupIterations int // optional warmup runs per model to reduce first-run latency
}

// DefaultConfig returns a config with component defaults.
func DefaultConfig() Config {
	return Config{
		ModelsDir: models.GetModelsDir(""),
		Spotter:   spotter.DefaultConfig(),
		Segmenter: segmenter.DefaultConfig(),
		Inpaint:   inpaint.DefaultConfig(),
		Render:    DefaultRenderOptions(),
	}
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg Config
}

// NewBuilder creates a builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// NewBuilderFromConfig starts from an existing config.
func NewBuilderFromConfig(cfg Config) *Builder { return &Builder{cfg: cfg} }

// WithModelsDir sets the models directory and re-derives every model path.
func (b *Builder) WithModelsDir(dir string) *Builder {
	if dir != "" {
		b.cfg.ModelsDir = dir
	}
	b.cfg.Spotter.Detector.UpdateModelPath(b.cfg.ModelsDir)
	b.cfg.Spotter.Recognizer.UpdateModelPath(b.cfg.ModelsDir)
	b.cfg.Segmenter.UpdateModelPath(b.cfg.ModelsDir)
	return b
}

// WithDetectorModelPath overrides the detector model path.
func (b *Builder) WithDetectorModelPath(path string) *Builder {
	if path != "" {
		b.cfg.Spotter.Detector.ModelPath = path
	}
	return b
}

// WithRecognizerModelPath overrides the recognizer model path.
func (b *Builder) WithRecognizerModelPath(path string) *Builder {
	if path != "" {
		b.cfg.Spotter.Recognizer.ModelPath = path
	}
	return b
}

// WithDictionaryPath overrides the recognizer charset path.
func (b *Builder) WithDictionaryPath(path string) *Builder {
	if path != "" {
		b.cfg.Spotter.Recognizer.DictPath = path
	}
	return b
}

// WithSegmenterModelPaths overrides the SAM encoder and decoder paths.
func (b *Builder) WithSegmenterModelPaths(encoder, decoder string) *Builder {
	if encoder != "" {
		b.cfg.Segmenter.EncoderPath = encoder
	}
	if decoder != "" {
		b.cfg.Segmenter.DecoderPath = decoder
	}
	return b
}

// WithInpaintEndpoint sets the diffusion backend URL.
func (b *Builder) WithInpaintEndpoint(url string) *Builder {
	if url != "" {
		b.cfg.Inpaint.Endpoint = url
	}
	return b
}

// WithLanguage sets recognition language for post-processing.
func (b *Builder) WithLanguage(lang string) *Builder {
	b.cfg.Spotter.Recognizer.Language = lang
	return b
}

// WithThreads sets intra-op thread counts for every model (if >0).
func (b *Builder) WithThreads(n int) *Builder {
	if n > 0 {
		b.cfg.Spotter.Detector.NumThreads = n
		b.cfg.Spotter.Recognizer.NumThreads = n
		b.cfg.Segmenter.NumThreads = n
	}
	return b
}

// WithWarmupIterations sets model warmup runs.
func (b *Builder) WithWarmupIterations(n int) *Builder {
	if n >= 0 {
		b.cfg.WarmupIterations = n
	}
	return b
}

// WithGPU enables GPU acceleration for all ONNX models.
func (b *Builder) WithGPU(enabled bool) *Builder {
	b.cfg.Spotter.Detector.GPU.UseGPU = enabled
	b.cfg.Spotter.Recognizer.GPU.UseGPU = enabled
	b.cfg.Segmenter.GPU.UseGPU = enabled
	return b
}

// WithGPUDevice sets the CUDA device ID for all ONNX models.
func (b *Builder) WithGPUDevice(deviceID int) *Builder {
	b.cfg.Spotter.Detector.GPU.DeviceID = deviceID
	b.cfg.Spotter.Recognizer.GPU.DeviceID = deviceID
	b.cfg.Segmenter.GPU.DeviceID = deviceID
	return b
}

// Config returns a copy of the current config.
func (b *Builder) Config() Config { return b.cfg }

// Validate checks that model files exist and component settings are sane.
func (b *Builder) Validate() error {
	files := []struct{ what, path string }{
		{"detector model", b.cfg.Spotter.Detector.ModelPath},
		{"recognizer model", b.cfg.Spotter.Recognizer.ModelPath},
		{"dictionary", b.cfg.Spotter.Recognizer.DictPath},
		{"segmenter encoder", b.cfg.Segmenter.EncoderPath},
		{"segmenter decoder", b.cfg.Segmenter.DecoderPath},
	}
	for _, f := range files {
		if f.path == "" {
			return fmt.Errorf("%s path is empty", f.what)
		}
		if _, err := os.Stat(f.path); err != nil {
			return fmt.Errorf("%s not found: %s", f.what, f.path)
		}
	}
	if err := b.cfg.Spotter.Detector.Validate(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	if err := b.cfg.Spotter.Recognizer.Validate(); err != nil {
		return fmt.Errorf("recognizer: %w", err)
	}
	if err := b.cfg.Segmenter.Validate(); err != nil {
		return fmt.Errorf("segmenter: %w", err)
	}
	if err := b.cfg.Inpaint.Validate(); err != nil {
		return fmt.Errorf("inpaint: %w", err)
	}
	return nil
}
