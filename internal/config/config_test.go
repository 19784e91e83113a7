package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/MeKo-Tech/ocrsam/internal/models"
)

const (
	infoLevel       = "info"
	debugLevel      = "debug"
	customModelsDir = "/custom/models"
)

// TestDefaultConfig verifies that DefaultConfig returns expected values.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ModelsDir != models.DefaultModelsDir {
		t.Errorf("Expected models_dir %s, got %s", models.DefaultModelsDir, cfg.ModelsDir)
	}
	if cfg.LogLevel != infoLevel {
		t.Errorf("Expected log_level '%s', got %s", infoLevel, cfg.LogLevel)
	}
	if cfg.Spotter.Detector.PolygonMode != "minrect" {
		t.Errorf("Expected polygon mode 'minrect', got %s", cfg.Spotter.Detector.PolygonMode)
	}
	if cfg.Segmenter.InputSize != 1024 {
		t.Errorf("Expected segmenter input size 1024, got %d", cfg.Segmenter.InputSize)
	}
	if cfg.Inpaint.Steps != 20 {
		t.Errorf("Expected inpaint steps 20, got %d", cfg.Inpaint.Steps)
	}
	if cfg.Inpaint.Seed != 0 {
		t.Errorf("Expected inpaint seed 0, got %d", cfg.Inpaint.Seed)
	}
	if cfg.Inpaint.Width != 512 || cfg.Inpaint.Height != 512 {
		t.Errorf("Expected 512x512 working size, got %dx%d", cfg.Inpaint.Width, cfg.Inpaint.Height)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected server port 8080, got %d", cfg.Server.Port)
	}
	if cfg.GPU.Enabled {
		t.Error("Expected GPU to be disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig() should validate, got %v", err)
	}
}

// TestValidate covers each rejected setting.
func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(*Config)
		wantError bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"debug level", func(c *Config) { c.LogLevel = debugLevel }, false},
		{"invalid log level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"db_thresh above 1", func(c *Config) { c.Spotter.Detector.DbThresh = 1.5 }, true},
		{"db_box_thresh negative", func(c *Config) { c.Spotter.Detector.DbBoxThresh = -0.1 }, true},
		{"nms threshold above 1", func(c *Config) { c.Spotter.Detector.NMSThreshold = 2 }, true},
		{"contour polygons", func(c *Config) { c.Spotter.Detector.PolygonMode = "contour" }, false},
		{"unknown polygon mode", func(c *Config) { c.Spotter.Detector.PolygonMode = "hull" }, true},
		{"zero max image size", func(c *Config) { c.Spotter.Detector.MaxImageSize = 0 }, true},
		{"negative workers", func(c *Config) { c.Spotter.Recognizer.Workers = -1 }, true},
		{"tiny segmenter input", func(c *Config) { c.Segmenter.InputSize = 32 }, true},
		{"endpoint without scheme", func(c *Config) { c.Inpaint.Endpoint = "localhost:7860" }, true},
		{"ftp endpoint", func(c *Config) { c.Inpaint.Endpoint = "ftp://host/x" }, true},
		{"https endpoint", func(c *Config) { c.Inpaint.Endpoint = "https://gpu.example.org" }, false},
		{"size not multiple of 8", func(c *Config) { c.Inpaint.Width = 500 }, true},
		{"zero steps", func(c *Config) { c.Inpaint.Steps = 0 }, true},
		{"zero inpaint timeout", func(c *Config) { c.Inpaint.TimeoutSec = 0 }, true},
		{"negative prompt limit", func(c *Config) { c.Inpaint.MaxPromptLength = -1 }, true},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, true},
		{"zero upload size", func(c *Config) { c.Server.MaxUploadMB = 0 }, true},
		{"zero server timeout", func(c *Config) { c.Server.TimeoutSec = 0 }, true},
		{"negative gpu device", func(c *Config) { c.GPU.Device = -1 }, true},
		{"negative warmup", func(c *Config) { c.WarmupIterations = -2 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.setup(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

// TestToPipelineConfig checks path derivation and field mapping.
func TestToPipelineConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelsDir = customModelsDir
	cfg.Spotter.Detector.DbThresh = 0.4
	cfg.Spotter.Detector.PolygonMode = "contour"
	cfg.Spotter.Recognizer.Workers = 3
	cfg.Spotter.Recognizer.DictPath = "/dicts/custom.txt"
	cfg.Segmenter.MaskThreshold = 0.5
	cfg.Segmenter.EncoderPath = "/sam/enc.onnx"
	cfg.Inpaint.Endpoint = "http://gpu:9000"
	cfg.Inpaint.TimeoutSec = 30
	cfg.Inpaint.APIKey = "secret"
	cfg.GPU.Enabled = true
	cfg.GPU.Device = 1
	cfg.WarmupIterations = 2

	pc := cfg.ToPipelineConfig()

	if pc.ModelsDir != customModelsDir {
		t.Errorf("Expected models dir %s, got %s", customModelsDir, pc.ModelsDir)
	}
	if pc.Spotter.Detector.DbThresh != 0.4 {
		t.Errorf("Expected db_thresh 0.4, got %f", pc.Spotter.Detector.DbThresh)
	}
	if pc.Spotter.Detector.PolygonMode != "contour" {
		t.Errorf("Expected polygon mode contour, got %s", pc.Spotter.Detector.PolygonMode)
	}
	wantDet := filepath.Join(customModelsDir, models.DetectionMobile)
	if pc.Spotter.Detector.ModelPath != wantDet {
		t.Errorf("Expected detector path %s, got %s", wantDet, pc.Spotter.Detector.ModelPath)
	}
	if pc.Spotter.Recognizer.DictPath != "/dicts/custom.txt" {
		t.Errorf("Expected dict override, got %s", pc.Spotter.Recognizer.DictPath)
	}
	if pc.Spotter.Recognizer.Workers != 3 {
		t.Errorf("Expected 3 workers, got %d", pc.Spotter.Recognizer.Workers)
	}
	if pc.Segmenter.EncoderPath != "/sam/enc.onnx" {
		t.Errorf("Expected encoder override, got %s", pc.Segmenter.EncoderPath)
	}
	wantDec := filepath.Join(customModelsDir, models.SAMDecoder)
	if pc.Segmenter.DecoderPath != wantDec {
		t.Errorf("Expected decoder path %s, got %s", wantDec, pc.Segmenter.DecoderPath)
	}
	if pc.Segmenter.MaskThreshold != 0.5 {
		t.Errorf("Expected mask threshold 0.5, got %f", pc.Segmenter.MaskThreshold)
	}
	if pc.Inpaint.Endpoint != "http://gpu:9000" || pc.Inpaint.APIKey != "secret" {
		t.Errorf("Unexpected inpaint endpoint/key: %s %s", pc.Inpaint.Endpoint, pc.Inpaint.APIKey)
	}
	if pc.Inpaint.Timeout != 30*time.Second {
		t.Errorf("Expected 30s timeout, got %v", pc.Inpaint.Timeout)
	}
	for name, gpu := range map[string]bool{
		"detector":   pc.Spotter.Detector.GPU.UseGPU,
		"recognizer": pc.Spotter.Recognizer.GPU.UseGPU,
		"segmenter":  pc.Segmenter.GPU.UseGPU,
	} {
		if !gpu {
			t.Errorf("Expected GPU enabled for %s", name)
		}
	}
	if pc.Segmenter.GPU.DeviceID != 1 {
		t.Errorf("Expected GPU device 1, got %d", pc.Segmenter.GPU.DeviceID)
	}
	if pc.WarmupIterations != 2 {
		t.Errorf("Expected warmup 2, got %d", pc.WarmupIterations)
	}
}

// TestToServerConfig checks the server mapping.
func TestToServerConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.MaxUploadMB = 12
	cfg.Server.ExamplesDir = "/srv/examples"

	sc := cfg.ToServerConfig()
	if sc.Host != "0.0.0.0" || sc.Port != 8080 {
		t.Errorf("Unexpected address %s:%d", sc.Host, sc.Port)
	}
	if sc.MaxUploadMB != 12 {
		t.Errorf("Expected 12 MB, got %d", sc.MaxUploadMB)
	}
	if sc.ExamplesDir != "/srv/examples" {
		t.Errorf("Expected examples dir, got %s", sc.ExamplesDir)
	}
	if sc.PipelineConfig.Inpaint.Steps != 20 {
		t.Errorf("Expected pipeline config to be filled, got steps %d", sc.PipelineConfig.Inpaint.Steps)
	}
}

// TestValidateThreshold tests the threshold helper.
func TestValidateThreshold(t *testing.T) {
	tests := []struct {
		value     float64
		wantError bool
	}{
		{0, false},
		{0.5, false},
		{1, false},
		{-0.01, true},
		{1.01, true},
	}
	for _, tt := range tests {
		err := validateThreshold(tt.value, "x")
		if (err != nil) != tt.wantError {
			t.Errorf("validateThreshold(%v) error = %v, wantError %v", tt.value, err, tt.wantError)
		}
	}
}
