package detector

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/ocrsam/internal/mempool"
	"github.com/MeKo-Tech/ocrsam/internal/onnx"
	"github.com/MeKo-Tech/ocrsam/internal/utils"
	ort "github.com/yalue/onnxruntime_go"
)

// Result holds the raw probability map from one inference.
type Result struct {
	ProbabilityMap []float32
	Width          int
	Height         int
	OriginalWidth  int
	OriginalHeight int
	ProcessingTime time.Duration
}

// Detector runs a DB text detection model.
type Detector struct {
	config      Config
	session     *ort.DynamicAdvancedSession
	inputInfo   ort.InputOutputInfo
	outputInfo  ort.InputOutputInfo
	constraints utils.ImageConstraints
	mu          sync.RWMutex
}

// NewDetector loads the model described by config.
func NewDetector(config Config) (*Detector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	slog.Debug("Initializing detector",
		"model_path", config.ModelPath,
		"gpu_enabled", config.GPU.UseGPU,
		"max_image_size", config.MaxImageSize,
		"polygon_mode", config.PolygonMode)

	if err := onnx.InitEnvironment(config.GPU.UseGPU); err != nil {
		return nil, err
	}
	inputs, outputs, err := onnx.ModelIO(config.ModelPath)
	if err != nil {
		return nil, err
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("expected 1 input and 1 output, got %d and %d", len(inputs), len(outputs))
	}
	if len(inputs[0].Dimensions) != 4 {
		return nil, fmt.Errorf("expected 4D input tensor, got %dD", len(inputs[0].Dimensions))
	}
	session, err := onnx.NewSession(config.ModelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name},
		onnx.SessionOptions{GPU: config.GPU, NumThreads: config.NumThreads})
	if err != nil {
		return nil, err
	}

	slog.Debug("Detector initialized successfully")
	return &Detector{
		config:     config,
		session:    session,
		inputInfo:  inputs[0],
		outputInfo: outputs[0],
		constraints: utils.ImageConstraints{
			MaxWidth: config.MaxImageSize, MaxHeight: config.MaxImageSize, MinWidth: 32, MinHeight: 32,
		},
	}, nil
}

// Close releases the ONNX session.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return nil
	}
	err := d.session.Destroy()
	d.session = nil
	if err != nil {
		return fmt.Errorf("failed to destroy detector session: %w", err)
	}
	return nil
}

// GetConfig returns a copy of the detector's configuration.
func (d *Detector) GetConfig() Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// RunInference returns the probability map for img.
func (d *Detector) RunInference(img image.Image) (*Result, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	start := time.Now()
	b := img.Bounds()

	resized, err := utils.ResizeImage(img, d.constraints)
	if err != nil {
		return nil, fmt.Errorf("preprocessing failed: %w", err)
	}
	data, w, h, err := utils.NormalizeImage(resized, utils.ImageNet)
	if err != nil {
		return nil, fmt.Errorf("preprocessing failed: %w", err)
	}
	defer mempool.PutFloat32(data)
	tensor, err := onnx.NewImageTensor(data, 3, h, w)
	if err != nil {
		return nil, err
	}

	prob, mw, mh, err := d.run(tensor)
	if err != nil {
		return nil, err
	}
	return &Result{
		ProbabilityMap: prob,
		Width:          mw,
		Height:         mh,
		OriginalWidth:  b.Dx(),
		OriginalHeight: b.Dy(),
		ProcessingTime: time.Since(start),
	}, nil
}

func (d *Detector) run(tensor onnx.Tensor) ([]float32, int, int, error) {
	d.mu.RLock()
	session := d.session
	d.mu.RUnlock()
	if session == nil {
		return nil, 0, 0, errors.New("detector session is closed")
	}

	input, err := tensor.Value()
	if err != nil {
		return nil, 0, 0, err
	}
	defer onnx.Destroy(input)

	outputs := []ort.Value{nil}
	if err := session.Run([]ort.Value{input}, outputs); err != nil {
		return nil, 0, 0, fmt.Errorf("inference failed: %w", err)
	}
	defer onnx.Destroy(outputs...)

	data, shape, err := onnx.Float32Data(outputs[0])
	if err != nil {
		return nil, 0, 0, err
	}
	if len(shape) != 4 {
		return nil, 0, 0, fmt.Errorf("expected 4D output tensor, got %dD", len(shape))
	}
	w, h := int(shape[3]), int(shape[2])
	// The output is owned by the runtime value; copy the first channel out.
	prob := make([]float32, w*h)
	copy(prob, data[:w*h])
	return prob, w, h, nil
}

// DetectRegions runs inference and post-processing, returning regions in
// image coordinates in reading order.
func (d *Detector) DetectRegions(img image.Image) ([]Region, error) {
	res, err := d.RunInference(img)
	if err != nil {
		return nil, err
	}
	cfg := d.GetConfig()
	regions := PostProcessDB(res.ProbabilityMap, res.Width, res.Height, cfg.postProcessOptions())
	if cfg.UseNMS {
		regions = NonMaxSuppression(regions, cfg.NMSThreshold)
	}
	regions = ScaleRegionsToOriginal(regions, res.Width, res.Height, res.OriginalWidth, res.OriginalHeight)
	SortReadingOrder(regions)

	slog.Debug("Detection complete",
		"regions", len(regions),
		"map_width", res.Width,
		"map_height", res.Height,
		"duration_ms", res.ProcessingTime.Milliseconds())
	return regions, nil
}

// Warmup runs a few inferences on a blank image so first-request latency
// does not include kernel selection.
func (d *Detector) Warmup(iterations int) error {
	if iterations <= 0 {
		return nil
	}
	blank := image.NewRGBA(image.Rect(0, 0, 320, 320))
	for i := range iterations {
		if _, err := d.RunInference(blank); err != nil {
			return fmt.Errorf("detector warmup iteration %d: %w", i, err)
		}
	}
	return nil
}

// ModelInfo describes the loaded model.
func (d *Detector) ModelInfo() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return map[string]any{
		"model_path":     d.config.ModelPath,
		"input_name":     d.inputInfo.Name,
		"output_name":    d.outputInfo.Name,
		"input_shape":    d.inputInfo.Dimensions,
		"db_thresh":      d.config.DbThresh,
		"db_box_thresh":  d.config.DbBoxThresh,
		"max_image_size": d.config.MaxImageSize,
		"polygon_mode":   d.config.PolygonMode,
		"gpu_enabled":    d.config.GPU.UseGPU,
	}
}
