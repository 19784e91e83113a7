package recognizer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/MeKo-Tech/ocrsam/internal/mempool"
	"github.com/MeKo-Tech/ocrsam/internal/onnx"
	"github.com/MeKo-Tech/ocrsam/internal/utils"
	"github.com/panjf2000/ants/v2"
	ort "github.com/yalue/onnxruntime_go"
)

// Result is the recognized text of one region.
type Result struct {
	Text       string
	Confidence float64
	Rotated    bool
}

// Recognizer performs CTC text recognition using ONNX Runtime.
type Recognizer struct {
	config     Config
	session    *ort.DynamicAdvancedSession
	inputInfo  ort.InputOutputInfo
	outputInfo ort.InputOutputInfo
	charset    *Charset
	pool       *ants.Pool
	mu         sync.RWMutex
}

// NewRecognizer loads the model and dictionary described by config.
func NewRecognizer(config Config) (*Recognizer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	charset, err := LoadCharset(config.DictPath)
	if err != nil {
		return nil, err
	}
	slog.Debug("Dictionary loaded", "path", config.DictPath, "charset_size", charset.Size())

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
	if h := inputs[0].Dimensions[2]; h > 0 && config.ImageHeight <= 0 {
		config.ImageHeight = int(h)
	}
	if config.ImageHeight <= 0 {
		config.ImageHeight = 48
	}

	session, err := onnx.NewSession(config.ModelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name},
		onnx.SessionOptions{GPU: config.GPU, NumThreads: config.NumThreads})
	if err != nil {
		return nil, err
	}
	pool, err := ants.NewPool(config.Workers)
	if err != nil {
		_ = session.Destroy()
		return nil, fmt.Errorf("failed to create recognition worker pool: %w", err)
	}

	slog.Debug("Recognizer initialized",
		"model_path", config.ModelPath,
		"image_height", config.ImageHeight,
		"workers", config.Workers)
	return &Recognizer{
		config:     config,
		session:    session,
		inputInfo:  inputs[0],
		outputInfo: outputs[0],
		charset:    charset,
		pool:       pool,
	}, nil
}

// Close releases the session and worker pool.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pool != nil {
		r.pool.Release()
		r.pool = nil
	}
	if r.session == nil {
		return nil
	}
	err := r.session.Destroy()
	r.session = nil
	if err != nil {
		return fmt.Errorf("failed to destroy recognizer session: %w", err)
	}
	return nil
}

// GetConfig returns a copy of the recognizer's configuration.
func (r *Recognizer) GetConfig() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config
}

// RecognizePolygon crops the polygon from img and recognizes it.
func (r *Recognizer) RecognizePolygon(img image.Image, poly []utils.Point) (Result, error) {
	patch, rotated, err := CropPolygon(img, poly)
	if err != nil {
		return Result{}, fmt.Errorf("crop region: %w", err)
	}
	res, err := r.RecognizeCrop(patch)
	res.Rotated = rotated
	return res, err
}

// RecognizeCrop recognizes an already cropped, upright text line.
func (r *Recognizer) RecognizeCrop(patch image.Image) (Result, error) {
	cfg := r.GetConfig()
	resized, err := ResizeForRecognition(patch, cfg.ImageHeight, cfg.MaxWidth, cfg.PadWidthMultiple)
	if err != nil {
		return Result{}, fmt.Errorf("resize: %w", err)
	}
	data, w, h, err := utils.NormalizeImage(resized, utils.CenteredScale)
	if err != nil {
		return Result{}, fmt.Errorf("normalize: %w", err)
	}
	defer mempool.PutFloat32(data)
	tensor, err := onnx.NewImageTensor(data, 3, h, w)
	if err != nil {
		return Result{}, err
	}

	logits, shape, err := r.run(tensor)
	if err != nil {
		return Result{}, err
	}
	decoded := DecodeCTCGreedy(logits, shape, 0, classesFirst(shape, r.charset.Size()+1))
	if len(decoded) == 0 {
		return Result{}, fmt.Errorf("unexpected recognizer output shape %v", shape)
	}
	seq := decoded[0]
	return Result{
		Text:       PostProcessText(r.charset.Decode(seq.Collapsed), cfg.Language),
		Confidence: SequenceConfidence(seq.CollapsedProb),
	}, nil
}

func (r *Recognizer) run(tensor onnx.Tensor) ([]float32, []int64, error) {
	r.mu.RLock()
	session := r.session
	r.mu.RUnlock()
	if session == nil {
		return nil, nil, errors.New("recognizer session is closed")
	}
	input, err := tensor.Value()
	if err != nil {
		return nil, nil, err
	}
	defer onnx.Destroy(input)

	outputs := []ort.Value{nil}
	if err := session.Run([]ort.Value{input}, outputs); err != nil {
		return nil, nil, fmt.Errorf("inference failed: %w", err)
	}
	defer onnx.Destroy(outputs...)
	data, shape, err := onnx.Float32Data(outputs[0])
	if err != nil {
		return nil, nil, err
	}
	return append([]float32(nil), data...), append([]int64(nil), shape...), nil
}

// RecognizeRegions recognizes each polygon of img concurrently on the
// worker pool. out[i] belongs to polys[i].
func (r *Recognizer) RecognizeRegions(ctx context.Context, img image.Image, polys [][]utils.Point) ([]Result, error) {
	r.mu.RLock()
	pool := r.pool
	r.mu.RUnlock()
	if pool == nil {
		return nil, errors.New("recognizer is closed")
	}
	out := make([]Result, len(polys))
	err := fanOut(ctx, pool, len(polys), func(i int) error {
		res, err := r.RecognizePolygon(img, polys[i])
		if err != nil {
			return fmt.Errorf("region %d: %w", i, err)
		}
		out[i] = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Warmup runs blank line crops through the model.
func (r *Recognizer) Warmup(iterations int) error {
	blank := image.NewRGBA(image.Rect(0, 0, 160, 48))
	for i := range iterations {
		if _, err := r.RecognizeCrop(blank); err != nil {
			return fmt.Errorf("recognizer warmup iteration %d: %w", i, err)
		}
	}
	return nil
}

// ModelInfo describes the loaded model.
func (r *Recognizer) ModelInfo() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string]any{
		"model_path":   r.config.ModelPath,
		"dict_path":    r.config.DictPath,
		"input_name":   r.inputInfo.Name,
		"output_name":  r.outputInfo.Name,
		"input_shape":  r.inputInfo.Dimensions,
		"image_height": r.config.ImageHeight,
		"charset_size": r.charset.Size(),
		"workers":      r.config.Workers,
		"gpu_enabled":  r.config.GPU.UseGPU,
	}
}
