// Package segmenter produces per-box binary masks with a SAM-style
// encoder/decoder pair.
package segmenter

import (
	"context"
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

// ErrEmptyBox is returned for a prompt box with no area inside the image.
var ErrEmptyBox = errors.New("box is empty after clipping to the image")

// Segmenter holds loaded encoder and decoder sessions.
type Segmenter struct {
	config    Config
	encoder   imageEncoder
	decoder   promptDecoder
	inputInfo ort.InputOutputInfo

	// mu serializes encode/decode; the embedding is per image.
	mu sync.Mutex
}

// New loads both SAM models.
func New(config Config) (*Segmenter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	slog.Debug("Initializing segmenter",
		"encoder_path", config.EncoderPath,
		"decoder_path", config.DecoderPath,
		"input_size", config.InputSize,
		"gpu_enabled", config.GPU.UseGPU)

	if err := onnx.InitEnvironment(config.GPU.UseGPU); err != nil {
		return nil, err
	}
	opts := onnx.SessionOptions{GPU: config.GPU, NumThreads: config.NumThreads}
	enc, info, err := newONNXEncoder(config.EncoderPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoder: %w", err)
	}
	dec, err := newONNXDecoder(config.DecoderPath, opts)
	if err != nil {
		_ = enc.destroy()
		return nil, fmt.Errorf("failed to load decoder: %w", err)
	}
	return &Segmenter{config: config, encoder: enc, decoder: dec, inputInfo: info}, nil
}

// Close releases both sessions.
func (s *Segmenter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := destroyAll(s.encoder, s.decoder)
	s.encoder, s.decoder = nil, nil
	if err != nil {
		return fmt.Errorf("failed to destroy segmenter sessions: %w", err)
	}
	return nil
}

// GetConfig returns a copy of the configuration.
func (s *Segmenter) GetConfig() Config { return s.config }

// Segment returns one mask per box, in box order. The image is encoded
// once per call.
func (s *Segmenter) Segment(ctx context.Context, img image.Image, boxes []utils.Box) ([]Mask, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	if len(boxes) == 0 {
		return []Mask{}, nil
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	clipped := make([]utils.Box, len(boxes))
	for i, box := range boxes {
		c := box.Clip(w, h)
		if c.Empty() {
			return nil, fmt.Errorf("box %d: %w", i, ErrEmptyBox)
		}
		clipped[i] = c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.encoder == nil || s.decoder == nil {
		return nil, errors.New("segmenter is closed")
	}

	start := time.Now()
	tensor, transform, err := Preprocess(img, s.config.InputSize)
	if err != nil {
		return nil, fmt.Errorf("preprocessing failed: %w", err)
	}
	emb, err := s.encoder.encode(tensor)
	mempool.PutFloat32(tensor.Data)
	if err != nil {
		return nil, err
	}

	masks := make([]Mask, len(clipped))
	for i, box := range clipped {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pred, err := s.decoder.decode(emb, transform.ApplyBox(box), w, h)
		if err != nil {
			return nil, fmt.Errorf("box %d: %w", i, err)
		}
		m := MaskFromLogits(pred.Logits, pred.Width, pred.Height, w, h, s.config.MaskThreshold)
		m.Index = i
		m.Score = pred.Score
		masks[i] = m
	}

	slog.Debug("Segmentation complete",
		"boxes", len(boxes),
		"duration_ms", time.Since(start).Milliseconds())
	return masks, nil
}

// Warmup encodes and decodes a blank image.
func (s *Segmenter) Warmup(iterations int) error {
	blank := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for i := range iterations {
		if _, err := s.Segment(context.Background(), blank, []utils.Box{{MinX: 8, MinY: 8, MaxX: 56, MaxY: 56}}); err != nil {
			return fmt.Errorf("segmenter warmup iteration %d: %w", i, err)
		}
	}
	return nil
}

// ModelInfo describes the loaded models.
func (s *Segmenter) ModelInfo() map[string]any {
	return map[string]any{
		"encoder_path":   s.config.EncoderPath,
		"decoder_path":   s.config.DecoderPath,
		"encoder_input":  s.inputInfo.Name,
		"input_size":     s.config.InputSize,
		"mask_threshold": s.config.MaskThreshold,
		"gpu_enabled":    s.config.GPU.UseGPU,
	}
}
