// Package spotter combines text detection and recognition into text regions.
package spotter

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/ocrsam/internal/detector"
	"github.com/MeKo-Tech/ocrsam/internal/recognizer"
	"github.com/MeKo-Tech/ocrsam/internal/utils"
)

// Region is a detected text area with its recognized text. The position
// of a Region in a result slice is its selection index.
type Region struct {
	Polygon       []utils.Point `json:"polygon"`
	Text          string        `json:"text"`
	Box           utils.Box     `json:"box"`
	DetConfidence float64       `json:"det_confidence"`
	RecConfidence float64       `json:"rec_confidence"`
}

// Config bundles the detector and recognizer settings.
type Config struct {
	Detector   detector.Config
	Recognizer recognizer.Config
}

// DefaultConfig returns default detector and recognizer settings.
func DefaultConfig() Config {
	return Config{Detector: detector.DefaultConfig(), Recognizer: recognizer.DefaultConfig()}
}

// ONNXSpotter runs a DB detector followed by a CTC recognizer.
type ONNXSpotter struct {
	det *detector.Detector
	rec *recognizer.Recognizer
}

// New loads both models.
func New(cfg Config) (*ONNXSpotter, error) {
	det, err := detector.NewDetector(cfg.Detector)
	if err != nil {
		return nil, fmt.Errorf("failed to create detector: %w", err)
	}
	rec, err := recognizer.NewRecognizer(cfg.Recognizer)
	if err != nil {
		_ = det.Close()
		return nil, fmt.Errorf("failed to create recognizer: %w", err)
	}
	return &ONNXSpotter{det: det, rec: rec}, nil
}

// Detect finds text polygons and recognizes each of them. Regions whose
// text is empty are dropped together with their polygon.
func (s *ONNXSpotter) Detect(ctx context.Context, img image.Image) ([]Region, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	start := time.Now()
	dets, err := s.det.DetectRegions(img)
	if err != nil {
		return nil, fmt.Errorf("detection: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	polys := make([][]utils.Point, len(dets))
	for i, d := range dets {
		polys[i] = d.Polygon
	}
	recs, err := s.rec.RecognizeRegions(ctx, img, polys)
	if err != nil {
		return nil, fmt.Errorf("recognition: %w", err)
	}

	regions, err := Align(dets, recs)
	if err != nil {
		return nil, err
	}
	slog.Debug("Text spotting complete",
		"detected", len(dets),
		"kept", len(regions),
		"duration_ms", time.Since(start).Milliseconds())
	return regions, nil
}

// Align pairs detections with recognition results by position and drops
// pairs whose text is empty. Differing lengths are an error.
func Align(dets []detector.Region, recs []recognizer.Result) ([]Region, error) {
	if len(dets) != len(recs) {
		return nil, fmt.Errorf("detector returned %d polygons but recognizer returned %d texts", len(dets), len(recs))
	}
	out := make([]Region, 0, len(dets))
	for i, d := range dets {
		if recs[i].Text == "" {
			continue
		}
		poly := append([]utils.Point(nil), d.Polygon...)
		out = append(out, Region{
			Polygon:       poly,
			Text:          recs[i].Text,
			Box:           utils.BoundingBox(poly),
			DetConfidence: d.Confidence,
			RecConfidence: recs[i].Confidence,
		})
	}
	return out, nil
}

// Warmup primes both sessions.
func (s *ONNXSpotter) Warmup(iterations int) error {
	if err := s.det.Warmup(iterations); err != nil {
		return err
	}
	return s.rec.Warmup(iterations)
}

// ModelInfo describes both loaded models.
func (s *ONNXSpotter) ModelInfo() map[string]any {
	return map[string]any{"detector": s.det.ModelInfo(), "recognizer": s.rec.ModelInfo()}
}

// Close releases both models.
func (s *ONNXSpotter) Close() error {
	return errors.Join(s.det.Close(), s.rec.Close())
}
