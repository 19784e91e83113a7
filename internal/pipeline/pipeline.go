// Package pipeline chains text spotting, box-prompted segmentation and
// masked inpainting into a detect step and an inpaint step.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/ocrsam/internal/inpaint"
	"github.com/MeKo-Tech/ocrsam/internal/masktable"
	"github.com/MeKo-Tech/ocrsam/internal/segmenter"
	"github.com/MeKo-Tech/ocrsam/internal/spotter"
	"github.com/MeKo-Tech/ocrsam/internal/utils"
	"github.com/disintegration/imaging"
)

// TextSpotter finds text regions in an image.
type TextSpotter interface {
	Detect(ctx context.Context, img image.Image) ([]spotter.Region, error)
}

// RegionSegmenter returns one mask per box, in box order.
type RegionSegmenter interface {
	Segment(ctx context.Context, img image.Image, boxes []utils.Box) ([]segmenter.Mask, error)
}

// InpaintingGenerator regenerates the masked area of a working-size image.
type InpaintingGenerator = inpaint.Generator

// InpaintRequest selects a region and describes what to paint into it.
type InpaintRequest struct {
	Index  int    `json:"index"`
	Prompt string `json:"prompt"`
	Seed   int64  `json:"seed"`
	Steps  int    `json:"steps"`
}

// DetectResult is the output of DetectSegment.
type DetectResult struct {
	Preview   *image.RGBA
	Summary   string
	MaskTable string
	Regions   []spotter.Region
	Masks     []segmenter.Mask
	Timing    struct {
		SpottingNs     int64 `json:"spotting_ns"`
		SegmentationNs int64 `json:"segmentation_ns"`
		TotalNs        int64 `json:"total_ns"`
	}
}

// Pipeline holds the loaded backends. It is safe for concurrent use when
// the backends are.
type Pipeline struct {
	cfg       Config
	spotter   TextSpotter
	segmenter RegionSegmenter
	generator InpaintingGenerator
	closers   []func() error
}

// New wires already constructed backends.
func New(sp TextSpotter, seg RegionSegmenter, gen InpaintingGenerator, cfg Config) (*Pipeline, error) {
	if sp == nil || seg == nil || gen == nil {
		return nil, errors.New("spotter, segmenter and generator are required")
	}
	return &Pipeline{cfg: cfg, spotter: sp, segmenter: seg, generator: gen}, nil
}

// Build loads every model once and returns a ready pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	sp, err := spotter.New(b.cfg.Spotter)
	if err != nil {
		return nil, fmt.Errorf("init spotter: %w", err)
	}
	seg, err := segmenter.New(b.cfg.Segmenter)
	if err != nil {
		_ = sp.Close()
		return nil, fmt.Errorf("init segmenter: %w", err)
	}
	gen, err := inpaint.NewHTTPGenerator(b.cfg.Inpaint)
	if err != nil {
		_ = sp.Close()
		_ = seg.Close()
		return nil, fmt.Errorf("init generator: %w", err)
	}

	p := &Pipeline{cfg: b.cfg, spotter: sp, segmenter: seg, generator: gen, closers: []func() error{sp.Close, seg.Close}}
	if n := b.cfg.WarmupIterations; n > 0 {
		if err := sp.Warmup(n); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("spotter warmup failed: %w", err)
		}
		if err := seg.Warmup(n); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("segmenter warmup failed: %w", err)
		}
	}
	return p, nil
}

// BuildInpaintOnly returns a pipeline that serves Inpaint without loading
// the ONNX models. DetectSegment on it fails.
func (b *Builder) BuildInpaintOnly() (*Pipeline, error) {
	gen, err := inpaint.NewHTTPGenerator(b.cfg.Inpaint)
	if err != nil {
		return nil, fmt.Errorf("init generator: %w", err)
	}
	return &Pipeline{cfg: b.cfg, generator: gen}, nil
}

// Close releases model sessions owned by the pipeline.
func (p *Pipeline) Close() error {
	var errs []error
	for _, c := range p.closers {
		errs = append(errs, c())
	}
	p.closers = nil
	return errors.Join(errs...)
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Info returns key pipeline properties and model info where available.
func (p *Pipeline) Info() map[string]any {
	info := map[string]any{
		"models_dir":        p.cfg.ModelsDir,
		"inpaint_endpoint":  p.cfg.Inpaint.Endpoint,
		"working_size":      []int{p.cfg.Inpaint.Width, p.cfg.Inpaint.Height},
		"default_steps":     p.cfg.Inpaint.Steps,
		"warmup_iterations": p.cfg.WarmupIterations,
	}
	type modelInfo interface{ ModelInfo() map[string]any }
	if m, ok := p.spotter.(modelInfo); ok {
		info["spotter"] = m.ModelInfo()
	}
	if m, ok := p.segmenter.(modelInfo); ok {
		info["segmenter"] = m.ModelInfo()
	}
	return info
}

func checkImage(img image.Image) error {
	if img == nil {
		return &ImageFormatError{Reason: "image is missing"}
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return &ImageFormatError{Reason: fmt.Sprintf("image has no pixels (%dx%d)", b.Dx(), b.Dy())}
	}
	return nil
}

// DetectSegment finds text regions, segments each of them and returns the
// annotated preview, the "{i}:{text}" summary and the serialized mask table.
func (p *Pipeline) DetectSegment(ctx context.Context, img image.Image) (*DetectResult, error) {
	if p.spotter == nil || p.segmenter == nil {
		return nil, errors.New("pipeline was built without detection models")
	}
	if err := checkImage(img); err != nil {
		return nil, err
	}
	start := time.Now()
	b := img.Bounds()
	res := &DetectResult{}

	regions, err := p.spotter.Detect(ctx, img)
	if err != nil {
		return nil, &ModelInferenceError{Stage: StageSpotting, Err: err}
	}
	res.Timing.SpottingNs = time.Since(start).Nanoseconds()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	regions = dropOutsideRegions(regions, b.Dx(), b.Dy())

	var masks []segmenter.Mask
	if len(regions) > 0 {
		segStart := time.Now()
		boxes := make([]utils.Box, len(regions))
		for i, r := range regions {
			boxes[i] = r.Box
		}
		masks, err = p.segmenter.Segment(ctx, img, boxes)
		if err != nil {
			return nil, &ModelInferenceError{Stage: StageSegmentation, Err: err}
		}
		if len(masks) != len(regions) {
			return nil, &ModelInferenceError{
				Stage: StageSegmentation,
				Err:   fmt.Errorf("got %d masks for %d boxes", len(masks), len(regions)),
			}
		}
		res.Timing.SegmentationNs = time.Since(segStart).Nanoseconds()
	}

	table := masktable.New(b.Dx(), b.Dy())
	for i, r := range regions {
		m := masks[i]
		if m.Width != b.Dx() || m.Height != b.Dy() {
			return nil, &ModelInferenceError{
				Stage: StageSegmentation,
				Err:   fmt.Errorf("mask %d is %dx%d, image is %dx%d", i, m.Width, m.Height, b.Dx(), b.Dy()),
			}
		}
		m.Index = i
		masks[i] = m
		table.Add(i, m, r.Polygon)
	}
	encoded, err := masktable.Encode(table)
	if err != nil {
		return nil, fmt.Errorf("failed to encode mask table: %w", err)
	}

	res.Regions = regions
	res.Masks = masks
	res.MaskTable = encoded
	res.Summary = Summary(regions)
	res.Preview = RenderAnnotated(img, regions, masks, p.cfg.Render)
	res.Timing.TotalNs = time.Since(start).Nanoseconds()

	slog.Info("Detection and segmentation complete",
		"regions", len(regions),
		"width", b.Dx(),
		"height", b.Dy(),
		"duration_ms", time.Since(start).Milliseconds())
	return res, nil
}

// dropOutsideRegions removes regions whose box has no area inside a w x h
// image. The remaining regions keep their relative order.
func dropOutsideRegions(regions []spotter.Region, w, h int) []spotter.Region {
	kept := regions[:0:0]
	for _, r := range regions {
		if r.Box.Clip(w, h).Empty() {
			slog.Warn("Dropping text region outside the image", "text", r.Text, "box", r.Box)
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

// Summary lists each region as "{index}:{text}" on its own line.
func Summary(regions []spotter.Region) string {
	var sb strings.Builder
	for i, r := range regions {
		sb.WriteString(strconv.Itoa(i))
		sb.WriteByte(':')
		sb.WriteString(r.Text)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Inpaint regenerates the selected region of img from req.Prompt. Pixels
// outside the region's mask are returned unchanged.
func (p *Pipeline) Inpaint(ctx context.Context, img image.Image, table string, req InpaintRequest) (*image.RGBA, error) {
	if err := checkImage(img); err != nil {
		return nil, err
	}
	start := time.Now()
	tbl, err := masktable.Decode(table)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	if tbl.Width != b.Dx() || tbl.Height != b.Dy() {
		return nil, &ImageFormatError{Reason: fmt.Sprintf("image is %dx%d but the mask table was built for %dx%d",
			b.Dx(), b.Dy(), tbl.Width, tbl.Height)}
	}
	entry, ok := tbl.Get(req.Index)
	if !ok {
		return nil, &SelectionError{Index: req.Index, Available: tbl.Len()}
	}
	if err := inpaint.ValidatePrompt(req.Prompt, p.cfg.Inpaint.MaxPromptLength); err != nil {
		return nil, err
	}

	w, h := p.cfg.Inpaint.Width, p.cfg.Inpaint.Height
	genReq := inpaint.Request{
		Image:  imaging.Resize(img, w, h, imaging.Lanczos),
		Mask:   entry.Mask.Resize(w, h).Image(),
		Prompt: req.Prompt,
		Seed:   req.Seed,
		Steps:  req.Steps,
		Width:  w,
		Height: h,
	}
	if genReq.Steps <= 0 {
		genReq.Steps = p.cfg.Inpaint.Steps
	}
	generated, err := p.generator.Generate(ctx, genReq)
	if err != nil {
		var pe *InvalidPromptError
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, &ModelInferenceError{Stage: StageInpainting, Err: err}
	}
	if err := checkImage(generated); err != nil {
		return nil, &ModelInferenceError{Stage: StageInpainting, Err: err}
	}

	out := Composite(img, generated, entry.Mask)
	slog.Info("Inpainting complete",
		"index", req.Index,
		"seed", req.Seed,
		"steps", genReq.Steps,
		"mask_pixels", entry.Mask.Count(),
		"duration_ms", time.Since(start).Milliseconds())
	return out, nil
}

// Composite copies generated pixels into a copy of orig wherever mask is
// set. generated is resized to orig's dimensions first.
func Composite(orig, generated image.Image, mask segmenter.Mask) *image.RGBA {
	out := utils.ToRGBA(orig)
	w, h := out.Bounds().Dx(), out.Bounds().Dy()
	var gen *image.RGBA
	if g := generated.Bounds(); g.Dx() == w && g.Dy() == h {
		gen = utils.ToRGBA(generated)
	} else {
		gen = utils.ToRGBA(imaging.Resize(generated, w, h, imaging.Lanczos))
	}
	for y := range min(h, mask.Height) {
		for x := range min(w, mask.Width) {
			if !mask.Bits[y*mask.Width+x] {
				continue
			}
			off := out.PixOffset(x, y)
			copy(out.Pix[off:off+4], gen.Pix[off:off+4])
		}
	}
	return out
}
