package testutil

import (
	"context"
	"hash/fnv"
	"image"
	"image/color"
	"math/rand/v2"
	"sync"

	"github.com/MeKo-Tech/ocrsam/internal/inpaint"
	"github.com/MeKo-Tech/ocrsam/internal/segmenter"
	"github.com/MeKo-Tech/ocrsam/internal/spotter"
	"github.com/MeKo-Tech/ocrsam/internal/utils"
)

// FakeSpotter returns a fixed set of regions.
type FakeSpotter struct {
	Regions []spotter.Region
	Err     error

	mu    sync.Mutex
	calls int
}

// Detect returns a copy of Regions or Err.
func (f *FakeSpotter) Detect(ctx context.Context, _ image.Image) ([]spotter.Region, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]spotter.Region(nil), f.Regions...), nil
}

// Calls returns how many times Detect ran.
func (f *FakeSpotter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// NewRegion builds a rectangular region with the given text.
func NewRegion(text string, x1, y1, x2, y2 float64) spotter.Region {
	poly := []utils.Point{{X: x1, Y: y1}, {X: x2, Y: y1}, {X: x2, Y: y2}, {X: x1, Y: y2}}
	return spotter.Region{
		Polygon:       poly,
		Text:          text,
		Box:           utils.BoundingBox(poly),
		DetConfidence: 0.9,
		RecConfidence: 0.95,
	}
}

// FakeSegmenter fills each box exactly, clipped to the image.
type FakeSegmenter struct {
	Err error
	// DropLast returns one mask fewer than boxes, to exercise alignment checks.
	DropLast bool
}

// Segment returns one rectangular mask per box.
func (f *FakeSegmenter) Segment(_ context.Context, img image.Image, boxes []utils.Box) ([]segmenter.Mask, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	b := img.Bounds()
	masks := make([]segmenter.Mask, 0, len(boxes))
	for i, box := range boxes {
		m := segmenter.NewMask(b.Dx(), b.Dy())
		r := box.ToRect(image.Rect(0, 0, b.Dx(), b.Dy()))
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				m.Bits[y*m.Width+x] = true
			}
		}
		m.Index = i
		m.Score = 1
		masks = append(masks, m)
	}
	if f.DropLast && len(masks) > 0 {
		masks = masks[:len(masks)-1]
	}
	return masks, nil
}

// FakeGenerator paints pseudo-random pixels derived from the prompt and
// seed, so equal requests yield equal images.
type FakeGenerator struct {
	Err error

	mu       sync.Mutex
	requests []inpaint.Request
}

// Generate returns a Width x Height image determined by prompt and seed.
func (f *FakeGenerator) Generate(ctx context.Context, req inpaint.Request) (image.Image, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if err := inpaint.ValidatePrompt(req.Prompt, 0); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(req.Prompt))
	rng := rand.New(rand.NewPCG(h.Sum64(), uint64(req.Seed))) //nolint:gosec // deterministic test data
	img := image.NewRGBA(image.Rect(0, 0, req.Width, req.Height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(rng.UintN(256))
		img.Pix[i+1] = uint8(rng.UintN(256))
		img.Pix[i+2] = uint8(rng.UintN(256))
		img.Pix[i+3] = 0xff
	}
	return img, nil
}

// Requests returns the requests seen so far.
func (f *FakeGenerator) Requests() []inpaint.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]inpaint.Request(nil), f.requests...)
}

// HelloScenario is a 64x48 gray image with one "HELLO" region at
// (10,10)-(50,30).
func HelloScenario() (*image.RGBA, *FakeSpotter) {
	img := CreateTestImage(64, 48, color.RGBA{R: 128, G: 128, B: 128, A: 255})
	return img, &FakeSpotter{Regions: []spotter.Region{NewRegion("HELLO", 10, 10, 50, 30)}}
}
