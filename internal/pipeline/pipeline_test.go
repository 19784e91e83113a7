package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/MeKo-Tech/ocrsam/internal/masktable"
	"github.com/MeKo-Tech/ocrsam/internal/segmenter"
	"github.com/MeKo-Tech/ocrsam/internal/spotter"
	"github.com/MeKo-Tech/ocrsam/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Inpaint.Width, cfg.Inpaint.Height = 64, 64
	return cfg
}

func newTestPipeline(t *testing.T, sp TextSpotter) (*Pipeline, *testutil.FakeGenerator) {
	t.Helper()
	gen := &testutil.FakeGenerator{}
	p, err := New(sp, &testutil.FakeSegmenter{}, gen, testConfig())
	require.NoError(t, err)
	return p, gen
}

func TestNew_RequiresBackends(t *testing.T) {
	_, err := New(nil, &testutil.FakeSegmenter{}, &testutil.FakeGenerator{}, testConfig())
	require.Error(t, err)
}

func TestDetectSegment_NoRegions(t *testing.T) {
	p, _ := newTestPipeline(t, &testutil.FakeSpotter{})
	img := testutil.CreateGradientImage(40, 30)

	res, err := p.DetectSegment(context.Background(), img)
	require.NoError(t, err)

	assert.Empty(t, res.Summary)
	assert.Empty(t, res.Regions)
	tbl, err := masktable.Decode(res.MaskTable)
	require.NoError(t, err)
	assert.Zero(t, tbl.Len())

	in, out := testutil.CountDiff(img, res.Preview, nil)
	assert.Zero(t, in+out, "preview must equal the input when nothing is detected")
}

func TestDetectSegment_IndexAlignment(t *testing.T) {
	sp := &testutil.FakeSpotter{Regions: []spotter.Region{
		testutil.NewRegion("STOP", 5, 5, 30, 15),
		testutil.NewRegion("GO", 40, 20, 60, 35),
		testutil.NewRegion("EXIT", 10, 40, 50, 55),
	}}
	p, _ := newTestPipeline(t, sp)
	img := testutil.CreateTestImage(80, 60, color.White)

	res, err := p.DetectSegment(context.Background(), img)
	require.NoError(t, err)

	assert.Equal(t, "0:STOP\n1:GO\n2:EXIT\n", res.Summary)
	tbl, err := masktable.Decode(res.MaskTable)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, tbl.Indices())

	for i, r := range sp.Regions {
		e, ok := tbl.Get(i)
		require.True(t, ok)
		assert.Equal(t, r.Polygon, e.Polygon)
		assert.Equal(t, res.Masks[i].Bits, e.Mask.Bits)
		// The mask of region i covers the centre of its own box only.
		cx := int((r.Box.MinX + r.Box.MaxX) / 2)
		cy := int((r.Box.MinY + r.Box.MaxY) / 2)
		assert.True(t, e.Mask.At(cx, cy))
		for j, other := range sp.Regions {
			if j == i {
				continue
			}
			assert.False(t, e.Mask.At(int((other.Box.MinX+other.Box.MaxX)/2), int((other.Box.MinY+other.Box.MaxY)/2)))
		}
	}
}

func TestDetectSegment_DropsRegionsOutsideImage(t *testing.T) {
	sp := &testutil.FakeSpotter{Regions: []spotter.Region{
		testutil.NewRegion("GHOST", 100, 100, 120, 110),
		testutil.NewRegion("HELLO", 10, 10, 50, 30),
		testutil.NewRegion("EDGE", 80, 0, 90, 20),
	}}
	p, _ := newTestPipeline(t, sp)
	img := testutil.CreateTestImage(80, 60, color.White)

	res, err := p.DetectSegment(context.Background(), img)
	require.NoError(t, err)

	assert.Equal(t, "0:HELLO\n", res.Summary)
	require.Len(t, res.Masks, 1)
	tbl, err := masktable.Decode(res.MaskTable)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, tbl.Indices())
	e, _ := tbl.Get(0)
	assert.True(t, e.Mask.At(30, 20))
}

func TestDetectSegment_PreviewAnnotated(t *testing.T) {
	img, sp := testutil.HelloScenario()
	p, _ := newTestPipeline(t, sp)

	res, err := p.DetectSegment(context.Background(), img)
	require.NoError(t, err)
	require.NotNil(t, res.Preview)
	assert.Equal(t, img.Bounds(), res.Preview.Bounds())

	in, out := testutil.CountDiff(img, res.Preview, func(x, y int) bool { return x >= 10 && x < 50 && y >= 10 && y < 30 })
	assert.Positive(t, in, "mask overlay must tint the region")
	assert.Positive(t, out, "label is drawn above the box")
}

func TestDetectSegment_Errors(t *testing.T) {
	ctx := context.Background()
	img := testutil.CreateTestImage(32, 32, color.White)
	boom := errors.New("boom")

	t.Run("nil image", func(t *testing.T) {
		p, _ := newTestPipeline(t, &testutil.FakeSpotter{})
		_, err := p.DetectSegment(ctx, nil)
		var fe *ImageFormatError
		require.ErrorAs(t, err, &fe)
	})

	t.Run("empty image", func(t *testing.T) {
		p, _ := newTestPipeline(t, &testutil.FakeSpotter{})
		_, err := p.DetectSegment(ctx, image.NewRGBA(image.Rect(0, 0, 0, 0)))
		var fe *ImageFormatError
		require.ErrorAs(t, err, &fe)
	})

	t.Run("spotter failure", func(t *testing.T) {
		p, _ := newTestPipeline(t, &testutil.FakeSpotter{Err: boom})
		_, err := p.DetectSegment(ctx, img)
		var me *ModelInferenceError
		require.ErrorAs(t, err, &me)
		assert.Equal(t, StageSpotting, me.Stage)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("segmenter failure", func(t *testing.T) {
		sp := &testutil.FakeSpotter{Regions: []spotter.Region{testutil.NewRegion("A", 1, 1, 10, 10)}}
		p, err := New(sp, &testutil.FakeSegmenter{Err: boom}, &testutil.FakeGenerator{}, testConfig())
		require.NoError(t, err)
		_, err = p.DetectSegment(ctx, img)
		var me *ModelInferenceError
		require.ErrorAs(t, err, &me)
		assert.Equal(t, StageSegmentation, me.Stage)
	})

	t.Run("mask count mismatch", func(t *testing.T) {
		sp := &testutil.FakeSpotter{Regions: []spotter.Region{testutil.NewRegion("A", 1, 1, 10, 10)}}
		p, err := New(sp, &testutil.FakeSegmenter{DropLast: true}, &testutil.FakeGenerator{}, testConfig())
		require.NoError(t, err)
		_, err = p.DetectSegment(ctx, img)
		var me *ModelInferenceError
		require.ErrorAs(t, err, &me)
	})
}

func TestInpaint_OnlyMaskChanges(t *testing.T) {
	img := testutil.CreateGradientImage(64, 48)
	sp := &testutil.FakeSpotter{Regions: []spotter.Region{testutil.NewRegion("HELLO", 10, 10, 50, 30)}}
	p, gen := newTestPipeline(t, sp)
	ctx := context.Background()

	res, err := p.DetectSegment(ctx, img)
	require.NoError(t, err)

	out, err := p.Inpaint(ctx, img, res.MaskTable, InpaintRequest{Index: 0, Prompt: "graffiti", Seed: 3})
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), out.Bounds())

	inside := func(x, y int) bool { return res.Masks[0].At(x, y) }
	in, outside := testutil.CountDiff(img, out, inside)
	assert.Zero(t, outside, "pixels outside the mask must be untouched")
	assert.Positive(t, in)

	reqs := gen.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, 64, reqs[0].Width)
	assert.Equal(t, int64(3), reqs[0].Seed)
	assert.Equal(t, p.Config().Inpaint.Steps, reqs[0].Steps)
	assert.Equal(t, image.Rect(0, 0, 64, 64), reqs[0].Mask.Bounds())
}

func TestInpaint_DeterministicBySeed(t *testing.T) {
	img, sp := testutil.HelloScenario()
	p, _ := newTestPipeline(t, sp)
	ctx := context.Background()
	res, err := p.DetectSegment(ctx, img)
	require.NoError(t, err)

	run := func(seed int64) *image.RGBA {
		out, err := p.Inpaint(ctx, img, res.MaskTable, InpaintRequest{Index: 0, Prompt: "graffiti", Seed: seed, Steps: 5})
		require.NoError(t, err)
		return out
	}
	a, b, c := run(1), run(1), run(2)
	assert.Equal(t, a.Pix, b.Pix)
	assert.NotEqual(t, a.Pix, c.Pix)
}

func TestInpaint_Errors(t *testing.T) {
	img, sp := testutil.HelloScenario()
	p, gen := newTestPipeline(t, sp)
	ctx := context.Background()
	res, err := p.DetectSegment(ctx, img)
	require.NoError(t, err)

	t.Run("index out of range", func(t *testing.T) {
		_, err := p.Inpaint(ctx, img, res.MaskTable, InpaintRequest{Index: 1, Prompt: "x"})
		var se *SelectionError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, 1, se.Index)
		assert.Equal(t, 1, se.Available)
		assert.Contains(t, err.Error(), "invalid selection")
	})

	t.Run("negative index", func(t *testing.T) {
		_, err := p.Inpaint(ctx, img, res.MaskTable, InpaintRequest{Index: -1, Prompt: "x"})
		var se *SelectionError
		require.ErrorAs(t, err, &se)
	})

	t.Run("malformed table", func(t *testing.T) {
		_, err := p.Inpaint(ctx, img, "{broken", InpaintRequest{Index: 0, Prompt: "x"})
		var me *MalformedMaskTableError
		require.ErrorAs(t, err, &me)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := p.Inpaint(ctx, testutil.CreateTestImage(10, 10, color.White), res.MaskTable, InpaintRequest{Index: 0, Prompt: "x"})
		var fe *ImageFormatError
		require.ErrorAs(t, err, &fe)
	})

	t.Run("empty prompt", func(t *testing.T) {
		_, err := p.Inpaint(ctx, img, res.MaskTable, InpaintRequest{Index: 0, Prompt: "  "})
		var pe *InvalidPromptError
		require.ErrorAs(t, err, &pe)
	})

	t.Run("over-long prompt", func(t *testing.T) {
		_, err := p.Inpaint(ctx, img, res.MaskTable, InpaintRequest{Index: 0, Prompt: strings.Repeat("a", 501)})
		var pe *InvalidPromptError
		require.ErrorAs(t, err, &pe)
	})

	t.Run("generator failure", func(t *testing.T) {
		gen.Err = errors.New("backend down")
		defer func() { gen.Err = nil }()
		_, err := p.Inpaint(ctx, img, res.MaskTable, InpaintRequest{Index: 0, Prompt: "x"})
		var me *ModelInferenceError
		require.ErrorAs(t, err, &me)
		assert.Equal(t, StageInpainting, me.Stage)
	})
}

// The HELLO sign: one detection at (10,10)-(50,30), repainted as graffiti.
func TestHelloGraffitiScenario(t *testing.T) {
	img, sp := testutil.HelloScenario()
	p, _ := newTestPipeline(t, sp)
	ctx := context.Background()

	res, err := p.DetectSegment(ctx, img)
	require.NoError(t, err)
	assert.Equal(t, "0:HELLO\n", res.Summary)
	require.Len(t, res.Masks, 1)
	assert.Equal(t, 40*20, res.Masks[0].Count())

	out, err := p.Inpaint(ctx, img, res.MaskTable, InpaintRequest{Index: 0, Prompt: "graffiti"})
	require.NoError(t, err)

	for _, pt := range []image.Point{{0, 0}, {9, 9}, {50, 30}, {63, 47}, {30, 35}} {
		assert.True(t, testutil.PixelsEqual(img, out, pt.X, pt.Y), "pixel %v outside the sign changed", pt)
	}
	in, _ := testutil.CountDiff(img, out, func(x, y int) bool { return x >= 10 && x < 50 && y >= 10 && y < 30 })
	assert.Positive(t, in)
}

func TestSummary(t *testing.T) {
	assert.Empty(t, Summary(nil))
	assert.Equal(t, "0:a b\n1:\u00e9\n", Summary([]spotter.Region{{Text: "a b"}, {Text: "\u00e9"}}))
}

func TestComposite(t *testing.T) {
	orig := testutil.CreateTestImage(4, 4, color.White)
	gen := testutil.CreateTestImage(2, 2, color.Black)
	mask := segmenter.NewMask(4, 4)
	mask.Bits[0], mask.Bits[1], mask.Bits[4], mask.Bits[5] = true, true, true, true

	out := Composite(orig, gen, mask)
	in, outside := testutil.CountDiff(orig, out, func(x, y int) bool { return x < 2 && y < 2 })
	assert.Equal(t, 4, in)
	assert.Zero(t, outside)
}

func TestBuildInpaintOnly(t *testing.T) {
	cfg := testConfig()
	cfg.Inpaint.Endpoint = "http://127.0.0.1:1"
	p, err := NewBuilderFromConfig(cfg).BuildInpaintOnly()
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	_, err = p.DetectSegment(context.Background(), testutil.CreateGradientImage(8, 8))
	require.Error(t, err)
	assert.Equal(t, "http://127.0.0.1:1", p.Info()["inpaint_endpoint"])

	cfg.Inpaint.Endpoint = ""
	_, err = NewBuilderFromConfig(cfg).BuildInpaintOnly()
	require.Error(t, err)
}
