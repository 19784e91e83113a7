package testutil

import (
	"context"
	"image"
	"testing"

	"github.com/MeKo-Tech/ocrsam/internal/inpaint"
	"github.com/MeKo-Tech/ocrsam/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProjectRoot(t *testing.T) {
	root, err := GetProjectRoot()
	require.NoError(t, err)
	assert.True(t, FileExists(root+"/go.mod"))
}

func TestFakeSegmenterFillsBoxes(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	masks, err := (&FakeSegmenter{}).Segment(context.Background(), img, []utils.Box{
		{MinX: 2, MinY: 2, MaxX: 6, MaxY: 5},
		{MinX: 15, MinY: 5, MaxX: 30, MaxY: 20},
	})
	require.NoError(t, err)
	require.Len(t, masks, 2)
	assert.Equal(t, 12, masks[0].Count())
	assert.Equal(t, 25, masks[1].Count())
	assert.Equal(t, 1, masks[1].Index)
}

func TestFakeGeneratorDeterministic(t *testing.T) {
	gen := &FakeGenerator{}
	req := inpaint.Request{Prompt: "graffiti", Seed: 7, Width: 8, Height: 8}

	a, err := gen.Generate(context.Background(), req)
	require.NoError(t, err)
	b, err := gen.Generate(context.Background(), req)
	require.NoError(t, err)
	_, out := CountDiff(a, b, nil)
	assert.Zero(t, out)

	req.Seed = 8
	c, err := gen.Generate(context.Background(), req)
	require.NoError(t, err)
	_, out = CountDiff(a, c, nil)
	assert.Positive(t, out)
	assert.Len(t, gen.Requests(), 3)
}
