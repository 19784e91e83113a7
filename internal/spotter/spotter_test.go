package spotter

import (
	"testing"

	"github.com/MeKo-Tech/ocrsam/internal/detector"
	"github.com/MeKo-Tech/ocrsam/internal/recognizer"
	"github.com/MeKo-Tech/ocrsam/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rect(x0, y0, x1, y1 float64) []utils.Point {
	return []utils.Point{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}
}

func TestAlign_DropsEmptyTextKeepingPairs(t *testing.T) {
	dets := []detector.Region{
		{Polygon: rect(10, 10, 50, 30), Confidence: 0.9},
		{Polygon: rect(60, 10, 90, 30), Confidence: 0.8},
		{Polygon: rect(10, 40, 50, 60), Confidence: 0.7},
	}
	recs := []recognizer.Result{
		{Text: "HELLO", Confidence: 0.95},
		{Text: "", Confidence: 0.1},
		{Text: "WORLD", Confidence: 0.9},
	}
	regions, err := Align(dets, recs)
	require.NoError(t, err)
	require.Len(t, regions, 2)

	assert.Equal(t, "HELLO", regions[0].Text)
	assert.Equal(t, utils.Box{MinX: 10, MinY: 10, MaxX: 50, MaxY: 30}, regions[0].Box)
	assert.InDelta(t, 0.9, regions[0].DetConfidence, 1e-9)
	assert.Equal(t, "WORLD", regions[1].Text)
	assert.Equal(t, rect(10, 40, 50, 60), regions[1].Polygon)
}

func TestAlign_LengthMismatch(t *testing.T) {
	_, err := Align([]detector.Region{{Polygon: rect(0, 0, 1, 1)}}, nil)
	require.Error(t, err)
}

func TestAlign_Empty(t *testing.T) {
	regions, err := Align(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, regions)
}

func TestAlign_CopiesPolygon(t *testing.T) {
	poly := rect(0, 0, 4, 4)
	regions, err := Align([]detector.Region{{Polygon: poly}}, []recognizer.Result{{Text: "x"}})
	require.NoError(t, err)
	poly[0].X = 99
	assert.InDelta(t, 0.0, regions[0].Polygon[0].X, 1e-9)
}
