package masktable

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/MeKo-Tech/ocrsam/internal/segmenter"
	"github.com/MeKo-Tech/ocrsam/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var square = []utils.Point{{X: 1, Y: 1}, {X: 4, Y: 1}, {X: 4, Y: 3}, {X: 1, Y: 3}}

func randomMask(rng *rand.Rand, w, h int) segmenter.Mask {
	m := segmenter.NewMask(w, h)
	for i := range m.Bits {
		m.Bits[i] = rng.Intn(3) == 0
	}
	return m
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	sizes := [][2]int{{1, 1}, {3, 3}, {8, 1}, {13, 7}, {64, 48}}
	for _, sz := range sizes {
		tbl := New(sz[0], sz[1])
		for i := range 3 {
			tbl.Add(i, randomMask(rng, sz[0], sz[1]), []utils.Point{
				{X: 0.125, Y: 1.0 / 3}, {X: float64(sz[0]), Y: 0}, {X: 1e-9, Y: float64(sz[1]) - 0.5},
			})
		}

		s, err := Encode(tbl)
		require.NoError(t, err)
		got, err := Decode(s)
		require.NoError(t, err)

		assert.Equal(t, tbl.Width, got.Width)
		assert.Equal(t, tbl.Height, got.Height)
		require.Equal(t, tbl.Indices(), got.Indices())
		for _, i := range tbl.Indices() {
			want, _ := tbl.Get(i)
			e, ok := got.Get(i)
			require.True(t, ok)
			assert.Equal(t, want.Mask.Bits, e.Mask.Bits)
			assert.Equal(t, want.Polygon, e.Polygon)
			assert.Equal(t, i, e.Mask.Index)
		}
	}
}

func TestEncodeDeterministic(t *testing.T) {
	tbl := New(4, 4)
	tbl.Add(2, segmenter.NewMask(4, 4), square)
	tbl.Add(0, segmenter.NewMask(4, 4), square)

	a, err := Encode(tbl)
	require.NoError(t, err)
	b, err := Encode(tbl)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Less(t, strings.Index(a, `"index":0`), strings.Index(a, `"index":2`))
}

func TestEmptyTable(t *testing.T) {
	s, err := Encode(New(10, 5))
	require.NoError(t, err)
	got, err := Decode(s)
	require.NoError(t, err)
	assert.Zero(t, got.Len())
}

func TestEncodeRejectsMismatchedMask(t *testing.T) {
	tbl := New(4, 4)
	tbl.Add(0, segmenter.NewMask(3, 4), square)
	_, err := Encode(tbl)
	require.Error(t, err)

	_, err = Encode(nil)
	require.Error(t, err)
}

func TestPackBits(t *testing.T) {
	bits := []bool{true, false, false, false, false, false, false, false, false, true}
	packed := packBits(bits)
	assert.Equal(t, []byte{0x01, 0x02}, packed)

	out := make([]bool, len(bits))
	unpackBits(packed, out)
	assert.Equal(t, bits, out)
}

func TestDecodeMalformed(t *testing.T) {
	// 2x2 mask with the first bit set is "AQ==".
	const valid = `{"version":1,"width":2,"height":2,"entries":[{"index":0,"mask":{"width":2,"height":2,"count":1,"bits":"AQ=="},"polygon":[[0,0],[2,0],[2,2]]}]}`
	_, err := Decode(valid)
	require.NoError(t, err)
	_, err = Decode(valid + "\n ")
	require.NoError(t, err, "trailing whitespace is allowed")

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not json", "hello"},
		{"truncated", `{"version":1,"width":2`},
		{"array", `[1,2,3]`},
		{"wrong version", `{"version":2,"width":2,"height":2,"entries":[]}`},
		{"unknown field", `{"version":1,"width":2,"height":2,"entries":[],"extra":true}`},
		{"zero width", `{"version":1,"width":0,"height":2,"entries":[]}`},
		{"negative height", `{"version":1,"width":2,"height":-1,"entries":[]}`},
		{"too large", `{"version":1,"width":100000,"height":2,"entries":[]}`},
		{"mask dims differ", `{"version":1,"width":2,"height":2,"entries":[{"index":0,"mask":{"width":1,"height":2,"count":0,"bits":"AA=="},"polygon":[[0,0],[2,0],[2,2]]}]}`},
		{"bad base64", `{"version":1,"width":2,"height":2,"entries":[{"index":0,"mask":{"width":2,"height":2,"count":1,"bits":"!!"},"polygon":[[0,0],[2,0],[2,2]]}]}`},
		{"wrong length", `{"version":1,"width":2,"height":2,"entries":[{"index":0,"mask":{"width":2,"height":2,"count":1,"bits":"AQE="},"polygon":[[0,0],[2,0],[2,2]]}]}`},
		{"padding bits", `{"version":1,"width":2,"height":2,"entries":[{"index":0,"mask":{"width":2,"height":2,"count":1,"bits":"EQ=="},"polygon":[[0,0],[2,0],[2,2]]}]}`},
		{"count mismatch", `{"version":1,"width":2,"height":2,"entries":[{"index":0,"mask":{"width":2,"height":2,"count":3,"bits":"AQ=="},"polygon":[[0,0],[2,0],[2,2]]}]}`},
		{"negative index", `{"version":1,"width":2,"height":2,"entries":[{"index":-1,"mask":{"width":2,"height":2,"count":1,"bits":"AQ=="},"polygon":[[0,0],[2,0],[2,2]]}]}`},
		{"duplicate index", `{"version":1,"width":2,"height":2,"entries":[` +
			`{"index":0,"mask":{"width":2,"height":2,"count":1,"bits":"AQ=="},"polygon":[[0,0],[2,0],[2,2]]},` +
			`{"index":0,"mask":{"width":2,"height":2,"count":1,"bits":"AQ=="},"polygon":[[0,0],[2,0],[2,2]]}]}`},
		{"short polygon", `{"version":1,"width":2,"height":2,"entries":[{"index":0,"mask":{"width":2,"height":2,"count":1,"bits":"AQ=="},"polygon":[[0,0],[2,0]]}]}`},
		{"trailing brace", valid + "}"},
		{"trailing bracket", valid + "]"},
		{"trailing closers", valid + "}}}]]"},
		{"trailing object", valid + "{}"},
		{"second table", valid + valid},
		{"string coordinate", `{"version":1,"width":2,"height":2,"entries":[{"index":0,"mask":{"width":2,"height":2,"count":1,"bits":"AQ=="},"polygon":[["a",0],[2,0],[2,2]]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *Table
			require.NotPanics(t, func() { got, err = Decode(tt.input) })
			require.Error(t, err)
			assert.Nil(t, got)
			var me *MalformedError
			assert.True(t, errors.As(err, &me), "want *MalformedError, got %T", err)
		})
	}
}

func TestEncodeRejectsBadPolygon(t *testing.T) {
	tbl := New(4, 4)
	tbl.Add(0, segmenter.NewMask(4, 4), square[:2])
	_, err := Encode(tbl)
	require.Error(t, err)
}
