// Package masktable serializes the per-region masks and polygons produced
// by detection so a later inpainting request can refer to them by index.
package masktable

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/MeKo-Tech/ocrsam/internal/segmenter"
	"github.com/MeKo-Tech/ocrsam/internal/utils"
)

// Version is the current serialization format version.
const Version = 1

// MaxDimension bounds width and height accepted by Decode.
const MaxDimension = 16384

// MaxEntries bounds the number of entries accepted by Decode.
const MaxEntries = 4096

// Entry is the mask and polygon of one detected region.
type Entry struct {
	Mask    segmenter.Mask
	Polygon []utils.Point
}

// Table maps region index to its entry for an image of Width x Height.
type Table struct {
	Width   int
	Height  int
	Entries map[int]Entry
}

// New returns an empty table for an image of the given size.
func New(width, height int) *Table {
	return &Table{Width: width, Height: height, Entries: map[int]Entry{}}
}

// Add stores an entry under index, replacing any previous one.
func (t *Table) Add(index int, mask segmenter.Mask, polygon []utils.Point) {
	t.Entries[index] = Entry{Mask: mask, Polygon: slices.Clone(polygon)}
}

// Get looks up an entry.
func (t *Table) Get(index int) (Entry, bool) {
	e, ok := t.Entries[index]
	return e, ok
}

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.Entries) }

// Indices returns the entry indices in ascending order.
func (t *Table) Indices() []int {
	idx := make([]int, 0, len(t.Entries))
	for i := range t.Entries {
		idx = append(idx, i)
	}
	slices.Sort(idx)
	return idx
}

// MalformedError reports a serialized table that cannot be decoded.
type MalformedError struct {
	Reason string
	Err    error
}

func (e *MalformedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed mask table: %s: %v", e.Reason, e.Err)
	}
	return "malformed mask table: " + e.Reason
}

func (e *MalformedError) Unwrap() error { return e.Err }

func malformed(format string, args ...any) error {
	return &MalformedError{Reason: fmt.Sprintf(format, args...)}
}

type wireMask struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Count  int    `json:"count"`
	Bits   string `json:"bits"`
}

type wireEntry struct {
	Index   int          `json:"index"`
	Mask    wireMask     `json:"mask"`
	Polygon [][2]float64 `json:"polygon"`
}

type wireTable struct {
	Version int         `json:"version"`
	Width   int         `json:"width"`
	Height  int         `json:"height"`
	Entries []wireEntry `json:"entries"`
}

// Encode serializes t. Entries are written in ascending index order, so
// equal tables encode to equal strings.
func Encode(t *Table) (string, error) {
	if t == nil {
		return "", errors.New("nil mask table")
	}
	w := wireTable{Version: Version, Width: t.Width, Height: t.Height, Entries: make([]wireEntry, 0, len(t.Entries))}
	for _, idx := range t.Indices() {
		e := t.Entries[idx]
		if err := e.Mask.Valid(); err != nil {
			return "", fmt.Errorf("entry %d: %w", idx, err)
		}
		if e.Mask.Width != t.Width || e.Mask.Height != t.Height {
			return "", fmt.Errorf("entry %d: mask is %dx%d, table is %dx%d",
				idx, e.Mask.Width, e.Mask.Height, t.Width, t.Height)
		}
		if len(e.Polygon) < 3 {
			return "", fmt.Errorf("entry %d: polygon has %d points, need at least 3", idx, len(e.Polygon))
		}
		poly := make([][2]float64, len(e.Polygon))
		for i, p := range e.Polygon {
			if !finite(p.X) || !finite(p.Y) {
				return "", fmt.Errorf("entry %d: polygon point %d is not finite", idx, i)
			}
			poly[i] = [2]float64{p.X, p.Y}
		}
		w.Entries = append(w.Entries, wireEntry{
			Index: idx,
			Mask: wireMask{
				Width:  e.Mask.Width,
				Height: e.Mask.Height,
				Count:  e.Mask.Count(),
				Bits:   base64.StdEncoding.EncodeToString(packBits(e.Mask.Bits)),
			},
			Polygon: poly,
		})
	}
	data, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("failed to encode mask table: %w", err)
	}
	return string(data), nil
}

// Decode parses a serialized table. Every failure is a *MalformedError.
func Decode(s string) (*Table, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.DisallowUnknownFields()
	var w wireTable
	if err := dec.Decode(&w); err != nil {
		return nil, &MalformedError{Reason: "invalid JSON", Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, malformed("trailing data after table")
	}
	if w.Version != Version {
		return nil, malformed("unsupported version %d", w.Version)
	}
	if err := checkDims(w.Width, w.Height); err != nil {
		return nil, err
	}
	if len(w.Entries) > MaxEntries {
		return nil, malformed("too many entries: %d", len(w.Entries))
	}

	t := New(w.Width, w.Height)
	for _, we := range w.Entries {
		if we.Index < 0 {
			return nil, malformed("negative index %d", we.Index)
		}
		if _, dup := t.Entries[we.Index]; dup {
			return nil, malformed("duplicate index %d", we.Index)
		}
		mask, err := decodeMask(we.Mask, w.Width, w.Height)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", we.Index, err)
		}
		mask.Index = we.Index
		poly, err := decodePolygon(we.Polygon)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", we.Index, err)
		}
		t.Entries[we.Index] = Entry{Mask: mask, Polygon: poly}
	}
	return t, nil
}

func checkDims(w, h int) error {
	if w <= 0 || h <= 0 {
		return malformed("invalid dimensions %dx%d", w, h)
	}
	if w > MaxDimension || h > MaxDimension {
		return malformed("dimensions %dx%d exceed limit %d", w, h, MaxDimension)
	}
	return nil
}

func decodeMask(wm wireMask, width, height int) (segmenter.Mask, error) {
	if wm.Width != width || wm.Height != height {
		return segmenter.Mask{}, malformed("mask is %dx%d, table is %dx%d", wm.Width, wm.Height, width, height)
	}
	packed, err := base64.StdEncoding.DecodeString(wm.Bits)
	if err != nil {
		return segmenter.Mask{}, &MalformedError{Reason: "invalid mask encoding", Err: err}
	}
	n := width * height
	if len(packed) != (n+7)/8 {
		return segmenter.Mask{}, malformed("packed mask has %d bytes, want %d", len(packed), (n+7)/8)
	}
	if rem := n % 8; rem != 0 && packed[len(packed)-1]>>rem != 0 {
		return segmenter.Mask{}, malformed("nonzero padding bits")
	}
	m := segmenter.NewMask(width, height)
	unpackBits(packed, m.Bits)
	if c := m.Count(); c != wm.Count {
		return segmenter.Mask{}, malformed("mask count %d does not match declared %d", c, wm.Count)
	}
	return m, nil
}

func decodePolygon(pts [][2]float64) ([]utils.Point, error) {
	if len(pts) < 3 {
		return nil, malformed("polygon has %d points, need at least 3", len(pts))
	}
	out := make([]utils.Point, len(pts))
	for i, p := range pts {
		if !finite(p[0]) || !finite(p[1]) {
			return nil, malformed("polygon point %d is not finite", i)
		}
		out[i] = utils.Point{X: p[0], Y: p[1]}
	}
	return out, nil
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// packBits packs row-major bits 8 per byte, least significant bit first.
func packBits(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out
}

func unpackBits(packed []byte, bits []bool) {
	for i := range bits {
		bits[i] = packed[i/8]&(1<<(i%8)) != 0
	}
}
