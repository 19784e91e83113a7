package testutil

import (
	"encoding/base64"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"sync/atomic"

	"github.com/MeKo-Tech/ocrsam/internal/inpaint"
	"github.com/MeKo-Tech/ocrsam/internal/utils"
)

// DiffusionBackend is an HTTP stand-in for the inpainting service. It
// answers with the same pixels FakeGenerator would paint.
type DiffusionBackend struct {
	*httptest.Server
	gen      FakeGenerator
	requests atomic.Int64
}

type backendRequest struct {
	Prompt string `json:"prompt"`
	Seed   int64  `json:"seed"`
	Steps  int    `json:"steps"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// NewDiffusionBackend starts a backend. Callers must Close it.
func NewDiffusionBackend() *DiffusionBackend {
	b := &DiffusionBackend{}
	b.Server = httptest.NewServer(http.HandlerFunc(b.handle))
	return b
}

// Requests returns how many generate calls were served.
func (b *DiffusionBackend) Requests() int { return int(b.requests.Load()) }

func (b *DiffusionBackend) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req backendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b.requests.Add(1)

	img, err := b.gen.Generate(r.Context(), inpaint.Request{
		Mask:   image.NewGray(image.Rect(0, 0, req.Width, req.Height)),
		Prompt: req.Prompt,
		Seed:   req.Seed,
		Steps:  req.Steps,
		Width:  req.Width,
		Height: req.Height,
	})
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	data, err := utils.EncodePNG(img)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"image": base64.StdEncoding.EncodeToString(data),
		"seed":  req.Seed,
	})
}
