package inpaint

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MeKo-Tech/ocrsam/internal/utils"
	"github.com/MeKo-Tech/ocrsam/internal/version"
)

const generatePath = "/v1/inpaint"

// maxResponseBytes bounds the backend response body.
const maxResponseBytes = 64 << 20

type generateRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Image          string  `json:"image,omitempty"`
	Mask           string  `json:"mask"`
	Seed           int64   `json:"seed"`
	Steps          int     `json:"steps"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	GuidanceScale  float64 `json:"guidance_scale"`
}

type generateResponse struct {
	Image string `json:"image"`
	Seed  int64  `json:"seed,omitempty"`
	Error string `json:"error,omitempty"`
}

// HTTPGenerator posts JSON requests to a diffusion backend.
type HTTPGenerator struct {
	config     Config
	baseURL    string
	httpClient *http.Client
}

// NewHTTPGenerator returns a generator for config.Endpoint.
func NewHTTPGenerator(config Config) (*HTTPGenerator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &HTTPGenerator{
		config:     config,
		baseURL:    strings.TrimRight(config.Endpoint, "/"),
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

// GetConfig returns a copy of the configuration.
func (g *HTTPGenerator) GetConfig() Config { return g.config }

// Generate sends req and decodes the returned image. Zero Steps, Width and
// Height fall back to the configured defaults; Seed is sent as given.
func (g *HTTPGenerator) Generate(ctx context.Context, req Request) (image.Image, error) {
	if req.Mask == nil {
		return nil, errors.New("mask is required")
	}
	if err := ValidatePrompt(req.Prompt, g.config.MaxPromptLength); err != nil {
		return nil, err
	}
	body, err := g.buildRequest(req)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+generatePath, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())
	if g.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.config.APIKey)
	}

	start := time.Now()
	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("inpaint request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend error (status %d): %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var out generateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("backend error: %s", out.Error)
	}
	img, err := decodeBase64Image(out.Image)
	if err != nil {
		return nil, err
	}
	if b := img.Bounds(); b.Dx() != body.Width || b.Dy() != body.Height {
		return nil, fmt.Errorf("backend returned %dx%d, want %dx%d", b.Dx(), b.Dy(), body.Width, body.Height)
	}

	slog.Debug("Inpainting complete",
		"steps", body.Steps,
		"seed", body.Seed,
		"duration_ms", time.Since(start).Milliseconds())
	return img, nil
}

func (g *HTTPGenerator) buildRequest(req Request) (generateRequest, error) {
	body := generateRequest{
		Prompt:         req.Prompt,
		NegativePrompt: g.config.NegativePrompt,
		Seed:           req.Seed,
		Steps:          req.Steps,
		Width:          req.Width,
		Height:         req.Height,
		GuidanceScale:  g.config.GuidanceScale,
	}
	if body.Steps <= 0 {
		body.Steps = g.config.Steps
	}
	if body.Width <= 0 || body.Height <= 0 {
		body.Width, body.Height = g.config.Width, g.config.Height
	}
	mask, err := encodeBase64PNG(req.Mask)
	if err != nil {
		return body, fmt.Errorf("failed to encode mask: %w", err)
	}
	body.Mask = mask
	if req.Image != nil {
		if body.Image, err = encodeBase64PNG(req.Image); err != nil {
			return body, fmt.Errorf("failed to encode image: %w", err)
		}
	}
	return body, nil
}

func encodeBase64PNG(img image.Image) (string, error) {
	data, err := utils.EncodePNG(img)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func decodeBase64Image(s string) (image.Image, error) {
	if s == "" {
		return nil, errors.New("backend returned no image")
	}
	// Accept data URLs as well as bare base64.
	if i := strings.Index(s, ";base64,"); i >= 0 {
		s = s[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid image encoding: %w", err)
	}
	img, err := utils.DecodeImage(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid image from backend: %w", err)
	}
	return img, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
