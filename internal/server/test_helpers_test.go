package server

import (
	"bytes"
	"context"
	"image"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MeKo-Tech/ocrsam/internal/pipeline"
	"github.com/MeKo-Tech/ocrsam/internal/testutil"
	"github.com/MeKo-Tech/ocrsam/internal/utils"
	"github.com/stretchr/testify/require"
)

// newHelloServer returns a server whose pipeline runs on fake backends and
// sees one "HELLO" region, along with the scenario image.
func newHelloServer(t *testing.T) (*Server, *image.RGBA, *testutil.FakeGenerator) {
	t.Helper()
	img, sp := testutil.HelloScenario()
	gen := &testutil.FakeGenerator{}
	cfg := pipeline.DefaultConfig()
	cfg.Inpaint.Width, cfg.Inpaint.Height = 64, 64
	p, err := pipeline.New(sp, &testutil.FakeSegmenter{}, gen, cfg)
	require.NoError(t, err)
	return NewServerWithPipeline(p, Config{CORSOrigin: "*", MaxUploadMB: 5, TimeoutSec: 10}), img, gen
}

// stubPipeline lets a test control each pipeline call.
type stubPipeline struct {
	detect  func(ctx context.Context, img image.Image) (*pipeline.DetectResult, error)
	inpaint func(ctx context.Context, img image.Image, table string, req pipeline.InpaintRequest) (*image.RGBA, error)
}

func (s *stubPipeline) DetectSegment(ctx context.Context, img image.Image) (*pipeline.DetectResult, error) {
	return s.detect(ctx, img)
}

func (s *stubPipeline) Inpaint(ctx context.Context, img image.Image, table string, req pipeline.InpaintRequest) (*image.RGBA, error) {
	return s.inpaint(ctx, img, table, req)
}

func (s *stubPipeline) Info() map[string]any { return map[string]any{"stub": true} }

func (s *stubPipeline) Close() error { return nil }

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	data, err := utils.EncodePNG(img)
	require.NoError(t, err)
	return data
}

// createMultipartFormRequest creates a multipart form request with an image.
func createMultipartFormRequest(
	t *testing.T,
	path string,
	imageData []byte,
	extraFields map[string]string,
) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if imageData != nil {
		part, err := writer.CreateFormFile("image", "input.png")
		require.NoError(t, err)
		_, err = part.Write(imageData)
		require.NoError(t, err)
	}

	for key, value := range extraFields {
		require.NoError(t, writer.WriteField(key, value))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}
