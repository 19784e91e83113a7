// Package support holds the godog step definitions for the integration suite.
package support

import (
	"fmt"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"

	"github.com/MeKo-Tech/ocrsam/internal/inpaint"
	"github.com/MeKo-Tech/ocrsam/internal/pipeline"
	"github.com/MeKo-Tech/ocrsam/internal/server"
	"github.com/MeKo-Tech/ocrsam/internal/spotter"
	"github.com/MeKo-Tech/ocrsam/internal/testutil"
	"github.com/cucumber/godog"
)

// Scene size used by every scenario. The working size of the diffusion
// backend is kept small so generated images stay cheap.
const (
	sceneWidth  = 64
	sceneHeight = 48
	workingSize = 64
)

// TestContext holds the state of one scenario.
type TestContext struct {
	TempDir string

	Scene   *image.RGBA
	Regions []spotter.Region
	Backend *testutil.DiffusionBackend
	Server  *httptest.Server
	app     *server.Server

	// Last HTTP exchange.
	LastStatus      int
	LastBody        []byte
	LastContentType string
	LastHeaders     map[string]string
	LastImage       image.Image

	// Stage A output carried into stage B.
	MaskTable string
	Summary   string

	// Outputs of repeated inpaint calls, keyed by label.
	Saved map[string]image.Image

	// CLI state.
	LastOutput string
	LastError  error
}

// NewTestContext creates a context with its own temp directory.
func NewTestContext() (*TestContext, error) {
	dir, err := os.MkdirTemp("", "ocrsam-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	return &TestContext{
		TempDir:     dir,
		LastHeaders: map[string]string{},
		Saved:       map[string]image.Image{},
	}, nil
}

// Cleanup stops servers and removes the temp directory.
func (tc *TestContext) Cleanup() error {
	if tc.Server != nil {
		tc.Server.Close()
		tc.Server = nil
	}
	if tc.app != nil {
		_ = tc.app.Close()
		tc.app = nil
	}
	if tc.Backend != nil {
		tc.Backend.Close()
		tc.Backend = nil
	}
	return os.RemoveAll(tc.TempDir)
}

// startServer wires the real pipeline and HTTP server to fake models and
// the HTTP diffusion stand-in.
func (tc *TestContext) startServer() error {
	tc.Scene = testutil.CreateTestImage(sceneWidth, sceneHeight, color.RGBA{R: 128, G: 128, B: 128, A: 255})
	tc.Backend = testutil.NewDiffusionBackend()

	cfg := pipeline.DefaultConfig()
	cfg.Inpaint.Endpoint = tc.Backend.URL
	cfg.Inpaint.Width, cfg.Inpaint.Height = workingSize, workingSize
	gen, err := inpaint.NewHTTPGenerator(cfg.Inpaint)
	if err != nil {
		return err
	}
	p, err := pipeline.New(&testutil.FakeSpotter{Regions: tc.Regions}, &testutil.FakeSegmenter{}, gen, cfg)
	if err != nil {
		return err
	}

	tc.app = server.NewServerWithPipeline(p, server.Config{CORSOrigin: "*", MaxUploadMB: 1, TimeoutSec: 10})
	mux := http.NewServeMux()
	tc.app.SetupRoutes(mux)
	tc.Server = httptest.NewServer(mux)
	return nil
}

func (tc *TestContext) serverWithRegions(table *godog.Table) error {
	tc.Regions = nil
	for i, row := range table.Rows {
		if i == 0 {
			continue
		}
		if len(row.Cells) != 5 {
			return fmt.Errorf("row %d: want text,x1,y1,x2,y2", i)
		}
		var coords [4]float64
		for j := range coords {
			v, err := strconv.ParseFloat(row.Cells[j+1].Value, 64)
			if err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
			coords[j] = v
		}
		tc.Regions = append(tc.Regions, testutil.NewRegion(row.Cells[0].Value, coords[0], coords[1], coords[2], coords[3]))
	}
	return tc.startServer()
}

func (tc *TestContext) serverWithoutText() error {
	tc.Regions = nil
	return tc.startServer()
}

// RegisterSetupSteps registers the Given steps that start a server.
func (tc *TestContext) RegisterSetupSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the ocrsam server is running with text regions:$`, tc.serverWithRegions)
	sc.Step(`^the ocrsam server is running on an image without text$`, tc.serverWithoutText)
}
