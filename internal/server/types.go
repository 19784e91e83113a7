package server

import (
	"context"
	"image"
	"net/http"

	"github.com/MeKo-Tech/ocrsam/internal/pipeline"
	"github.com/MeKo-Tech/ocrsam/internal/spotter"
)

// pipelineInterface defines the methods needed by the server from a pipeline.
type pipelineInterface interface {
	DetectSegment(ctx context.Context, img image.Image) (*pipeline.DetectResult, error)
	Inpaint(ctx context.Context, img image.Image, table string, req pipeline.InpaintRequest) (*image.RGBA, error)
	Info() map[string]any
	Close() error
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	pipeline    pipelineInterface
	corsOrigin  string
	maxUploadMB int64
	timeoutSec  int
	examplesDir string
	sessions    *SessionGuard
}

// Config holds server configuration.
type Config struct {
	Host            string
	Port            int
	CORSOrigin      string
	MaxUploadMB     int64
	TimeoutSec      int
	ShutdownTimeout int
	ExamplesDir     string
	PipelineConfig  pipeline.Config
}

// Response types for API endpoints.
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version,omitempty"`
	Time       string `json:"time"`
	Goroutines int    `json:"goroutines"`
	HeapBytes  uint64 `json:"heap_bytes"`
}

type ModelInfo struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Present     bool   `json:"present"`
}

type ModelsResponse struct {
	Models   []ModelInfo    `json:"models"`
	Count    int            `json:"count"`
	Pipeline map[string]any `json:"pipeline,omitempty"`
}

// DetectResponse is the JSON body of a detection request.
type DetectResponse struct {
	Success   bool             `json:"success"`
	Preview   string           `json:"preview"`
	Summary   string           `json:"summary"`
	MaskTable string           `json:"mask_table"`
	Regions   []spotter.Region `json:"regions"`
	Timing    TimingInfo       `json:"timing"`
}

// TimingInfo reports stage durations in milliseconds.
type TimingInfo struct {
	SpottingMs     int64 `json:"spotting_ms"`
	SegmentationMs int64 `json:"segmentation_ms"`
	TotalMs        int64 `json:"total_ms"`
}

// InpaintResponse is the JSON body of an inpainting request when format=json.
type InpaintResponse struct {
	Success bool   `json:"success"`
	Image   string `json:"image"`
	Index   int    `json:"index"`
	Seed    int64  `json:"seed"`
}

type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorType string `json:"error_type,omitempty"`
}

type ExamplesResponse struct {
	Examples []string `json:"examples"`
	Count    int      `json:"count"`
}

// NewServer builds the pipeline from config and returns a server using it.
func NewServer(config Config) (*Server, error) {
	pl, err := pipeline.NewBuilderFromConfig(config.PipelineConfig).Build()
	if err != nil {
		return nil, err
	}
	return NewServerWithPipeline(pl, config), nil
}

// NewServerWithPipeline returns a server around an already built pipeline.
func NewServerWithPipeline(p pipelineInterface, config Config) *Server {
	if config.MaxUploadMB <= 0 {
		config.MaxUploadMB = 50
	}
	if config.TimeoutSec <= 0 {
		config.TimeoutSec = 300
	}
	return &Server{
		pipeline:    p,
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: config.MaxUploadMB,
		timeoutSec:  config.TimeoutSec,
		examplesDir: config.ExamplesDir,
		sessions:    NewSessionGuard(),
	}
}

// Close releases server resources.
func (s *Server) Close() error {
	if s.pipeline != nil {
		return s.pipeline.Close()
	}
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.corsMiddleware(s.indexHandler))
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/models", s.corsMiddleware(s.modelsHandler))
	mux.Handle("/metrics", metricsHandler())
	mux.HandleFunc("/examples", s.corsMiddleware(s.examplesHandler))
	mux.HandleFunc("/examples/", s.corsMiddleware(s.exampleImageHandler))
	mux.HandleFunc("/api/detect", s.corsMiddleware(s.requestIDMiddleware(s.sessionMiddleware(s.detectHandler))))
	mux.HandleFunc("/api/inpaint", s.corsMiddleware(s.requestIDMiddleware(s.sessionMiddleware(s.inpaintHandler))))
	mux.HandleFunc("/ws", s.webSocketHandler)
}
