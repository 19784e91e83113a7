package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/MeKo-Tech/ocrsam/internal/models"
	"github.com/MeKo-Tech/ocrsam/internal/pipeline"
	"github.com/MeKo-Tech/ocrsam/internal/utils"
	"github.com/MeKo-Tech/ocrsam/internal/version"
	"github.com/google/uuid"
)

//go:embed web/index.html
var indexHTML []byte

// indexHandler serves the single-page UI and assigns a session cookie.
func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if c, err := r.Cookie(sessionCookie); err != nil || c.Value == "" {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    uuid.New().String(),
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	response := HealthResponse{
		Status:     "healthy",
		Version:    version.Version,
		Time:       time.Now().UTC().Format(time.RFC3339),
		Goroutines: runtime.NumGoroutine(),
		HeapBytes:  mem.HeapAlloc,
	}
	writeJSON(w, http.StatusOK, response)
}

// modelsHandler returns information about the model files and the loaded pipeline.
func (s *Server) modelsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	modelInfos := models.ListAvailableModels()
	modelList := make([]ModelInfo, len(modelInfos))
	for i, info := range modelInfos {
		path := models.ResolveModelPath("", info.Type, info.Filename)
		modelList[i] = ModelInfo{
			Name:        info.Name,
			Path:        path,
			Type:        info.Type,
			Description: info.Description,
			Present:     models.ValidateModelExists(path) == nil,
		}
	}

	response := ModelsResponse{
		Models: modelList,
		Count:  len(modelList),
	}
	if s.pipeline != nil {
		response.Pipeline = s.pipeline.Info()
	}
	writeJSON(w, http.StatusOK, response)
}

// examplesHandler lists the quick-start images.
func (s *Server) examplesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	names, err := listExamples(s.examplesDir)
	if err != nil {
		slog.Error("Failed to list examples", "dir", s.examplesDir, "error", err)
		s.writeErrorResponse(w, "Failed to list examples", "internal_error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ExamplesResponse{Examples: names, Count: len(names)})
}

// exampleImageHandler serves one image from the examples directory.
func (s *Server) exampleImageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/examples/")
	if s.examplesDir == "" || name == "" || name != filepath.Base(name) || !utils.IsSupportedImage(name) {
		http.NotFound(w, r)
		return
	}
	path := filepath.Join(s.examplesDir, name)
	if _, err := os.Stat(path); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}

// listExamples returns the supported image files in dir, sorted by name.
// An empty dir yields no examples.
func listExamples(dir string) ([]string, error) {
	names := []string{}
	if dir == "" {
		return names, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return names, nil
		}
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() && utils.IsSupportedImage(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// statusForError maps pipeline errors to an HTTP status and error kind.
func statusForError(err error) (int, string) {
	var (
		imgErr       *pipeline.ImageFormatError
		promptErr    *pipeline.InvalidPromptError
		selErr       *pipeline.SelectionError
		tableErr     *pipeline.MalformedMaskTableError
		inferenceErr *pipeline.ModelInferenceError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.As(err, &imgErr):
		return http.StatusBadRequest, "image_format"
	case errors.As(err, &promptErr):
		return http.StatusBadRequest, "invalid_prompt"
	case errors.As(err, &selErr):
		return http.StatusUnprocessableEntity, "invalid_selection"
	case errors.As(err, &tableErr):
		return http.StatusBadRequest, "malformed_mask_table"
	case errors.As(err, &inferenceErr):
		return http.StatusBadGateway, "model_inference"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message, kind string, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{
		Success:   false,
		Error:     message,
		ErrorType: kind,
	})
}
