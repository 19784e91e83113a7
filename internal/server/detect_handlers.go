package server

import (
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/ocrsam/internal/pipeline"
	"github.com/MeKo-Tech/ocrsam/internal/utils"
)

const formatPNG = "png"
const formatJSON = "json"

// requestError is a client mistake detected before the pipeline runs.
type requestError struct {
	status int
	kind   string
	msg    string
}

func (e *requestError) Error() string { return e.msg }

// detectHandler runs text spotting and segmentation on an uploaded image.
func (s *Server) detectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	img, err := s.readUploadedImage(w, r)
	if err != nil {
		s.writeRequestError(w, err)
		return
	}
	if s.pipeline == nil {
		s.writeErrorResponse(w, "Pipeline not initialized", "unavailable", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(s.timeoutSec)*time.Second)
	defer cancel()

	start := time.Now()
	res, err := s.pipeline.DetectSegment(ctx, img)
	stageDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	if err != nil {
		stageRequestsTotal.WithLabelValues("detect", "http", "error").Inc()
		s.writePipelineError(w, r, err)
		return
	}
	stageRequestsTotal.WithLabelValues("detect", "http", "success").Inc()
	regionsDetected.Observe(float64(len(res.Regions)))

	if requestFormat(r) == formatPNG {
		w.Header().Set("Content-Type", "image/png")
		if err := png.Encode(w, res.Preview); err != nil {
			slog.Error("Failed to write preview", "error", err)
		}
		return
	}

	resp, err := newDetectResponse(res)
	if err != nil {
		s.writeErrorResponse(w, "Failed to encode preview", "internal_error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// inpaintHandler regenerates one selected region of an uploaded image.
func (s *Server) inpaintHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	img, err := s.readUploadedImage(w, r)
	if err != nil {
		s.writeRequestError(w, err)
		return
	}
	req, err := parseInpaintRequest(r)
	if err != nil {
		s.writeRequestError(w, err)
		return
	}
	table := r.FormValue("mask_table")
	if strings.TrimSpace(table) == "" {
		s.writeErrorResponse(w, "No mask table provided, run detection first", "malformed_mask_table", http.StatusBadRequest)
		return
	}
	if s.pipeline == nil {
		s.writeErrorResponse(w, "Pipeline not initialized", "unavailable", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(s.timeoutSec)*time.Second)
	defer cancel()

	start := time.Now()
	out, err := s.pipeline.Inpaint(ctx, img, table, req)
	stageDuration.WithLabelValues("inpaint").Observe(time.Since(start).Seconds())
	if err != nil {
		stageRequestsTotal.WithLabelValues("inpaint", "http", "error").Inc()
		s.writePipelineError(w, r, err)
		return
	}
	stageRequestsTotal.WithLabelValues("inpaint", "http", "success").Inc()

	if requestFormat(r) == formatJSON {
		data, err := utils.EncodePNG(out)
		if err != nil {
			s.writeErrorResponse(w, "Failed to encode image", "internal_error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, InpaintResponse{
			Success: true,
			Image:   base64.StdEncoding.EncodeToString(data),
			Index:   req.Index,
			Seed:    req.Seed,
		})
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, out); err != nil {
		slog.Error("Failed to write inpainted image", "error", err)
	}
}

// readUploadedImage parses the multipart form and decodes its "image" file.
func (s *Server) readUploadedImage(w http.ResponseWriter, r *http.Request) (image.Image, error) {
	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &requestError{http.StatusRequestEntityTooLarge, "too_large", "File too large"}
		}
		return nil, &requestError{http.StatusBadRequest, "invalid_request", "Failed to parse form data"}
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		return nil, &requestError{http.StatusBadRequest, "image_format", "No image file provided"}
	}
	defer func() { _ = file.Close() }()
	uploadSizeBytes.Observe(float64(header.Size))

	img, err := utils.DecodeImage(io.LimitReader(file, limit))
	if err != nil {
		return nil, &requestError{http.StatusBadRequest, "image_format", "Invalid image format"}
	}
	return img, nil
}

// parseInpaintRequest reads index, prompt, seed and steps from the form.
func parseInpaintRequest(r *http.Request) (pipeline.InpaintRequest, error) {
	var req pipeline.InpaintRequest

	index, err := strconv.Atoi(strings.TrimSpace(r.FormValue("index")))
	if err != nil {
		return req, &requestError{http.StatusUnprocessableEntity, "invalid_selection",
			"invalid selection: index must be an integer"}
	}
	req.Index = index
	req.Prompt = r.FormValue("prompt")

	if v := strings.TrimSpace(r.FormValue("seed")); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return req, &requestError{http.StatusBadRequest, "invalid_request", "seed must be an integer"}
		}
		req.Seed = seed
	}
	if v := strings.TrimSpace(r.FormValue("steps")); v != "" {
		steps, err := strconv.Atoi(v)
		if err != nil || steps <= 0 {
			return req, &requestError{http.StatusBadRequest, "invalid_request", "steps must be a positive integer"}
		}
		req.Steps = steps
	}
	return req, nil
}

func newDetectResponse(res *pipeline.DetectResult) (DetectResponse, error) {
	data, err := utils.EncodePNG(res.Preview)
	if err != nil {
		return DetectResponse{}, err
	}
	return DetectResponse{
		Success:   true,
		Preview:   base64.StdEncoding.EncodeToString(data),
		Summary:   res.Summary,
		MaskTable: res.MaskTable,
		Regions:   res.Regions,
		Timing: TimingInfo{
			SpottingMs:     res.Timing.SpottingNs / int64(time.Millisecond),
			SegmentationMs: res.Timing.SegmentationNs / int64(time.Millisecond),
			TotalMs:        res.Timing.TotalNs / int64(time.Millisecond),
		},
	}, nil
}

// requestFormat reads "format" from the form or the query string.
func requestFormat(r *http.Request) string {
	format := r.FormValue("format")
	if format == "" {
		format = r.URL.Query().Get("format")
	}
	return strings.ToLower(format)
}

func (s *Server) writeRequestError(w http.ResponseWriter, err error) {
	var re *requestError
	if errors.As(err, &re) {
		s.writeErrorResponse(w, re.msg, re.kind, re.status)
		return
	}
	s.writeErrorResponse(w, err.Error(), "invalid_request", http.StatusBadRequest)
}

func (s *Server) writePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusForError(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Pipeline request failed", "path", r.URL.Path, "request_id", requestIDFrom(r.Context()), "error", err)
	} else {
		slog.Info("Rejected pipeline request", "path", r.URL.Path, "kind", kind, "error", err)
	}
	s.writeErrorResponse(w, err.Error(), kind, status)
}
