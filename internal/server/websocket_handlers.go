package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/ocrsam/internal/pipeline"
	"github.com/MeKo-Tech/ocrsam/internal/utils"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketRequest is a detect or inpaint request sent over WebSocket.
// Image is base64 in JSON.
type WebSocketRequest struct {
	Type      string `json:"type"` // "detect" or "inpaint"
	RequestID string `json:"request_id,omitempty"`
	Image     []byte `json:"image,omitempty"`
	MaskTable string `json:"mask_table,omitempty"`
	Index     *int   `json:"index,omitempty"`
	Prompt    string `json:"prompt,omitempty"`
	Seed      int64  `json:"seed,omitempty"`
	Steps     int    `json:"steps,omitempty"`
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// WebSocketResponse reports progress or the result of a request.
type WebSocketResponse struct {
	Type      string  `json:"type"`
	Status    string  `json:"status"` // "processing", "completed", "error"
	Progress  float64 `json:"progress,omitempty"`
	Result    any     `json:"result,omitempty"`
	Error     string  `json:"error,omitempty"`
	ErrorType string  `json:"error_type,omitempty"`
	RequestID string  `json:"request_id,omitempty"`
}

// webSocketHandler upgrades the connection and serves requests on it until
// the client goes away.
func (s *Server) webSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)
	s.handleWebSocketConnection(r.Context(), conn)
}

func (s *Server) handleWebSocketConnection(ctx context.Context, conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket error", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()

		if messageType == websocket.TextMessage {
			s.handleWebSocketMessage(ctx, conn, data)
			_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		}
	}
}

// handleWebSocketMessage runs one request and writes its status updates to conn.
func (s *Server) handleWebSocketMessage(ctx context.Context, conn WebSocketConnWriter, data []byte) {
	var req WebSocketRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocketError(conn, "", "invalid_request", fmt.Sprintf("Failed to parse request: %v", err))
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}
	if req.Type != "detect" && req.Type != "inpaint" {
		s.sendWebSocketError(conn, req.RequestID, "invalid_request", "Unsupported request type: "+req.Type)
		return
	}
	if s.pipeline == nil {
		s.sendWebSocketError(conn, req.RequestID, "unavailable", "Pipeline not initialized")
		return
	}
	if len(req.Image) == 0 {
		s.sendWebSocketError(conn, req.RequestID, "image_format", "No image data provided")
		return
	}
	img, err := utils.DecodeImage(bytes.NewReader(req.Image))
	if err != nil {
		s.sendWebSocketError(conn, req.RequestID, "image_format", fmt.Sprintf("Failed to decode image: %v", err))
		return
	}
	if req.Type == "inpaint" && req.Index == nil {
		s.sendWebSocketError(conn, req.RequestID, "invalid_selection", "invalid selection: index is required")
		return
	}

	s.sendWebSocketResponse(conn, WebSocketResponse{
		Type:      req.Type + "_response",
		Status:    "processing",
		RequestID: req.RequestID,
	})

	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.timeoutSec)*time.Second)
	defer cancel()

	var result any
	start := time.Now()
	if req.Type == "detect" {
		result, err = s.runWebSocketDetect(ctx, img)
	} else {
		result, err = s.runWebSocketInpaint(ctx, img, req)
	}
	stageDuration.WithLabelValues(req.Type).Observe(time.Since(start).Seconds())
	if err != nil {
		stageRequestsTotal.WithLabelValues(req.Type, "websocket", "error").Inc()
		_, kind := statusForError(err)
		s.sendWebSocketError(conn, req.RequestID, kind, err.Error())
		return
	}
	stageRequestsTotal.WithLabelValues(req.Type, "websocket", "success").Inc()

	s.sendWebSocketResponse(conn, WebSocketResponse{
		Type:      req.Type + "_response",
		Status:    "completed",
		Progress:  1.0,
		Result:    result,
		RequestID: req.RequestID,
	})
}

func (s *Server) runWebSocketDetect(ctx context.Context, img image.Image) (any, error) {
	res, err := s.pipeline.DetectSegment(ctx, img)
	if err != nil {
		return nil, err
	}
	regionsDetected.Observe(float64(len(res.Regions)))
	return newDetectResponse(res)
}

func (s *Server) runWebSocketInpaint(ctx context.Context, img image.Image, req WebSocketRequest) (any, error) {
	out, err := s.pipeline.Inpaint(ctx, img, req.MaskTable, pipeline.InpaintRequest{
		Index:  *req.Index,
		Prompt: req.Prompt,
		Seed:   req.Seed,
		Steps:  req.Steps,
	})
	if err != nil {
		return nil, err
	}
	data, err := utils.EncodePNG(out)
	if err != nil {
		return nil, err
	}
	return InpaintResponse{
		Success: true,
		Image:   base64.StdEncoding.EncodeToString(data),
		Index:   *req.Index,
		Seed:    req.Seed,
	}, nil
}

// sendWebSocketResponse sends a response message over WebSocket.
func (s *Server) sendWebSocketResponse(conn WebSocketConnWriter, response WebSocketResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		slog.Error("Failed to marshal WebSocket response", "error", err)
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("Failed to send WebSocket message", "error", err)
		return
	}

	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

// sendWebSocketError sends an error message over WebSocket.
func (s *Server) sendWebSocketError(conn WebSocketConnWriter, requestID, errorType, message string) {
	s.sendWebSocketResponse(conn, WebSocketResponse{
		Type:      "error",
		Status:    "error",
		Error:     message,
		ErrorType: errorType,
		RequestID: requestID,
	})
}
