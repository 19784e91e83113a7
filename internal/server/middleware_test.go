package server

import (
	"context"
	"image"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MeKo-Tech/ocrsam/internal/pipeline"
	"github.com/MeKo-Tech/ocrsam/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCORSMiddleware(t *testing.T) {
	s := NewServerWithPipeline(nil, Config{CORSOrigin: "https://example.org"})
	called := false
	h := s.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	})

	t.Run("preflight", func(t *testing.T) {
		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodOptions, "/api/detect", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.False(t, called)
		assert.Equal(t, "https://example.org", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), headerSessionID)
	})

	t.Run("passes through", func(t *testing.T) {
		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.True(t, called)
		assert.Equal(t, http.StatusTeapot, w.Code)
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	s := NewServerWithPipeline(nil, Config{})
	var seen string
	h := s.requestIDMiddleware(func(w http.ResponseWriter, r *http.Request) {
		seen = requestIDFrom(r.Context())
	})

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Len(t, seen, 36)
		assert.Equal(t, seen, w.Header().Get(headerRequestID))
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(headerRequestID, "req-1")
		w := httptest.NewRecorder()
		h(w, req)
		assert.Equal(t, "req-1", seen)
		assert.Equal(t, "req-1", w.Header().Get(headerRequestID))
	})
}

func TestSessionMiddleware_RejectsConcurrentRequest(t *testing.T) {
	entered := make(chan struct{})
	unblock := make(chan struct{})
	stub := &stubPipeline{
		detect: func(ctx context.Context, img image.Image) (*pipeline.DetectResult, error) {
			close(entered)
			<-unblock
			return nil, &pipeline.ImageFormatError{Reason: "stop here"}
		},
	}
	s := NewServerWithPipeline(stub, Config{})
	h := s.sessionMiddleware(s.detectHandler)
	data := encodePNG(t, testutil.CreateGradientImage(8, 8))

	newReq := func(session string) *http.Request {
		req := createMultipartFormRequest(t, "/api/detect", data, nil)
		req.Header.Set(headerSessionID, session)
		return req
	}

	var wg sync.WaitGroup
	first := httptest.NewRecorder()
	firstReq := newReq("alice")
	wg.Add(1)
	go func() {
		defer wg.Done()
		h(first, firstReq)
	}()
	<-entered

	second := httptest.NewRecorder()
	h(second, newReq("alice"))
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Contains(t, second.Body.String(), "session_busy")
	assert.Equal(t, 1, s.sessions.Active())

	close(unblock)
	wg.Wait()
	assert.Equal(t, http.StatusBadRequest, first.Code)
	assert.Zero(t, s.sessions.Active())
}

func TestSessionMiddleware_IndependentSessions(t *testing.T) {
	s := NewServerWithPipeline(nil, Config{})
	release, err := s.sessions.Acquire("alice")
	require.NoError(t, err)
	defer release()

	called := false
	h := s.sessionMiddleware(func(w http.ResponseWriter, r *http.Request) { called = true })
	req := httptest.NewRequest(http.MethodPost, "/api/detect", nil)
	req.Header.Set(headerSessionID, "bob")
	h(httptest.NewRecorder(), req)
	assert.True(t, called)
}

func TestSessionIDFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		header string
		cookie string
		remote string
		want   string
	}{
		{"header wins", "h1", "c1", "10.0.0.1:1234", "h1"},
		{"cookie", "", "c1", "10.0.0.1:1234", "c1"},
		{"client ip", "", "", "10.0.0.1:1234", "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.header != "" {
				req.Header.Set(headerSessionID, tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: sessionCookie, Value: tt.cookie})
			}
			assert.Equal(t, tt.want, sessionIDFromRequest(req))
		})
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded list", map[string]string{"X-Forwarded-For": "1.2.3.4, 5.6.7.8"}, "9.9.9.9:1", "1.2.3.4"},
		{"forwarded single", map[string]string{"X-Forwarded-For": " 1.2.3.4 "}, "9.9.9.9:1", "1.2.3.4"},
		{"real ip", map[string]string{"X-Real-IP": "4.3.2.1"}, "9.9.9.9:1", "4.3.2.1"},
		{"remote addr", nil, "9.9.9.9:1", "9.9.9.9"},
		{"remote addr without port", nil, "9.9.9.9", "9.9.9.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}
