package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/texforge/texforge/internal/server/handlers"
	"github.com/texforge/texforge/internal/server/middleware"
	"github.com/texforge/texforge/pkg/pipeline"
)

type okCompiler struct{}

func (okCompiler) Run(ctx context.Context, source string) (*pipeline.Artifact, error) {
	return &pipeline.Artifact{Key: "documents/2026-01-02/abc.pdf", PDF: []byte("%PDF")}, nil
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	compile := handlers.NewCompileHandler("secret", 1<<20, okCompiler{}, zap.NewNop())
	health := handlers.NewHealthManager("test")
	return New(opts, compile, health, zap.NewNop())
}

func TestRoutes(t *testing.T) {
	srv := newTestServer(t, Options{Host: "127.0.0.1", Port: 8080})

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"health", http.MethodGet, "/health", http.StatusOK},
		{"liveness", http.MethodGet, "/health/live", http.StatusOK},
		{"readiness", http.MethodGet, "/health/ready", http.StatusOK},
		{"version", http.MethodGet, "/version", http.StatusOK},
		{"compile without key", http.MethodPost, "/", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestCompileRouteAcceptsAllMethods(t *testing.T) {
	srv := newTestServer(t, Options{Port: 8080})

	// The handler owns the 405 so the response body stays its own
	// contract, not chi's default.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please send a POST request")
}

func TestCompileRouteEndToEnd(t *testing.T) {
	srv := newTestServer(t, Options{Port: 8080})

	req := httptest.NewRequest(http.MethodPost, "/?api_key=secret", strings.NewReader(`{"latex":"x"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "documents/2026-01-02/abc.pdf", rec.Header().Get("X-R2-Object-Key"))
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestVersionRoute(t *testing.T) {
	srv := newTestServer(t, Options{Port: 8080})

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp["version"])
}

func TestRateLimitWiredWhenConfigured(t *testing.T) {
	srv := newTestServer(t, Options{Port: 8080, RateLimitRPS: 1, RateLimitBurst: 1})

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "10.1.2.3:5555"
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusTooManyRequests, codes[1])
}

func TestPort(t *testing.T) {
	srv := newTestServer(t, Options{Port: 9191})
	assert.Equal(t, 9191, srv.Port())
}
