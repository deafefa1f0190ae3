// Package handlers contains the HTTP handlers for the compile service.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/texforge/texforge/internal/httperr"
	"github.com/texforge/texforge/internal/server/middleware"
	"github.com/texforge/texforge/pkg/pipeline"
)

// Compiler runs one compile-and-publish job. Satisfied by
// *pipeline.Pipeline.
type Compiler interface {
	Run(ctx context.Context, source string) (*pipeline.Artifact, error)
}

// CompileHandler serves the compile endpoint.
//
// Request processing order is deliberate: the method check is a
// transport-level precondition and runs before authentication, so a 405 is
// returned even to unauthenticated callers. Authentication runs before any
// body parsing or environment work.
type CompileHandler struct {
	apiKey       string
	maxBodyBytes int64
	compiler     Compiler
	logger       *zap.Logger
}

// NewCompileHandler builds the handler.
func NewCompileHandler(apiKey string, maxBodyBytes int64, compiler Compiler, logger *zap.Logger) *CompileHandler {
	return &CompileHandler{
		apiKey:       apiKey,
		maxBodyBytes: maxBodyBytes,
		compiler:     compiler,
		logger:       logger,
	}
}

// requestError is a classified body-validation failure. Distinguishing an
// unparseable body from a parseable one missing the field keeps the two 400
// diagnostics separate.
type requestError struct {
	msg string
}

// ServeHTTP implements http.Handler for every method on the endpoint.
func (h *CompileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = io.WriteString(w, "Please send a POST request with your LaTeX code in a JSON body.")
		return
	}

	if !h.authenticate(r) {
		httperr.Unauthorized(w)
		return
	}

	source, reqErr := h.parseRequest(w, r)
	if reqErr != nil {
		httperr.BadRequest(w, reqErr.msg)
		return
	}

	artifact, err := h.compiler.Run(r.Context(), source)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", pipeline.ArtifactContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="document.pdf"`)
	w.Header().Set("X-R2-Object-Key", artifact.Key)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact.PDF)
}

// authenticate accepts the credential from the api_key query parameter or
// the x-api-key header and requires exact equality with the configured
// secret.
func (h *CompileHandler) authenticate(r *http.Request) bool {
	provided := r.URL.Query().Get("api_key")
	if provided == "" {
		provided = r.Header.Get("x-api-key")
	}
	return provided != "" && provided == h.apiKey
}

// parseRequest validates the body into a source document or a classified
// failure. A body that is not JSON at all and a JSON document of the wrong
// shape are distinct 400s: the latex field must exist and hold a non-empty
// string, but a document that at least parses gets the field diagnostic,
// not the parse one.
func (h *CompileHandler) parseRequest(w http.ResponseWriter, r *http.Request) (string, *requestError) {
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	data, err := io.ReadAll(body)
	if err != nil {
		return "", &requestError{msg: "Invalid JSON body."}
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", &requestError{msg: "Invalid JSON body."}
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return "", &requestError{msg: `Missing or invalid "latex" field in JSON body`}
	}
	latex, ok := obj["latex"].(string)
	if !ok || latex == "" {
		return "", &requestError{msg: `Missing or invalid "latex" field in JSON body`}
	}
	return latex, nil
}

// respondError maps pipeline failures onto the response taxonomy: a
// compiler rejection is the caller's fault (400, plain-text diagnostic);
// everything else, publish failures included, is a 500 envelope.
func (h *CompileHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var cerr *pipeline.CompileError
	if errors.As(err, &cerr) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, cerr.Diagnostic())
		return
	}

	h.logger.Error("compile request failed",
		zap.Error(err),
		zap.String("request_id", middleware.GetRequestID(r.Context())))
	httperr.Internal(w, err.Error(), string(debug.Stack()))
}
