package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/texforge/texforge/internal/httperr"
)

// Recovery converts panics into the 500 JSON envelope instead of dropping
// the connection. Handled errors never reach this layer; it is the outermost
// safety net.
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				stack := string(debug.Stack())
				logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("request_id", GetRequestID(r.Context())),
					zap.String("path", r.URL.Path),
					zap.String("stack", stack))
				httperr.Internal(w, fmt.Sprintf("panic: %v", rec), stack)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
