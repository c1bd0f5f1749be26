package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/edgeflare/pgview/pkg/httputil"
	"go.uber.org/zap"
)

// Recover turns a panic in a handler into a 500 response and logs it with
// the stack trace. http.ErrAbortHandler is re-panicked.
func Recover(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = defaultLogger
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.Error("panic serving request",
					zap.String("req_id", httputil.RequestID(r)),
					zap.String("method", r.Method),
					zap.String("url", r.URL.String()),
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
				)
				httputil.Error(w, http.StatusInternalServerError, "Internal server error.")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
