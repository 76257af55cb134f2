package server

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime"
	"time"
)

// ErrPanicRecovered indicates an HTTP handler panicked and was recovered.
var ErrPanicRecovered = errors.New("panic recovered in http handler")

// statusRecorder wraps http.ResponseWriter to capture the status code for
// logging, since http.ResponseWriter doesn't expose it after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware logs every request with its method, path, status, and
// duration. Log level is Info for 2xx/3xx responses and Warn otherwise.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		duration := time.Since(start)

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", duration),
		}

		if rec.status >= 400 {
			logger.LogAttrs(r.Context(), slog.LevelWarn, "request completed with error", attrs...)
		} else {
			logger.LogAttrs(r.Context(), slog.LevelInfo, "request completed", attrs...)
		}
	})
}

// recoveryMiddleware recovers from panics in the wrapped handler, logging
// the panic value and stack trace at Error level and returning a 500 to
// the client instead of crashing the daemon.
func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)

				logger.ErrorContext(r.Context(), "panic recovered in http handler",
					slog.String("path", r.URL.Path),
					slog.Any("panic", v),
					slog.String("stack", string(buf[:n])),
				)

				writeError(w, http.StatusInternalServerError, ErrPanicRecovered)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
