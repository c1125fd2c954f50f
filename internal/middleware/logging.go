package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type responseData struct {
	status int
	size   int
}

type loggingResponseWriter struct {
	http.ResponseWriter
	responseData *responseData
}

func (r *loggingResponseWriter) Write(b []byte) (int, error) {
	size, err := r.ResponseWriter.Write(b)
	r.responseData.size += size
	return size, err
}

func (r *loggingResponseWriter) WriteHeader(statusCode int) {
	r.ResponseWriter.WriteHeader(statusCode)
	r.responseData.status = statusCode
}

// LoggingMiddleware tags every request with a UUID and logs method, path,
// status, size and duration.
func LoggingMiddleware(logg *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := uuid.NewString()

			rd := &responseData{status: http.StatusOK}
			lw := loggingResponseWriter{ResponseWriter: w, responseData: rd}

			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			next.ServeHTTP(&lw, r.WithContext(ctx))

			logg.Info("request",
				"request_id", requestID,
				"method", r.Method,
				"uri", r.RequestURI,
				"status", rd.status,
				"size", rd.size,
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}
