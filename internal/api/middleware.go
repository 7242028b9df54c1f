package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

type recordingWriter struct {
	http.ResponseWriter
	statusCode int
}

func (r *recordingWriter) Write(b []byte) (int, error) {
	if r.statusCode == 0 {
		r.statusCode = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *recordingWriter) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// RequestLogger logs one line per handled request.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &recordingWriter{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(rw, r)
			logger.Info("Handled request",
				zap.String("method", r.Method),
				zap.String("url", r.URL.String()),
				zap.Int("status", rw.statusCode),
				zap.Duration("duration", time.Since(start)))
		})
	}
}
