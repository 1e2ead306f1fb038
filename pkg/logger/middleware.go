package logger

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"p9e.in/farmops/utils"
)

// Middleware logs every HTTP request and stores a request-scoped logger
// in the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctxLogger := GetLogger().With(zap.String("request_id", requestID))
		rec := utils.NewStatusRecorder(w)

		next.ServeHTTP(rec, r.WithContext(WithContext(r.Context(), ctxLogger)))

		ctxLogger.Info("HTTP Request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.Status),
			zap.Int("bytes", rec.Bytes),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", r.RemoteAddr),
		)
	})
}
