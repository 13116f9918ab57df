package logging

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// RequestLogger returns an HTTP middleware that puts chi's request id on the
// context as the trace ID and logs one line per completed request.
func RequestLogger(base Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()
			if requestID := middleware.GetReqID(ctx); requestID != "" {
				ctx = ContextWithTraceID(ctx, requestID)
			}
			logger := base.WithContext(ctx)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			fields := []Field{
				F("method", r.Method),
				F("path", r.URL.Path),
				F("remoteAddr", r.RemoteAddr),
				F("status", ww.Status()),
				F("bytes", ww.BytesWritten()),
				F("duration", time.Since(start)),
			}
			switch {
			case ww.Status() >= 500:
				logger.Error("request completed", fields...)
			case ww.Status() >= 400:
				logger.Warn("request completed", fields...)
			default:
				logger.Info("request completed", fields...)
			}
		})
	}
}
