package middle

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mstgnz/walletpay/infra/logger"
	"github.com/mstgnz/walletpay/payment"
)

const requestIDHeader = "X-Request-ID"

// responseWriter wraps http.ResponseWriter to capture the status code.
// Bodies are never captured since they may carry payment tokens.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	bytes       int
	wroteHeader bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = statusCode
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// RequestLoggingMiddleware assigns a request id, exposes it on the response
// and in the request context, and logs one line per request.
func RequestLoggingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(requestIDHeader)
			if requestID == "" || len(requestID) > 128 {
				requestID = uuid.New().String()
			}
			w.Header().Set(requestIDHeader, requestID)

			r = r.WithContext(payment.WithRequestID(r.Context(), requestID))
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r)

			logCtx := logger.LogContext{
				RequestID: requestID,
				Fields: map[string]any{
					"method":      r.Method,
					"path":        r.URL.Path,
					"status":      rw.statusCode,
					"bytes":       rw.bytes,
					"duration_ms": time.Since(start).Milliseconds(),
					"client_ip":   GetClientIP(r),
				},
			}

			switch {
			case rw.statusCode >= http.StatusInternalServerError:
				logger.Warn("Request completed with server error", logCtx)
			case r.URL.Path == "/health":
				logger.Debug("Request completed", logCtx)
			default:
				logger.Info("Request completed", logCtx)
			}
		})
	}
}
