package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/httputil"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/metrics"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Observability wraps every request with a request id, an OpenTelemetry
// span, request metrics and completion logging. The request id is taken
// from X-Request-ID when the caller supplies one and echoed back either
// way, so EMR-side logs and module logs can be joined.
func Observability(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = tracing.GenerateRequestID()
			}
			ctx := tracing.WithRequestID(r.Context(), requestID)
			w.Header().Set("X-Request-ID", requestID)

			ctx, span := tracing.StartSpan(ctx, "http_request",
				attribute.String("http.method", r.Method),
				attribute.String("http.route", r.URL.Path),
				attribute.String("client.address", httputil.GetClientIP(r)),
			)
			defer span.End()

			metrics.IncrementCounter("http_requests_total", map[string]string{
				"method":   r.Method,
				"endpoint": r.URL.Path,
			}, "Total HTTP requests")

			wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapper, r.WithContext(ctx))

			duration := time.Since(start)

			span.SetAttributes(
				attribute.Int("http.response.status_code", wrapper.statusCode),
				attribute.Int64("http.response.size", wrapper.responseSize),
			)
			if wrapper.statusCode >= 400 {
				span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", wrapper.statusCode))
			}

			metrics.RecordTimer("http_request_duration", duration, map[string]string{
				"method":   r.Method,
				"endpoint": r.URL.Path,
			}, "HTTP request duration")
			metrics.IncrementCounter("http_responses_total", map[string]string{
				"method":      r.Method,
				"endpoint":    r.URL.Path,
				"status_code": strconv.Itoa(wrapper.statusCode),
			}, "HTTP responses by status code")

			level := logrus.InfoLevel
			if wrapper.statusCode >= 500 {
				level = logrus.ErrorLevel
			} else if wrapper.statusCode >= 400 {
				level = logrus.WarnLevel
			}

			logger.WithFields(logrus.Fields{
				"request_id": requestID,
				"trace_id":   tracing.TraceID(ctx),
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     wrapper.statusCode,
				"durationMs": duration.Milliseconds(),
				"remote_ip":  httputil.GetClientIP(r),
				"size":       wrapper.responseSize,
			}).Log(level, "HTTP request completed")
		})
	}
}

// responseWrapper captures the status code and response size for logging
// and metrics.
type responseWrapper struct {
	http.ResponseWriter
	statusCode   int
	responseSize int64
}

func (rw *responseWrapper) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWrapper) Write(data []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(data)
	rw.responseSize += int64(n)
	return n, err
}
