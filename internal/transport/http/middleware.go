package http

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joshdurbin/shortlink/internal/domain"
	"github.com/joshdurbin/shortlink/internal/logging"
	"github.com/joshdurbin/shortlink/internal/telemetry"
)

// RequestIDHeader carries the request id in responses
const RequestIDHeader = "X-Request-ID"

// Recorder accepts completed request log entries without blocking
type Recorder interface {
	Record(entry domain.RequestLogEntry) bool
}

// statusRecorder wraps http.ResponseWriter to capture the status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.wroteHeader {
		sr.statusCode = code
		sr.wroteHeader = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	sr.wroteHeader = true
	return sr.ResponseWriter.Write(b)
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// RequestID assigns every request a fresh id, exposes it in the response
// header and stores it on the request context
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

// TelemetryMiddleware measures each request and hands a RequestLogEntry to
// the recorder once the response has been written
type TelemetryMiddleware struct {
	recorder Recorder
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewTelemetryMiddleware creates the middleware. metrics may be nil.
func NewTelemetryMiddleware(recorder Recorder, metrics *telemetry.Metrics, logger *slog.Logger) *TelemetryMiddleware {
	return &TelemetryMiddleware{
		recorder: recorder,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Middleware returns the HTTP telemetry middleware function
func (t *TelemetryMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !recorded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		start := t.now()
		sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(sr, r)
		end := t.now()
		elapsed := end.Sub(start)

		if t.metrics != nil {
			t.metrics.ObserveRequest(r.Method, sr.statusCode, elapsed)
		}

		entry := domain.RequestLogEntry{
			RequestID:       logging.RequestID(r.Context()),
			Timestamp:       end.UTC(),
			RequestMethod:   r.Method,
			RequestPath:     r.URL.Path,
			StatusCode:      sr.statusCode,
			RequestDuration: math.Round(elapsed.Seconds()*1000) / 1000,
			IPAddress:       clientIP(r.RemoteAddr),
			UserAgent:       r.UserAgent(),
			Referrer:        r.Referer(),
			ShortURL:        shortCode(r.URL.Path),
		}

		if !t.recorder.Record(entry) {
			t.logger.WarnContext(r.Context(), "request log dropped", "path", entry.RequestPath)
		}
	})
}

// recorded reports whether requests to path produce a log entry
func recorded(path string) bool {
	return !strings.HasPrefix(path, "/static/") && path != "/metrics"
}

// shortCode returns the single path segment of a one-segment path
func shortCode(path string) string {
	if path == "/" || strings.Count(path, "/") != 1 {
		return ""
	}
	return strings.TrimPrefix(path, "/")
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
