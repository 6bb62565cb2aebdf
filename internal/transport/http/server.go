package http

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joshdurbin/shortlink/internal/service"
	"github.com/joshdurbin/shortlink/internal/telemetry"
)

//go:embed web
var webFS embed.FS

// Config wires the server's collaborators
type Config struct {
	Port      string
	ServerURL string

	// Recorder receives one entry per non-static request; nil disables telemetry
	Recorder Recorder
	Metrics  *telemetry.Metrics

	// Gatherer backs GET /metrics; nil disables the endpoint
	Gatherer prometheus.Gatherer
}

// Server represents the HTTP server
type Server struct {
	handler *Handler
	server  *http.Server
	port    string
	logger  *slog.Logger
}

// NewServer creates a new HTTP server
func NewServer(svc service.URLService, config Config, logger *slog.Logger) *Server {
	handler := NewHandler(svc, config.ServerURL, logger)

	static, err := fs.Sub(webFS, "web")
	if err != nil {
		panic(err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", handler.Index)
	mux.Handle("GET /static/", http.FileServerFS(static))
	mux.HandleFunc("POST /shorten", handler.Shorten)
	mux.HandleFunc("GET /{code}", handler.Redirect)
	if config.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/", handler.NotFound)

	var finalHandler http.Handler = mux
	if config.Recorder != nil {
		finalHandler = NewTelemetryMiddleware(config.Recorder, config.Metrics, logger).Middleware(finalHandler)
	}
	finalHandler = RequestID(finalHandler)

	server := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           finalHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		handler: handler,
		server:  server,
		port:    config.Port,
		logger:  logger,
	}
}

// Start starts the HTTP server and blocks until it stops. A graceful
// shutdown is not reported as an error.
func (s *Server) Start() error {
	s.logger.Info("server starting", "port", s.port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve serves on an existing listener
func (s *Server) Serve(l net.Listener) error {
	if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	return s.server.Shutdown(ctx)
}

// Handler returns the fully wrapped HTTP handler (useful for testing)
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
