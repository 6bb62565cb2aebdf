package http

import (
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joshdurbin/shortlink/internal/domain"
	"github.com/joshdurbin/shortlink/internal/service"
)

// Handler holds the HTTP handlers for the URL shortener
type Handler struct {
	service   service.URLService
	serverURL string
	index     *template.Template
	logger    *slog.Logger
}

// NewHandler creates a new HTTP handler. serverURL is the origin used in
// shortened links; when empty it is derived from each request.
func NewHandler(svc service.URLService, serverURL string, logger *slog.Logger) *Handler {
	return &Handler{
		service:   svc,
		serverURL: strings.TrimSuffix(serverURL, "/"),
		index:     template.Must(template.ParseFS(webFS, "web/templates/index.html")),
		logger:    logger,
	}
}

// Index handles GET /
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.index.Execute(w, nil); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to render index", "error", err)
	}
}

// Shorten handles POST /shorten with form field url
func (h *Handler) Shorten(w http.ResponseWriter, r *http.Request) {
	longURL := r.PostFormValue("url")

	mapping, err := h.service.Shorten(r.Context(), longURL)
	if err != nil {
		if errors.Is(err, domain.ErrURLRequired) {
			h.logger.WarnContext(r.Context(), "shorten request without url")
			writeError(w, http.StatusBadRequest, domain.ErrURLRequired.Error())
			return
		}

		h.logger.ErrorContext(r.Context(), "failed to shorten url", "error", err)
		msg := domain.ErrShorteningFailed.Error()
		if errors.Is(err, domain.ErrCapacityExhausted) {
			msg = domain.ErrCapacityExhausted.Error()
		}
		writeError(w, http.StatusInternalServerError, msg)
		return
	}

	writeJSON(w, http.StatusOK, domain.ShortenResponse{
		ShortURL: h.origin(r) + "/" + mapping.ShortURL,
	})
}

// Redirect handles GET /{code}
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	longURL, err := h.service.Resolve(r.Context(), code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.logger.WarnContext(r.Context(), "non-existent short url", "code", code)
			writeError(w, http.StatusNotFound, domain.ErrNotFound.Error())
			return
		}

		h.logger.ErrorContext(r.Context(), "failed to resolve short url", "code", code, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to resolve short URL")
		return
	}

	http.Redirect(w, r, longURL, http.StatusFound)
}

// NotFound answers unknown routes and unsupported methods
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, domain.ErrNotFound.Error())
}

// origin returns the configured server URL or scheme://host of r
func (h *Handler) origin(r *http.Request) string {
	if h.serverURL != "" {
		return h.serverURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, domain.ErrorResponse{Error: msg})
}
