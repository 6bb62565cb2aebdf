package service

import (
	"log/slog"

	"github.com/joshdurbin/shortlink/internal/repository"
	"github.com/joshdurbin/shortlink/internal/shortener"
)

// urlService implements URLService
type urlService struct {
	store       repository.MappingStore
	generator   shortener.Generator
	maxAttempts int
	logger      *slog.Logger
}

// NewURLService creates a new URL service. maxAttempts bounds how many
// generate+insert rounds a single Shorten call may spend on insert conflicts.
func NewURLService(store repository.MappingStore, generator shortener.Generator, maxAttempts int, logger *slog.Logger) URLService {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &urlService{
		store:       store,
		generator:   generator,
		maxAttempts: maxAttempts,
		logger:      logger.With("component", "service"),
	}
}

// truncate shortens s for log output
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Ensure urlService implements URLService interface
var _ URLService = (*urlService)(nil)
