package repository

import (
	"context"

	"github.com/joshdurbin/shortlink/internal/domain"
)

// InsertResult reports the outcome of an insert that did not fail at the store level.
// Conflict is set when the short code was already taken; Mapping is nil in that case.
type InsertResult struct {
	Mapping  *domain.URLMapping
	Conflict bool
}

// MappingStore defines the durable short code -> long URL table
type MappingStore interface {
	// FindByLongURL returns the mapping for longURL, or nil when none exists
	FindByLongURL(ctx context.Context, longURL string) (*domain.URLMapping, error)

	// FindByShortCode returns the mapping for code, or nil when none exists
	FindByShortCode(ctx context.Context, code string) (*domain.URLMapping, error)

	// ShortCodeExists reports whether code is already taken
	ShortCodeExists(ctx context.Context, code string) (bool, error)

	// Insert atomically creates a mapping. A duplicate code yields Conflict, not an error.
	Insert(ctx context.Context, longURL, code string) (InsertResult, error)

	// Close closes the underlying connection
	Close() error
}
