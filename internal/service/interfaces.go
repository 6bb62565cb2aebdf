package service

import (
	"context"

	"github.com/joshdurbin/shortlink/internal/domain"
)

// URLShortener defines get-or-create shortening of long URLs
type URLShortener interface {
	// Shorten returns the existing mapping for longURL or creates a new one
	Shorten(ctx context.Context, longURL string) (*domain.URLMapping, error)
}

// RedirectResolver defines lookup of a short code's target
type RedirectResolver interface {
	// Resolve returns the long URL for code, or domain.ErrNotFound
	Resolve(ctx context.Context, code string) (string, error)
}

// URLService combines shortening and resolution
type URLService interface {
	URLShortener
	RedirectResolver
}
