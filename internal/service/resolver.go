package service

import (
	"context"
	"fmt"

	"github.com/joshdurbin/shortlink/internal/domain"
)

// Resolve looks up code and returns its long URL
func (s *urlService) Resolve(ctx context.Context, code string) (string, error) {
	mapping, err := s.store.FindByShortCode(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to resolve short code: %w", err)
	}
	if mapping == nil {
		s.logger.WarnContext(ctx, "attempted to access non-existent short URL", "short_url", code)
		return "", domain.ErrNotFound
	}

	s.logger.InfoContext(ctx, "redirecting", "short_url", code, "long_url", truncate(mapping.LongURL, 100))
	return mapping.LongURL, nil
}
