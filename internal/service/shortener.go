package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/joshdurbin/shortlink/internal/domain"
)

// Shorten returns the short code mapping for longURL, creating it on first use.
//
// The existence check on long_url and the insert are not one transaction:
// two first-time submissions of the same URL racing each other can both
// insert, leaving two codes for one URL. Both codes resolve correctly.
func (s *urlService) Shorten(ctx context.Context, longURL string) (*domain.URLMapping, error) {
	if longURL == "" {
		return nil, domain.ErrURLRequired
	}

	existing, err := s.store.FindByLongURL(ctx, longURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrShorteningFailed, err)
	}
	if existing != nil {
		s.logger.InfoContext(ctx, "returning existing short URL",
			"short_url", existing.ShortURL, "long_url", truncate(longURL, 100))
		return existing, nil
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		code, err := s.generator.Generate(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrCapacityExhausted) {
				s.logger.ErrorContext(ctx, "short code space exhausted", "error", err)
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", domain.ErrShorteningFailed, err)
		}

		result, err := s.store.Insert(ctx, longURL, code)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrShorteningFailed, err)
		}
		if result.Conflict {
			s.logger.DebugContext(ctx, "short code claimed concurrently, retrying",
				"short_url", code, "attempt", attempt)
			continue
		}

		s.logger.InfoContext(ctx, "created new short URL",
			"short_url", code, "long_url", truncate(longURL, 100))
		return result.Mapping, nil
	}

	s.logger.ErrorContext(ctx, "gave up after repeated insert conflicts", "attempts", s.maxAttempts)
	return nil, fmt.Errorf("%w: every insert conflicted after %d attempts", domain.ErrCapacityExhausted, s.maxAttempts)
}
