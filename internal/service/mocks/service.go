package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/joshdurbin/shortlink/internal/domain"
)

// URLService is a mock implementation of service.URLService
type URLService struct {
	mock.Mock
}

// Shorten returns the mapping for a long URL
func (m *URLService) Shorten(ctx context.Context, longURL string) (*domain.URLMapping, error) {
	args := m.Called(ctx, longURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.URLMapping), args.Error(1)
}

// Resolve returns the long URL for a short code
func (m *URLService) Resolve(ctx context.Context, code string) (string, error) {
	args := m.Called(ctx, code)
	return args.String(0), args.Error(1)
}
