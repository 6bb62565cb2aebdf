package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/joshdurbin/shortlink/internal/domain"
	"github.com/joshdurbin/shortlink/internal/repository"
)

// MappingStore is a mock implementation of repository.MappingStore
type MappingStore struct {
	mock.Mock
}

// FindByLongURL returns the mapping for a long URL
func (m *MappingStore) FindByLongURL(ctx context.Context, longURL string) (*domain.URLMapping, error) {
	args := m.Called(ctx, longURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.URLMapping), args.Error(1)
}

// FindByShortCode returns the mapping for a short code
func (m *MappingStore) FindByShortCode(ctx context.Context, code string) (*domain.URLMapping, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.URLMapping), args.Error(1)
}

// ShortCodeExists checks if a short code exists
func (m *MappingStore) ShortCodeExists(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

// Insert creates a mapping
func (m *MappingStore) Insert(ctx context.Context, longURL, code string) (repository.InsertResult, error) {
	args := m.Called(ctx, longURL, code)
	return args.Get(0).(repository.InsertResult), args.Error(1)
}

// Close closes the store
func (m *MappingStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ repository.MappingStore = (*MappingStore)(nil)
