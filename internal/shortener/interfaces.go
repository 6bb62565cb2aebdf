package shortener

import (
	"context"
)

// Generator defines the interface for producing unused short codes
type Generator interface {
	// Generate returns a code that was not present in the store when checked
	Generate(ctx context.Context) (string, error)

	// Length returns the length of every code the generator produces
	Length() int

	// Type returns the type identifier of the generator
	Type() string
}

// ExistenceChecker reports whether a short code is already taken
type ExistenceChecker interface {
	ShortCodeExists(ctx context.Context, code string) (bool, error)
}

// Config holds configuration for shortener generators
type Config struct {
	Length      int `json:"length" mapstructure:"length"`             // Characters per code
	MaxAttempts int `json:"max_attempts" mapstructure:"max_attempts"` // Draws before giving up
}

// Limits on Config values
const (
	MaxLength = 16 // width of the short_url column
)

// GeneratorType constants
const (
	TypeRandom = "random"
)

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Length:      6,
		MaxAttempts: 32,
	}
}
