package shortener

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/joshdurbin/shortlink/internal/domain"
)

// Alphabet is the 62-symbol set codes are drawn from
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// RandomGenerator draws fixed-length codes uniformly from Alphabet and
// redraws on collision, up to a fixed number of attempts. It holds no
// mutable state; two concurrent callers may draw the same free code, which
// the store's unique constraint resolves.
type RandomGenerator struct {
	checker     ExistenceChecker
	length      int
	maxAttempts int
	intn        func(n int) int
}

// Option customizes a RandomGenerator
type Option func(*RandomGenerator)

// WithIntn replaces the random source (useful for testing). intn must be
// safe for concurrent use if the generator is shared.
func WithIntn(intn func(n int) int) Option {
	return func(g *RandomGenerator) {
		g.intn = intn
	}
}

// NewRandomGenerator creates a generator checking candidates against checker
func NewRandomGenerator(config Config, checker ExistenceChecker, opts ...Option) (*RandomGenerator, error) {
	if checker == nil {
		return nil, fmt.Errorf("existence checker required for random generator")
	}
	if config.Length < 1 || config.Length > MaxLength {
		return nil, fmt.Errorf("code length must be between 1 and %d, got: %d", MaxLength, config.Length)
	}
	if config.MaxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be positive, got: %d", config.MaxAttempts)
	}

	g := &RandomGenerator{
		checker:     checker,
		length:      config.Length,
		maxAttempts: config.MaxAttempts,
		intn:        rand.IntN,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Generate returns a code absent from the store, or ErrCapacityExhausted
// once maxAttempts draws have all collided
func (g *RandomGenerator) Generate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		code := g.Candidate()

		exists, err := g.checker.ShortCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check short code %s: %w", code, err)
		}
		if !exists {
			return code, nil
		}
	}

	return "", fmt.Errorf("%w: no free code after %d attempts", domain.ErrCapacityExhausted, g.maxAttempts)
}

// Candidate draws one code without consulting the store
func (g *RandomGenerator) Candidate() string {
	var b strings.Builder
	b.Grow(g.length)
	for i := 0; i < g.length; i++ {
		b.WriteByte(Alphabet[g.intn(len(Alphabet))])
	}
	return b.String()
}

// Length returns the code length
func (g *RandomGenerator) Length() int {
	return g.length
}

// Type returns the generator type
func (g *RandomGenerator) Type() string {
	return TypeRandom
}

// IsValidCode reports whether code has the given length and only uses Alphabet
func IsValidCode(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(Alphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}

// Ensure RandomGenerator implements Generator interface
var _ Generator = (*RandomGenerator)(nil)
