package service

import (
	"context"
	"fmt"
	"sync"
)

// TestGenerator is a deterministic generator for testing purposes. It
// replays the scripted codes in order, then falls back to a counter.
type TestGenerator struct {
	mu      sync.Mutex
	codes   []string
	counter int
	err     error
}

// NewTestGenerator creates a new test generator
func NewTestGenerator(codes ...string) *TestGenerator {
	return &TestGenerator{codes: codes}
}

// FailWith makes every subsequent Generate call return err
func (g *TestGenerator) FailWith(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

// Generate returns the next scripted code
func (g *TestGenerator) Generate(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.err != nil {
		return "", g.err
	}
	if len(g.codes) > 0 {
		code := g.codes[0]
		g.codes = g.codes[1:]
		return code, nil
	}
	g.counter++
	return fmt.Sprintf("t%05d", g.counter), nil
}

// Length returns the generator code length
func (g *TestGenerator) Length() int {
	return 6
}

// Type returns the generator type
func (g *TestGenerator) Type() string {
	return "test"
}
