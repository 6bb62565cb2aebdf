// Package telemetry records one RequestLogEntry per served request and
// delivers it to every configured sink off the request path. Delivery is
// best effort and at most once: there is no retry and entries still queued
// when the process dies are lost. Sink failures never reach the caller of
// Record; they are reported on an internal error channel and written to the
// fallback logger.
package telemetry

import (
	"context"

	"github.com/joshdurbin/shortlink/internal/domain"
)

// Sink is a destination for request log entries
type Sink interface {
	// Name identifies the sink in logs and metrics
	Name() string

	// Write delivers a single entry
	Write(ctx context.Context, entry domain.RequestLogEntry) error

	// Close flushes and releases the sink
	Close() error
}

// MappingLookup resolves a short code for long_url enrichment
type MappingLookup interface {
	FindByShortCode(ctx context.Context, code string) (*domain.URLMapping, error)
}

// SinkError describes a failed delivery
type SinkError struct {
	Sink  string
	Entry domain.RequestLogEntry
	Err   error
}

func (e SinkError) Error() string {
	return "sink " + e.Sink + ": " + e.Err.Error()
}

func (e SinkError) Unwrap() error {
	return e.Err
}
