package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joshdurbin/shortlink/internal/domain"
)

// Config holds pipeline tuning
type Config struct {
	QueueSize   int           `mapstructure:"queue_size"`
	Workers     int           `mapstructure:"workers"`
	SinkTimeout time.Duration `mapstructure:"sink_timeout"`
}

// DefaultConfig returns the default pipeline configuration
func DefaultConfig() Config {
	return Config{
		QueueSize:   1024,
		Workers:     2,
		SinkTimeout: 2 * time.Second,
	}
}

// Pipeline queues request log entries and fans them out to sinks from a
// small pool of workers
type Pipeline struct {
	queue   chan domain.RequestLogEntry
	errs    chan SinkError
	sinks   []Sink
	lookup  MappingLookup
	metrics *Metrics
	logger  *slog.Logger
	config  Config

	mu      sync.RWMutex
	started bool
	closed  bool

	workers  sync.WaitGroup
	reporter sync.WaitGroup
}

// NewPipeline creates a pipeline. lookup may be nil to disable long_url enrichment.
func NewPipeline(config Config, lookup MappingLookup, sinks []Sink, metrics *Metrics, logger *slog.Logger) *Pipeline {
	defaults := DefaultConfig()
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.SinkTimeout <= 0 {
		config.SinkTimeout = defaults.SinkTimeout
	}

	return &Pipeline{
		queue:   make(chan domain.RequestLogEntry, config.QueueSize),
		errs:    make(chan SinkError, config.QueueSize),
		sinks:   sinks,
		lookup:  lookup,
		metrics: metrics,
		logger:  logger.With("component", "telemetry"),
		config:  config,
	}
}

// Start launches the workers and the error reporter. Calling it twice is a no-op.
func (p *Pipeline) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	p.reporter.Add(1)
	go p.reportErrors()

	for i := 0; i < p.config.Workers; i++ {
		p.workers.Add(1)
		go p.work()
	}
}

// Record enqueues entry without blocking. It reports false when the entry
// was dropped because the queue is full or the pipeline is closed.
func (p *Pipeline) Record(entry domain.RequestLogEntry) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.metrics.dropped.Inc()
		return false
	}

	select {
	case p.queue <- entry:
		return true
	default:
		p.metrics.dropped.Inc()
		return false
	}
}

// Close stops intake, waits for queued entries to be delivered and closes
// the sinks. If ctx expires first the remaining entries are abandoned and
// the sinks are closed anyway; writes still in flight may then fail.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	started := p.started
	close(p.queue)
	p.mu.Unlock()

	if !started {
		close(p.errs)
		return p.closeSinks()
	}

	done := make(chan struct{})
	go func() {
		p.workers.Wait()
		close(p.errs)
		p.reporter.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		p.logger.Warn("telemetry drain interrupted, abandoning queued entries", "queued", len(p.queue))
		return errors.Join(fmt.Errorf("telemetry drain interrupted: %w", ctx.Err()), p.closeSinks())
	}

	return p.closeSinks()
}

func (p *Pipeline) closeSinks() error {
	var firstErr error
	for _, sink := range p.sinks {
		if err := sink.Close(); err != nil {
			p.logger.Error("failed to close sink", "sink", sink.Name(), "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to close sink %s: %w", sink.Name(), err)
			}
		}
	}
	return firstErr
}

func (p *Pipeline) work() {
	defer p.workers.Done()
	for entry := range p.queue {
		p.deliver(entry)
	}
}

// deliver enriches entry and writes it to every sink
func (p *Pipeline) deliver(entry domain.RequestLogEntry) {
	if entry.ShortURL != "" && entry.LongURL == "" && p.lookup != nil {
		ctx, cancel := context.WithTimeout(context.Background(), p.config.SinkTimeout)
		mapping, err := p.lookup.FindByShortCode(ctx, entry.ShortURL)
		cancel()
		if err != nil {
			p.logger.Warn("long_url enrichment failed", "short_url", entry.ShortURL, "error", err)
		} else if mapping != nil {
			entry.LongURL = mapping.LongURL
		}
	}

	for _, sink := range p.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), p.config.SinkTimeout)
		err := safeWrite(ctx, sink, entry)
		cancel()

		if err != nil {
			p.report(SinkError{Sink: sink.Name(), Entry: entry, Err: err})
			continue
		}
		p.metrics.delivered.WithLabelValues(sink.Name()).Inc()
	}
}

// safeWrite converts a panicking sink into an error
func safeWrite(ctx context.Context, sink Sink, entry domain.RequestLogEntry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return sink.Write(ctx, entry)
}

func (p *Pipeline) report(sinkErr SinkError) {
	select {
	case p.errs <- sinkErr:
	default:
		// reporter is backed up; log here so the failure is not lost
		p.metrics.sinkErrors.WithLabelValues(sinkErr.Sink).Inc()
		p.logDeliveryError(sinkErr)
	}
}

// reportErrors is the only consumer of the error channel
func (p *Pipeline) reportErrors() {
	defer p.reporter.Done()
	for sinkErr := range p.errs {
		p.metrics.sinkErrors.WithLabelValues(sinkErr.Sink).Inc()
		p.logDeliveryError(sinkErr)
	}
}

func (p *Pipeline) logDeliveryError(sinkErr SinkError) {
	p.logger.Error("failed to deliver request log",
		"sink", sinkErr.Sink,
		"request_method", sinkErr.Entry.RequestMethod,
		"request_path", sinkErr.Entry.RequestPath,
		"request_id", sinkErr.Entry.RequestID,
		"error", sinkErr.Err,
	)
}
