package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/joshdurbin/shortlink/internal/domain"
)

// FileSinkConfig describes the append-only request log file
type FileSinkConfig struct {
	Path       string `mapstructure:"log_file"`
	MaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	MaxBackups int    `mapstructure:"log_max_backups"`
}

// FileSink writes one JSON line per request to a size-rotated file
type FileSink struct {
	out     io.WriteCloser
	handler slog.Handler
}

// NewFileSink creates a sink backed by a lumberjack rotating file
func NewFileSink(config FileSinkConfig) *FileSink {
	return newFileSink(&lumberjack.Logger{
		Filename:   config.Path,
		MaxSize:    config.MaxSizeMB,
		MaxBackups: config.MaxBackups,
	})
}

func newFileSink(out io.WriteCloser) *FileSink {
	return &FileSink{
		out:     out,
		handler: slog.NewJSONHandler(out, nil),
	}
}

// Name returns the sink name
func (s *FileSink) Name() string {
	return "file"
}

// Write appends entry as a JSON log record
func (s *FileSink) Write(ctx context.Context, entry domain.RequestLogEntry) error {
	msg := fmt.Sprintf("Request: %s %s - Status: %d - Duration: %.2fs - IP: %s",
		entry.RequestMethod, entry.RequestPath, entry.StatusCode, entry.RequestDuration, entry.IPAddress)

	record := slog.NewRecord(time.Now(), slog.LevelInfo, msg, 0)
	record.AddAttrs(
		slog.String("request_id", entry.RequestID),
		slog.Time("timestamp", entry.Timestamp),
		slog.String("request_method", entry.RequestMethod),
		slog.String("request_path", entry.RequestPath),
		slog.Int("status_code", entry.StatusCode),
		slog.Float64("request_duration", entry.RequestDuration),
		slog.String("ip_address", entry.IPAddress),
		slog.String("user_agent", entry.UserAgent),
		slog.String("referrer", entry.Referrer),
		slog.String("short_url", entry.ShortURL),
	)
	if entry.LongURL != "" {
		record.AddAttrs(slog.String("long_url", entry.LongURL))
	}
	if entry.Country != "" {
		record.AddAttrs(slog.String("country", entry.Country))
	}
	if entry.City != "" {
		record.AddAttrs(slog.String("city", entry.City))
	}

	if err := s.handler.Handle(ctx, record); err != nil {
		return fmt.Errorf("failed to write request log: %w", err)
	}
	return nil
}

// Close closes the underlying file
func (s *FileSink) Close() error {
	return s.out.Close()
}

var _ Sink = (*FileSink)(nil)
