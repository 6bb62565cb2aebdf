package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/joshdurbin/shortlink/internal/domain"
)

// DefaultIndex is the index request logs are written to
const DefaultIndex = "url_shortener_logs"

// indexMapping is the field mapping for DefaultIndex
const indexMapping = `{
  "mappings": {
    "properties": {
      "request_id": {"type": "keyword"},
      "short_url": {"type": "keyword"},
      "long_url": {"type": "keyword"},
      "ip_address": {"type": "ip"},
      "user_agent": {"type": "text"},
      "timestamp": {"type": "date"},
      "request_duration": {"type": "float"},
      "status_code": {"type": "integer"},
      "request_method": {"type": "keyword"},
      "request_path": {"type": "keyword"},
      "referrer": {"type": "keyword"},
      "country": {"type": "keyword"},
      "city": {"type": "keyword"}
    }
  },
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 1
  }
}`

// ElasticsearchConfig describes the search index connection
type ElasticsearchConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Index    string `mapstructure:"index"`

	// Transport overrides the HTTP transport (useful for testing)
	Transport http.RoundTripper `mapstructure:"-"`
}

// ElasticsearchSink indexes request log entries into a search index
type ElasticsearchSink struct {
	client *elasticsearch.Client
	index  string
}

// NewElasticsearchSink creates a sink. No request is made until the first write.
func NewElasticsearchSink(config ElasticsearchConfig) (*ElasticsearchSink, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("elasticsearch URL cannot be empty")
	}
	index := config.Index
	if index == "" {
		index = DefaultIndex
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    []string{config.URL},
		Username:     config.Username,
		Password:     config.Password,
		DisableRetry: true,
		Transport:    config.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	return &ElasticsearchSink{client: client, index: index}, nil
}

// Name returns the sink name
func (s *ElasticsearchSink) Name() string {
	return "elasticsearch"
}

// Index returns the target index name
func (s *ElasticsearchSink) Index() string {
	return s.index
}

// Write indexes entry, using its request id as the document id when present
func (s *ElasticsearchSink) Write(ctx context.Context, entry domain.RequestLogEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode request log: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      s.index,
		DocumentID: entry.RequestID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("failed to index request log: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index %s rejected request log: %s", s.index, responseError(res))
	}
	return nil
}

// WaitReady pings the cluster every interval until it answers or ctx ends
func (s *ElasticsearchSink) WaitReady(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		res, err := s.client.Ping(s.client.Ping.WithContext(ctx))
		if err == nil {
			res.Body.Close()
			if !res.IsError() {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("elasticsearch not ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// EnsureIndex creates the index with the request log mapping if it is
// missing. It reports whether the index was created.
func (s *ElasticsearchSink) EnsureIndex(ctx context.Context) (bool, error) {
	res, err := s.client.Indices.Exists([]string{s.index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("failed to check index %s: %w", s.index, err)
	}
	res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return false, nil
	case http.StatusNotFound:
	default:
		return false, fmt.Errorf("failed to check index %s: %s", s.index, res.Status())
	}

	res, err = s.client.Indices.Create(s.index,
		s.client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
		s.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return false, fmt.Errorf("failed to create index %s: %w", s.index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return false, fmt.Errorf("failed to create index %s: %s", s.index, responseError(res))
	}
	return true, nil
}

// Close is a no-op; the client holds no resources that need releasing
func (s *ElasticsearchSink) Close() error {
	return nil
}

// responseError summarizes an error response
func responseError(res *esapi.Response) string {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
	if len(body) == 0 {
		return res.Status()
	}
	return res.Status() + " " + string(body)
}

var _ Sink = (*ElasticsearchSink)(nil)
