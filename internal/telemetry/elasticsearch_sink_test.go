package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCluster is a minimal stand-in for the search index HTTP API
type fakeCluster struct {
	mu       sync.Mutex
	indices  map[string]string
	docs     map[string][]byte
	failPuts bool
	requests []string
}

func newFakeCluster(t *testing.T) (*fakeCluster, *httptest.Server) {
	t.Helper()
	c := &fakeCluster{indices: map[string]string{}, docs: map[string][]byte{}}
	srv := httptest.NewServer(http.HandlerFunc(c.serve))
	t.Cleanup(srv.Close)
	return c, srv
}

func (c *fakeCluster) serve(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests = append(c.requests, r.Method+" "+r.URL.Path)
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	body, _ := io.ReadAll(r.Body)

	switch {
	case r.URL.Path == "/" && r.Method == http.MethodHead:
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodHead:
		if _, ok := c.indices[r.URL.Path[1:]]; ok {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	case r.Method == http.MethodPut && len(r.URL.Path) > 1 && !containsDoc(r.URL.Path):
		c.indices[r.URL.Path[1:]] = string(body)
		_, _ = io.WriteString(w, `{"acknowledged":true}`)
	case (r.Method == http.MethodPut || r.Method == http.MethodPost) && containsDoc(r.URL.Path):
		if c.failPuts {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"error":"cluster_block_exception"}`)
			return
		}
		c.docs[r.URL.Path] = body
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"result":"created"}`)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func containsDoc(path string) bool {
	for i := 0; i+5 <= len(path); i++ {
		if path[i:i+5] == "/_doc" {
			return true
		}
	}
	return false
}

func TestNewElasticsearchSink_RequiresURL(t *testing.T) {
	_, err := NewElasticsearchSink(ElasticsearchConfig{})
	assert.Error(t, err)
}

func TestElasticsearchSink_DefaultIndex(t *testing.T) {
	sink, err := NewElasticsearchSink(ElasticsearchConfig{URL: "http://localhost:9200"})
	require.NoError(t, err)
	assert.Equal(t, DefaultIndex, sink.Index())
	assert.Equal(t, "elasticsearch", sink.Name())
	assert.NoError(t, sink.Close())
}

func TestElasticsearchSink_Write(t *testing.T) {
	cluster, srv := newFakeCluster(t)
	sink, err := NewElasticsearchSink(ElasticsearchConfig{URL: srv.URL, Index: "logs"})
	require.NoError(t, err)

	e := entry("/abc123")
	e.RequestID = "req-42"
	e.ShortURL = "abc123"
	require.NoError(t, sink.Write(context.Background(), e))

	cluster.mu.Lock()
	defer cluster.mu.Unlock()
	doc, ok := cluster.docs["/logs/_doc/req-42"]
	require.True(t, ok, "requests seen: %v", cluster.requests)

	var got map[string]any
	require.NoError(t, json.Unmarshal(doc, &got))
	assert.Equal(t, "abc123", got["short_url"])
	assert.Equal(t, "GET", got["request_method"])
	assert.Equal(t, float64(302), got["status_code"])
}

func TestElasticsearchSink_WriteRejected(t *testing.T) {
	cluster, srv := newFakeCluster(t)
	cluster.failPuts = true

	sink, err := NewElasticsearchSink(ElasticsearchConfig{URL: srv.URL, Index: "logs"})
	require.NoError(t, err)

	err = sink.Write(context.Background(), entry("/"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestElasticsearchSink_WriteUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	sink, err := NewElasticsearchSink(ElasticsearchConfig{URL: url})
	require.NoError(t, err)

	err = sink.Write(context.Background(), entry("/"))
	assert.Error(t, err)
}

func TestElasticsearchSink_EnsureIndex(t *testing.T) {
	cluster, srv := newFakeCluster(t)
	sink, err := NewElasticsearchSink(ElasticsearchConfig{URL: srv.URL})
	require.NoError(t, err)

	created, err := sink.EnsureIndex(context.Background())
	require.NoError(t, err)
	assert.True(t, created)

	cluster.mu.Lock()
	mapping := cluster.indices[DefaultIndex]
	cluster.mu.Unlock()

	var body struct {
		Mappings struct {
			Properties map[string]struct {
				Type string `json:"type"`
			} `json:"properties"`
		} `json:"mappings"`
		Settings map[string]int `json:"settings"`
	}
	require.NoError(t, json.Unmarshal([]byte(mapping), &body))
	assert.Equal(t, "ip", body.Mappings.Properties["ip_address"].Type)
	assert.Equal(t, "date", body.Mappings.Properties["timestamp"].Type)
	assert.Equal(t, "keyword", body.Mappings.Properties["short_url"].Type)
	assert.Equal(t, 1, body.Settings["number_of_shards"])

	created, err = sink.EnsureIndex(context.Background())
	require.NoError(t, err)
	assert.False(t, created)
}

func TestElasticsearchSink_WaitReady(t *testing.T) {
	_, srv := newFakeCluster(t)
	sink, err := NewElasticsearchSink(ElasticsearchConfig{URL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, sink.WaitReady(ctx, 10*time.Millisecond))
}

func TestElasticsearchSink_WaitReadyTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	sink, err := NewElasticsearchSink(ElasticsearchConfig{URL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = sink.WaitReady(ctx, 10*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
