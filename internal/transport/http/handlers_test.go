package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/joshdurbin/shortlink/internal/domain"
	"github.com/joshdurbin/shortlink/internal/logging"
	"github.com/joshdurbin/shortlink/internal/service/mocks"
	"github.com/joshdurbin/shortlink/internal/telemetry"
)

type fakeRecorder struct {
	mu      sync.Mutex
	entries []domain.RequestLogEntry
	reject  bool
}

func (f *fakeRecorder) Record(entry domain.RequestLogEntry) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject {
		return false
	}
	f.entries = append(f.entries, entry)
	return true
}

func (f *fakeRecorder) Entries() []domain.RequestLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.RequestLogEntry(nil), f.entries...)
}

func newTestServer(svc *mocks.URLService, recorder Recorder) *Server {
	return NewServer(svc, Config{
		Port:      "0",
		ServerURL: "http://localhost:8080",
		Recorder:  recorder,
	}, logging.Discard())
}

func postForm(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/shorten", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body domain.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}

func TestHandler_Shorten(t *testing.T) {
	tests := []struct {
		name           string
		form           url.Values
		setupMocks     func(*mocks.URLService)
		expectedStatus int
		expectedURL    string
		expectedError  string
	}{
		{
			name: "successful creation",
			form: url.Values{"url": {"https://example.com"}},
			setupMocks: func(svc *mocks.URLService) {
				svc.On("Shorten", mock.Anything, "https://example.com").
					Return(&domain.URLMapping{ID: 1, ShortURL: "abc123", LongURL: "https://example.com"}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedURL:    "http://localhost:8080/abc123",
		},
		{
			name: "empty url",
			form: url.Values{"url": {""}},
			setupMocks: func(svc *mocks.URLService) {
				svc.On("Shorten", mock.Anything, "").Return(nil, domain.ErrURLRequired)
			},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "URL is required",
		},
		{
			name: "missing url field",
			form: url.Values{},
			setupMocks: func(svc *mocks.URLService) {
				svc.On("Shorten", mock.Anything, "").Return(nil, domain.ErrURLRequired)
			},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "URL is required",
		},
		{
			name: "store failure",
			form: url.Values{"url": {"https://example.com"}},
			setupMocks: func(svc *mocks.URLService) {
				svc.On("Shorten", mock.Anything, "https://example.com").
					Return(nil, fmt.Errorf("%w: %w", domain.ErrShorteningFailed, assert.AnError))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "failed to shorten URL",
		},
		{
			name: "code space exhausted",
			form: url.Values{"url": {"https://example.com"}},
			setupMocks: func(svc *mocks.URLService) {
				svc.On("Shorten", mock.Anything, "https://example.com").
					Return(nil, domain.ErrCapacityExhausted)
			},
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "short code space exhausted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mocks.URLService{}
			tt.setupMocks(svc)

			handler := NewHandler(svc, "http://localhost:8080/", logging.Discard())
			w := httptest.NewRecorder()
			handler.Shorten(w, postForm(tt.form))

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			if tt.expectedURL != "" {
				var body domain.ShortenResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, tt.expectedURL, body.ShortURL)
			}
			if tt.expectedError != "" {
				assert.Equal(t, tt.expectedError, decodeError(t, w))
			}

			svc.AssertExpectations(t)
		})
	}
}

func TestHandler_Shorten_OriginFromRequest(t *testing.T) {
	svc := &mocks.URLService{}
	svc.On("Shorten", mock.Anything, "https://example.com").
		Return(&domain.URLMapping{ShortURL: "Zx9Qa1"}, nil)

	handler := NewHandler(svc, "", logging.Discard())
	req := postForm(url.Values{"url": {"https://example.com"}})
	req.Host = "sho.rt:9000"
	w := httptest.NewRecorder()
	handler.Shorten(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body domain.ShortenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "http://sho.rt:9000/Zx9Qa1", body.ShortURL)
}

func TestHandler_Redirect(t *testing.T) {
	tests := []struct {
		name             string
		code             string
		setupMocks       func(*mocks.URLService)
		expectedStatus   int
		expectedLocation string
		expectedError    string
	}{
		{
			name: "successful redirect",
			code: "abc123",
			setupMocks: func(svc *mocks.URLService) {
				svc.On("Resolve", mock.Anything, "abc123").Return("https://example.com/a", nil)
			},
			expectedStatus:   http.StatusFound,
			expectedLocation: "https://example.com/a",
		},
		{
			name: "short code not found",
			code: "doesnotexist",
			setupMocks: func(svc *mocks.URLService) {
				svc.On("Resolve", mock.Anything, "doesnotexist").Return("", domain.ErrNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedError:  "Short URL not found",
		},
		{
			name: "store failure",
			code: "abc123",
			setupMocks: func(svc *mocks.URLService) {
				svc.On("Resolve", mock.Anything, "abc123").Return("", assert.AnError)
			},
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "failed to resolve short URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mocks.URLService{}
			tt.setupMocks(svc)

			handler := NewHandler(svc, "http://localhost:8080", logging.Discard())
			req := httptest.NewRequest(http.MethodGet, "/"+tt.code, nil)
			req.SetPathValue("code", tt.code)
			w := httptest.NewRecorder()
			handler.Redirect(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedLocation != "" {
				assert.Equal(t, tt.expectedLocation, w.Header().Get("Location"))
			}
			if tt.expectedError != "" {
				assert.Equal(t, tt.expectedError, decodeError(t, w))
			}

			svc.AssertExpectations(t)
		})
	}
}

func TestServer_Routes(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		path           string
		setupMocks     func(*mocks.URLService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "landing page",
			method:         http.MethodGet,
			path:           "/",
			setupMocks:     func(*mocks.URLService) {},
			expectedStatus: http.StatusOK,
			expectedBody:   `action="/shorten"`,
		},
		{
			name:           "static asset",
			method:         http.MethodGet,
			path:           "/static/style.css",
			setupMocks:     func(*mocks.URLService) {},
			expectedStatus: http.StatusOK,
			expectedBody:   "font-family",
		},
		{
			name:   "redirect",
			method: http.MethodGet,
			path:   "/abc123",
			setupMocks: func(svc *mocks.URLService) {
				svc.On("Resolve", mock.Anything, "abc123").Return("https://example.com", nil)
			},
			expectedStatus: http.StatusFound,
		},
		{
			name:           "nested path",
			method:         http.MethodGet,
			path:           "/a/b",
			setupMocks:     func(*mocks.URLService) {},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"error":"Short URL not found"}`,
		},
		{
			name:           "wrong method",
			method:         http.MethodDelete,
			path:           "/abc123",
			setupMocks:     func(*mocks.URLService) {},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"error":"Short URL not found"}`,
		},
		{
			name:           "metrics disabled",
			method:         http.MethodGet,
			path:           "/metrics",
			setupMocks:     func(svc *mocks.URLService) { svc.On("Resolve", mock.Anything, "metrics").Return("", domain.ErrNotFound) },
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mocks.URLService{}
			tt.setupMocks(svc)
			server := newTestServer(svc, nil)

			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			server.Handler().ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedBody != "" {
				assert.Contains(t, w.Body.String(), tt.expectedBody)
			}
			assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

			svc.AssertExpectations(t)
		})
	}
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	svc := &mocks.URLService{}
	svc.On("Resolve", mock.Anything, "abc123").Return("https://example.com", nil)

	server := NewServer(svc, Config{
		Port:     "0",
		Recorder: &fakeRecorder{},
		Metrics:  metrics,
		Gatherer: reg,
	}, logging.Discard())

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/abc123", nil))
	require.Equal(t, http.StatusFound, w.Code)

	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `url_shortener_http_requests_total{code="302",method="GET"} 1`)
}

func TestServer_ServeAndShutdown(t *testing.T) {
	svc := &mocks.URLService{}
	svc.On("Resolve", mock.Anything, "abc123").Return("https://example.com", nil)
	server := newTestServer(svc, nil)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- server.Serve(l) }()

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	res, err := client.Get("http://" + l.Addr().String() + "/abc123")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusFound, res.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(ctx))
	assert.NoError(t, <-served, "graceful shutdown is not an error")
}

func TestTelemetryMiddleware_RecordsEntries(t *testing.T) {
	svc := &mocks.URLService{}
	svc.On("Resolve", mock.Anything, "abc123").Return("https://example.com", nil)
	svc.On("Shorten", mock.Anything, "https://example.com").
		Return(&domain.URLMapping{ShortURL: "abc123"}, nil)

	recorder := &fakeRecorder{}
	server := newTestServer(svc, recorder)

	req := httptest.NewRequest(http.MethodGet, "/abc123", nil)
	req.RemoteAddr = "203.0.113.7:54321"
	req.Header.Set("User-Agent", "curl/8.0")
	req.Header.Set("Referer", "https://news.example.org")
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	server.Handler().ServeHTTP(httptest.NewRecorder(), postForm(url.Values{"url": {"https://example.com"}}))
	server.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	server.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/static/style.css", nil))

	entries := recorder.Entries()
	require.Len(t, entries, 3)

	redirect := entries[0]
	assert.Equal(t, w.Header().Get(RequestIDHeader), redirect.RequestID)
	assert.Equal(t, http.MethodGet, redirect.RequestMethod)
	assert.Equal(t, "/abc123", redirect.RequestPath)
	assert.Equal(t, http.StatusFound, redirect.StatusCode)
	assert.Equal(t, "203.0.113.7", redirect.IPAddress)
	assert.Equal(t, "curl/8.0", redirect.UserAgent)
	assert.Equal(t, "https://news.example.org", redirect.Referrer)
	assert.Equal(t, "abc123", redirect.ShortURL)
	assert.Empty(t, redirect.LongURL)
	assert.Equal(t, "UTC", redirect.Timestamp.Location().String())
	assert.GreaterOrEqual(t, redirect.RequestDuration, 0.0)

	assert.Equal(t, http.MethodPost, entries[1].RequestMethod)
	assert.Equal(t, http.StatusOK, entries[1].StatusCode)
	assert.Equal(t, "shorten", entries[1].ShortURL)

	assert.Equal(t, "/", entries[2].RequestPath)
	assert.Empty(t, entries[2].ShortURL)
}

func TestTelemetryMiddleware_DroppedEntryKeepsResponse(t *testing.T) {
	svc := &mocks.URLService{}
	svc.On("Resolve", mock.Anything, "abc123").Return("https://example.com", nil)

	server := newTestServer(svc, &fakeRecorder{reject: true})
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/abc123", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://example.com", w.Header().Get("Location"))
}

func TestShortCode(t *testing.T) {
	assert.Equal(t, "", shortCode("/"))
	assert.Equal(t, "abc123", shortCode("/abc123"))
	assert.Equal(t, "", shortCode("/a/b"))
	assert.Equal(t, "shorten", shortCode("/shorten"))
}

func TestClientIP(t *testing.T) {
	assert.Equal(t, "10.1.2.3", clientIP("10.1.2.3:8080"))
	assert.Equal(t, "::1", clientIP("[::1]:8080"))
	assert.Equal(t, "garbage", clientIP("garbage"))
}
