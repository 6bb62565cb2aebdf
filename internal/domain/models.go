package domain

import (
	"time"
)

// URLMapping is the persisted association between a short code and a long URL
type URLMapping struct {
	ID        int64     `json:"id"`
	LongURL   string    `json:"long_url"`
	ShortURL  string    `json:"short_url"`
	CreatedAt time.Time `json:"created_at"`
}

// RequestLogEntry is a single telemetry record describing a completed request
type RequestLogEntry struct {
	RequestID       string    `json:"request_id,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	RequestMethod   string    `json:"request_method"`
	RequestPath     string    `json:"request_path"`
	StatusCode      int       `json:"status_code"`
	RequestDuration float64   `json:"request_duration"`
	IPAddress       string    `json:"ip_address"`
	UserAgent       string    `json:"user_agent"`
	Referrer        string    `json:"referrer"`
	ShortURL        string    `json:"short_url"`
	LongURL         string    `json:"long_url,omitempty"`
	Country         string    `json:"country,omitempty"`
	City            string    `json:"city,omitempty"`
}

// ShortenResponse is returned by POST /shorten
type ShortenResponse struct {
	ShortURL string `json:"short_url"`
}

// ErrorResponse is the body of every error the HTTP surface produces
type ErrorResponse struct {
	Error string `json:"error"`
}
