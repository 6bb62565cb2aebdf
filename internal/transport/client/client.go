package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/joshdurbin/shortlink/internal/domain"
)

// Client represents an HTTP client for the URL shortener
type Client struct {
	serverURL  string
	httpClient *http.Client
}

// NewClient creates a new URL shortener client. Redirects are never
// followed so Resolve can report the target itself.
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: strings.TrimSuffix(serverURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Shorten submits longURL and returns the short URL
func (c *Client) Shorten(ctx context.Context, longURL string) (string, error) {
	form := url.Values{"url": {longURL}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/shorten", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest:
		return "", fmt.Errorf("%w: %s", domain.ErrURLRequired, errorMessage(resp))
	default:
		return "", fmt.Errorf("server returned status %d: %s", resp.StatusCode, errorMessage(resp))
	}

	var result domain.ShortenResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if result.ShortURL == "" {
		return "", errors.New("server returned an empty short_url")
	}

	return result.ShortURL, nil
}

// Resolve returns the redirect target of code, or domain.ErrNotFound
func (c *Client) Resolve(ctx context.Context, code string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/"+url.PathEscape(code), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusFound, http.StatusMovedPermanently, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		location := resp.Header.Get("Location")
		if location == "" {
			return "", errors.New("redirect without Location header")
		}
		return location, nil
	case http.StatusNotFound:
		return "", fmt.Errorf("short code '%s': %w", code, domain.ErrNotFound)
	default:
		return "", fmt.Errorf("server returned status %d: %s", resp.StatusCode, errorMessage(resp))
	}
}

// errorMessage extracts the error field of a JSON error body
func errorMessage(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "unreadable response body"
	}

	var body domain.ErrorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}
