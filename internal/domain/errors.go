package domain

import "errors"

var (
	// ErrURLRequired is returned when a shorten request carries no URL
	ErrURLRequired = errors.New("URL is required")

	// ErrNotFound is returned when a short code has no mapping
	ErrNotFound = errors.New("Short URL not found")

	// ErrShorteningFailed wraps any store failure on the shorten path
	ErrShorteningFailed = errors.New("failed to shorten URL")

	// ErrCapacityExhausted is returned when no free code was found within the attempt budget
	ErrCapacityExhausted = errors.New("short code space exhausted")
)
