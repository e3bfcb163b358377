package crawler

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrInvalidDomain marks a domain input that cannot be normalized.
	ErrInvalidDomain = errors.New("invalid domain")
	// ErrNetwork marks transport failures that survived every retry.
	ErrNetwork = errors.New("network error")
	// ErrValidation marks a candidate feed that failed validation.
	ErrValidation = errors.New("feed validation failed")
	// ErrRateLimited marks a 429 response or an open rate-limit breaker.
	ErrRateLimited = errors.New("rate limited")
	// ErrParse marks feed content that could not be parsed.
	ErrParse = errors.New("feed parse error")
	// ErrNoFeedsDiscovered is returned when a whole batch produced no feeds.
	ErrNoFeedsDiscovered = errors.New("no feeds discovered for any domain")
	// ErrBrowserUnavailable is returned by fetchers when no browser is configured.
	ErrBrowserUnavailable = errors.New("headless browser not configured")
)

// HTTPStatusError describes a response whose status is considered a failure.
type HTTPStatusError struct {
	URL        string
	StatusCode int
	RetryAfter time.Duration
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http %d from %s", e.StatusCode, e.URL)
}

// Unwrap maps the status onto the sentinel taxonomy.
func (e *HTTPStatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.StatusCode >= http.StatusInternalServerError:
		return ErrNetwork
	default:
		return nil
	}
}

// Retryable reports whether the status warrants another attempt.
func (e *HTTPStatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}
