package github

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrRateLimit indicates GitHub API rate limit exceeded
	ErrRateLimit = errors.New("GitHub API rate limit exceeded")
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("resource not found")
	// ErrAPIError indicates a general GitHub API error
	ErrAPIError = errors.New("GitHub API error")
	// ErrMalformedResponse indicates a response missing required fields
	ErrMalformedResponse = errors.New("malformed GitHub response")
)

// APIError represents a non-2xx response from the GitHub REST API.
type APIError struct {
	StatusCode int
	Message    string
	// Reset is when the rate limit window reopens, if GitHub reported it.
	Reset time.Time
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("github: HTTP %d: %s", e.StatusCode, e.Message)
	if !e.Reset.IsZero() {
		msg += "; rate limit resets at " + e.Reset.UTC().Format(time.RFC3339)
	}
	return msg
}

// Is maps status codes onto the package sentinels so callers can use
// errors.Is(err, ErrNotFound) without inspecting the status.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == 404
	case ErrRateLimit:
		return e.rateLimited()
	case ErrAPIError:
		return true
	}
	return false
}

func (e *APIError) rateLimited() bool {
	if e.StatusCode == 429 {
		return true
	}
	if e.StatusCode != 403 {
		return false
	}
	lower := strings.ToLower(e.Message)
	return !e.Reset.IsZero() || strings.Contains(lower, "rate limit") || strings.Contains(lower, "abuse detection")
}

// IsNotFound reports whether err is a GitHub API 404 Not Found response.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRateLimited reports whether err is a GitHub rate limit response.
// GitHub returns 403 for the primary limit and 429 for secondary limits.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimit)
}
