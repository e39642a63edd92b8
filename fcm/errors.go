package fcm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Sentinel errors callers can branch on with errors.Is. Payload
// problems are detected locally before any network I/O; the remaining
// categories classify non-200 provider answers.
var (
	ErrValidation = errors.New("invalid payload")

	// ErrTooManyRegistrationIDs is returned when registration_ids
	// exceeds the provider limit of 1000 recipients per request.
	ErrTooManyRegistrationIDs = fmt.Errorf("%w: too many registration ids", ErrValidation)

	ErrMalformedRequest = errors.New("request could not be parsed as JSON or contained invalid fields")
	ErrAuthentication   = errors.New("sender account authentication failed")
	ErrUnavailable      = errors.New("messaging server is temporarily unavailable")
	ErrInternal         = errors.New("messaging server returned an internal error")

	// ErrResultCountMismatch is returned when the provider reports a
	// different number of results than recipients addressed.
	ErrResultCountMismatch = errors.New("result count does not match recipient count")
)

const maxErrorBodyBytes = 512

// ProviderError describes a non-200 answer from the messaging server.
// Unwrap yields the category sentinel, so errors.Is(err, ErrUnavailable)
// and friends work through it.
type ProviderError struct {
	StatusCode int
	Body       string
	category   error
}

func newProviderError(statusCode int, category error, body []byte) *ProviderError {
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > maxErrorBodyBytes {
		snippet = snippet[:maxErrorBodyBytes]
	}

	return &ProviderError{
		StatusCode: statusCode,
		Body:       snippet,
		category:   category,
	}
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 3)
	if e.category != nil {
		parts = append(parts, e.category.Error())
	} else {
		parts = append(parts, "fcm request failed")
	}

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if e.Body != "" {
		parts = append(parts, e.Body)
	}

	return strings.Join(parts, ": ")
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.category
}

// IsRetryable reports whether a failed send may succeed if repeated
// later. Only provider unavailability and timeouts qualify; malformed
// requests, authentication failures and payload validation errors are
// terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrUnavailable) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
