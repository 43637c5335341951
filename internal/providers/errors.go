package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"mourne/internal/domain"
)

var (
	// ErrTimeout is returned when a provider task does not finish within MaxWait.
	ErrTimeout = errors.New("provider: timed out waiting for result")
	// ErrInvalidResponse marks payloads that could not be understood.
	ErrInvalidResponse = errors.New("provider: invalid response")
	// ErrRejected marks tasks the provider refused or failed on its side.
	ErrRejected = errors.New("provider: task failed")
	// ErrMissingCredential is returned by adapters invoked without a key.
	ErrMissingCredential = errors.New("provider: credential is required")
)

// StatusError captures a non-2xx HTTP response.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Invalid wraps a decode problem as ErrInvalidResponse.
func Invalid(provider, format string, args ...any) error {
	return fmt.Errorf("%s: %s: %w", provider, fmt.Sprintf(format, args...), ErrInvalidResponse)
}

// Rejected wraps a provider-side task failure.
func Rejected(provider, detail string) error {
	return fmt.Errorf("%s: %s: %w", provider, detail, ErrRejected)
}

// Classify maps an adapter error onto the failure taxonomy recorded on artifacts.
func Classify(err error) domain.FailureKind {
	var statusErr *StatusError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return domain.FailureCancelled
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return domain.FailureTimeout
	case errors.Is(err, ErrInvalidResponse):
		return domain.FailureInvalidResponse
	case errors.Is(err, ErrRejected):
		return domain.FailureRejected
	case errors.As(err, &statusErr):
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return domain.FailureRateLimited
		case statusErr.StatusCode == http.StatusRequestTimeout, statusErr.StatusCode == http.StatusGatewayTimeout:
			return domain.FailureTimeout
		case statusErr.StatusCode >= 400 && statusErr.StatusCode < 500:
			return domain.FailureRejected
		}
		return domain.FailureUpstream
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.FailureTimeout
	}
	return domain.FailureUpstream
}
