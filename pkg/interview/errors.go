package interview

import (
	"errors"
	"fmt"
)

var (
	// ErrNoBaseURL is returned when a client is created without a
	// service URL.
	ErrNoBaseURL = errors.New("interview: service URL required")

	// ErrSessionNotFound is returned when the service does not know
	// the interview ID.
	ErrSessionNotFound = errors.New("interview: session not found")

	// ErrAlreadyComplete is returned when submitting to a session the
	// service has already finished.
	ErrAlreadyComplete = errors.New("interview: session already complete")

	// ErrEmptyUtterance is returned when submitting zero audio bytes.
	ErrEmptyUtterance = errors.New("interview: empty utterance")
)

// APIError is a non-2xx response from the interview service.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error detail from the service, or the raw body.
	Message string

	// Endpoint is the path that failed.
	Endpoint string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("interview [%s]: API error %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// IsRateLimited reports an HTTP 429.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsServerError reports an HTTP 5xx.
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsRetryable reports whether the call is worth retrying. Transport
// failures are wrapped separately and are always retryable.
func (e *APIError) IsRetryable() bool {
	return e.IsRateLimited() || e.IsServerError()
}

// Unwrap maps well-known statuses onto sentinel errors so callers can
// use errors.Is without inspecting codes.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case 404:
		return ErrSessionNotFound
	case 400:
		return ErrAlreadyComplete
	}
	return nil
}

// IsRetryable reports whether an error from this package is worth
// retrying: transport failures and retryable API statuses.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	// A request that never produced a response is a network problem.
	return err != nil &&
		!errors.Is(err, ErrSessionNotFound) &&
		!errors.Is(err, ErrAlreadyComplete) &&
		!errors.Is(err, ErrEmptyUtterance)
}
