package types

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConfiguration marks a missing or invalid roster, weight, or repository setting.
	ErrConfiguration = errors.New("configuration error")
	// ErrGatewayUnavailable marks transport, authentication, or server failures.
	ErrGatewayUnavailable = errors.New("gateway unavailable")
	// ErrRateLimited marks an exhausted API quota.
	ErrRateLimited = errors.New("rate limited")
	// ErrNotFound marks an unknown repository or pull request.
	ErrNotFound = errors.New("not found")
)

// RateLimitError is returned when the gateway reports an exhausted quota.
// Reset is zero when the gateway did not say when the quota comes back.
type RateLimitError struct {
	Reset time.Time
}

func (e *RateLimitError) Error() string {
	if e.Reset.IsZero() {
		return "rate limited"
	}
	return fmt.Sprintf("rate limited until %s", e.Reset.Format(time.RFC3339))
}

func (*RateLimitError) Unwrap() error { return ErrRateLimited }

// ServerError is an HTTP 5xx answer from the gateway.
type ServerError struct {
	Status int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("http %d: server error", e.Status)
}

func (*ServerError) Unwrap() error { return ErrGatewayUnavailable }

// Retryable reports whether err may succeed when the same request is repeated.
func Retryable(err error) bool {
	var rl *RateLimitError
	var se *ServerError
	return errors.As(err, &rl) || errors.As(err, &se)
}
