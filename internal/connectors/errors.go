package connectors

import (
	"fmt"
	"net/http"
	"time"
)

// ThrottleError — datastream попросил подождать (429/503 с заголовком Retry-After).
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }

// RejectedError — datastream явно отказался принимать событие. Повторять бессмысленно.
type RejectedError struct {
	StatusCode int
	Reason     string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rejected by datastream [%d]: %s", e.StatusCode, e.Reason)
}

// StatusError — неожиданный код ответа.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected datastream status %d", e.StatusCode)
}

// Retryable — 5xx и 429 (даже без Retry-After) имеет смысл повторять.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}
