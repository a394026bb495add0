package alert

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitError is a 429 answer from a webhook.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (retry after %v)", e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded (retry after %v)", e.RetryAfter)
}

// ClientError is any other 4xx answer.
type ClientError struct {
	StatusCode int
	Message    string
}

func (e *ClientError) Error() string { return e.Message }

// ServerError is a 5xx answer.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string { return e.Message }

// isRetryable is true for server errors and transport failures.
func isRetryable(err error) bool {
	var (
		serverErr *ServerError
		clientErr *ClientError
		limitErr  *RateLimitError
	)
	switch {
	case errors.As(err, &serverErr):
		return true
	case errors.As(err, &clientErr), errors.As(err, &limitErr), errors.Is(err, ErrThrottled):
		return false
	}
	return true
}

// truncate cuts text to max bytes including suffix.
func truncate(text string, max int, suffix string) string {
	if len(text) <= max {
		return text
	}
	cut := max - len(suffix)
	if cut < 0 {
		cut = 0
	}
	return text[:cut] + suffix
}
