package entity

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain layer operations.
var (
	// ErrNotFound indicates that a requested entity was not found
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrValidationFailed indicates that validation checks have failed
	ErrValidationFailed = errors.New("validation failed")

	// ErrAlreadySent indicates that a success row already exists for the
	// (order_id, template_name) pair
	ErrAlreadySent = errors.New("notification already sent")
)

// ValidationError represents a validation error with detailed field information.
// It implements the error interface and provides context about which field failed validation.
// Validation errors are terminal for a delivery attempt.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns a formatted error message for the validation error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// ConfigurationError reports a missing or unusable gateway setting such as
// the access token, account id or inbox id. It is never retried.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// TransportError covers network failures, timeouts, rate limiting and
// non-2xx gateway responses. StatusCode is 0 when no response was received.
type TransportError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	return e.Message
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the gateway response status, or 0.
func (e *TransportError) HTTPStatus() int {
	return e.StatusCode
}

// GatewayLogicError is a well-formed error reply from the gateway, for
// example a template parameter count mismatch. The message is kept verbatim.
type GatewayLogicError struct {
	Message string
}

func (e *GatewayLogicError) Error() string {
	return e.Message
}

// StorageError wraps a delivery log write failure. Callers treat it as
// non-fatal.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether a failed delivery should be scheduled again.
// Transport and gateway errors are retryable, everything else is terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var ge *GatewayLogicError
	return errors.As(err, &ge)
}
