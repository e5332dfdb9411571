// Package apperrors holds the sentinel and typed errors shared across relife.
package apperrors

import "fmt"

// ErrNotFound matches any *NotFoundError via errors.Is.
var ErrNotFound = &NotFoundError{}

// NotFoundError reports a missing entry or frame image.
type NotFoundError struct {
	Resource string
	Message  string
}

func NewNotFoundError(resource, message string) *NotFoundError {
	return &NotFoundError{Resource: resource, Message: message}
}

func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Resource != "" {
		return e.Resource + " not found"
	}
	return "resource not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

// ErrValidation matches any *ValidationError via errors.Is.
var ErrValidation = &ValidationError{}

// ValidationError reports bad caller input.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Field != "" {
		return "validation failed for field: " + e.Field
	}
	return "validation error"
}

func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// ProviderKind classifies why an OCR provider call failed.
type ProviderKind string

const (
	KindTransport ProviderKind = "transport"
	KindDecode    ProviderKind = "decode"
	KindConfig    ProviderKind = "config"
)

// ErrProvider matches any *ProviderError via errors.Is.
var ErrProvider = &ProviderError{}

// ProviderError carries the provider's raw response body (or a transport
// diagnostic) so callers can surface it unchanged.
type ProviderError struct {
	Provider string
	Kind     ProviderKind
	Body     string
	Err      error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s provider %s error", e.Provider, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Body != "" && (e.Err == nil || e.Err.Error() != e.Body) {
		msg += ": " + e.Body
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool {
	_, ok := target.(*ProviderError)
	return ok
}
