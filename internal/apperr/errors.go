// Package apperr defines the error taxonomy shared by the catalog engine.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrParse               = errors.New("malformed response")
	ErrTransport           = errors.New("transport error")
	ErrValidation          = errors.New("validation failed")
	ErrAuthRequired        = errors.New("credential required")
	ErrConflict            = errors.New("conflict")
	ErrDuplicateIdentifier = errors.New("duplicate identifier")
)

// ValidationError reports bad user input for a single field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// TransportError is a non-success response (or network failure) from a remote
// endpoint. Status is zero when no response was received.
type TransportError struct {
	Status  int
	Message string
	URL     string
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("transport error: %s (url: %s)", e.Message, e.URL)
	}
	return fmt.Sprintf("HTTP %d: %s (url: %s)", e.Status, e.Message, e.URL)
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// Retryable reports whether repeating the same request may succeed.
// 4xx responses are client problems and are not retryable.
func (e *TransportError) Retryable() bool {
	return e.Status == 0 || e.Status >= 500
}

// ConflictError is returned when a conditional write carried a stale version
// marker. The caller must re-read and resubmit.
type ConflictError struct {
	Marker string
}

func (e *ConflictError) Error() string {
	if e.Marker == "" {
		return "conflict: resource was created concurrently"
	}
	return fmt.Sprintf("conflict: version marker %s is stale", e.Marker)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
