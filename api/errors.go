package api

import (
	"errors"
	"fmt"
)

// ErrSchemaMismatch is returned when a response body does not decode into the
// agreed schema. The client fails fast instead of guessing at field names.
var ErrSchemaMismatch = errors.New("response does not match the expected schema")

// APIError is a response received with a failure status. Message carries the
// body's "message" field when the API sent one.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: API returned error status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: API returned error status %d: %s", e.Op, e.Status, e.Message)
}

// NetworkError means no response was received at all.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: request failed: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Message returns the server-supplied message carried by err, or fallback
// when err has none.
func Message(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// StatusCode returns the HTTP status of an *APIError in err's chain, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
