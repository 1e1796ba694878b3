package feed

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidPage is wrapped by a FetchError for page numbers below 1.
var ErrInvalidPage = errors.New("page number must be >= 1")

// ErrorClass represents a classification of page fetch failures.
type ErrorClass string

const (
	// ErrorClassHTTPStatus represents a non-2xx response.
	ErrorClassHTTPStatus ErrorClass = "http_status"

	// ErrorClassTransport represents connection, TLS, timeout and cancellation errors.
	ErrorClassTransport ErrorClass = "transport"

	// ErrorClassDecode represents a 2xx response whose body is not a JSON object.
	ErrorClassDecode ErrorClass = "decode"

	// ErrorClassInvalid represents a request that was never sent.
	ErrorClassInvalid ErrorClass = "invalid"
)

// FetchError describes why a single page could not be fetched.
type FetchError struct {
	Class      ErrorClass
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	switch e.Class {
	case ErrorClassHTTPStatus:
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	default:
		if e.Err != nil && e.Message != "" {
			return fmt.Sprintf("%s error: %s: %v", e.Class, e.Message, e.Err)
		}
		if e.Err != nil {
			return fmt.Sprintf("%s error: %v", e.Class, e.Err)
		}
		return fmt.Sprintf("%s error: %s", e.Class, e.Message)
	}
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

func statusError(code int) *FetchError {
	return &FetchError{
		Class:      ErrorClassHTTPStatus,
		StatusCode: code,
		Message:    http.StatusText(code),
	}
}

func transportError(err error) *FetchError {
	return &FetchError{
		Class: ErrorClassTransport,
		Err:   err,
	}
}
