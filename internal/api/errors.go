package api

import (
	"errors"
	"fmt"
)

// TransportError reports a failed REST exchange.
//
// StatusCode is zero when no response was received (network failure or
// cancelled context). Detail carries the backend's error message when the
// body had one.
type TransportError struct {
	Method     string
	Path       string
	StatusCode int
	Detail     string
	RequestID  string
	Err        error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Detail != "":
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Detail)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	default:
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is or wraps a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// StatusCode extracts the HTTP status from err, or 0 when there is none.
func StatusCode(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}
