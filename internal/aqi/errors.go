package aqi

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrPlaceResolverDisabled is returned by ResolvePlace when no forward
// geocoder is configured.
var ErrPlaceResolverDisabled = errors.New("place resolution is not configured")

// NetworkError means the HTTP request to a provider could not complete
// (DNS, connection, transport timeout, open circuit breaker).
type NetworkError struct {
	Provider string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: request failed: %v", e.Provider, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// UpstreamError means the provider answered but signalled failure, either
// with a non-2xx status or a non-"ok" envelope status.
type UpstreamError struct {
	Provider   string
	StatusCode int // 0 when the HTTP exchange itself succeeded
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := e.Message
	if msg == "" && e.StatusCode != 0 {
		msg = http.StatusText(e.StatusCode)
	}
	if msg == "" {
		msg = "upstream failure"
	}
	if e.Provider == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Provider, msg)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// MalformedRecordError means a station record decoded but lacked a usable
// value for a required field.
type MalformedRecordError struct {
	Field  string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("malformed station record: missing %s", e.Field)
	}
	return fmt.Sprintf("malformed station record: %s: %s", e.Field, e.Reason)
}

// escalate turns a per-record failure into the single-station failure mode.
func escalate(provider string, err error) error {
	var malformed *MalformedRecordError
	if errors.As(err, &malformed) {
		return &UpstreamError{Provider: provider, Message: malformed.Error(), Err: err}
	}
	return err
}
