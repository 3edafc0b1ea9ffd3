// Package errors defines the error taxonomy shared by the orchestration core
// and its collaborators. Errors are logged with context and re-thrown; the
// core performs no automatic retry anywhere.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError wraps a non-2xx response or network failure talking to a
// collaborator.
type TransportError struct {
	Endpoint   string
	StatusCode int // 0 when the failure happened below HTTP
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transport error calling %s: status %d: %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport error calling %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ValidationError indicates a collaborator response failed schema or shape
// checks.
type ValidationError struct {
	Endpoint string
	Reason   string
	Err      error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid response from %s: %s: %v", e.Endpoint, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid response from %s: %s", e.Endpoint, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// UpstreamLogicError indicates a collaborator returned its own error code
// inside a 2xx envelope. Propagated identically to TransportError.
type UpstreamLogicError struct {
	Endpoint string
	Code     int
	Message  string
}

func (e *UpstreamLogicError) Error() string {
	return fmt.Sprintf("upstream error from %s: code %d: %s", e.Endpoint, e.Code, e.Message)
}

// InvariantViolation indicates a core logic defect, not a caller input
// problem. Fatal for the request.
type InvariantViolation struct {
	Message string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation: " + e.Message
}

// NewTransportError wraps err as a transport failure against endpoint.
func NewTransportError(endpoint string, statusCode int, err error) *TransportError {
	return &TransportError{Endpoint: endpoint, StatusCode: statusCode, Err: err}
}

// NewValidationError reports a malformed collaborator response.
func NewValidationError(endpoint, reason string, err error) *ValidationError {
	return &ValidationError{Endpoint: endpoint, Reason: reason, Err: err}
}

// NewUpstreamLogicError reports an in-envelope collaborator error.
func NewUpstreamLogicError(endpoint string, code int, message string) *UpstreamLogicError {
	return &UpstreamLogicError{Endpoint: endpoint, Code: code, Message: message}
}

// NewInvariantViolation reports a core logic defect.
func NewInvariantViolation(format string, args ...any) *InvariantViolation {
	return &InvariantViolation{Message: fmt.Sprintf(format, args...)}
}

// IsTransport reports whether err carries a TransportError.
func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsUpstreamLogic reports whether err carries an UpstreamLogicError.
func IsUpstreamLogic(err error) bool {
	var target *UpstreamLogicError
	return errors.As(err, &target)
}

// IsInvariant reports whether err carries an InvariantViolation.
func IsInvariant(err error) bool {
	var target *InvariantViolation
	return errors.As(err, &target)
}

// StatusCode extracts the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var transport *TransportError
	if errors.As(err, &transport) {
		return transport.StatusCode
	}
	return 0
}

// HTTPStatusFor maps an error to the status the transport layer should
// answer with. Invariant violations and unknown errors are internal faults.
func HTTPStatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsValidation(err):
		return http.StatusBadGateway
	case IsTransport(err), IsUpstreamLogic(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
