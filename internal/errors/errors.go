// Package errors provides error types and handling for the API verification engine.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrorType categorizes errors for handling decisions.
type ErrorType int

const (
	// Unknown is an uncategorized error.
	Unknown ErrorType = iota
	// MalformedRecord represents an unrecoverable capture entry (per-record, parse continues).
	MalformedRecord
	// Network represents network-related errors (DNS, connection).
	Network
	// Timeout represents timeout errors.
	Timeout
	// Http represents deterministic HTTP errors (4xx/5xx other than 401/403).
	Http
	// AuthRequired represents 401/403 responses that trigger the re-auth flow.
	AuthRequired
	// ChallengeUnsolved represents an interactive challenge the resolver could not solve.
	ChallengeUnsolved
	// Consistency represents a descriptor/outcome mismatch (programming error, fatal).
	Consistency
	// Cancelled represents context cancellation.
	Cancelled
)

// String returns the string representation of ErrorType.
func (t ErrorType) String() string {
	switch t {
	case MalformedRecord:
		return "malformed_record"
	case Network:
		return "network"
	case Timeout:
		return "timeout"
	case Http:
		return "http"
	case AuthRequired:
		return "auth_required"
	case ChallengeUnsolved:
		return "challenge_unsolved"
	case Consistency:
		return "consistency"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsRetryable returns whether errors of this type should be retried.
func (t ErrorType) IsRetryable() bool {
	switch t {
	case Network, Timeout:
		return true
	default:
		return false
	}
}

// ScanError represents a categorized verification error.
type ScanError struct {
	Type       ErrorType
	URL        string
	Operation  string
	Message    string
	Cause      error
	StatusCode int
	Retryable  bool
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error during %s on %s: %s (caused by: %v)",
			e.Type.String(), e.Operation, e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error during %s on %s: %s",
		e.Type.String(), e.Operation, e.URL, e.Message)
}

// Unwrap returns the underlying error.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches a target.
func (e *ScanError) Is(target error) bool {
	t, ok := target.(*ScanError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// NewScanError creates a new ScanError.
func NewScanError(errType ErrorType, url, operation, message string, cause error) *ScanError {
	return &ScanError{
		Type:      errType,
		URL:       url,
		Operation: operation,
		Message:   message,
		Cause:     cause,
		Retryable: errType.IsRetryable(),
	}
}

// NewMalformedRecordError creates a malformed record error for one capture entry.
func NewMalformedRecordError(line int, message string) *ScanError {
	return NewScanError(MalformedRecord, "", fmt.Sprintf("parse_entry_%d", line), message, nil)
}

// NewNetworkError creates a network error.
func NewNetworkError(url, operation string, cause error) *ScanError {
	return NewScanError(Network, url, operation, "network failure", cause)
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(url, operation string, cause error) *ScanError {
	return NewScanError(Timeout, url, operation, "request timed out", cause)
}

// NewAuthRequiredError creates an auth-required error from a 401/403 response.
func NewAuthRequiredError(url string, statusCode int) *ScanError {
	err := NewScanError(AuthRequired, url, "verify", "authentication required", nil)
	err.StatusCode = statusCode
	return err
}

// NewHttpError creates a deterministic HTTP error.
func NewHttpError(url string, statusCode int) *ScanError {
	err := NewScanError(Http, url, "verify", fmt.Sprintf("server returned %d", statusCode), nil)
	err.StatusCode = statusCode
	return err
}

// NewChallengeUnsolvedError creates a challenge-unsolved error.
func NewChallengeUnsolvedError(url, message string, cause error) *ScanError {
	return NewScanError(ChallengeUnsolved, url, "challenge_resolve", message, cause)
}

// NewConsistencyError creates a fatal consistency error.
func NewConsistencyError(message string) *ScanError {
	return NewScanError(Consistency, "", "aggregate", message, nil)
}

// NewCancelledError creates a cancelled error.
func NewCancelledError(url, operation string) *ScanError {
	return NewScanError(Cancelled, url, operation, "operation cancelled", nil)
}

// Categorize determines the error type from a generic error.
func Categorize(err error, url string) *ScanError {
	if err == nil {
		return nil
	}

	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr
	}

	if errors.Is(err, context.Canceled) {
		return NewCancelledError(url, "request")
	}

	if isTimeout(err) {
		return NewTimeoutError(url, "request", err)
	}

	if isNetworkError(err) {
		return NewNetworkError(url, "request", err)
	}

	return NewScanError(Unknown, url, "request", err.Error(), err)
}

// CategorizeHTTPStatus creates an error from an HTTP status code.
// Returns nil for 2xx/3xx.
func CategorizeHTTPStatus(statusCode int, url string) *ScanError {
	switch {
	case statusCode == 401 || statusCode == 403:
		return NewAuthRequiredError(url, statusCode)
	case statusCode >= 400:
		return NewHttpError(url, statusCode)
	default:
		return nil
	}
}

// isTimeout checks if an error is a timeout.
func isTimeout(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

// isNetworkError checks if an error is network-related.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "dial tcp")
}

// IsRetryable checks if an error should be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Retryable
	}

	return isTimeout(err) || isNetworkError(err)
}

// IsAuthRequired checks if an error signals the re-auth flow.
func IsAuthRequired(err error) bool {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Type == AuthRequired
	}
	return false
}

// IsConsistency checks if an error is fatal to the run.
func IsConsistency(err error) bool {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Type == Consistency
	}
	return false
}

// GetStatusCode extracts the status code from an error.
func GetStatusCode(err error) int {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.StatusCode
	}
	return 0
}

// GetErrorType extracts the error type from an error.
func GetErrorType(err error) ErrorType {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Type
	}
	return Unknown
}
