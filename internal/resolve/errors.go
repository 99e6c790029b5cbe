package resolve

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes resolution errors and diagnostics.
type ErrorCode string

const (
	// ErrCodeMissingEvent indicates an event id the store cannot resolve.
	ErrCodeMissingEvent ErrorCode = "MISSING_EVENT"

	// ErrCodeCyclicAuthChain indicates an event whose auth chain loops.
	ErrCodeCyclicAuthChain ErrorCode = "CYCLIC_AUTH_CHAIN"

	// ErrCodeMalformedContent indicates content the rules cannot reason about.
	ErrCodeMalformedContent ErrorCode = "MALFORMED_CONTENT"

	// ErrCodeContractViolation indicates invalid input from the caller.
	ErrCodeContractViolation ErrorCode = "CONTRACT_VIOLATION"

	// ErrCodeUnsupportedVersion indicates a room version without state
	// resolution v2.
	ErrCodeUnsupportedVersion ErrorCode = "UNSUPPORTED_VERSION"

	// ErrCodeStoreFailure indicates the event store failed for a reason
	// other than an unknown id.
	ErrCodeStoreFailure ErrorCode = "STORE_FAILURE"
)

// Error is a fatal resolution error.
//
// Only contract violations, unsupported versions and store failures are
// returned as errors. Everything else becomes a Diagnostic.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// EventID identifies the offending event, when there is one.
	EventID string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.EventID != "" {
		return fmt.Sprintf("%s: %s (event=%s)", e.Code, e.Message, e.EventID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsContractError returns true if the caller supplied invalid input.
// Uses errors.As to handle wrapped errors.
func IsContractError(err error) bool {
	return hasCode(err, ErrCodeContractViolation)
}

// IsUnsupportedVersion returns true if the room version cannot be resolved.
func IsUnsupportedVersion(err error) bool {
	return hasCode(err, ErrCodeUnsupportedVersion)
}

// IsStoreFailure returns true if the event store failed.
func IsStoreFailure(err error) bool {
	return hasCode(err, ErrCodeStoreFailure)
}

// NewContractError creates an Error for a caller contract violation.
func NewContractError(eventID, format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeContractViolation,
		Message: fmt.Sprintf(format, args...),
		EventID: eventID,
	}
}

// NewUnsupportedVersionError creates an Error for a room version that does
// not use state resolution v2.
func NewUnsupportedVersionError(version string, algorithm int) *Error {
	return &Error{
		Code:    ErrCodeUnsupportedVersion,
		Message: fmt.Sprintf("room version %s uses state resolution v%d", version, algorithm),
		Details: map[string]string{
			"room_version": version,
			"algorithm":    fmt.Sprintf("%d", algorithm),
		},
	}
}

// NewStoreError creates an Error wrapping a store failure.
func NewStoreError(err error) *Error {
	return &Error{
		Code:    ErrCodeStoreFailure,
		Message: fmt.Sprintf("event store failed: %v", err),
		Err:     err,
	}
}
