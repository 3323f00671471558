package apperrors

import (
	"errors"
	"fmt"
)

// TransientError indicates an error that might be resolved by retrying.
type TransientError struct {
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

// Unwrap returns the wrapped error.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransient wraps the given error as a TransientError, adding a message.
// It uses fmt.Errorf with %w to maintain the error chain.
func NewTransient(err error, message string, args ...interface{}) error {
	format := message + ": %w"
	allArgs := append(args, err)
	return &TransientError{Err: fmt.Errorf(format, allArgs...)}
}

// PermanentError indicates an error that is unlikely to be resolved by retrying.
type PermanentError struct {
	Err error
}

// Error implements the error interface.
func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Err)
}

// Unwrap returns the wrapped error.
func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanent wraps the given error as a PermanentError, adding a message.
func NewPermanent(err error, message string, args ...interface{}) error {
	format := message + ": %w"
	allArgs := append(args, err)
	return &PermanentError{Err: fmt.Errorf(format, allArgs...)}
}

// UnprocessableError indicates input that can never be processed (e.g. media
// that cannot be fetched or extracted and has no fallback text). It is never
// retried; the triggering message is routed to human takeover instead.
type UnprocessableError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *UnprocessableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("unprocessable input: %s", e.Reason)
	}
	return fmt.Sprintf("unprocessable input: %s: %v", e.Reason, e.Err)
}

// Unwrap returns the wrapped error.
func (e *UnprocessableError) Unwrap() error {
	return e.Err
}

// NewUnprocessable wraps err as an UnprocessableError with a reason.
func NewUnprocessable(err error, reason string) error {
	return &UnprocessableError{Reason: reason, Err: err}
}

// PolicyDeniedError carries a policy reason code. A policy denial is an
// expected outcome, not a failure; callers branch on it, they do not retry.
type PolicyDeniedError struct {
	ReasonCode string
}

// Error implements the error interface.
func (e *PolicyDeniedError) Error() string {
	return fmt.Sprintf("policy denied: %s", e.ReasonCode)
}

// NewPolicyDenied builds a PolicyDeniedError for the given reason code.
func NewPolicyDenied(reasonCode string) error {
	return &PolicyDeniedError{ReasonCode: reasonCode}
}

// --- Standard Error Definitions ---

// These sentinel errors define common application-level error conditions.
// They can be checked using errors.Is and potentially wrapped by the kind
// wrappers above depending on the context where they are handled.
var (
	// ErrNotFound indicates a requested resource was not found.
	ErrNotFound = errors.New("resource not found")
	// ErrValidation indicates failure during data validation.
	ErrValidation = errors.New("validation failed")
	// ErrDatabase indicates a general database interaction error.
	ErrDatabase = errors.New("database error")
	// ErrUnauthorized indicates an authorization failure.
	ErrUnauthorized = errors.New("unauthorized access")
	// ErrDuplicate indicates a conflict due to duplicate data (e.g., unique constraint).
	ErrDuplicate = errors.New("duplicate resource")
	// ErrConflict indicates a general conflict state (e.g., a lost claim race).
	ErrConflict = errors.New("resource conflict")
	// ErrBadRequest indicates a malformed or invalid request from the caller.
	ErrBadRequest = errors.New("bad request")
	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timeout")
)

// --- Helper functions for checking ---

// IsTransient checks if the error is a TransientError or wraps one.
func IsTransient(err error) bool {
	var target *TransientError
	return errors.As(err, &target)
}

// IsPermanent checks if the error is a PermanentError or wraps one.
func IsPermanent(err error) bool {
	var target *PermanentError
	return errors.As(err, &target)
}

// IsUnprocessable checks if the error is an UnprocessableError or wraps one.
func IsUnprocessable(err error) bool {
	var target *UnprocessableError
	return errors.As(err, &target)
}

// IsPolicyDenied checks if the error is a PolicyDeniedError or wraps one.
func IsPolicyDenied(err error) bool {
	var target *PolicyDeniedError
	return errors.As(err, &target)
}

// DeniedReason extracts the reason code from a PolicyDeniedError, or "".
func DeniedReason(err error) string {
	var target *PolicyDeniedError
	if errors.As(err, &target) {
		return target.ReasonCode
	}
	return ""
}

// IsNotFoundError checks if the error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if the error is or wraps ErrValidation.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsDatabaseError checks if the error is or wraps ErrDatabase.
func IsDatabaseError(err error) bool {
	return errors.Is(err, ErrDatabase)
}

// IsDuplicateError checks if the error is or wraps ErrDuplicate.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// IsConflictError checks if the error is or wraps ErrConflict.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsBadRequestError checks if the error is or wraps ErrBadRequest.
func IsBadRequestError(err error) bool {
	return errors.Is(err, ErrBadRequest)
}

// IsTimeoutError checks if the error is or wraps ErrTimeout.
func IsTimeoutError(err error) bool {
	return errors.Is(err, ErrTimeout)
}
