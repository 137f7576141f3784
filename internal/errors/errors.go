package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeConfiguration indicates malformed or missing startup configuration.
	// Errors with this code are fatal: the service must not start.
	ErrCodeConfiguration ErrorCode = "configuration"
	// ErrCodeInvalidIssuer indicates the id_token issuer did not match the expected issuer.
	ErrCodeInvalidIssuer ErrorCode = "invalid_issuer"
	// ErrCodeInvalidSignature indicates the id_token signature or audience could not be verified.
	ErrCodeInvalidSignature ErrorCode = "invalid_signature"
	// ErrCodeNonceReplay indicates a nonce mismatch, an unknown auth request state, or a replay.
	ErrCodeNonceReplay ErrorCode = "nonce_replay"
	// ErrCodeTokenExpired indicates token timestamps outside the tolerated clock skew.
	ErrCodeTokenExpired ErrorCode = "token_expired"
	// ErrCodeMissingSubject indicates a provider profile without a subject identifier.
	ErrCodeMissingSubject ErrorCode = "missing_subject"
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Configuration creates a new Configuration error.
func Configuration(message string) *AppError {
	return &AppError{Code: ErrCodeConfiguration, Message: message}
}

// Configurationf creates a new Configuration error with formatted message.
func Configurationf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeConfiguration, Message: fmt.Sprintf(format, args...)}
}

// InvalidIssuer creates a new InvalidIssuer error.
func InvalidIssuer(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidIssuer, Message: message}
}

// InvalidIssuerf creates a new InvalidIssuer error with formatted message.
func InvalidIssuerf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeInvalidIssuer, Message: fmt.Sprintf(format, args...)}
}

// InvalidSignature creates a new InvalidSignature error.
func InvalidSignature(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidSignature, Message: message}
}

// NonceReplay creates a new NonceReplay error.
func NonceReplay(message string) *AppError {
	return &AppError{Code: ErrCodeNonceReplay, Message: message}
}

// TokenExpired creates a new TokenExpired error.
func TokenExpired(message string) *AppError {
	return &AppError{Code: ErrCodeTokenExpired, Message: message}
}

// TokenExpiredf creates a new TokenExpired error with formatted message.
func TokenExpiredf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeTokenExpired, Message: fmt.Sprintf(format, args...)}
}

// MissingSubject creates a new MissingSubject error.
func MissingSubject(message string) *AppError {
	return &AppError{Code: ErrCodeMissingSubject, Message: message}
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

// Internal creates a new Internal error.
func Internal(message string) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsConfiguration checks if an error is a Configuration error.
func IsConfiguration(err error) bool { return isCode(err, ErrCodeConfiguration) }

// IsInvalidIssuer checks if an error is an InvalidIssuer error.
func IsInvalidIssuer(err error) bool { return isCode(err, ErrCodeInvalidIssuer) }

// IsInvalidSignature checks if an error is an InvalidSignature error.
func IsInvalidSignature(err error) bool { return isCode(err, ErrCodeInvalidSignature) }

// IsNonceReplay checks if an error is a NonceReplay error.
func IsNonceReplay(err error) bool { return isCode(err, ErrCodeNonceReplay) }

// IsTokenExpired checks if an error is a TokenExpired error.
func IsTokenExpired(err error) bool { return isCode(err, ErrCodeTokenExpired) }

// IsMissingSubject checks if an error is a MissingSubject error.
func IsMissingSubject(err error) bool { return isCode(err, ErrCodeMissingSubject) }

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool { return isCode(err, ErrCodeNotFound) }

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool { return isCode(err, ErrCodeValidation) }

// IsProviderValidation reports whether an error belongs to the per-request
// recoverable class surfaced by id_token validation. These are always routed
// to the failure redirect and never exposed verbatim to the client.
func IsProviderValidation(err error) bool {
	switch GetCode(err) {
	case ErrCodeInvalidIssuer, ErrCodeInvalidSignature, ErrCodeNonceReplay,
		ErrCodeTokenExpired, ErrCodeMissingSubject:
		return true
	default:
		return false
	}
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
