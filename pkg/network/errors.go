package network

import (
	"errors"
	"fmt"
)

// AuthError reports a credential that is invalid or could not be refreshed.
type AuthError struct {
	UserID string
	Err    error
}

func (e *AuthError) Error() string {
	if e.UserID == "" {
		return fmt.Sprintf("auth error: %v", e.Err)
	}
	return fmt.Sprintf("auth error for user %s: %v", e.UserID, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ChatBackendError reports a transport or backend failure on a chat turn.
// StatusCode is zero when no HTTP response was received.
type ChatBackendError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *ChatBackendError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("chat backend error (status %d): %s", e.StatusCode, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("chat backend error: %v", e.Err)
	default:
		return "chat backend error: " + e.Detail
	}
}

func (e *ChatBackendError) Unwrap() error { return e.Err }

// DetectionError is a conclusion-detection failure. It never leaves the
// detector; it exists so the failure can be logged with a stable type.
type DetectionError struct {
	Err error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("conclusion detection failed: %v", e.Err)
}

func (e *DetectionError) Unwrap() error { return e.Err }

// ValidationError reports malformed input rejected before any work started.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError for field.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// PersistenceError reports a record store failure during Op.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persistence wraps err as a PersistenceError. Nil stays nil.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsAuth reports whether err is or wraps an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
