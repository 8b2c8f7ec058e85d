// Package errors provides error codes shared by the sync engine and its callers.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode identifies a class of failure that the UI can branch on.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Local persistence errors
	ErrStorage   ErrorCode = "STORAGE_ERROR"
	ErrMigration ErrorCode = "MIGRATION_FAILED"

	// Remote collaborator errors
	ErrRemoteOperation ErrorCode = "REMOTE_OPERATION_FAILED"

	// Sync errors
	ErrSyncFailed  ErrorCode = "SYNC_FAILED"
	ErrSyncOffline ErrorCode = "SYNC_OFFLINE"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is reports whether any error in err's chain is an AppError with the given code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Storage wraps a local persistence failure. The op names what was attempted,
// e.g. "put queue_new_listings".
func Storage(op string, err error) *AppError {
	return Wrap(ErrStorage, op, err)
}

// Remote wraps a failure returned by the remote collaborator.
func Remote(op string, err error) *AppError {
	return Wrap(ErrRemoteOperation, op, err)
}

// IsStorage reports whether err is a local persistence failure.
func IsStorage(err error) bool {
	return Is(err, ErrStorage)
}

// IsRemote reports whether err is a remote collaborator failure.
func IsRemote(err error) bool {
	return Is(err, ErrRemoteOperation)
}

// Message returns the innermost human readable message for err, suitable for
// showing next to a failed mutation.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		if appErr.Err != nil {
			return Message(appErr.Err)
		}
		return appErr.Message
	}
	return err.Error()
}
