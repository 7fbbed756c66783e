package domain

import "fmt"

// ErrorCode classifies reconciliation failures. Codes are stable strings
// suitable for logs and metrics labels; they never reach the HTTP client.
type ErrorCode string

const (
	ErrCodeUserNotFound     ErrorCode = "user_not_found"
	ErrCodeUserBlocked      ErrorCode = "user_blocked"
	ErrCodeMappingConflict  ErrorCode = "mapping_conflict"
	ErrCodeCreationDisabled ErrorCode = "creation_disabled"
	ErrCodePersistence      ErrorCode = "persistence_error"
	ErrCodeSessionInvalid   ErrorCode = "session_invalid"
	ErrCodeConfigMissing    ErrorCode = "config_missing"
)

func (c ErrorCode) String() string {
	return string(c)
}

// AppError is a classified reconciliation error. The Code drives the
// degraded-path decision; Cause carries the underlying store error, if any.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// BlockedError reports that the resolved account is not active.
func BlockedError(authname string) *AppError {
	return &AppError{
		Code:    ErrCodeUserBlocked,
		Message: fmt.Sprintf("account for %q is blocked", authname),
	}
}

// MappingConflictError reports that an existing account matches the
// authname but automatic mapping is disabled.
func MappingConflictError(authname string) *AppError {
	return &AppError{
		Code:    ErrCodeMappingConflict,
		Message: fmt.Sprintf("account named %q exists but is not mapped", authname),
	}
}

// CreationDisabledError reports that no account exists for the authname
// and provisioning is disabled.
func CreationDisabledError(authname string) *AppError {
	return &AppError{
		Code:    ErrCodeCreationDisabled,
		Message: fmt.Sprintf("no account for %q and account creation is disabled", authname),
	}
}

// PersistenceError wraps a store failure during the named operation.
func PersistenceError(op string, cause error) *AppError {
	return &AppError{
		Code:    ErrCodePersistence,
		Message: op + " failed",
		Cause:   cause,
	}
}

// ConfigError reports unusable handler configuration.
func ConfigError(msg string) *AppError {
	return &AppError{
		Code:    ErrCodeConfigMissing,
		Message: msg,
	}
}
