package core

import "errors"

// Error kinds shared by every layer. Callers match them with errors.Is.
var (
	ErrStorageUnavailable    = errors.New("storage unavailable")
	ErrSchema                = errors.New("schema error")
	ErrValidation            = errors.New("validation failed")
	ErrNotFound              = errors.New("not found")
	ErrDuplicateName         = errors.New("duplicate name")
	ErrCategoryInUse         = errors.New("category in use")
	ErrPredictionUnavailable = errors.New("prediction unavailable")

	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
)

// ValidationError reports a rejected input field. It matches ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a *ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
