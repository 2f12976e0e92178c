package models

import "fmt"

// ValidationError reports a bad input or business-rule violation. Its
// message is safe to surface to clinic staff.
type ValidationError struct {
	Message string
	Cause   error
}

func (e ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e ValidationError) Unwrap() error {
	return e.Cause
}

// NewValidationError wraps a cause with a user-facing message.
func NewValidationError(message string, cause error) ValidationError {
	return ValidationError{Message: message, Cause: cause}
}

// ConfigError reports missing or invalid configuration. It fails fast,
// before any network call is made.
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
