package service

import (
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/yourusername/identity-api/internal/pkg/errors"
)

// Auth flow specific errors used by handlers for stable error_type mapping.
var (
	ErrUserExists           = errors.New("user_exists")
	ErrUserNotFound         = errors.New("user_not_found")
	ErrInvalidPassword      = errors.New("invalid_password")
	ErrInvalidToken         = errors.New("invalid_token")
	ErrUnsupportedProvider  = errors.New("unsupported_provider")
	ErrUnsupportedOperation = errors.New("unsupported_operation")
)

// RegistrationError is returned when the user store rejects a create or update.
// It carries the store's validation messages and unwraps to the underlying *apperrors.ValidationError.
type RegistrationError struct {
	Subject  string
	Messages []string
	cause    error
}

func newRegistrationError(subject string, verr *apperrors.ValidationError) *RegistrationError {
	return &RegistrationError{
		Subject:  subject,
		Messages: verr.Messages(),
		cause:    verr,
	}
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("user %s cannot be registered. Errors: %s", e.Subject, strings.Join(e.Messages, ", "))
}

func (e *RegistrationError) Unwrap() error {
	return e.cause
}
