package errors

import (
	"errors"
	"strings"
)

// Общие ошибки приложения
var (
	// ErrNotFound используется, когда запись или ресурс не найдены.
	ErrNotFound = errors.New("record not found")

	// ErrValidation используется для ошибок валидации входных данных.
	ErrValidation = errors.New("validation failed")

	// ErrConflict используется для конфликтов состояния (например, внешний логин уже привязан к другому аккаунту).
	ErrConflict = errors.New("resource state conflict")
)

// Коды ошибок валидации хранилища пользователей
const (
	CodeDuplicateEmail        = "DuplicateEmail"
	CodeDuplicateUserName     = "DuplicateUserName"
	CodeInvalidEmail          = "InvalidEmail"
	CodeInvalidUserName       = "InvalidUserName"
	CodePasswordTooShort      = "PasswordTooShort"
	CodePasswordRequiresDigit = "PasswordRequiresDigit"
	CodePasswordRequiresLower = "PasswordRequiresLower"
	CodePasswordRequiresUpper = "PasswordRequiresUpper"
)

// ValidationFailure описывает одно нарушение правил хранилища
type ValidationFailure struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// ValidationError агрегирует все нарушения, найденные при создании или обновлении пользователя.
// errors.Is(err, ErrValidation) возвращает true.
type ValidationError struct {
	Failures []ValidationFailure
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ": " + strings.Join(e.Messages(), ", ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Messages возвращает описания нарушений в исходном порядке
func (e *ValidationError) Messages() []string {
	out := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Description)
	}
	return out
}

// Has сообщает, содержит ли ошибка нарушение с указанным кодом
func (e *ValidationError) Has(code string) bool {
	for _, f := range e.Failures {
		if f.Code == code {
			return true
		}
	}
	return false
}

// Add добавляет нарушение
func (e *ValidationError) Add(code, description string) {
	e.Failures = append(e.Failures, ValidationFailure{Code: code, Description: description})
}

// OrNil возвращает nil, если нарушений нет
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Failures) == 0 {
		return nil
	}
	return e
}
