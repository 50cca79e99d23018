package postgres

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"

	"github.com/yourusername/identity-api/internal/domain/entity"
	apperrors "github.com/yourusername/identity-api/internal/pkg/errors"
)

// allowedUserNameChars соответствует допустимым символам имени пользователя
const allowedUserNameChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-._@+"

// PasswordPolicy описывает требования к паролю при создании учетной записи
type PasswordPolicy struct {
	RequiredLength   int
	RequireDigit     bool
	RequireLowercase bool
	RequireUppercase bool
	RequireNonAlpha  bool
}

// DefaultPasswordPolicy: минимум 6 символов, цифра, строчная и заглавная буквы; спецсимвол не обязателен
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		RequiredLength:   6,
		RequireDigit:     true,
		RequireLowercase: true,
		RequireUppercase: true,
		RequireNonAlpha:  false,
	}
}

// Validate возвращает все нарушения политики сразу, а не первое найденное
func (p PasswordPolicy) Validate(password string) *apperrors.ValidationError {
	verr := &apperrors.ValidationError{}

	if len(password) < p.RequiredLength {
		verr.Add(apperrors.CodePasswordTooShort, fmt.Sprintf("Passwords must be at least %d characters.", p.RequiredLength))
	}

	var hasDigit, hasLower, hasUpper, hasNonAlpha bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			hasNonAlpha = true
		}
	}

	if p.RequireNonAlpha && !hasNonAlpha {
		verr.Add("PasswordRequiresNonAlphanumeric", "Passwords must have at least one non alphanumeric character.")
	}
	if p.RequireDigit && !hasDigit {
		verr.Add(apperrors.CodePasswordRequiresDigit, "Passwords must have at least one digit ('0'-'9').")
	}
	if p.RequireLowercase && !hasLower {
		verr.Add(apperrors.CodePasswordRequiresLower, "Passwords must have at least one lowercase ('a'-'z').")
	}
	if p.RequireUppercase && !hasUpper {
		verr.Add(apperrors.CodePasswordRequiresUpper, "Passwords must have at least one uppercase ('A'-'Z').")
	}

	return verr
}

// normalizeEmail приводит email к каноническому виду для хранения и поиска
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateUserShape проверяет формат имени пользователя и email
func validateUserShape(user *entity.User, verr *apperrors.ValidationError) {
	if user.Username == "" || strings.Trim(user.Username, allowedUserNameChars) != "" {
		verr.Add(apperrors.CodeInvalidUserName, fmt.Sprintf("Username '%s' is invalid, can only contain letters or digits.", user.Username))
	}

	addr, err := mail.ParseAddress(user.Email)
	if user.Email == "" || err != nil || addr.Address != user.Email {
		verr.Add(apperrors.CodeInvalidEmail, fmt.Sprintf("Email '%s' is invalid.", user.Email))
	}
}
