package entity

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AuthProvider определяет источник идентичности в запросе внешней аутентификации
type AuthProvider string

const (
	ProviderInternal AuthProvider = "INTERNAL"
	ProviderGoogle   AuthProvider = "GOOGLE"
	ProviderFirebase AuthProvider = "FIREBASE"
	ProviderApple    AuthProvider = "APPLE"
)

// DisplayName возвращает человекочитаемое имя провайдера
func (p AuthProvider) DisplayName() string {
	switch p {
	case ProviderGoogle:
		return "Google"
	case ProviderFirebase:
		return "Firebase"
	case ProviderApple:
		return "Apple"
	case ProviderInternal:
		return "Internal"
	default:
		return string(p)
	}
}

// ParseAuthProvider разбирает имя провайдера без учета регистра
func ParseAuthProvider(value string) (AuthProvider, error) {
	p := AuthProvider(strings.ToUpper(strings.TrimSpace(value)))
	switch p {
	case ProviderInternal, ProviderGoogle, ProviderFirebase, ProviderApple:
		return p, nil
	default:
		return "", fmt.Errorf("unknown auth provider %q", value)
	}
}

// UnmarshalJSON принимает как строковое имя ("GOOGLE"), так и числовой индекс перечисления
func (p *AuthProvider) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		parsed, err := ParseAuthProvider(name)
		if err != nil {
			return err
		}
		*p = parsed
		return nil
	}

	var index int
	if err := json.Unmarshal(data, &index); err != nil {
		return fmt.Errorf("auth provider must be a string or an integer: %w", err)
	}
	ordered := []AuthProvider{ProviderInternal, ProviderGoogle, ProviderFirebase, ProviderApple}
	if index < 0 || index >= len(ordered) {
		return fmt.Errorf("unknown auth provider index %d", index)
	}
	*p = ordered[index]
	return nil
}

// CanonicalIdentity is the provider-agnostic result of verifying an external token.
// It is produced per request and never stored as is.
type CanonicalIdentity struct {
	Provider AuthProvider
	Subject  string
	Email    string
	Phone    string
	// EmailVerified: провайдер подтвердил владение Email
	EmailVerified bool
}
