package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/yourusername/identity-api/internal/domain/entity"
)

// ProviderVerifier проверяет ID токен внешнего провайдера и приводит его к CanonicalIdentity
type ProviderVerifier interface {
	Verify(ctx context.Context, idToken string) (*entity.CanonicalIdentity, error)
}

// AccountMatch определяет, как внешняя личность сопоставляется с локальным аккаунтом
type AccountMatch int

const (
	// MatchByEmail ищет аккаунт по email из токена; пароль выводится из email
	MatchByEmail AccountMatch = iota
	// MatchByLogin ищет аккаунт по привязке (провайдер, subject); имя, email и пароль выводятся из subject
	MatchByLogin
)

type registeredVerifier struct {
	verifier ProviderVerifier
	match    AccountMatch
}

// VerifierRegistry хранит верификаторы по провайдерам. Сам аутентификацию не выполняет.
type VerifierRegistry struct {
	verifiers map[entity.AuthProvider]registeredVerifier
}

func NewVerifierRegistry() *VerifierRegistry {
	return &VerifierRegistry{verifiers: make(map[entity.AuthProvider]registeredVerifier)}
}

// Register добавляет верификатор. INTERNAL не может быть внешним провайдером.
func (r *VerifierRegistry) Register(provider entity.AuthProvider, verifier ProviderVerifier, match AccountMatch) error {
	if verifier == nil {
		return fmt.Errorf("verifier for %s is nil", provider)
	}
	if provider == entity.ProviderInternal {
		return fmt.Errorf("%w: %s cannot be registered as an external provider", ErrUnsupportedProvider, provider)
	}
	if _, exists := r.verifiers[provider]; exists {
		return fmt.Errorf("verifier for %s is already registered", provider)
	}
	r.verifiers[provider] = registeredVerifier{verifier: verifier, match: match}
	return nil
}

// Lookup возвращает верификатор провайдера или ErrUnsupportedProvider
func (r *VerifierRegistry) Lookup(provider entity.AuthProvider) (ProviderVerifier, AccountMatch, error) {
	rv, ok := r.verifiers[provider]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
	return rv.verifier, rv.match, nil
}

// Providers возвращает зарегистрированных провайдеров в стабильном порядке
func (r *VerifierRegistry) Providers() []entity.AuthProvider {
	out := make([]entity.AuthProvider, 0, len(r.verifiers))
	for p := range r.verifiers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
