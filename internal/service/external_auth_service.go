package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/yourusername/identity-api/internal/domain/entity"
	"github.com/yourusername/identity-api/internal/domain/repository"
	apperrors "github.com/yourusername/identity-api/internal/pkg/errors"
)

const defaultVerifierTimeout = 5 * time.Second

// AuthRequest: запрос аутентификации через внешнего провайдера
type AuthRequest struct {
	Provider entity.AuthProvider `json:"provider"`
	IDToken  string              `json:"idToken"`
}

// ExternalAuthService проверяет токен внешнего провайдера, находит или создает локальный аккаунт,
// привязывает внешний логин и выпускает локальный токен через AuthService
type ExternalAuthService struct {
	users           repository.UserStore
	auth            *AuthService
	verifiers       *VerifierRegistry
	credentials     *CredentialSynthesizer
	verifierTimeout time.Duration
}

func NewExternalAuthService(
	users repository.UserStore,
	auth *AuthService,
	verifiers *VerifierRegistry,
	credentials *CredentialSynthesizer,
	verifierTimeout time.Duration,
) (*ExternalAuthService, error) {
	if users == nil {
		return nil, fmt.Errorf("UserStore is required for ExternalAuthService")
	}
	if auth == nil {
		return nil, fmt.Errorf("AuthService is required for ExternalAuthService")
	}
	if verifiers == nil {
		return nil, fmt.Errorf("VerifierRegistry is required for ExternalAuthService")
	}
	if credentials == nil {
		return nil, fmt.Errorf("CredentialSynthesizer is required for ExternalAuthService")
	}
	if verifierTimeout <= 0 {
		verifierTimeout = defaultVerifierTimeout
	}
	return &ExternalAuthService{
		users:           users,
		auth:            auth,
		verifiers:       verifiers,
		credentials:     credentials,
		verifierTimeout: verifierTimeout,
	}, nil
}

// Authenticate выполняет федеративный вход. Шаги строго последовательны:
// проверка токена, поиск аккаунта, регистрация или вход, привязка логина.
func (s *ExternalAuthService) Authenticate(ctx context.Context, req AuthRequest) (string, error) {
	verifier, match, err := s.verifiers.Lookup(req.Provider)
	if err != nil {
		return "", err
	}

	identity, err := s.verify(ctx, req.Provider, verifier, req.IDToken)
	if err != nil {
		return "", err
	}

	var (
		token string
		user  *entity.User
	)
	switch match {
	case MatchByEmail:
		token, user, err = s.resolveByEmail(ctx, identity)
	case MatchByLogin:
		token, user, err = s.resolveByLogin(ctx, identity)
	default:
		return "", fmt.Errorf("%w: unknown account matching mode for %s", ErrUnsupportedProvider, req.Provider)
	}
	if err != nil {
		return "", err
	}

	login := entity.UserLogin{
		LoginProvider:       string(req.Provider),
		ProviderKey:         identity.Subject,
		ProviderDisplayName: req.Provider.DisplayName(),
	}
	if err := s.users.AddLogin(ctx, user, login); err != nil {
		log.Printf("[ExternalAuthService] Ошибка привязки логина %s к пользователю ID=%d: %v", req.Provider, user.ID, err)
		return "", fmt.Errorf("failed to link %s login: %w", req.Provider.DisplayName(), err)
	}

	log.Printf("[ExternalAuthService] Пользователь ID=%d вошел через %s", user.ID, req.Provider.DisplayName())
	return token, nil
}

func (s *ExternalAuthService) verify(ctx context.Context, provider entity.AuthProvider, verifier ProviderVerifier, idToken string) (*entity.CanonicalIdentity, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, fmt.Errorf("%w: %s token is empty, cannot authorize", ErrInvalidToken, provider.DisplayName())
	}

	vctx, cancel := context.WithTimeout(ctx, s.verifierTimeout)
	defer cancel()

	identity, err := verifier.Verify(vctx, idToken)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		// Детали провайдера только в лог, клиенту единая ошибка
		log.Printf("[ExternalAuthService] Проверка токена %s не пройдена: %v", provider.DisplayName(), err)
		return nil, fmt.Errorf("%w: %s token is invalid, cannot authorize", ErrInvalidToken, provider.DisplayName())
	}
	if identity == nil || strings.TrimSpace(identity.Subject) == "" {
		return nil, fmt.Errorf("%w: %s token has no subject", ErrInvalidToken, provider.DisplayName())
	}
	identity.Provider = provider
	return identity, nil
}

// resolveByEmail: аккаунт ищется по email, пароль выводится из email
func (s *ExternalAuthService) resolveByEmail(ctx context.Context, identity *entity.CanonicalIdentity) (string, *entity.User, error) {
	email := normalizeEmail(identity.Email)
	if email == "" {
		return "", nil, fmt.Errorf("%w: email is missing in %s token", ErrInvalidToken, identity.Provider.DisplayName())
	}
	// Email является ключом аккаунта, поэтому неподтвержденный адрес не принимается
	if !identity.EmailVerified {
		log.Printf("[ExternalAuthService] Email %s не подтвержден провайдером %s", email, identity.Provider.DisplayName())
		return "", nil, fmt.Errorf("%w: email is not verified by %s", ErrInvalidToken, identity.Provider.DisplayName())
	}
	password := s.credentials.Password(email)

	_, err := s.users.FindByEmail(ctx, email)
	var token string
	switch {
	case err == nil:
		token, err = s.auth.SignIn(ctx, email, password)
	case errors.Is(err, apperrors.ErrNotFound):
		token, err = s.auth.SignUp(ctx, email, password)
		if errors.Is(err, ErrUserExists) {
			// Параллельный запрос успел создать аккаунт
			token, err = s.auth.SignIn(ctx, email, password)
		}
	default:
		return "", nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if err != nil {
		return "", nil, err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return "", nil, fmt.Errorf("failed to resolve user after sign in: %w", err)
	}
	return token, user, nil
}

// resolveByLogin: аккаунт ищется по привязке (провайдер, subject); имя, email и пароль выводятся из subject
func (s *ExternalAuthService) resolveByLogin(ctx context.Context, identity *entity.CanonicalIdentity) (string, *entity.User, error) {
	subject := identity.Subject
	password := s.credentials.Password(subject)
	derivedEmail := s.credentials.Email(identity.Provider, subject)

	user, err := s.users.FindByLogin(ctx, string(identity.Provider), subject)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return "", nil, fmt.Errorf("failed to find user by login: %w", err)
	}
	if user == nil {
		// Аккаунт мог быть создан ранее без привязки, если прошлый вызов прервался после регистрации
		user, err = s.users.FindByEmail(ctx, derivedEmail)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return "", nil, fmt.Errorf("failed to find user by email: %w", err)
		}
	}

	var token string
	email := derivedEmail
	if user != nil {
		email = user.Email
		token, err = s.auth.SignIn(ctx, email, password)
	} else {
		newUser := &entity.User{
			Username:    s.credentials.Username(identity.Provider, subject),
			Email:       derivedEmail,
			PhoneNumber: identity.Phone,
		}
		token, err = s.auth.SignUpUser(ctx, newUser, password)
		if isDuplicateEmail(err) {
			// Параллельный первый вход с тем же uid успел создать аккаунт
			token, err = s.auth.SignIn(ctx, derivedEmail, password)
		}
	}
	if err != nil {
		return "", nil, err
	}

	resolved, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return "", nil, fmt.Errorf("failed to resolve user after sign in: %w", err)
	}
	return token, resolved, nil
}

func isDuplicateEmail(err error) bool {
	var verr *apperrors.ValidationError
	return errors.As(err, &verr) && verr.Has(apperrors.CodeDuplicateEmail)
}
