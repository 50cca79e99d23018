package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/yourusername/identity-api/internal/domain/entity"
	"github.com/yourusername/identity-api/internal/domain/repository"
	apperrors "github.com/yourusername/identity-api/internal/pkg/errors"
	"github.com/yourusername/identity-api/pkg/auth"
)

// TokenIssuer подписывает набор утверждений. Реализуется auth.JWTService.
type TokenIssuer interface {
	Issue(claims auth.ClaimSet) (string, error)
}

// AuthService выполняет локальную регистрацию и вход по email/паролю
type AuthService struct {
	users      repository.UserStore
	tokens     TokenIssuer
	newTokenID func() string
}

// NewAuthService создает новый сервис аутентификации и возвращает ошибку при проблемах
func NewAuthService(users repository.UserStore, tokens TokenIssuer) (*AuthService, error) {
	if users == nil {
		return nil, fmt.Errorf("UserStore is required for AuthService")
	}
	if tokens == nil {
		return nil, fmt.Errorf("TokenIssuer is required for AuthService")
	}
	return &AuthService{
		users:      users,
		tokens:     tokens,
		newTokenID: uuid.NewString,
	}, nil
}

// SignUp регистрирует пользователя с email в качестве имени и сразу выполняет вход
func (s *AuthService) SignUp(ctx context.Context, email, password string) (string, error) {
	email = normalizeEmail(email)

	// Проверяем, существует ли пользователь с таким email
	existing, err := s.users.FindByEmail(ctx, email)
	if err == nil && existing != nil {
		return "", fmt.Errorf("%w: there already is a user registered with email %s", ErrUserExists, email)
	}
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return "", fmt.Errorf("failed to check email existence: %w", err)
	}

	user := &entity.User{
		Username:      email,
		Email:         email,
		SecurityStamp: uuid.NewString(),
	}
	if err := s.users.Create(ctx, user, password); err != nil {
		var verr *apperrors.ValidationError
		if errors.As(err, &verr) {
			// Параллельная регистрация на тот же email проиграла гонку в хранилище
			if verr.Has(apperrors.CodeDuplicateEmail) {
				return "", fmt.Errorf("%w: there already is a user registered with email %s", ErrUserExists, email)
			}
			return "", newRegistrationError("with email "+email, verr)
		}
		return "", fmt.Errorf("failed to create user: %w", err)
	}

	log.Printf("[AuthService] Пользователь ID=%d (%s) зарегистрирован", user.ID, user.Email)
	return s.SignIn(ctx, email, password)
}

// SignUpUser регистрирует заранее собранного пользователя (имя, email, телефон задает вызывающий)
// и выполняет вход. Используется при автоматическом создании внешних аккаунтов.
func (s *AuthService) SignUpUser(ctx context.Context, user *entity.User, password string) (string, error) {
	if user == nil {
		return "", fmt.Errorf("%w: user is required", apperrors.ErrValidation)
	}
	if user.SecurityStamp == "" {
		user.SecurityStamp = uuid.NewString()
	}

	if err := s.users.Create(ctx, user, password); err != nil {
		var verr *apperrors.ValidationError
		if errors.As(err, &verr) {
			return "", newRegistrationError(registrationSubject(user), verr)
		}
		return "", fmt.Errorf("failed to create user: %w", err)
	}

	log.Printf("[AuthService] Пользователь ID=%d (%s) зарегистрирован", user.ID, user.Email)
	return s.SignIn(ctx, user.Email, password)
}

// SignIn проверяет учетные данные и выпускает токен с email и уникальным идентификатором токена
func (s *AuthService) SignIn(ctx context.Context, email, password string) (string, error) {
	email = normalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return "", fmt.Errorf("%w: there is no such user with email %s", ErrUserNotFound, email)
		}
		return "", fmt.Errorf("failed to find user: %w", err)
	}

	ok, err := s.users.CheckPassword(ctx, user, password)
	if err != nil {
		return "", fmt.Errorf("failed to check password: %w", err)
	}
	if !ok {
		log.Printf("[AuthService] Неверный пароль для пользователя ID=%d", user.ID)
		return "", fmt.Errorf("%w: unable to authenticate user %s", ErrInvalidPassword, email)
	}

	claims := auth.ClaimSet{
		{Type: auth.ClaimEmail, Value: user.Email},
		{Type: auth.ClaimTokenID, Value: s.newTokenID()},
	}
	token, err := s.tokens.Issue(claims)
	if err != nil {
		log.Printf("[AuthService] Ошибка выпуска токена для пользователя ID=%d: %v", user.ID, err)
		return "", fmt.Errorf("failed to issue token: %w", err)
	}

	log.Printf("[AuthService] Пользователь ID=%d (%s) успешно вошел в систему", user.ID, user.Email)
	return token, nil
}

// SignOut не поддерживается: выпущенные токены действительны до истечения срока
func (s *AuthService) SignOut(_ context.Context, email string) error {
	return fmt.Errorf("%w: sign out is not supported (email %s)", ErrUnsupportedOperation, normalizeEmail(email))
}

// ClearUsers не поддерживается
func (s *AuthService) ClearUsers(_ context.Context) error {
	return fmt.Errorf("%w: clearing users is not supported", ErrUnsupportedOperation)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func registrationSubject(user *entity.User) string {
	if user.PhoneNumber != "" {
		return "with phone " + user.PhoneNumber
	}
	return "with email " + user.Email
}
