package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/yourusername/identity-api/internal/domain/entity"
	"github.com/yourusername/identity-api/internal/domain/repository"
	apperrors "github.com/yourusername/identity-api/internal/pkg/errors"
)

// ProfileUpdate содержит изменяемые поля профиля
type ProfileUpdate struct {
	FirstName string
	LastName  string
	Phone     string
}

// UserService предоставляет методы для работы с профилями пользователей
type UserService struct {
	users repository.UserStore
}

// NewUserService создает новый сервис пользователей
func NewUserService(users repository.UserStore) *UserService {
	return &UserService{
		users: users,
	}
}

// GetByEmail возвращает пользователя по email из токена
func (s *UserService) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: there is no such user with email %s", ErrUserNotFound, normalizeEmail(email))
		}
		return nil, err
	}
	return user, nil
}

// List возвращает страницу пользователей
func (s *UserService) List(ctx context.Context, page, pageSize int) ([]entity.User, error) {
	// Валидация параметров пагинации
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20 // Значение по умолчанию
	} else if pageSize > 100 {
		pageSize = 100 // Максимальный лимит
	}

	users, err := s.users.List(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		log.Printf("[UserService] Ошибка при получении списка пользователей: %v", err)
		return nil, err
	}
	return users, nil
}

// UpdateProfile обновляет профиль текущего пользователя
func (s *UserService) UpdateProfile(ctx context.Context, email string, update ProfileUpdate) (*entity.User, error) {
	user, err := s.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, user, update)
}

// UpdateUser обновляет профиль произвольного пользователя (для администраторов)
func (s *UserService) UpdateUser(ctx context.Context, id uint, update ProfileUpdate) (*entity.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: there is no such user with id %d", ErrUserNotFound, id)
		}
		return nil, err
	}
	return s.apply(ctx, user, update)
}

func (s *UserService) apply(ctx context.Context, user *entity.User, update ProfileUpdate) (*entity.User, error) {
	user.FirstName = strings.TrimSpace(update.FirstName)
	user.LastName = strings.TrimSpace(update.LastName)
	user.PhoneNumber = strings.TrimSpace(update.Phone)

	if err := s.users.Update(ctx, user); err != nil {
		var verr *apperrors.ValidationError
		if errors.As(err, &verr) {
			return nil, newRegistrationError("with email "+user.Email, verr)
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	log.Printf("[UserService] Профиль пользователя ID=%d обновлен", user.ID)
	return user, nil
}
