package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/yourusername/identity-api/internal/domain/entity"
	apperrors "github.com/yourusername/identity-api/internal/pkg/errors"
)

func (r *UserRepo) findLogin(ctx context.Context, loginProvider, providerKey string) (*entity.UserLogin, error) {
	var login entity.UserLogin
	err := r.db.WithContext(ctx).
		Where("login_provider = ? AND provider_key = ?", loginProvider, providerKey).
		First(&login).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get login by provider key: %w", err)
	}
	return &login, nil
}

// FindByLogin возвращает пользователя, к которому привязан внешний логин
func (r *UserRepo) FindByLogin(ctx context.Context, loginProvider, providerKey string) (*entity.User, error) {
	login, err := r.findLogin(ctx, loginProvider, providerKey)
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, login.UserID)
}

// AddLogin привязывает внешний логин к пользователю.
// Существующая привязка к тому же пользователю не меняется, к другому дает ErrConflict.
func (r *UserRepo) AddLogin(ctx context.Context, user *entity.User, login entity.UserLogin) error {
	if user == nil || user.ID == 0 {
		return fmt.Errorf("%w: persisted user is required", apperrors.ErrValidation)
	}
	if login.LoginProvider == "" || login.ProviderKey == "" {
		return fmt.Errorf("%w: login provider and provider key are required", apperrors.ErrValidation)
	}

	existing, err := r.findLogin(ctx, login.LoginProvider, login.ProviderKey)
	if err == nil {
		return sameOwner(existing, user)
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return err
	}

	login.ID = 0
	login.UserID = user.ID
	if err := r.db.WithContext(ctx).Create(&login).Error; err != nil {
		if _, dup := isUniqueViolation(err); !dup {
			return fmt.Errorf("failed to create user login: %w", err)
		}
		// Параллельный запрос успел создать ту же привязку
		winner, findErr := r.findLogin(ctx, login.LoginProvider, login.ProviderKey)
		if findErr != nil {
			return fmt.Errorf("failed to re-read user login after conflict: %w", findErr)
		}
		return sameOwner(winner, user)
	}
	return nil
}

func sameOwner(login *entity.UserLogin, user *entity.User) error {
	if login.UserID == user.ID {
		return nil
	}
	return fmt.Errorf("%w: %s login is already linked to another account", apperrors.ErrConflict, login.LoginProvider)
}
