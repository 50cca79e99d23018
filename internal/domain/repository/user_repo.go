package repository

import (
	"context"

	"github.com/yourusername/identity-api/internal/domain/entity"
)

// UserStore определяет операции хранилища пользователей, нужные подсистеме аутентификации.
// Поиск возвращает apperrors.ErrNotFound, если запись отсутствует.
// Create и Update возвращают *apperrors.ValidationError при нарушении правил хранилища.
type UserStore interface {
	FindByID(ctx context.Context, id uint) (*entity.User, error)
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	FindByLogin(ctx context.Context, loginProvider, providerKey string) (*entity.User, error)
	Create(ctx context.Context, user *entity.User, password string) error
	CheckPassword(ctx context.Context, user *entity.User, password string) (bool, error)
	// AddLogin идемпотентна: повторная привязка того же логина к тому же пользователю не является ошибкой
	AddLogin(ctx context.Context, user *entity.User, login entity.UserLogin) error
	Update(ctx context.Context, user *entity.User) error
	List(ctx context.Context, limit, offset int) ([]entity.User, error)
}
