package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/yourusername/identity-api/internal/domain/entity"
	apperrors "github.com/yourusername/identity-api/internal/pkg/errors"
)

// Имена уникальных ограничений из migrations/000001_init.up.sql
const (
	constraintUsersEmail      = "uq_users_email"
	constraintUsersUsername   = "uq_users_username"
	pgUniqueViolationSQLState = "23505"
)

// UserRepo реализует repository.UserStore поверх PostgreSQL
type UserRepo struct {
	db     *gorm.DB
	policy PasswordPolicy
}

// NewUserRepo создает новый репозиторий пользователей
func NewUserRepo(db *gorm.DB) *UserRepo {
	return &UserRepo{db: db, policy: DefaultPasswordPolicy()}
}

// FindByID возвращает пользователя по ID
func (r *UserRepo) FindByID(ctx context.Context, id uint) (*entity.User, error) {
	var user entity.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindByEmail возвращает пользователя по email
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	var user entity.User
	err := r.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// findByUsername возвращает пользователя по имени пользователя
func (r *UserRepo) findByUsername(ctx context.Context, username string) (*entity.User, error) {
	var user entity.User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Create проверяет пользователя и пароль, затем создает запись.
// Пароль хешируется хуком User.BeforeSave, пустой штамп безопасности выпускается здесь.
func (r *UserRepo) Create(ctx context.Context, user *entity.User, password string) error {
	user.Email = normalizeEmail(user.Email)
	user.Username = strings.TrimSpace(user.Username)

	verr := &apperrors.ValidationError{}
	validateUserShape(user, verr)
	policyErr := r.policy.Validate(password)
	verr.Failures = append(verr.Failures, policyErr.Failures...)
	if err := r.checkDuplicates(ctx, user, verr); err != nil {
		return err
	}
	if err := verr.OrNil(); err != nil {
		return err
	}

	user.Password = password
	if user.SecurityStamp == "" {
		user.SecurityStamp = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = entity.RoleUser
	}

	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if mapped := mapUniqueViolation(err, user); mapped != nil {
			return mapped
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	log.Printf("[UserRepo.Create] Пользователь ID=%d (%s) создан", user.ID, user.Email)
	return nil
}

// CheckPassword сравнивает пароль с сохраненным хешем
func (r *UserRepo) CheckPassword(_ context.Context, user *entity.User, password string) (bool, error) {
	if user == nil {
		return false, fmt.Errorf("%w: user is required", apperrors.ErrValidation)
	}
	return user.CheckPassword(password), nil
}

// Update сохраняет изменения профиля. Пароль и штамп безопасности не меняются.
func (r *UserRepo) Update(ctx context.Context, user *entity.User) error {
	if user == nil || user.ID == 0 {
		return fmt.Errorf("%w: persisted user is required", apperrors.ErrValidation)
	}
	user.Email = normalizeEmail(user.Email)
	user.Username = strings.TrimSpace(user.Username)

	verr := &apperrors.ValidationError{}
	validateUserShape(user, verr)
	if err := r.checkDuplicates(ctx, user, verr); err != nil {
		return err
	}
	if err := verr.OrNil(); err != nil {
		return err
	}

	if err := r.db.WithContext(ctx).Save(user).Error; err != nil {
		if mapped := mapUniqueViolation(err, user); mapped != nil {
			return mapped
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// List возвращает список пользователей с пагинацией
func (r *UserRepo) List(ctx context.Context, limit, offset int) ([]entity.User, error) {
	var users []entity.User
	err := r.db.WithContext(ctx).Limit(limit).Offset(offset).Order("id").Find(&users).Error
	return users, err
}

// checkDuplicates дополняет verr нарушениями уникальности email и имени пользователя.
// Окончательную гарантию дают уникальные ограничения БД.
func (r *UserRepo) checkDuplicates(ctx context.Context, user *entity.User, verr *apperrors.ValidationError) error {
	if user.Email != "" {
		existing, err := r.FindByEmail(ctx, user.Email)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return fmt.Errorf("failed to check email existence: %w", err)
		}
		if existing != nil && existing.ID != user.ID {
			verr.Add(apperrors.CodeDuplicateEmail, fmt.Sprintf("Email '%s' is already taken.", user.Email))
		}
	}

	if user.Username != "" {
		existing, err := r.findByUsername(ctx, user.Username)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return fmt.Errorf("failed to check username existence: %w", err)
		}
		if existing != nil && existing.ID != user.ID {
			verr.Add(apperrors.CodeDuplicateUserName, fmt.Sprintf("Username '%s' is already taken.", user.Username))
		}
	}
	return nil
}

// isUniqueViolation возвращает имя нарушенного ограничения, если ошибка является нарушением уникальности
func isUniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationSQLState {
		return pgErr.ConstraintName, true
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return "", true
	}
	return "", false
}

// mapUniqueViolation превращает проигранную гонку за уникальный email/username в ValidationError
func mapUniqueViolation(err error, user *entity.User) error {
	constraint, ok := isUniqueViolation(err)
	if !ok {
		return nil
	}

	verr := &apperrors.ValidationError{}
	switch constraint {
	case constraintUsersUsername:
		verr.Add(apperrors.CodeDuplicateUserName, fmt.Sprintf("Username '%s' is already taken.", user.Username))
	default:
		verr.Add(apperrors.CodeDuplicateEmail, fmt.Sprintf("Email '%s' is already taken.", user.Email))
	}
	return verr
}
