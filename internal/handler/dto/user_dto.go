package dto

import (
	"time"

	"github.com/yourusername/identity-api/internal/domain/entity"
)

// UserDTO: публичное представление пользователя
type UserDTO struct {
	ID          uint      `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phoneNumber,omitempty"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewUserDTO преобразует сущность в DTO
func NewUserDTO(u *entity.User) UserDTO {
	return UserDTO{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		PhoneNumber: u.PhoneNumber,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Role:        u.Role,
		CreatedAt:   u.CreatedAt,
	}
}

// UpdateProfileRequest: изменяемые поля профиля
type UpdateProfileRequest struct {
	FirstName string `json:"firstName" binding:"max=100"`
	LastName  string `json:"lastName" binding:"max=100"`
	Phone     string `json:"phone" binding:"max=32"`
}

// PaginatedUsersResponse: страница списка пользователей
type PaginatedUsersResponse struct {
	Users   []UserDTO `json:"users"`
	Page    int       `json:"page"`
	PerPage int       `json:"per_page"`
}
