package entity

import (
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Роли пользователей
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User представляет локальную учетную запись
type User struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Username    string `gorm:"size:256;not null;uniqueIndex:uq_users_username" json:"username"`
	Email       string `gorm:"size:256;not null;uniqueIndex:uq_users_email" json:"email"`
	PhoneNumber string `gorm:"size:32;not null;default:''" json:"phone_number,omitempty"`
	FirstName   string `gorm:"size:100;not null;default:''" json:"first_name"`
	LastName    string `gorm:"size:100;not null;default:''" json:"last_name"`
	Password    string `gorm:"size:100;not null" json:"-"`
	// SecurityStamp перевыпускается при каждой смене учетных данных
	SecurityStamp string `gorm:"size:64;not null" json:"-"`
	Role          string `gorm:"size:20;not null;default:'user'" json:"-"` // "user" или "admin"

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (User) TableName() string {
	return "users"
}

// IsAdmin возвращает true для администраторов
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// BeforeSave хеширует пароль перед сохранением, только если он не является bcrypt-хешем
func (u *User) BeforeSave(tx *gorm.DB) error {
	if len(u.Password) > 0 && !IsPasswordHash(u.Password) {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Printf("[User.BeforeSave] Ошибка при хешировании пароля для email=%s: %v", u.Email, err)
			return err
		}
		u.Password = string(hashedPassword)
	}
	return nil
}

// CheckPassword проверяет, соответствует ли переданный пароль хешу
func (u *User) CheckPassword(password string) bool {
	if u.Password == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	return err == nil
}

// IsPasswordHash определяет bcrypt-хеш по префиксу ("$2a$", "$2b$" или "$2y$")
func IsPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") ||
		strings.HasPrefix(value, "$2b$") ||
		strings.HasPrefix(value, "$2y$")
}
