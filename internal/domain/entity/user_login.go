package entity

import "time"

// UserLogin links a local user to an external identity provider account.
// (LoginProvider, ProviderKey) is unique; one user may hold links from several providers.
type UserLogin struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	UserID              uint      `gorm:"not null;index" json:"user_id"`
	LoginProvider       string    `gorm:"size:32;not null;uniqueIndex:uq_user_logins_provider_key,priority:1" json:"login_provider"`
	ProviderKey         string    `gorm:"size:255;not null;uniqueIndex:uq_user_logins_provider_key,priority:2" json:"provider_key"`
	ProviderDisplayName string    `gorm:"size:64;not null;default:''" json:"provider_display_name"`
	CreatedAt           time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (UserLogin) TableName() string {
	return "user_logins"
}
