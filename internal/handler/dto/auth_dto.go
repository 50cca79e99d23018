package dto

import "github.com/yourusername/identity-api/internal/domain/entity"

// CredentialsRequest: тело запросов sign-up и sign-in
type CredentialsRequest struct {
	Email    string `json:"email" binding:"required,email,max=256"`
	Password string `json:"password" binding:"required,max=128"`
}

// ExternalAuthRequest: тело запроса входа через внешнего провайдера.
// provider принимает имя ("GOOGLE") или индекс перечисления (1).
type ExternalAuthRequest struct {
	Provider entity.AuthProvider `json:"provider" binding:"required"`
	IDToken  string              `json:"idToken" binding:"required"`
}

// TokenResponse: выпущенный bearer токен
type TokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"tokenType"`
	ExpiresIn int    `json:"expiresIn"` // секунды
}
