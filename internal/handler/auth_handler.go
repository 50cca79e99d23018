package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/identity-api/internal/handler/dto"
	"github.com/yourusername/identity-api/internal/middleware"
	apperrors "github.com/yourusername/identity-api/internal/pkg/errors"
	"github.com/yourusername/identity-api/internal/service"
)

// CredentialAuthenticator: локальная регистрация и вход (service.AuthService)
type CredentialAuthenticator interface {
	SignUp(ctx context.Context, email, password string) (string, error)
	SignIn(ctx context.Context, email, password string) (string, error)
	SignOut(ctx context.Context, email string) error
}

// ExternalAuthenticator: вход через внешнего провайдера (service.ExternalAuthService)
type ExternalAuthenticator interface {
	Authenticate(ctx context.Context, req service.AuthRequest) (string, error)
}

// AuthHandler обрабатывает запросы, связанные с аутентификацией
type AuthHandler struct {
	credentials CredentialAuthenticator
	external    ExternalAuthenticator
	tokenTTL    time.Duration
}

// NewAuthHandler создает новый обработчик аутентификации
func NewAuthHandler(credentials CredentialAuthenticator, external ExternalAuthenticator, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		credentials: credentials,
		external:    external,
		tokenTTL:    tokenTTL,
	}
}

// SignUp обрабатывает регистрацию по email и паролю
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req dto.CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "error_type": "validation_error", "details": err.Error()})
		return
	}

	token, err := h.credentials.SignUp(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		handleAuthError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.tokenResponse(token))
}

// SignIn обрабатывает вход по email и паролю
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req dto.CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "error_type": "validation_error", "details": err.Error()})
		return
	}

	token, err := h.credentials.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		handleAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.tokenResponse(token))
}

// External обрабатывает вход через Google или Firebase
func (h *AuthHandler) External(c *gin.Context) {
	var req dto.ExternalAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "error_type": "validation_error", "details": err.Error()})
		return
	}

	token, err := h.external.Authenticate(c.Request.Context(), service.AuthRequest{
		Provider: req.Provider,
		IDToken:  req.IDToken,
	})
	if err != nil {
		handleAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.tokenResponse(token))
}

// SignOut всегда отвечает 501: токены живут до истечения срока.
// Пользователь берется только из токена.
func (h *AuthHandler) SignOut(c *gin.Context) {
	email := c.GetString(middleware.ContextKeyEmail)
	if err := h.credentials.SignOut(c.Request.Context(), email); err != nil {
		handleAuthError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) tokenResponse(token string) dto.TokenResponse {
	return dto.TokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int(h.tokenTTL.Seconds()),
	}
}

// handleAuthError: единая точка преобразования ошибок сервисов в HTTP ответы
func handleAuthError(c *gin.Context, err error) {
	log.Printf("[AuthHandler] Auth Error: %v", err) // Полная ошибка только в лог

	var regErr *service.RegistrationError
	switch {
	case errors.As(err, &regErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "User cannot be registered", "error_type": "registration_failed", "details": regErr.Messages})
	case errors.Is(err, service.ErrUserExists):
		c.JSON(http.StatusConflict, gin.H{"error": "User already exists", "error_type": "user_exists"})
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found", "error_type": "user_not_found"})
	case errors.Is(err, service.ErrInvalidPassword):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid password", "error_type": "invalid_password"})
	case errors.Is(err, service.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "External token is invalid", "error_type": "invalid_token"})
	case errors.Is(err, service.ErrUnsupportedProvider):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Provider is not supported", "error_type": "unsupported_provider"})
	case errors.Is(err, service.ErrUnsupportedOperation):
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Operation is not supported", "error_type": "unsupported_operation"})
	case errors.Is(err, apperrors.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Conflict", "error_type": "conflict"})
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "error_type": "validation_error"})
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found", "error_type": "not_found"})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Request timed out", "error_type": "timeout"})
	case errors.Is(err, context.Canceled):
		c.JSON(499, gin.H{"error": "Request canceled", "error_type": "canceled"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "error_type": "internal_server_error"})
	}
}
