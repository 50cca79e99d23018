package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/identity-api/internal/domain/entity"
	"github.com/yourusername/identity-api/pkg/auth"
)

// Ключи значений, которые middleware кладет в gin.Context
const (
	ContextKeyEmail   = "email"
	ContextKeyTokenID = "token_id"
	ContextKeyIsAdmin = "is_admin"
)

// TokenParser проверяет bearer токен. Реализуется auth.JWTService.
type TokenParser interface {
	ParseToken(token string) (*auth.JWTCustomClaims, error)
}

// UserLookup находит пользователя по email из токена
type UserLookup interface {
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
}

// AuthMiddleware обеспечивает аутентификацию для защищенных маршрутов
type AuthMiddleware struct {
	tokens TokenParser
	users  UserLookup
}

// NewAuthMiddleware создает новый middleware
func NewAuthMiddleware(tokens TokenParser, users UserLookup) *AuthMiddleware {
	return &AuthMiddleware{
		tokens: tokens,
		users:  users,
	}
}

// RequireAuth проверяет заголовок Authorization: Bearer {token}
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required", "error_type": "token_missing"})
			return
		}

		// Проверяем формат заголовка Bearer {token}
		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}", "error_type": "token_format"})
			return
		}

		claims, err := m.tokens.ParseToken(parts[1])
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token is expired", "error_type": "token_expired"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token", "error_type": "token_invalid"})
			return
		}
		if claims.Email == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token has no email claim", "error_type": "token_invalid"})
			return
		}

		c.Set(ContextKeyEmail, claims.Email)
		c.Set(ContextKeyTokenID, claims.ID)
		c.Next()
	}
}

// AdminOnly проверяет роль пользователя. Роль не хранится в токене и читается из хранилища,
// поэтому снятие прав действует сразу. Должен применяться ПОСЛЕ RequireAuth.
func (m *AuthMiddleware) AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		email := c.GetString(ContextKeyEmail)
		if email == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "error_type": "unauthorized"})
			return
		}

		user, err := m.users.FindByEmail(c.Request.Context(), email)
		if err != nil {
			log.Printf("[AuthMiddleware] Не удалось загрузить пользователя %s для проверки роли: %v", email, err)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin rights required", "error_type": "forbidden"})
			return
		}
		if !user.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin rights required", "error_type": "forbidden"})
			return
		}

		c.Set(ContextKeyIsAdmin, true)
		c.Next()
	}
}
