package handler

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/identity-api/internal/middleware"
)

// RouterConfig собирает зависимости HTTP слоя
type RouterConfig struct {
	Auth           *AuthHandler
	Users          *UserHandler
	AuthMiddleware *middleware.AuthMiddleware
	// RateLimiter может быть nil (Redis не настроен)
	RateLimiter    *middleware.RateLimiter
	AllowedOrigins []string
}

// NewRouter регистрирует маршруты API
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	if len(cfg.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		authGroup := api.Group("/auth")
		credentials := []gin.HandlerFunc{}
		if cfg.RateLimiter != nil {
			authGroup.Use(cfg.RateLimiter.LimitByIP(middleware.AuthRateLimitConfig()))
			credentials = append(credentials, cfg.RateLimiter.Limit(middleware.CredentialsRateLimitConfig()))
		}
		{
			authGroup.POST("/sign-up", append(credentials, cfg.Auth.SignUp)...)
			authGroup.POST("/sign-in", append(credentials, cfg.Auth.SignIn)...)
			authGroup.POST("/external", cfg.Auth.External)
			authGroup.POST("/sign-out", cfg.AuthMiddleware.RequireAuth(), cfg.Auth.SignOut)
		}

		users := api.Group("/users", cfg.AuthMiddleware.RequireAuth())
		{
			users.GET("/me", cfg.Users.GetMe)
			users.PUT("/me", cfg.Users.UpdateMe)
		}

		admin := api.Group("/admin", cfg.AuthMiddleware.RequireAuth(), cfg.AuthMiddleware.AdminOnly())
		{
			admin.GET("/users", cfg.Users.ListUsers)
			admin.PUT("/users/:id", middleware.ExtractUintParam("id", ContextKeyUserIDParam), cfg.Users.UpdateUser)
		}
	}

	return router
}
