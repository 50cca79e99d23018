package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/identity-api/internal/config"
	"github.com/yourusername/identity-api/internal/domain/entity"
	"github.com/yourusername/identity-api/internal/handler"
	"github.com/yourusername/identity-api/internal/middleware"
	pgRepo "github.com/yourusername/identity-api/internal/repository/postgres"
	"github.com/yourusername/identity-api/internal/service"
	"github.com/yourusername/identity-api/pkg/auth"
	"github.com/yourusername/identity-api/pkg/database"
)

func main() {
	// Загружаем конфигурацию
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	isProduction := os.Getenv("GIN_MODE") == "release"
	if isProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Инициализируем подключение к PostgreSQL
	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString(), database.DefaultPoolConfig(), !isProduction)
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	// Применяем миграции
	if err := database.MigrateDB(db, database.DefaultMigrationsURL); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	// Redis нужен только для rate limiting. Без него сервис работает без ограничений.
	var rateLimiter *middleware.RateLimiter
	if cfg.Redis.Addr != "" || len(cfg.Redis.Addrs) > 0 {
		redisClient, err := database.NewUniversalRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Printf("Failed to connect to Redis: %v", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		rateLimiter = middleware.NewRateLimiter(redisClient)
	} else {
		log.Println("Redis не настроен, rate limiting отключен")
	}

	jwtService, err := auth.NewJWTService(auth.JWTConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.ValidIssuer,
		Audience: cfg.JWT.ValidAudience,
		Expiry:   cfg.JWT.Expiry(),
	})
	if err != nil {
		log.Printf("Failed to initialize JWT service: %v", err)
		os.Exit(1)
	}

	userRepo := pgRepo.NewUserRepo(db)

	credentials, err := service.NewCredentialSynthesizer(cfg.Auth.FederationSecret)
	if err != nil {
		log.Printf("Failed to initialize credential synthesizer: %v", err)
		os.Exit(1)
	}

	verifiers := service.NewVerifierRegistry()
	if google := cfg.Authentication.Google; google.Enabled() {
		verifier, err := service.NewGoogleVerifier(google.ClientID)
		if err != nil {
			log.Printf("Failed to initialize Google verifier: %v", err)
			os.Exit(1)
		}
		if err := verifiers.Register(entity.ProviderGoogle, verifier, service.MatchByEmail); err != nil {
			log.Printf("Failed to register Google verifier: %v", err)
			os.Exit(1)
		}
	}
	if firebase := cfg.Authentication.Firebase; firebase.Enabled() {
		verifier, err := service.NewFirebaseVerifier(ctx, firebase.ProjectID, firebase.CredentialsFile)
		if err != nil {
			log.Printf("Failed to initialize Firebase verifier: %v", err)
			os.Exit(1)
		}
		if err := verifiers.Register(entity.ProviderFirebase, verifier, service.MatchByLogin); err != nil {
			log.Printf("Failed to register Firebase verifier: %v", err)
			os.Exit(1)
		}
	}
	log.Printf("Внешние провайдеры: %v", verifiers.Providers())

	// Инициализируем сервисы
	authService, err := service.NewAuthService(userRepo, jwtService)
	if err != nil {
		log.Printf("Failed to initialize auth service: %v", err)
		os.Exit(1)
	}
	externalAuthService, err := service.NewExternalAuthService(userRepo, authService, verifiers, credentials, cfg.Auth.VerifierTimeout())
	if err != nil {
		log.Printf("Failed to initialize external auth service: %v", err)
		os.Exit(1)
	}
	userService := service.NewUserService(userRepo)

	// Инициализируем обработчики и роутер
	router := handler.NewRouter(handler.RouterConfig{
		Auth:           handler.NewAuthHandler(authService, externalAuthService, cfg.JWT.Expiry()),
		Users:          handler.NewUserHandler(userService),
		AuthMiddleware: middleware.NewAuthMiddleware(jwtService, userRepo),
		RateLimiter:    rateLimiter,
		AllowedOrigins: cfg.Auth.AllowedOrigins,
	})

	// В production не доверяем прокси-заголовкам (защита от IP spoofing)
	trustedProxies := []string{"127.0.0.1", "::1"}
	if isProduction {
		trustedProxies = nil
	}
	if err := router.SetTrustedProxies(trustedProxies); err != nil {
		log.Printf("Warning: failed to set trusted proxies: %v", err)
	}

	// Настраиваем HTTP сервер с тайм-аутами для защиты от slow client attacks
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}
	log.Println("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	if sqlDB, err := database.GetSQLDB(db); err == nil {
		_ = sqlDB.Close()
	}
	log.Println("Server exited properly")
}
