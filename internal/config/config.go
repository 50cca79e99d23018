package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config хранит все настройки приложения
type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Redis          RedisConfig
	JWT            JWTConfig
	Authentication AuthenticationConfig
	Auth           AuthConfig
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port         string
	ReadTimeout  int `mapstructure:"readTimeout"`
	WriteTimeout int `mapstructure:"writeTimeout"`
}

// DatabaseConfig содержит настройки подключения к PostgreSQL
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig содержит унифицированные настройки подключения к Redis
// Поддерживает режимы: single, sentinel, cluster
type RedisConfig struct {
	// Mode: Режим работы Redis ("single", "sentinel", "cluster"). По умолчанию "single".
	Mode string `mapstructure:"mode"`

	// Addrs: Список адресов Redis (хост:порт). Для 'single' используется первый адрес.
	Addrs []string `mapstructure:"addrs"`

	// Addr: Альтернативный адрес для режима 'single'.
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// MasterName: Имя мастер-сервера Redis (только для режима "sentinel")
	MasterName string `mapstructure:"master_name"`
}

// JWTConfig содержит настройки выпуска токенов
type JWTConfig struct {
	Secret        string `mapstructure:"secret"`
	ValidIssuer   string `mapstructure:"validIssuer"`
	ValidAudience string `mapstructure:"validAudience"`
	ExpirationHrs int    `mapstructure:"expirationHrs"`
}

// Expiry возвращает срок жизни токена
func (j JWTConfig) Expiry() time.Duration {
	return time.Duration(j.ExpirationHrs) * time.Hour
}

// AuthenticationConfig содержит настройки внешних провайдеров идентичности
type AuthenticationConfig struct {
	Google   GoogleConfig   `mapstructure:"google"`
	Firebase FirebaseConfig `mapstructure:"firebase"`
}

// GoogleConfig: client id, с которым сверяется аудитория Google ID токена
type GoogleConfig struct {
	ClientID string `mapstructure:"clientId"`
}

// Enabled возвращает true, если Google настроен
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != ""
}

// FirebaseConfig содержит проект Firebase и путь к ключу сервисного аккаунта
type FirebaseConfig struct {
	ProjectID       string `mapstructure:"projectId"`
	CredentialsFile string `mapstructure:"credentialsFile"`
}

// Enabled возвращает true, если Firebase настроен
func (f FirebaseConfig) Enabled() bool {
	return f.ProjectID != ""
}

// AuthConfig содержит настройки подсистемы аутентификации
type AuthConfig struct {
	// FederationSecret: ключ детерминированной генерации учетных данных для внешних аккаунтов.
	// Смена ключа делает невозможным вход в ранее созданные внешние аккаунты.
	FederationSecret   string   `mapstructure:"federationSecret"`
	VerifierTimeoutSec int      `mapstructure:"verifierTimeoutSec"`
	AllowedOrigins     []string `mapstructure:"allowedOrigins"`
}

// VerifierTimeout возвращает ограничение на один вызов внешнего провайдера
func (a AuthConfig) VerifierTimeout() time.Duration {
	return time.Duration(a.VerifierTimeoutSec) * time.Second
}

// PostgresConnectionString формирует строку подключения к PostgreSQL
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// Load загружает конфигурацию из файла
func Load(configPath string) (*Config, error) {
	vip := viper.New() // Используем новый экземпляр Viper, чтобы избежать глобального состояния

	// 1. Значения по умолчанию
	vip.SetDefault("server.port", "8080")
	vip.SetDefault("server.readTimeout", 10)
	vip.SetDefault("server.writeTimeout", 10)
	vip.SetDefault("database.sslmode", "disable")
	vip.SetDefault("redis.mode", "single")
	vip.SetDefault("jwt.expirationHrs", 3)
	vip.SetDefault("auth.verifierTimeoutSec", 5)
	vip.SetDefault("auth.allowedOrigins", []string{"http://localhost:4200"})

	// 2. Привязываем переменные окружения ЯВНО
	vip.BindEnv("database.host", "DATABASE_HOST")
	vip.BindEnv("database.port", "DATABASE_PORT")
	vip.BindEnv("database.user", "DATABASE_USER")
	vip.BindEnv("database.password", "DATABASE_PASSWORD")
	vip.BindEnv("database.dbname", "DATABASE_DBNAME")
	vip.BindEnv("database.sslmode", "DATABASE_SSLMODE")

	vip.BindEnv("redis.mode", "REDIS_MODE")
	vip.BindEnv("redis.addrs", "REDIS_ADDRS")
	vip.BindEnv("redis.addr", "REDIS_ADDR")
	vip.BindEnv("redis.password", "REDIS_PASSWORD")
	vip.BindEnv("redis.db", "REDIS_DB")
	vip.BindEnv("redis.master_name", "REDIS_MASTER_NAME")

	vip.BindEnv("jwt.secret", "JWT_SECRET")
	vip.BindEnv("jwt.validIssuer", "JWT_VALID_ISSUER")
	vip.BindEnv("jwt.validAudience", "JWT_VALID_AUDIENCE")
	vip.BindEnv("jwt.expirationHrs", "JWT_EXPIRATIONHRS")

	vip.BindEnv("authentication.google.clientId", "GOOGLE_CLIENT_ID")
	vip.BindEnv("authentication.firebase.projectId", "FIREBASE_PROJECT_ID")
	vip.BindEnv("authentication.firebase.credentialsFile", "FIREBASE_CREDENTIALS_FILE")

	vip.BindEnv("auth.federationSecret", "AUTH_FEDERATION_SECRET")
	vip.BindEnv("auth.verifierTimeoutSec", "AUTH_VERIFIER_TIMEOUT_SEC")

	vip.BindEnv("server.port", "SERVER_PORT")

	// 3. Файл конфигурации необязателен, т.к. есть BindEnv
	if configPath != "" {
		vip.SetConfigFile(configPath)
		if err := vip.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok || os.IsNotExist(err) {
				log.Printf("Файл конфигурации '%s' не найден, используются переменные окружения/умолчания.", configPath)
			} else {
				log.Printf("Предупреждение: не удалось прочитать файл конфигурации '%s': %v", configPath, err)
			}
		}
	}

	// 4. Анмаршалим конфигурацию (Viper объединит значения из файла и привязанных env vars)
	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if os.Getenv("GIN_MODE") != "release" {
		log.Printf("--- Загруженные значения конфигурации ---")
		log.Printf("Database Host: %s", cfg.Database.Host)
		log.Printf("Database Name: %s", cfg.Database.DBName)
		log.Printf("Redis Mode: %s", cfg.Redis.Mode)
		log.Printf("JWT Issuer: %s, Audience: %s, Expiration Hours: %d", cfg.JWT.ValidIssuer, cfg.JWT.ValidAudience, cfg.JWT.ExpirationHrs)
		log.Printf("JWT Secret Set: %t", cfg.JWT.Secret != "")
		log.Printf("Google Enabled: %t, Firebase Enabled: %t", cfg.Authentication.Google.Enabled(), cfg.Authentication.Firebase.Enabled())
		log.Printf("Server Port: %s", cfg.Server.Port)
		log.Printf("-----------------------------------------")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет обязательные параметры
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required in config (check JWT_SECRET env var)")
	}
	if c.JWT.ValidIssuer == "" || c.JWT.ValidAudience == "" {
		return fmt.Errorf("JWT issuer and audience are required in config (check JWT_VALID_ISSUER, JWT_VALID_AUDIENCE env vars)")
	}
	if c.JWT.ExpirationHrs <= 0 {
		return fmt.Errorf("jwt.expirationHrs must be positive")
	}
	if c.Auth.FederationSecret == "" {
		return fmt.Errorf("federation secret is required in config (check AUTH_FEDERATION_SECRET env var)")
	}
	if c.Auth.VerifierTimeoutSec <= 0 {
		return fmt.Errorf("auth.verifierTimeoutSec must be positive")
	}
	if c.Database.Host == "" || c.Database.DBName == "" || c.Database.User == "" {
		return fmt.Errorf("database configuration (host, dbname, user) is incomplete in config (check DATABASE_HOST, DATABASE_DBNAME, DATABASE_USER env vars)")
	}
	if c.Authentication.Firebase.Enabled() && c.Authentication.Firebase.CredentialsFile == "" {
		return fmt.Errorf("firebase credentials file is required when firebase project is configured (check FIREBASE_CREDENTIALS_FILE env var)")
	}
	return nil
}
