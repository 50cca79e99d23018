package auth

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Типы утверждений, которые подсистема кладет в токен
const (
	ClaimEmail   = "email"
	ClaimTokenID = "jti"
)

// DefaultExpiry: фиксированное окно жизни токена
const DefaultExpiry = 3 * time.Hour

// minSecretLength соответствует длине ключа HS256
const minSecretLength = 32

var (
	// ErrInvalidSigningSecret возвращается при старте, если секрет подписи отсутствует или слишком короткий
	ErrInvalidSigningSecret = errors.New("jwt signing secret is missing or shorter than 32 bytes")
	// ErrTokenInvalid возвращается ParseToken для любого непринятого токена
	ErrTokenInvalid = errors.New("token is invalid")
	// ErrTokenExpired возвращается ParseToken для просроченного токена
	ErrTokenExpired = errors.New("token is expired")
)

// Claim: одно утверждение (тип, значение) токена
type Claim struct {
	Type  string
	Value string
}

// ClaimSet: упорядоченный набор утверждений
type ClaimSet []Claim

// Get возвращает значение первого утверждения указанного типа
func (c ClaimSet) Get(claimType string) (string, bool) {
	for _, claim := range c {
		if claim.Type == claimType {
			return claim.Value, true
		}
	}
	return "", false
}

// JWTCustomClaims: разобранное содержимое выпущенного токена
type JWTCustomClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// JWTConfig содержит статические параметры выпуска токенов
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
	Expiry   time.Duration
}

// JWTService выпускает и проверяет токены, подписанные HS256 общим секретом
type JWTService struct {
	secret   []byte
	issuer   string
	audience string
	expiry   time.Duration
	now      func() time.Time
}

// NewJWTService проверяет конфигурацию подписи. Ошибка здесь фатальна для процесса.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if len(cfg.Secret) < minSecretLength {
		return nil, ErrInvalidSigningSecret
	}
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("jwt issuer is required")
	}
	if cfg.Audience == "" {
		return nil, fmt.Errorf("jwt audience is required")
	}
	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = DefaultExpiry
	}

	return &JWTService{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		expiry:   expiry,
		now:      time.Now,
	}, nil
}

// Issue подписывает набор утверждений. Издатель, аудитория и срок жизни берутся из конфигурации.
// Утверждения набора не могут переопределить зарегистрированные поля iss, aud, exp, iat, nbf.
func (s *JWTService) Issue(claims ClaimSet) (string, error) {
	issuedAt := s.now()

	mapClaims := jwt.MapClaims{}
	for _, claim := range claims {
		mapClaims[claim.Type] = claim.Value
	}
	mapClaims["iss"] = s.issuer
	mapClaims["aud"] = s.audience
	mapClaims["iat"] = issuedAt.Unix()
	mapClaims["nbf"] = issuedAt.Unix()
	mapClaims["exp"] = issuedAt.Add(s.expiry).Unix()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, mapClaims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		log.Printf("[JWT] Ошибка подписи токена: %v", err)
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ParseToken проверяет подпись, алгоритм, издателя, аудиторию и срок действия токена
func (s *JWTService) ParseToken(tokenString string) (*JWTCustomClaims, error) {
	claims := &JWTCustomClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if token == nil || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if !claims.VerifyIssuer(s.issuer, true) {
		return nil, fmt.Errorf("%w: issuer mismatch", ErrTokenInvalid)
	}
	if !claims.VerifyAudience(s.audience, true) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrTokenInvalid)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing expiry", ErrTokenInvalid)
	}
	return claims, nil
}

// Expiry возвращает окно жизни выпускаемых токенов
func (s *JWTService) Expiry() time.Duration {
	return s.expiry
}
