package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/yourusername/identity-api/internal/domain/entity"
)

const googleCertsURL = "https://www.googleapis.com/oauth2/v3/certs"

var googleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

type googleIDTokenClaims struct {
	Email         string      `json:"email"`
	EmailVerified interface{} `json:"email_verified"`
	jwt.RegisteredClaims
}

// GoogleVerifier проверяет Google ID токены по JWKS Google и client id приложения
type GoogleVerifier struct {
	clientID string
	keys     *remoteKeySet
	now      func() time.Time
}

func NewGoogleVerifier(clientID string) (*GoogleVerifier, error) {
	return newGoogleVerifier(clientID, googleCertsURL, nil)
}

func newGoogleVerifier(clientID, certsURL string, httpClient *http.Client) (*GoogleVerifier, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, fmt.Errorf("google client id is required")
	}
	return &GoogleVerifier{
		clientID: clientID,
		keys:     newRemoteKeySet(certsURL, httpClient, decodeJWKS),
		now:      time.Now,
	}, nil
}

// Verify проверяет токен против настроенного client id
func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (*entity.CanonicalIdentity, error) {
	return v.VerifyAudience(ctx, idToken, v.clientID)
}

// VerifyAudience проверяет подпись (RS256), издателя, аудиторию и срок действия токена.
// Любая ошибка проверки оборачивает ErrInvalidToken.
func (v *GoogleVerifier) VerifyAudience(ctx context.Context, idToken, audience string) (*entity.CanonicalIdentity, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return nil, fmt.Errorf("%w: empty id token", ErrInvalidToken)
	}

	claims := &googleIDTokenClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	token, err := parser.ParseWithClaims(idToken, claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if strings.TrimSpace(kid) == "" {
			return nil, fmt.Errorf("missing kid header")
		}
		return v.keys.Key(ctx, strings.TrimSpace(kid))
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if token == nil || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", ErrInvalidToken)
	}

	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if !containsString(googleIssuers, claims.Issuer) {
		return nil, fmt.Errorf("%w: invalid issuer", ErrInvalidToken)
	}
	if audience == "" || !claims.VerifyAudience(audience, true) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrInvalidToken)
	}
	if claims.ExpiresAt == nil || v.now().After(claims.ExpiresAt.Time) {
		return nil, fmt.Errorf("%w: token expired", ErrInvalidToken)
	}
	// Отсутствующий email_verified считается неподтвержденным
	emailVerified := false
	if claims.EmailVerified != nil {
		verified, ok := parseEmailVerifiedClaim(claims.EmailVerified)
		if !ok {
			return nil, fmt.Errorf("%w: invalid email_verified claim", ErrInvalidToken)
		}
		emailVerified = verified
	}

	return &entity.CanonicalIdentity{
		Provider:      entity.ProviderGoogle,
		Subject:       strings.TrimSpace(claims.Subject),
		Email:         normalizeEmail(claims.Email),
		EmailVerified: emailVerified,
	}, nil
}

func parseEmailVerifiedClaim(v interface{}) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true":
			return true, true
		case "false":
			return false, true
		default:
			return false, false
		}
	default:
		return false, false
	}
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
