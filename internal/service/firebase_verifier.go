package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/yourusername/identity-api/internal/domain/entity"
)

const (
	firebaseCertsURL        = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"
	firebaseIdentityBaseURL = "https://identitytoolkit.googleapis.com"
	firebaseIssuerPrefix    = "https://securetoken.google.com/"
	firebaseMaxUIDLength    = 128
)

var firebaseAdminScopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/firebase",
}

// FirebaseUser: профиль пользователя Firebase Auth, нужный для сопоставления аккаунтов
type FirebaseUser struct {
	UID         string
	Email       string
	PhoneNumber string
}

type firebaseIDTokenClaims struct {
	AuthTime int64 `json:"auth_time"`
	jwt.RegisteredClaims
}

type firebaseLookupResponse struct {
	Users []struct {
		LocalID     string `json:"localId"`
		Email       string `json:"email"`
		PhoneNumber string `json:"phoneNumber"`
		Disabled    bool   `json:"disabled"`
	} `json:"users"`
}

// FirebaseVerifier проверяет Firebase ID токены и получает профиль пользователя
// через Identity Toolkit от имени сервисного аккаунта
type FirebaseVerifier struct {
	projectID   string
	keys        *remoteKeySet
	adminClient *http.Client
	lookupURL   string
	now         func() time.Time
}

// NewFirebaseVerifier читает ключ сервисного аккаунта и создает OAuth2 клиент для admin API
func NewFirebaseVerifier(ctx context.Context, projectID, credentialsFile string) (*FirebaseVerifier, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read firebase credentials file: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, firebaseAdminScopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse firebase credentials: %w", err)
	}
	adminClient := oauth2.NewClient(ctx, creds.TokenSource)
	adminClient.Timeout = 10 * time.Second

	return newFirebaseVerifier(projectID, firebaseCertsURL, firebaseIdentityBaseURL, nil, adminClient)
}

func newFirebaseVerifier(projectID, certsURL, identityBaseURL string, certsClient, adminClient *http.Client) (*FirebaseVerifier, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, fmt.Errorf("firebase project id is required")
	}
	if adminClient == nil {
		return nil, fmt.Errorf("firebase admin http client is required")
	}
	return &FirebaseVerifier{
		projectID:   projectID,
		keys:        newRemoteKeySet(certsURL, certsClient, decodeX509Certs),
		adminClient: adminClient,
		lookupURL:   strings.TrimRight(identityBaseURL, "/") + "/v1/projects/" + url.PathEscape(projectID) + "/accounts:lookup",
		now:         time.Now,
	}, nil
}

// VerifyIDToken проверяет подпись и утверждения Firebase ID токена и возвращает uid
func (v *FirebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (string, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return "", fmt.Errorf("%w: empty id token", ErrInvalidToken)
	}

	claims := &firebaseIDTokenClaims{}
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
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if token == nil || !token.Valid {
		return "", fmt.Errorf("%w: invalid token", ErrInvalidToken)
	}

	now := v.now()
	if claims.Issuer != firebaseIssuerPrefix+v.projectID {
		return "", fmt.Errorf("%w: invalid issuer", ErrInvalidToken)
	}
	if !claims.VerifyAudience(v.projectID, true) {
		return "", fmt.Errorf("%w: audience mismatch", ErrInvalidToken)
	}
	if claims.ExpiresAt == nil || now.After(claims.ExpiresAt.Time) {
		return "", fmt.Errorf("%w: token expired", ErrInvalidToken)
	}
	if claims.AuthTime > 0 && time.Unix(claims.AuthTime, 0).After(now.Add(time.Minute)) {
		return "", fmt.Errorf("%w: auth_time is in the future", ErrInvalidToken)
	}
	uid := claims.Subject
	if uid == "" || len(uid) > firebaseMaxUIDLength {
		return "", fmt.Errorf("%w: invalid subject", ErrInvalidToken)
	}
	return uid, nil
}

// FetchUser получает профиль пользователя. Отсутствующий или отключенный пользователь дает ErrInvalidToken.
func (v *FirebaseVerifier) FetchUser(ctx context.Context, uid string) (*FirebaseUser, error) {
	payload, err := json.Marshal(map[string][]string{"localId": {uid}})
	if err != nil {
		return nil, fmt.Errorf("failed to encode firebase lookup request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.lookupURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create firebase lookup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.adminClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: firebase lookup request failed: %v", ErrInvalidToken, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("%w: firebase lookup status=%d body=%s", ErrInvalidToken, resp.StatusCode, string(body))
	}

	var result firebaseLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: failed to decode firebase lookup response: %v", ErrInvalidToken, err)
	}
	for _, u := range result.Users {
		if u.LocalID != uid {
			continue
		}
		if u.Disabled {
			return nil, fmt.Errorf("%w: firebase user %s is disabled", ErrInvalidToken, uid)
		}
		return &FirebaseUser{
			UID:         u.LocalID,
			Email:       normalizeEmail(u.Email),
			PhoneNumber: strings.TrimSpace(u.PhoneNumber),
		}, nil
	}
	return nil, fmt.Errorf("%w: firebase user %s not found", ErrInvalidToken, uid)
}

// Verify проверяет токен и получает профиль пользователя
func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (*entity.CanonicalIdentity, error) {
	uid, err := v.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}
	user, err := v.FetchUser(ctx, uid)
	if err != nil {
		return nil, err
	}
	return &entity.CanonicalIdentity{
		Provider: entity.ProviderFirebase,
		Subject:  user.UID,
		Email:    user.Email,
		Phone:    user.PhoneNumber,
	}, nil
}
