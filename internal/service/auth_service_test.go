package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/identity-api/internal/domain/entity"
	apperrors "github.com/yourusername/identity-api/internal/pkg/errors"
	"github.com/yourusername/identity-api/pkg/auth"
)

func newTestAuthService(t *testing.T, store *memoryUserStore) (*AuthService, *auth.JWTService) {
	t.Helper()
	tokens := newTestJWTService(t)
	svc, err := NewAuthService(store, tokens)
	require.NoError(t, err)
	return svc, tokens
}

func TestNewAuthService_RequiresDependencies(t *testing.T) {
	_, err := NewAuthService(nil, newTestJWTService(t))
	assert.Error(t, err)

	_, err = NewAuthService(newMemoryUserStore(), nil)
	assert.Error(t, err)
}

func TestAuthService_SignUpThenSignIn(t *testing.T) {
	ctx := context.Background()
	store := newMemoryUserStore()
	svc, tokens := newTestAuthService(t, store)

	signUpToken, err := svc.SignUp(ctx, "Alice@Example.com ", "Passw0rd")
	require.NoError(t, err)
	require.NotEmpty(t, signUpToken)

	signInToken, err := svc.SignIn(ctx, "alice@example.com", "Passw0rd")
	require.NoError(t, err)

	for _, token := range []string{signUpToken, signInToken} {
		claims, err := tokens.ParseToken(token)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", claims.Email)
		assert.NotEmpty(t, claims.ID)
		assert.Equal(t, testIssuer, claims.Issuer)
		assert.Equal(t, auth.DefaultExpiry, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
	}

	user, err := store.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Username)
	assert.NotEmpty(t, user.SecurityStamp)
}

func TestAuthService_SignIn_FreshTokenIDs(t *testing.T) {
	ctx := context.Background()
	svc, tokens := newTestAuthService(t, newMemoryUserStore())

	_, err := svc.SignUp(ctx, "bob@example.com", "Passw0rd")
	require.NoError(t, err)

	first, err := svc.SignIn(ctx, "bob@example.com", "Passw0rd")
	require.NoError(t, err)
	second, err := svc.SignIn(ctx, "bob@example.com", "Passw0rd")
	require.NoError(t, err)

	c1, err := tokens.ParseToken(first)
	require.NoError(t, err)
	c2, err := tokens.ParseToken(second)
	require.NoError(t, err)
	assert.NotEqual(t, c1.ID, c2.ID)
}

func TestAuthService_SignUp_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	store := newMemoryUserStore()
	svc, _ := newTestAuthService(t, store)

	_, err := svc.SignUp(ctx, "dup@example.com", "Passw0rd")
	require.NoError(t, err)

	_, err = svc.SignUp(ctx, "dup@example.com", "An0therPass")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUserExists)
	assert.Equal(t, 1, store.userCount())
}

func TestAuthService_SignUp_LostRaceMapsToUserExists(t *testing.T) {
	ctx := context.Background()
	users := new(MockUserStore)
	svc, err := NewAuthService(users, newTestJWTService(t))
	require.NoError(t, err)

	verr := &apperrors.ValidationError{}
	verr.Add(apperrors.CodeDuplicateEmail, "Email 'race@example.com' is already taken.")

	users.On("FindByEmail", ctx, "race@example.com").Return(nil, apperrors.ErrNotFound).Once()
	users.On("Create", ctx, mock.AnythingOfType("*entity.User"), "Passw0rd").Return(verr).Once()

	_, err = svc.SignUp(ctx, "race@example.com", "Passw0rd")
	assert.ErrorIs(t, err, ErrUserExists)
	users.AssertExpectations(t)
}

func TestAuthService_SignUp_WeakPassword(t *testing.T) {
	ctx := context.Background()
	store := newMemoryUserStore()
	svc, _ := newTestAuthService(t, store)

	_, err := svc.SignUp(ctx, "weak@example.com", "abc")
	require.Error(t, err)

	var regErr *RegistrationError
	require.True(t, errors.As(err, &regErr))
	assert.Equal(t, "with email weak@example.com", regErr.Subject)
	assert.Contains(t, regErr.Messages, "Passwords must be at least 6 characters.")
	assert.Contains(t, regErr.Messages, "Passwords must have at least one uppercase ('A'-'Z').")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Equal(t, 0, store.userCount())
}

func TestAuthService_SignUpUser(t *testing.T) {
	ctx := context.Background()
	store := newMemoryUserStore()
	svc, tokens := newTestAuthService(t, store)

	user := &entity.User{Username: "fb_abc", Email: "fb.abc@users.firebase.invalid", PhoneNumber: "+15550001"}
	token, err := svc.SignUpUser(ctx, user, "Xfabc9")
	require.NoError(t, err)

	claims, err := tokens.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "fb.abc@users.firebase.invalid", claims.Email)

	stored, err := store.FindByEmail(ctx, "fb.abc@users.firebase.invalid")
	require.NoError(t, err)
	assert.Equal(t, "fb_abc", stored.Username)
	assert.Equal(t, "+15550001", stored.PhoneNumber)
	assert.NotEmpty(t, stored.SecurityStamp)
}

func TestAuthService_SignUpUser_RegistrationError(t *testing.T) {
	ctx := context.Background()
	store := newMemoryUserStore()
	svc, _ := newTestAuthService(t, store)

	_, err := svc.SignUpUser(ctx, &entity.User{Username: "taken", Email: "taken@example.com"}, "Passw0rd")
	require.NoError(t, err)

	_, err = svc.SignUpUser(ctx, &entity.User{Username: "taken", Email: "other@example.com", PhoneNumber: "+1555"}, "Passw0rd")
	var regErr *RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "with phone +1555", regErr.Subject)
	assert.Equal(t, []string{"Username 'taken' is already taken."}, regErr.Messages)
	assert.Contains(t, err.Error(), "cannot be registered")
}

func TestAuthService_SignIn_Failures(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuthService(t, newMemoryUserStore())

	_, err := svc.SignUp(ctx, "carol@example.com", "Passw0rd")
	require.NoError(t, err)

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{name: "wrong password", email: "carol@example.com", password: "Wr0ngPass", wantErr: ErrInvalidPassword},
		{name: "unknown email", email: "nobody@example.com", password: "Passw0rd", wantErr: ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := svc.SignIn(ctx, tt.email, tt.password)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, token)
		})
	}
}

func TestAuthService_SignIn_StoreFailure(t *testing.T) {
	ctx := context.Background()
	users := new(MockUserStore)
	svc, err := NewAuthService(users, newTestJWTService(t))
	require.NoError(t, err)

	dbErr := errors.New("connection refused")
	users.On("FindByEmail", ctx, "dan@example.com").Return(nil, dbErr).Once()

	_, err = svc.SignIn(ctx, "dan@example.com", "Passw0rd")
	assert.ErrorIs(t, err, dbErr)
	assert.NotErrorIs(t, err, ErrUserNotFound)
	users.AssertExpectations(t)
}

func TestAuthService_UnsupportedOperations(t *testing.T) {
	svc, _ := newTestAuthService(t, newMemoryUserStore())

	assert.ErrorIs(t, svc.SignOut(context.Background(), "a@example.com"), ErrUnsupportedOperation)
	assert.ErrorIs(t, svc.ClearUsers(context.Background()), ErrUnsupportedOperation)
}
