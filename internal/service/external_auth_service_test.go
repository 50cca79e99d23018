package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/identity-api/internal/domain/entity"
	apperrors "github.com/yourusername/identity-api/internal/pkg/errors"
	"github.com/yourusername/identity-api/pkg/auth"
)

type externalFixture struct {
	store    *memoryUserStore
	tokens   *auth.JWTService
	creds    *CredentialSynthesizer
	google   *stubVerifier
	firebase *stubVerifier
	svc      *ExternalAuthService
}

func newExternalFixture(t *testing.T) *externalFixture {
	t.Helper()
	f := &externalFixture{
		store:    newMemoryUserStore(),
		google:   &stubVerifier{identity: &entity.CanonicalIdentity{Provider: entity.ProviderGoogle, Subject: "google-sub-1", Email: "Grace@Example.com", EmailVerified: true}},
		firebase: &stubVerifier{identity: &entity.CanonicalIdentity{Provider: entity.ProviderFirebase, Subject: "firebase-uid-1", Phone: "+15551234567"}},
	}

	var err error
	f.tokens = newTestJWTService(t)
	f.creds, err = NewCredentialSynthesizer("federation-secret")
	require.NoError(t, err)

	authSvc, err := NewAuthService(f.store, f.tokens)
	require.NoError(t, err)

	registry := NewVerifierRegistry()
	require.NoError(t, registry.Register(entity.ProviderGoogle, f.google, MatchByEmail))
	require.NoError(t, registry.Register(entity.ProviderFirebase, f.firebase, MatchByLogin))

	f.svc, err = NewExternalAuthService(f.store, authSvc, registry, f.creds, time.Second)
	require.NoError(t, err)
	return f
}

func TestExternalAuth_Google_FreshEmailCreatesUserAndLink(t *testing.T) {
	ctx := context.Background()
	f := newExternalFixture(t)

	token, err := f.svc.Authenticate(ctx, AuthRequest{Provider: entity.ProviderGoogle, IDToken: "google-id-token"})
	require.NoError(t, err)

	claims, err := f.tokens.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "grace@example.com", claims.Email)

	assert.Equal(t, 1, f.store.userCount())
	user, err := f.store.FindByEmail(ctx, "grace@example.com")
	require.NoError(t, err)

	logins := f.store.loginsOf(user.ID)
	require.Len(t, logins, 1)
	assert.Equal(t, "GOOGLE", logins[0].LoginProvider)
	assert.Equal(t, "google-sub-1", logins[0].ProviderKey)
	assert.Equal(t, "Google", logins[0].ProviderDisplayName)

	assert.Equal(t, "google-id-token", f.google.lastSeen)
	assert.True(t, f.google.deadline, "verifier call must be bounded")
}

func TestExternalAuth_Google_RepeatedLoginReusesAccount(t *testing.T) {
	ctx := context.Background()
	f := newExternalFixture(t)

	for i := 0; i < 3; i++ {
		token, err := f.svc.Authenticate(ctx, AuthRequest{Provider: entity.ProviderGoogle, IDToken: "google-id-token"})
		require.NoError(t, err)
		assert.NotEmpty(t, token)
	}

	assert.Equal(t, 1, f.store.userCount())
	user, err := f.store.FindByEmail(ctx, "grace@example.com")
	require.NoError(t, err)
	assert.Len(t, f.store.loginsOf(user.ID), 1)
}

func TestExternalAuth_Google_MissingEmail(t *testing.T) {
	f := newExternalFixture(t)
	f.google.identity = &entity.CanonicalIdentity{Provider: entity.ProviderGoogle, Subject: "google-sub-2"}

	_, err := f.svc.Authenticate(context.Background(), AuthRequest{Provider: entity.ProviderGoogle, IDToken: "t"})
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Equal(t, 0, f.store.mutations())
}

func TestExternalAuth_Google_UnverifiedEmailIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newExternalFixture(t)

	_, err := f.svc.Authenticate(ctx, AuthRequest{Provider: entity.ProviderGoogle, IDToken: "owner-token"})
	require.NoError(t, err)
	owner, err := f.store.FindByEmail(ctx, "grace@example.com")
	require.NoError(t, err)
	mutations := f.store.mutations()

	// Другой Google аккаунт с тем же, но неподтвержденным email
	f.google.identity = &entity.CanonicalIdentity{Provider: entity.ProviderGoogle, Subject: "google-sub-other", Email: "grace@example.com"}
	token, err := f.svc.Authenticate(ctx, AuthRequest{Provider: entity.ProviderGoogle, IDToken: "other-token"})
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Empty(t, token)

	assert.Equal(t, mutations, f.store.mutations())
	logins := f.store.loginsOf(owner.ID)
	require.Len(t, logins, 1)
	assert.Equal(t, "google-sub-1", logins[0].ProviderKey)
}

func TestExternalAuth_Google_ExistingLocalAccountWithOtherPassword(t *testing.T) {
	ctx := context.Background()
	f := newExternalFixture(t)

	authSvc, err := NewAuthService(f.store, f.tokens)
	require.NoError(t, err)
	_, err = authSvc.SignUp(ctx, "grace@example.com", "MyOwnPassw0rd")
	require.NoError(t, err)

	// Аккаунт с пользовательским паролем нельзя открыть синтетическим паролем
	_, err = f.svc.Authenticate(ctx, AuthRequest{Provider: entity.ProviderGoogle, IDToken: "google-id-token"})
	assert.ErrorIs(t, err, ErrInvalidPassword)
}

func TestExternalAuth_Firebase_ProvisionsDerivedAccount(t *testing.T) {
	ctx := context.Background()
	f := newExternalFixture(t)

	token, err := f.svc.Authenticate(ctx, AuthRequest{Provider: entity.ProviderFirebase, IDToken: "firebase-id-token"})
	require.NoError(t, err)

	derivedEmail := f.creds.Email(entity.ProviderFirebase, "firebase-uid-1")
	claims, err := f.tokens.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, derivedEmail, claims.Email)

	user, err := f.store.FindByLogin(ctx, "FIREBASE", "firebase-uid-1")
	require.NoError(t, err)
	assert.Equal(t, derivedEmail, user.Email)
	assert.Equal(t, f.creds.Username(entity.ProviderFirebase, "firebase-uid-1"), user.Username)
	assert.Equal(t, "+15551234567", user.PhoneNumber)
}

func TestExternalAuth_Firebase_RepeatedLoginSignsIn(t *testing.T) {
	ctx := context.Background()
	f := newExternalFixture(t)

	_, err := f.svc.Authenticate(ctx, AuthRequest{Provider: entity.ProviderFirebase, IDToken: "firebase-id-token"})
	require.NoError(t, err)
	_, err = f.svc.Authenticate(ctx, AuthRequest{Provider: entity.ProviderFirebase, IDToken: "firebase-id-token"})
	require.NoError(t, err)

	assert.Equal(t, 1, f.store.userCount())
	user, err := f.store.FindByLogin(ctx, "FIREBASE", "firebase-uid-1")
	require.NoError(t, err)
	assert.Len(t, f.store.loginsOf(user.ID), 1)
}

func TestExternalAuth_Firebase_RecoversUnlinkedAccount(t *testing.T) {
	ctx := context.Background()
	f := newExternalFixture(t)

	// Прошлый вызов создал аккаунт, но не успел привязать логин
	orphan := &entity.User{
		Username: f.creds.Username(entity.ProviderFirebase, "firebase-uid-1"),
		Email:    f.creds.Email(entity.ProviderFirebase, "firebase-uid-1"),
	}
	require.NoError(t, f.store.Create(ctx, orphan, f.creds.Password("firebase-uid-1")))

	_, err := f.svc.Authenticate(ctx, AuthRequest{Provider: entity.ProviderFirebase, IDToken: "firebase-id-token"})
	require.NoError(t, err)

	assert.Equal(t, 1, f.store.userCount())
	linked, err := f.store.FindByLogin(ctx, "FIREBASE", "firebase-uid-1")
	require.NoError(t, err)
	assert.Equal(t, orphan.ID, linked.ID)
}

func TestExternalAuth_UnsupportedProviders(t *testing.T) {
	for _, provider := range []entity.AuthProvider{entity.ProviderInternal, entity.ProviderApple} {
		t.Run(string(provider), func(t *testing.T) {
			f := newExternalFixture(t)

			token, err := f.svc.Authenticate(context.Background(), AuthRequest{Provider: provider, IDToken: "anything"})
			assert.ErrorIs(t, err, ErrUnsupportedProvider)
			assert.Empty(t, token)
			assert.Equal(t, 0, f.store.mutations())
			assert.Equal(t, 0, f.google.calls+f.firebase.calls)
		})
	}
}

func TestExternalAuth_VerifierFailureCollapsesToInvalidToken(t *testing.T) {
	f := newExternalFixture(t)
	f.google.err = errors.New("upstream said: key rotated, 502")

	_, err := f.svc.Authenticate(context.Background(), AuthRequest{Provider: entity.ProviderGoogle, IDToken: "google-id-token"})
	require.ErrorIs(t, err, ErrInvalidToken)
	assert.NotContains(t, err.Error(), "upstream")
	assert.Equal(t, 0, f.store.mutations())
}

func TestExternalAuth_EmptyTokenIsInvalid(t *testing.T) {
	f := newExternalFixture(t)

	_, err := f.svc.Authenticate(context.Background(), AuthRequest{Provider: entity.ProviderFirebase, IDToken: "  "})
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Equal(t, 0, f.firebase.calls)
}

func TestExternalAuth_VerifierTimeout(t *testing.T) {
	f := newExternalFixture(t)
	f.google.block = true
	f.svc.verifierTimeout = 20 * time.Millisecond

	start := time.Now()
	_, err := f.svc.Authenticate(context.Background(), AuthRequest{Provider: entity.ProviderGoogle, IDToken: "slow"})
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExternalAuth_CallerCancellation(t *testing.T) {
	f := newExternalFixture(t)
	f.google.block = true

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Authenticate(ctx, AuthRequest{Provider: entity.ProviderGoogle, IDToken: "slow"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExternalAuth_LinkConflictAborts(t *testing.T) {
	ctx := context.Background()
	users := new(MockUserStore)
	creds, err := NewCredentialSynthesizer("federation-secret")
	require.NoError(t, err)
	authSvc, err := NewAuthService(users, newTestJWTService(t))
	require.NoError(t, err)

	registry := NewVerifierRegistry()
	verifier := &stubVerifier{identity: &entity.CanonicalIdentity{Subject: "sub-9", Email: "ivy@example.com", EmailVerified: true}}
	require.NoError(t, registry.Register(entity.ProviderGoogle, verifier, MatchByEmail))

	svc, err := NewExternalAuthService(users, authSvc, registry, creds, 0)
	require.NoError(t, err)
	assert.Equal(t, defaultVerifierTimeout, svc.verifierTimeout)

	user := &entity.User{ID: 7, Email: "ivy@example.com"}
	users.On("FindByEmail", ctx, "ivy@example.com").Return(user, nil)
	users.On("CheckPassword", ctx, user, creds.Password("ivy@example.com")).Return(true, nil).Once()
	users.On("AddLogin", ctx, user, mock.MatchedBy(func(l entity.UserLogin) bool {
		return l.LoginProvider == "GOOGLE" && l.ProviderKey == "sub-9"
	})).Return(apperrors.ErrConflict).Once()

	_, err = svc.Authenticate(ctx, AuthRequest{Provider: entity.ProviderGoogle, IDToken: "t"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	users.AssertExpectations(t)
}

// racingUserStore создает конкурирующий аккаунт прямо перед первым Create
type racingUserStore struct {
	*memoryUserStore
	once  sync.Once
	racer func()
}

func (s *racingUserStore) Create(ctx context.Context, user *entity.User, password string) error {
	s.once.Do(s.racer)
	return s.memoryUserStore.Create(ctx, user, password)
}

func TestExternalAuth_Firebase_ConcurrentFirstLoginSignsIn(t *testing.T) {
	ctx := context.Background()
	creds, err := NewCredentialSynthesizer("federation-secret")
	require.NoError(t, err)

	const uid = "firebase-uid-race"
	store := &racingUserStore{memoryUserStore: newMemoryUserStore()}
	store.racer = func() {
		winner := &entity.User{
			Username: creds.Username(entity.ProviderFirebase, uid),
			Email:    creds.Email(entity.ProviderFirebase, uid),
		}
		require.NoError(t, store.memoryUserStore.Create(ctx, winner, creds.Password(uid)))
	}

	tokens := newTestJWTService(t)
	authSvc, err := NewAuthService(store, tokens)
	require.NoError(t, err)
	registry := NewVerifierRegistry()
	verifier := &stubVerifier{identity: &entity.CanonicalIdentity{Provider: entity.ProviderFirebase, Subject: uid}}
	require.NoError(t, registry.Register(entity.ProviderFirebase, verifier, MatchByLogin))
	svc, err := NewExternalAuthService(store, authSvc, registry, creds, time.Second)
	require.NoError(t, err)

	token, err := svc.Authenticate(ctx, AuthRequest{Provider: entity.ProviderFirebase, IDToken: "firebase-id-token"})
	require.NoError(t, err)

	claims, err := tokens.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, creds.Email(entity.ProviderFirebase, uid), claims.Email)

	assert.Equal(t, 1, store.userCount())
	linked, err := store.FindByLogin(ctx, "FIREBASE", uid)
	require.NoError(t, err)
	assert.Equal(t, claims.Email, linked.Email)
}
