package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/identity-api/internal/domain/entity"
	apperrors "github.com/yourusername/identity-api/internal/pkg/errors"
	"github.com/yourusername/identity-api/pkg/auth"
)

const (
	testJWTSecret = "0123456789abcdef0123456789abcdef"
	testIssuer    = "identity-api"
	testAudience  = "identity-clients"
)

func newTestJWTService(t *testing.T) *auth.JWTService {
	t.Helper()
	svc, err := auth.NewJWTService(auth.JWTConfig{
		Secret:   testJWTSecret,
		Issuer:   testIssuer,
		Audience: testAudience,
		Expiry:   auth.DefaultExpiry,
	})
	require.NoError(t, err)
	return svc
}

// memoryUserStore: потокобезопасная реализация UserStore в памяти с правилами,
// повторяющими хранилище PostgreSQL (уникальность, политика паролей)
type memoryUserStore struct {
	mu        sync.Mutex
	nextID    uint
	users     map[uint]entity.User
	passwords map[uint]string
	logins    map[string]entity.UserLogin

	createCalls int
	updateCalls int
	loginCalls  int
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{
		users:     make(map[uint]entity.User),
		passwords: make(map[uint]string),
		logins:    make(map[string]entity.UserLogin),
	}
}

func loginKey(provider, key string) string {
	return provider + "\x00" + key
}

func (s *memoryUserStore) FindByID(_ context.Context, id uint) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &u, nil
}

func (s *memoryUserStore) FindByEmail(_ context.Context, email string) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findByEmailLocked(strings.ToLower(strings.TrimSpace(email)))
}

func (s *memoryUserStore) findByEmailLocked(email string) (*entity.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (s *memoryUserStore) FindByLogin(_ context.Context, provider, key string) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	login, ok := s.logins[loginKey(provider, key)]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	u := s.users[login.UserID]
	return &u, nil
}

func (s *memoryUserStore) Create(_ context.Context, user *entity.User, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++

	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	verr := &apperrors.ValidationError{}
	if !strings.Contains(user.Email, "@") {
		verr.Add(apperrors.CodeInvalidEmail, fmt.Sprintf("Email '%s' is invalid.", user.Email))
	}
	s.validatePassword(password, verr)
	for _, u := range s.users {
		if u.Email == user.Email {
			verr.Add(apperrors.CodeDuplicateEmail, fmt.Sprintf("Email '%s' is already taken.", user.Email))
		}
		if u.Username == user.Username {
			verr.Add(apperrors.CodeDuplicateUserName, fmt.Sprintf("Username '%s' is already taken.", user.Username))
		}
	}
	if err := verr.OrNil(); err != nil {
		return err
	}

	s.nextID++
	user.ID = s.nextID
	if user.Role == "" {
		user.Role = entity.RoleUser
	}
	user.CreatedAt = time.Now()
	s.users[user.ID] = *user
	s.passwords[user.ID] = password
	return nil
}

func (s *memoryUserStore) validatePassword(password string, verr *apperrors.ValidationError) {
	if len(password) < 6 {
		verr.Add(apperrors.CodePasswordTooShort, "Passwords must be at least 6 characters.")
	}
	var digit, lower, upper bool
	for _, r := range password {
		digit = digit || unicode.IsDigit(r)
		lower = lower || unicode.IsLower(r)
		upper = upper || unicode.IsUpper(r)
	}
	if !digit {
		verr.Add(apperrors.CodePasswordRequiresDigit, "Passwords must have at least one digit ('0'-'9').")
	}
	if !lower {
		verr.Add(apperrors.CodePasswordRequiresLower, "Passwords must have at least one lowercase ('a'-'z').")
	}
	if !upper {
		verr.Add(apperrors.CodePasswordRequiresUpper, "Passwords must have at least one uppercase ('A'-'Z').")
	}
}

func (s *memoryUserStore) CheckPassword(_ context.Context, user *entity.User, password string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.passwords[user.ID]
	return ok && stored == password, nil
}

func (s *memoryUserStore) AddLogin(_ context.Context, user *entity.User, login entity.UserLogin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginCalls++

	key := loginKey(login.LoginProvider, login.ProviderKey)
	if existing, ok := s.logins[key]; ok {
		if existing.UserID == user.ID {
			return nil
		}
		return fmt.Errorf("%w: login is already linked to another account", apperrors.ErrConflict)
	}
	login.UserID = user.ID
	s.logins[key] = login
	return nil
}

func (s *memoryUserStore) Update(_ context.Context, user *entity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++
	if _, ok := s.users[user.ID]; !ok {
		return apperrors.ErrNotFound
	}
	if len(user.PhoneNumber) > 32 {
		verr := &apperrors.ValidationError{}
		verr.Add("InvalidPhoneNumber", "Phone number is too long.")
		return verr
	}
	s.users[user.ID] = *user
	return nil
}

func (s *memoryUserStore) List(_ context.Context, limit, offset int) ([]entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.User, 0, limit)
	for id := uint(1); id <= s.nextID && len(out) < limit; id++ {
		u, ok := s.users[id]
		if !ok {
			continue
		}
		if offset > 0 {
			offset--
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *memoryUserStore) userCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *memoryUserStore) loginsOf(userID uint) []entity.UserLogin {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.UserLogin
	for _, l := range s.logins {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	return out
}

func (s *memoryUserStore) mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createCalls + s.updateCalls + s.loginCalls
}

// MockUserStore реализует repository.UserStore через testify/mock
type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) FindByID(ctx context.Context, id uint) (*entity.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *MockUserStore) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *MockUserStore) FindByLogin(ctx context.Context, provider, key string) (*entity.User, error) {
	args := m.Called(ctx, provider, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *MockUserStore) Create(ctx context.Context, user *entity.User, password string) error {
	args := m.Called(ctx, user, password)
	return args.Error(0)
}

func (m *MockUserStore) CheckPassword(ctx context.Context, user *entity.User, password string) (bool, error) {
	args := m.Called(ctx, user, password)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserStore) AddLogin(ctx context.Context, user *entity.User, login entity.UserLogin) error {
	args := m.Called(ctx, user, login)
	return args.Error(0)
}

func (m *MockUserStore) Update(ctx context.Context, user *entity.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserStore) List(ctx context.Context, limit, offset int) ([]entity.User, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.User), args.Error(1)
}

// stubVerifier возвращает заранее заданный результат и запоминает полученный токен
type stubVerifier struct {
	identity *entity.CanonicalIdentity
	err      error
	block    bool

	mu       sync.Mutex
	calls    int
	lastSeen string
	deadline bool
}

func (v *stubVerifier) Verify(ctx context.Context, idToken string) (*entity.CanonicalIdentity, error) {
	v.mu.Lock()
	v.calls++
	v.lastSeen = idToken
	_, v.deadline = ctx.Deadline()
	v.mu.Unlock()

	if v.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if v.err != nil {
		return nil, v.err
	}
	identity := *v.identity
	return &identity, nil
}
