package authpw

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"atrium/api/internal/store"
	"golang.org/x/crypto/bcrypt"
)

type fakeIdentityStore struct {
	getUserByEmailFn func(context.Context, string) (store.User, error)
	createUserFn     func(context.Context, store.User) error
}

func (f *fakeIdentityStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if f.getUserByEmailFn != nil {
		return f.getUserByEmailFn(ctx, email)
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeIdentityStore) CreateUser(ctx context.Context, user store.User) error {
	if f.createUserFn != nil {
		return f.createUserFn(ctx, user)
	}
	return nil
}

type memAttempts struct {
	mu     sync.Mutex
	counts map[string]int
}

func newMemAttempts() *memAttempts {
	return &memAttempts{counts: make(map[string]int)}
}

func (m *memAttempts) Bump(_ context.Context, email string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[email]++
	return m.counts[email], nil
}

func (m *memAttempts) Count(_ context.Context, email string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[email], nil
}

func (m *memAttempts) Reset(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.counts, email)
	return nil
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func TestAuthenticateSuccess(t *testing.T) {
	identities := &fakeIdentityStore{
		getUserByEmailFn: func(_ context.Context, email string) (store.User, error) {
			return store.User{ID: "u1", Email: email, PasswordHash: hashOf(t, "hunter22")}, nil
		},
	}
	svc := NewService(identities, newMemAttempts(), time.Minute)

	user, err := svc.Authenticate(context.Background(), "Jordan@Example.com", "hunter22")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if user.ID != "u1" {
		t.Errorf("unexpected user: %+v", user)
	}
}

func TestAuthenticateResetsAttemptsOnSuccess(t *testing.T) {
	identities := &fakeIdentityStore{
		getUserByEmailFn: func(_ context.Context, email string) (store.User, error) {
			return store.User{ID: "u1", Email: email, PasswordHash: hashOf(t, "correct")}, nil
		},
	}
	attempts := newMemAttempts()
	svc := NewService(identities, attempts, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		svc.Authenticate(ctx, "jordan@example.com", "wrong")
	}
	if _, err := svc.Authenticate(ctx, "jordan@example.com", "correct"); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if n, _ := attempts.Count(ctx, "jordan@example.com"); n != 0 {
		t.Errorf("attempts after success = %d, want 0", n)
	}
}

func TestAuthenticateWrongPassword(t *testing.T) {
	identities := &fakeIdentityStore{
		getUserByEmailFn: func(_ context.Context, email string) (store.User, error) {
			return store.User{ID: "u1", Email: email, PasswordHash: hashOf(t, "correct")}, nil
		},
	}
	svc := NewService(identities, newMemAttempts(), time.Minute)

	if _, err := svc.Authenticate(context.Background(), "jordan@example.com", "wrong"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("error = %v, want ErrInvalidCredential", err)
	}
}

func TestAuthenticateUnknownEmail(t *testing.T) {
	svc := NewService(&fakeIdentityStore{}, newMemAttempts(), time.Minute)
	if _, err := svc.Authenticate(context.Background(), "nobody@example.com", "whatever"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("error = %v, want ErrInvalidCredential", err)
	}
}

func TestAuthenticateLockout(t *testing.T) {
	identities := &fakeIdentityStore{
		getUserByEmailFn: func(_ context.Context, email string) (store.User, error) {
			return store.User{ID: "u1", Email: email, PasswordHash: hashOf(t, "correct")}, nil
		},
	}
	svc := NewService(identities, newMemAttempts(), time.Minute)
	ctx := context.Background()

	var lastErr error
	for i := 0; i < 5; i++ {
		_, lastErr = svc.Authenticate(ctx, "jordan@example.com", "wrong")
	}
	if !errors.Is(lastErr, ErrTooManyAttempts) {
		t.Fatalf("fifth failure = %v, want ErrTooManyAttempts", lastErr)
	}

	// Locked out even with the right password.
	if _, err := svc.Authenticate(ctx, "jordan@example.com", "correct"); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("locked-out error = %v, want ErrTooManyAttempts", err)
	}
}

func TestProvisionSuccess(t *testing.T) {
	var created store.User
	identities := &fakeIdentityStore{
		createUserFn: func(_ context.Context, user store.User) error {
			created = user
			return nil
		},
	}
	svc := NewService(identities, nil, time.Minute)

	user, err := svc.Provision(context.Background(), "New@Example.com", "secret6", "New Person")
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if user.Email != "new@example.com" {
		t.Errorf("email not normalized: %s", user.Email)
	}
	if created.ID == "" || created.ID != user.ID {
		t.Errorf("created user not persisted: %+v", created)
	}
	if !strings.HasPrefix(user.ID, "usr_") {
		t.Errorf("user ID = %q, want usr_ prefix", user.ID)
	}
	if bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("secret6")) != nil {
		t.Error("stored hash does not match password")
	}
}

func TestProvisionRejectsWeakCredential(t *testing.T) {
	svc := NewService(&fakeIdentityStore{}, nil, time.Minute)
	if _, err := svc.Provision(context.Background(), "new@example.com", "short", "New Person"); !errors.Is(err, ErrWeakCredential) {
		t.Fatalf("error = %v, want ErrWeakCredential", err)
	}
}

func TestProvisionRejectsEmailInUse(t *testing.T) {
	identities := &fakeIdentityStore{
		getUserByEmailFn: func(_ context.Context, email string) (store.User, error) {
			return store.User{ID: "u1", Email: email}, nil
		},
	}
	svc := NewService(identities, nil, time.Minute)
	if _, err := svc.Provision(context.Background(), "taken@example.com", "secret6", "Taken"); !errors.Is(err, ErrEmailInUse) {
		t.Fatalf("error = %v, want ErrEmailInUse", err)
	}
}

func TestProvisionTimeout(t *testing.T) {
	identities := &fakeIdentityStore{
		createUserFn: func(ctx context.Context, _ store.User) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	svc := NewService(identities, nil, 10*time.Millisecond)

	_, err := svc.Provision(context.Background(), "slow@example.com", "secret6", "Slow")
	if !errors.Is(err, ErrProvisionTimeout) {
		t.Fatalf("error = %v, want ErrProvisionTimeout", err)
	}
}

func TestGeneratePassword(t *testing.T) {
	first := GeneratePassword()
	second := GeneratePassword()
	if len(first) < minPasswordLength {
		t.Errorf("generated password too short: %q", first)
	}
	if first == second {
		t.Error("generated passwords should not repeat")
	}
}
