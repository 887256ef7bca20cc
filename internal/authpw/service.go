// Package authpw owns email/password identities: verification on sign-in
// and provisioning of new accounts by an admin.
package authpw

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"atrium/api/internal/store"
	"atrium/api/internal/util"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailInUse        = errors.New("email already in use")
	ErrWeakCredential    = errors.New("password too weak")
	ErrInvalidCredential = errors.New("invalid email or password")
	ErrTooManyAttempts   = errors.New("too many failed attempts")
	ErrProvisionTimeout  = errors.New("account creation timed out")
)

const minPasswordLength = 6

// IdentityStore is the storage the provider needs.
type IdentityStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
}

// AttemptStore tracks failed sign-ins per email. May be nil, in which
// case lockout is disabled.
type AttemptStore interface {
	Bump(ctx context.Context, email string) (int, error)
	Count(ctx context.Context, email string) (int, error)
	Reset(ctx context.Context, email string) error
}

// Service provides credential verification and account provisioning.
type Service struct {
	store            IdentityStore
	attempts         AttemptStore
	maxAttempts      int
	provisionTimeout time.Duration
}

func NewService(identities IdentityStore, attempts AttemptStore, provisionTimeout time.Duration) *Service {
	if provisionTimeout <= 0 {
		provisionTimeout = 60 * time.Second
	}
	return &Service{
		store:            identities,
		attempts:         attempts,
		maxAttempts:      5,
		provisionTimeout: provisionTimeout,
	}
}

// Authenticate verifies an email/password pair. Failures count toward a
// per-email lockout when an AttemptStore is wired.
func (s *Service) Authenticate(ctx context.Context, email, password string) (store.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return store.User{}, ErrInvalidCredential
	}

	if s.attempts != nil {
		count, err := s.attempts.Count(ctx, email)
		if err == nil && count >= s.maxAttempts {
			return store.User{}, ErrTooManyAttempts
		}
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		s.recordFailure(ctx, email)
		return store.User{}, ErrInvalidCredential
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if count := s.recordFailure(ctx, email); count >= s.maxAttempts {
			return store.User{}, ErrTooManyAttempts
		}
		return store.User{}, ErrInvalidCredential
	}

	if s.attempts != nil {
		_ = s.attempts.Reset(ctx, email)
	}
	return user, nil
}

func (s *Service) recordFailure(ctx context.Context, email string) int {
	if s.attempts == nil {
		return 0
	}
	count, err := s.attempts.Bump(ctx, email)
	if err != nil {
		return 0
	}
	return count
}

// Provision creates a new identity inside a disposable, time-bounded
// context. The bound covers the whole create flow; when it trips, the
// account may or may not exist upstream, so the caller must re-check the
// listing instead of blindly retrying.
func (s *Service) Provision(ctx context.Context, email, password, displayName string) (store.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || displayName == "" {
		return store.User{}, fmt.Errorf("email and name are required")
	}
	if len(password) < minPasswordLength {
		return store.User{}, ErrWeakCredential
	}

	pctx, cancel := context.WithTimeout(ctx, s.provisionTimeout)
	defer cancel()
	// The provisioning context never leaks into the caller's session:
	// whatever happens, its attempt state is cleared on the way out.
	defer func() {
		if s.attempts != nil {
			_ = s.attempts.Reset(ctx, email)
		}
	}()

	if _, err := s.store.GetUserByEmail(pctx, email); err == nil {
		return store.User{}, ErrEmailInUse
	} else if errors.Is(err, context.DeadlineExceeded) {
		return store.User{}, ErrProvisionTimeout
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := store.User{
		ID:           util.NewID("usr"),
		DisplayName:  displayName,
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.store.CreateUser(pctx, user); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(pctx.Err(), context.DeadlineExceeded) {
			return store.User{}, ErrProvisionTimeout
		}
		return store.User{}, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

// GeneratePassword produces a random initial credential for provisioned
// accounts.
func GeneratePassword() string {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
