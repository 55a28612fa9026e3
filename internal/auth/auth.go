// Package auth verifies HTTP Basic credentials against stored bcrypt hashes
// and puts the authenticated user on the request context.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"expensetracker/internal/cache"
	"expensetracker/internal/core"
	"expensetracker/internal/log"
	"expensetracker/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingCredentials = errors.New("missing credentials")
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters")
	ErrPasswordTooLong    = errors.New("password must be at most 72 bytes")
)

const minPasswordLength = 8

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return "", ErrPasswordTooShort
	}
	if len(password) > 72 {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// burnCompare spends the same time as a real comparison so that unknown
// usernames cannot be told apart by latency.
func burnCompare(password string) {
	dummyOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

type cachedUser struct {
	user   core.User
	digest [sha256.Size]byte
}

// Authenticator checks credentials. Successful logins are remembered in an
// LRU keyed by username so repeated requests skip bcrypt.
type Authenticator struct {
	users  storage.UserStore
	cache  *cache.LRU[string, cachedUser]
	logger *log.Logger
	now    func() time.Time
}

func NewAuthenticator(users storage.UserStore, cacheSize int, cacheTTL time.Duration, logger *log.Logger) *Authenticator {
	return &Authenticator{
		users:  users,
		cache:  cache.NewLRU[string, cachedUser](cacheSize, cacheTTL),
		logger: logger.WithComponent(log.ComponentAuth),
		now:    time.Now,
	}
}

// Cache exposes the credential cache for periodic cleanup.
func (a *Authenticator) Cache() cache.Cleaner {
	return a.cache
}

// Register hashes password and stores a new user.
func (a *Authenticator) Register(ctx context.Context, username, password string) (core.User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return core.User{}, err
	}
	u, err := core.NewUser(username, hash, a.now())
	if err != nil {
		return core.User{}, err
	}
	if err := a.users.CreateUser(ctx, u); err != nil {
		return core.User{}, err
	}
	return u, nil
}

// Authenticate returns the user owning the credentials, or
// ErrInvalidCredentials. Storage failures are returned as is.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (core.User, error) {
	digest := sha256.Sum256([]byte(username + "\x00" + password))
	if c, ok := a.cache.Get(username); ok && subtle.ConstantTimeCompare(c.digest[:], digest[:]) == 1 {
		return c.user, nil
	}

	u, found, err := a.users.UserByUsername(ctx, username)
	if err != nil {
		return core.User{}, fmt.Errorf("load user: %w", err)
	}
	if !found {
		burnCompare(password)
		return core.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return core.User{}, ErrInvalidCredentials
	}

	a.cache.Set(username, cachedUser{user: u, digest: digest})
	return u, nil
}

// Middleware authenticates every request with HTTP Basic credentials.
// onFail writes the response for missing, invalid or unverifiable
// credentials.
func (a *Authenticator) Middleware(onFail func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if !ok {
				onFail(w, r, ErrMissingCredentials)
				return
			}

			u, err := a.Authenticate(r.Context(), username, password)
			if err != nil {
				if errors.Is(err, ErrInvalidCredentials) {
					a.logger.WarnContext(r.Context(), "Authentication failed", log.FieldUsername, username)
				}
				onFail(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

type contextKey struct{}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u core.User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (core.User, bool) {
	u, ok := ctx.Value(contextKey{}).(core.User)
	return u, ok
}
