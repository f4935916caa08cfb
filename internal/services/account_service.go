package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"budget/internal/auth"
	"budget/internal/cache"
	"budget/internal/core"
	"budget/internal/log"
	"budget/internal/metrics"
	"budget/internal/storage"
	"budget/internal/tenant"
)

const (
	userCacheSize = 1024
	userCacheTTL  = 5 * time.Minute
)

// Session is an issued login.
type Session struct {
	User      core.User
	Token     string
	ExpiresAt time.Time
}

// AccountService registers users, authenticates them and provisions their
// tenant databases. A user's ID is their tenant ID.
type AccountService struct {
	registry *storage.Registry
	tenants  *tenant.Pool
	sessions *auth.Sessions
	params   auth.Params
	users    *cache.LRU[core.User]
	// deleted remembers recently deleted users so a lookup that raced the
	// deletion cannot cache them again. Guarded together with users by cacheMu.
	deleted *cache.LRU[struct{}]
	cacheMu sync.Mutex
	metrics  *metrics.Metrics
	logger   *log.Logger

	// dummyHash is verified when a username is unknown so a failed login
	// costs the same either way.
	dummyOnce sync.Once
	dummyHash string
}

// NewAccountService wires the service. m may be nil.
func NewAccountService(registry *storage.Registry, tenants *tenant.Pool, sessions *auth.Sessions, m *metrics.Metrics, logger *log.Logger) *AccountService {
	if logger == nil {
		logger = log.Discard()
	}
	return &AccountService{
		registry: registry,
		tenants:  tenants,
		sessions: sessions,
		params:   auth.DefaultParams,
		users:    cache.NewLRU[core.User](userCacheSize, userCacheTTL),
		deleted:  cache.NewLRU[struct{}](userCacheSize, userCacheTTL),
		metrics:  m,
		logger:   logger.WithComponent(log.ComponentAuth),
	}
}

// UserCache exposes the authenticated-user cache for periodic cleanup.
func (s *AccountService) UserCache() cache.Cleaner {
	return s.users
}

// DeletedUsers exposes the deleted-user markers for periodic cleanup.
func (s *AccountService) DeletedUsers() cache.Cleaner {
	return s.deleted
}

// cacheUser stores a freshly loaded user unless it was deleted meanwhile.
func (s *AccountService) cacheUser(user core.User) bool {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if _, gone := s.deleted.Get(user.ID); gone {
		return false
	}
	s.users.Set(user.ID, user)
	return true
}

func (s *AccountService) forgetUser(id string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.deleted.Set(id, struct{}{})
	s.users.Delete(id)
}

// Register creates a user and their empty tenant database.
func (s *AccountService) Register(ctx context.Context, username, password string) (core.User, error) {
	username, err := core.ValidateCredentials(username, password)
	if err != nil {
		return core.User{}, err
	}

	hash, err := auth.HashPassword(password, s.params)
	if err != nil {
		return core.User{}, fmt.Errorf("register: %w", err)
	}

	user, err := s.registry.CreateUser(ctx, username, hash)
	if err != nil {
		return core.User{}, err
	}

	h, err := s.tenants.Resolve(ctx, user.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to provision tenant database",
			log.FieldTenantID, user.ID,
			log.FieldError, err)
		if delErr := s.registry.DeleteUser(context.WithoutCancel(ctx), user.ID); delErr != nil {
			s.logger.ErrorContext(ctx, "Failed to roll back user registration",
				log.FieldTenantID, user.ID,
				log.FieldError, delErr)
		}
		return core.User{}, fmt.Errorf("provision tenant: %w", err)
	}
	h.Release()

	s.logger.InfoContext(ctx, "User registered",
		log.FieldTenantID, user.ID,
		log.FieldUsername, user.Username)
	return user, nil
}

// Login checks credentials and issues a session token.
func (s *AccountService) Login(ctx context.Context, username, password string) (Session, error) {
	user, err := s.registry.UserByUsername(ctx, username)
	if errors.Is(err, core.ErrNotFound) {
		s.burnVerify(password)
		return Session{}, core.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}

	ok, err := auth.VerifyPassword(user.PasswordHash, password)
	if err != nil {
		return Session{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.logger.WarnContext(ctx, "Login failed",
			log.FieldUsername, user.Username,
			log.FieldErrorType, log.ErrorTypeAuth)
		return Session{}, core.ErrInvalidCredentials
	}

	if !s.cacheUser(user) {
		return Session{}, core.ErrInvalidCredentials
	}
	token, expires, err := s.sessions.Issue(user)
	if err != nil {
		return Session{}, err
	}
	return Session{User: user, Token: token, ExpiresAt: expires}, nil
}

func (s *AccountService) burnVerify(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = auth.HashPassword("budget-placeholder", s.params)
	})
	if s.dummyHash != "" {
		_, _ = auth.VerifyPassword(s.dummyHash, password)
	}
}

// Authenticate resolves a session token to a live user. Tokens of deleted
// users are rejected.
func (s *AccountService) Authenticate(ctx context.Context, token string) (core.User, error) {
	claims, err := s.sessions.Parse(token)
	if err != nil {
		return core.User{}, err
	}

	if user, ok := s.users.Get(claims.UserID); ok {
		s.metrics.AuthCache(true)
		return user, nil
	}
	s.metrics.AuthCache(false)

	user, err := s.registry.UserByID(ctx, claims.UserID)
	if errors.Is(err, core.ErrNotFound) {
		return core.User{}, fmt.Errorf("%w: user no longer exists", core.ErrUnauthorized)
	}
	if err != nil {
		return core.User{}, err
	}
	if !s.cacheUser(user) {
		return core.User{}, fmt.Errorf("%w: user no longer exists", core.ErrUnauthorized)
	}
	return user, nil
}

// DeleteAccount removes the user and their tenant database.
func (s *AccountService) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.registry.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.forgetUser(userID)

	if err := s.tenants.Remove(ctx, userID); err != nil {
		s.logger.ErrorContext(ctx, "Failed to remove tenant database",
			log.FieldTenantID, userID,
			log.FieldError, err)
		return fmt.Errorf("remove tenant: %w", err)
	}
	s.logger.InfoContext(ctx, "Account deleted", log.FieldTenantID, userID)
	return nil
}
