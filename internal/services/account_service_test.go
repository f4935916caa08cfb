package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"budget/internal/auth"
	"budget/internal/core"
	"budget/internal/storage"
)

// cheapParams keeps argon2 fast in tests.
var cheapParams = auth.Params{Memory: 64, Time: 1, Threads: 1, SaltLen: 16, KeyLen: 32}

func newAccountService(t *testing.T) *AccountService {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	reg, err := storage.OpenRegistry(ctx, filepath.Join(dir, "users.db"))
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	t.Cleanup(func() { reg.Close() })

	pool := newTestPool(t)
	sessions, err := auth.NewSessions(strings.Repeat("k", auth.MinSecretLength), 0)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}

	svc := NewAccountService(reg, pool, sessions, nil, nil)
	svc.params = cheapParams
	return svc
}

func TestRegisterProvisionsTenant(t *testing.T) {
	ctx := context.Background()
	svc := newAccountService(t)

	user, err := svc.Register(ctx, "  alice ", "secret1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Username != "alice" {
		t.Errorf("Username = %q, want trimmed", user.Username)
	}
	if _, err := os.Stat(svc.tenants.Path(user.ID)); err != nil {
		t.Errorf("tenant database not created: %v", err)
	}

	if _, err := svc.Register(ctx, "ALICE", "secret2"); !errors.Is(err, core.ErrUsernameTaken) {
		t.Errorf("duplicate Register error = %v, want ErrUsernameTaken", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newAccountService(t)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"short username", "bob", "secret1"},
		{"long username", strings.Repeat("u", 51), "secret1"},
		{"short password", "bobby", "12345"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.username, tt.password)
			if !errors.Is(err, core.ErrValidation) {
				t.Errorf("Register error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestLoginAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc := newAccountService(t)

	user, err := svc.Register(ctx, "alice", "secret1")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Login(ctx, "alice", "wrong-password"); !errors.Is(err, core.ErrInvalidCredentials) {
		t.Errorf("Login with bad password error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login(ctx, "nobody", "secret1"); !errors.Is(err, core.ErrInvalidCredentials) {
		t.Errorf("Login with unknown user error = %v, want ErrInvalidCredentials", err)
	}

	sess, err := svc.Login(ctx, "Alice", "secret1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.User.ID != user.ID || sess.Token == "" {
		t.Fatalf("Login session = %+v", sess)
	}

	got, err := svc.Authenticate(ctx, sess.Token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("Authenticate user = %s, want %s", got.ID, user.ID)
	}

	if _, err := svc.Authenticate(ctx, sess.Token+"x"); !errors.Is(err, core.ErrUnauthorized) {
		t.Errorf("Authenticate with tampered token error = %v, want ErrUnauthorized", err)
	}
}

func TestDeleteAccount(t *testing.T) {
	ctx := context.Background()
	svc := newAccountService(t)

	user, err := svc.Register(ctx, "alice", "secret1")
	if err != nil {
		t.Fatal(err)
	}
	sess, err := svc.Login(ctx, "alice", "secret1")
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.DeleteAccount(ctx, user.ID); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if _, err := os.Stat(svc.tenants.Path(user.ID)); !os.IsNotExist(err) {
		t.Errorf("tenant database still present: %v", err)
	}
	if _, err := svc.Authenticate(ctx, sess.Token); !errors.Is(err, core.ErrUnauthorized) {
		t.Errorf("Authenticate after delete error = %v, want ErrUnauthorized", err)
	}
	if err := svc.DeleteAccount(ctx, user.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second DeleteAccount error = %v, want ErrNotFound", err)
	}
}

func TestDeletedUserIsNotCachedAgain(t *testing.T) {
	ctx := context.Background()
	svc := newAccountService(t)

	user, err := svc.Register(ctx, "alice", "secret1")
	if err != nil {
		t.Fatal(err)
	}
	sess, err := svc.Login(ctx, "alice", "secret1")
	if err != nil {
		t.Fatal(err)
	}

	// A lookup that read the registry before the deletion finishes after it.
	stale, err := svc.registry.UserByID(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteAccount(ctx, user.ID); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if svc.cacheUser(stale) {
		t.Fatal("deleted user was cached again")
	}
	if _, ok := svc.users.Get(user.ID); ok {
		t.Fatal("deleted user present in cache")
	}
	if _, err := svc.Authenticate(ctx, sess.Token); !errors.Is(err, core.ErrUnauthorized) {
		t.Errorf("Authenticate after delete error = %v, want ErrUnauthorized", err)
	}
	if _, err := svc.tenants.Resolve(ctx, user.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Resolve after delete error = %v, want ErrNotFound", err)
	}
	if _, err := os.Stat(svc.tenants.Path(user.ID)); !os.IsNotExist(err) {
		t.Errorf("tenant database recreated: %v", err)
	}
}
