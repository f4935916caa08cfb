package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"budget/internal/core"
)

// Registry is the shared user table. It maps usernames to the tenant
// identifier that names each user's database.
type Registry struct {
	db  *sql.DB
	now func() time.Time
}

// OpenRegistry opens the registry database at path and brings its schema
// up to date.
func OpenRegistry(ctx context.Context, path string) (*Registry, error) {
	db, err := OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := EnsureRegistrySchema(ctx, path); err != nil {
		db.Close()
		return nil, err
	}
	return &Registry{db: db, now: time.Now}, nil
}

func (r *Registry) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks that the registry database answers.
func (r *Registry) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return unavailable("ping registry", err)
	}
	return nil
}

func usernameKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func scanUser(row rowScanner) (core.User, error) {
	var (
		u         core.User
		createdAt int64
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &createdAt); err != nil {
		return core.User{}, err
	}
	u.CreatedAt = unixTime(createdAt)
	return u, nil
}

// CreateUser stores a new user with an already hashed password.
func (r *Registry) CreateUser(ctx context.Context, username, passwordHash string) (core.User, error) {
	u := core.User{
		ID:           newID(),
		Username:     strings.TrimSpace(username),
		PasswordHash: passwordHash,
		CreatedAt:    core.Timestamp(r.now()),
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO users (id, username, username_key, password_hash, created_at) VALUES (?, ?, ?, ?, ?)",
		u.ID, u.Username, usernameKey(u.Username), u.PasswordHash, u.CreatedAt.Unix())
	if err != nil {
		if isConstraint(err) {
			return core.User{}, fmt.Errorf("user %q: %w", u.Username, core.ErrUsernameTaken)
		}
		return core.User{}, unavailable("insert user", err)
	}
	return u, nil
}

// UserByUsername looks a user up ignoring case.
func (r *Registry) UserByUsername(ctx context.Context, username string) (core.User, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE username_key = ?", usernameKey(username))
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, fmt.Errorf("user %q: %w", username, core.ErrNotFound)
	}
	if err != nil {
		return core.User{}, unavailable("get user", err)
	}
	return u, nil
}

// UserByID looks a user up by tenant identifier.
func (r *Registry) UserByID(ctx context.Context, id string) (core.User, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE id = ?", id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, fmt.Errorf("user %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.User{}, unavailable("get user", err)
	}
	return u, nil
}

// DeleteUser removes a user from the registry.
func (r *Registry) DeleteUser(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return unavailable("delete user", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("delete user", err)
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", id, core.ErrNotFound)
	}
	return nil
}
