// Package memory holds map-backed stores that satisfy the same interfaces as
// the postgres repos. They exist for tests and local tinkering; the service
// never runs against them in production.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/repo/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// noopTx satisfies pgx.Tx for the methods the stores actually use. Anything
// beyond Commit/Rollback panics, which is what a test should do anyway.
type noopTx struct {
	pgx.Tx
}

func (noopTx) Commit(ctx context.Context) error   { return nil }
func (noopTx) Rollback(ctx context.Context) error { return nil }

type UsersRepo struct {
	mu      sync.RWMutex
	byID    map[string]user.User
	byEmail map[string]string // email -> id
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		byID:    make(map[string]user.User),
		byEmail: make(map[string]string),
	}
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return user.User{}, postgres.ErrUserNotFound
	}

	return r.byID[id], nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return user.User{}, postgres.ErrUserNotFound
	}

	return u, nil
}

func (r *UsersRepo) Create(ctx context.Context, email, passwordHash, firstName, lastName string) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[email]; exists {
		return user.User{}, postgres.ErrEmailAlreadyUsed
	}

	now := time.Now().UTC()

	u := user.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    firstName,
		LastName:     lastName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	r.byID[u.ID] = u
	r.byEmail[u.Email] = u.ID

	return u, nil
}

func (r *UsersRepo) UpdateNames(ctx context.Context, tx pgx.Tx, id, firstName, lastName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return postgres.ErrUserNotFound
	}

	u.FirstName = firstName
	u.LastName = lastName
	u.UpdatedAt = time.Now().UTC()
	r.byID[id] = u

	return nil
}

func (r *UsersRepo) UpdatePassword(ctx context.Context, tx pgx.Tx, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return postgres.ErrUserNotFound
	}

	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC()
	r.byID[id] = u

	return nil
}

func (r *UsersRepo) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return noopTx{}, nil
}
