// Package service contains the account business logic: registration, login,
// profile reads and updates, password changes and logout. Handlers stay thin
// and map the errors returned here onto HTTP responses.
package service

import (
	"context"
	"errors"

	"github.com/geocoder89/accounthub/internal/cache"
	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/repo/postgres"
	"github.com/geocoder89/accounthub/internal/security"
	"github.com/jackc/pgx/v5"
)

var (
	// login failures are deliberately distinct: the source behavior reveals
	// whether the email exists, and that is preserved as-is.
	ErrEmailNotFound       = errors.New("email not found")
	ErrIncorrectPassword   = errors.New("incorrect password")
	ErrOldPasswordMismatch = errors.New("old password mismatch")
)

func isNotFound(err error) bool {
	return errors.Is(err, postgres.ErrUserNotFound)
}

type UserStore interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	Create(ctx context.Context, email, passwordHash, firstName, lastName string) (user.User, error)
	UpdateNames(ctx context.Context, tx pgx.Tx, id, firstName, lastName string) error
	UpdatePassword(ctx context.Context, tx pgx.Tx, id, passwordHash string) error
	BeginTx(ctx context.Context) (pgx.Tx, error)
}

type TokenRegistry interface {
	Issue(ctx context.Context, userID string) (string, error)
	Resolve(ctx context.Context, raw string) (string, error)
	RevokeAll(ctx context.Context, userID string) error
}

type Accounts struct {
	users  UserStore
	tokens TokenRegistry
	views  *cache.Cache // resolved user views, keyed by user id
}

func NewAccounts(users UserStore, tokens TokenRegistry, views *cache.Cache) *Accounts {
	return &Accounts{
		users:  users,
		tokens: tokens,
		views:  views,
	}
}

// Register validates the password policy, hashes the password and creates the
// user. No token is issued; registration and login are separate steps.
func (s *Accounts) Register(ctx context.Context, firstName, lastName, email, password string) (user.User, error) {
	err := security.ValidatePassword(password)

	if err != nil {
		return user.User{}, err
	}

	hash, err := security.HashPassword(password)

	if err != nil {
		return user.User{}, err
	}

	return s.users.Create(ctx, email, hash, firstName, lastName)
}

// Login verifies credentials and issues a fresh bearer token. Several logins
// may be active at once (multi-device); each gets its own token.
func (s *Accounts) Login(ctx context.Context, email, password string) (user.User, string, error) {
	u, err := s.users.GetByEmail(ctx, email)

	if err != nil {
		if isNotFound(err) {
			return user.User{}, "", ErrEmailNotFound
		}

		return user.User{}, "", err
	}

	err = security.CheckPassword(u.PasswordHash, password)

	if err != nil {
		return user.User{}, "", ErrIncorrectPassword
	}

	token, err := s.tokens.Issue(ctx, u.ID)

	if err != nil {
		return user.User{}, "", err
	}

	return u, token, nil
}

// CurrentUser resolves the bearer token to a user record. A token can outlive
// its user; the store's not-found error surfaces in that case.
func (s *Accounts) CurrentUser(ctx context.Context, token string) (user.User, error) {
	userID, err := s.tokens.Resolve(ctx, token)

	if err != nil {
		return user.User{}, err
	}

	if v, ok := s.views.Get(userID); ok {
		if u, ok := v.(user.User); ok {
			return u, nil
		}
	}

	u, err := s.users.GetByID(ctx, userID)

	if err != nil {
		return user.User{}, err
	}

	s.views.Set(userID, u)

	return u, nil
}

func (s *Accounts) UpdateProfile(ctx context.Context, token, firstName, lastName string) (user.User, error) {
	userID, err := s.tokens.Resolve(ctx, token)

	if err != nil {
		return user.User{}, err
	}

	tx, err := s.users.BeginTx(ctx)

	if err != nil {
		return user.User{}, err
	}

	defer func() { _ = tx.Rollback(ctx) }()

	err = s.users.UpdateNames(ctx, tx, userID, firstName, lastName)

	if err != nil {
		return user.User{}, err
	}

	err = tx.Commit(ctx)

	if err != nil {
		return user.User{}, err
	}

	s.views.Delete(userID)

	return s.users.GetByID(ctx, userID)
}

// ChangePassword verifies the old password, validates the new one against the
// registration policy and stores a fresh hash. Existing tokens stay valid.
func (s *Accounts) ChangePassword(ctx context.Context, token, oldPassword, newPassword string) (user.User, error) {
	userID, err := s.tokens.Resolve(ctx, token)

	if err != nil {
		return user.User{}, err
	}

	u, err := s.users.GetByID(ctx, userID)

	if err != nil {
		return user.User{}, err
	}

	err = security.CheckPassword(u.PasswordHash, oldPassword)

	if err != nil {
		return user.User{}, ErrOldPasswordMismatch
	}

	err = security.ValidatePassword(newPassword)

	if err != nil {
		return user.User{}, err
	}

	hash, err := security.HashPassword(newPassword)

	if err != nil {
		return user.User{}, err
	}

	tx, err := s.users.BeginTx(ctx)

	if err != nil {
		return user.User{}, err
	}

	defer func() { _ = tx.Rollback(ctx) }()

	err = s.users.UpdatePassword(ctx, tx, userID, hash)

	if err != nil {
		return user.User{}, err
	}

	err = tx.Commit(ctx)

	if err != nil {
		return user.User{}, err
	}

	s.views.Delete(userID)

	u.PasswordHash = hash

	return u, nil
}

// Logout revokes every token bound to the authenticated user, not just the
// one presented. That mirrors the source behavior and is intentional.
func (s *Accounts) Logout(ctx context.Context, token string) error {
	userID, err := s.tokens.Resolve(ctx, token)

	if err != nil {
		return err
	}

	return s.tokens.RevokeAll(ctx, userID)
}
