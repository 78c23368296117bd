package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"github.com/geocoder89/accounthub/internal/repo/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrInvalidToken = errors.New("invalid token")

const rawTokenBytes = 32

// Keep these interfaces small so tests can fake them easily.

type TokenStore interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, tx pgx.Tx, row postgres.AccessTokenRow) error
	Resolve(ctx context.Context, digest string) (string, error)
	RevokeAllForUser(ctx context.Context, tx pgx.Tx, userID string) error
}

type ResolveCache interface {
	GetUserID(ctx context.Context, digest string) (string, error)
	SetUserID(ctx context.Context, digest, userID string) error
	InvalidateUser(ctx context.Context, userID string) error
}

// Registry issues opaque bearer tokens and resolves them back to users.
// Tokens carry no claims and no expiry; a token is valid exactly until the
// owning user logs out.
type Registry struct {
	store  TokenStore
	cache  ResolveCache // optional, may be nil
	secret []byte
}

func NewRegistry(store TokenStore, cache ResolveCache, secret string) *Registry {
	return &Registry{
		store:  store,
		cache:  cache,
		secret: []byte(secret),
	}
}

// Issue generates a fresh random token for the user, persists its digest and
// returns the raw token. The raw token is never stored.
func (r *Registry) Issue(ctx context.Context, userID string) (string, error) {
	b := make([]byte, rawTokenBytes)

	_, err := rand.Read(b)

	if err != nil {
		return "", err
	}

	raw := base64.RawURLEncoding.EncodeToString(b)

	tx, err := r.store.BeginTx(ctx)

	if err != nil {
		return "", err
	}

	defer func() { _ = tx.Rollback(ctx) }()

	row := postgres.AccessTokenRow{
		ID:       uuid.NewString(),
		UserID:   userID,
		Digest:   r.Digest(raw),
		IssuedAt: time.Now().UTC(),
	}

	err = r.store.Create(ctx, tx, row)

	if err != nil {
		return "", err
	}

	err = tx.Commit(ctx)

	if err != nil {
		return "", err
	}

	return raw, nil
}

// Resolve maps a raw bearer token to the owning user id. Unknown and revoked
// tokens are indistinguishable and both yield ErrInvalidToken.
func (r *Registry) Resolve(ctx context.Context, raw string) (string, error) {
	if raw == "" {
		return "", ErrInvalidToken
	}

	digest := r.Digest(raw)

	if r.cache != nil {
		userID, err := r.cache.GetUserID(ctx, digest)

		if err == nil && userID != "" {
			return userID, nil
		}
		// cache miss or cache trouble: fall through to the store
	}

	userID, err := r.store.Resolve(ctx, digest)

	if err != nil {
		if errors.Is(err, postgres.ErrTokenNotFound) {
			return "", ErrInvalidToken
		}

		return "", err
	}

	if r.cache != nil {
		// best effort; a failed cache write must not fail the request
		_ = r.cache.SetUserID(ctx, digest, userID)
	}

	return userID, nil
}

// RevokeAll deletes every token bound to the user. A user with no tokens is a
// no-op, which keeps logout idempotent.
func (r *Registry) RevokeAll(ctx context.Context, userID string) error {
	tx, err := r.store.BeginTx(ctx)

	if err != nil {
		return err
	}

	defer func() { _ = tx.Rollback(ctx) }()

	err = r.store.RevokeAllForUser(ctx, tx, userID)

	if err != nil {
		return err
	}

	err = tx.Commit(ctx)

	if err != nil {
		return err
	}

	if r.cache != nil {
		_ = r.cache.InvalidateUser(ctx, userID)
	}

	return nil
}

// Deterministic HMAC digest (server-side pepper = token secret bytes).
// Store this in DB (never store the raw token).
func (r *Registry) Digest(raw string) string {
	h := hmac.New(sha256.New, r.secret)
	h.Write([]byte(raw))
	return hex.EncodeToString(h.Sum(nil))
}
