package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/accounthub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrTokenNotFound = errors.New("token not found")

// AccessTokenRow holds a digest of an issued bearer token. The raw token is
// handed to the client once and never stored.
type AccessTokenRow struct {
	ID       string
	UserID   string
	Digest   string
	IssuedAt time.Time
}

type AccessTokensRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewAccessTokensRepo(pool *pgxpool.Pool, prom *observability.Prom) *AccessTokensRepo {
	return &AccessTokensRepo{
		pool: pool,
		prom: prom,
	}
}

func (r *AccessTokensRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *AccessTokensRepo) Create(ctx context.Context, tx pgx.Tx, row AccessTokenRow) error {
	return r.observe("access_tokens.create", func() error {
		_, err := tx.Exec(ctx,
			`INSERT INTO access_tokens (id, user_id, digest, issued_at)
			VALUES ($1,$2,$3,$4)
			`,
			row.ID, row.UserID, row.Digest, row.IssuedAt,
		)
		return err
	})
}

// Resolve maps a token digest back to the owning user. A revoked token has no
// row, so absence covers both unknown and revoked.
func (r *AccessTokensRepo) Resolve(ctx context.Context, digest string) (string, error) {
	var userID string

	err := r.observe("access_tokens.resolve", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT user_id
			FROM access_tokens
			WHERE digest = $1
		`, digest).Scan(&userID)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrTokenNotFound
		}

		return "", err
	}

	return userID, nil
}

// RevokeAllForUser deletes every token belonging to the user. Deleting zero
// rows is not an error, which makes revocation idempotent.
func (r *AccessTokensRepo) RevokeAllForUser(ctx context.Context, tx pgx.Tx, userID string) error {
	return r.observe("access_tokens.revoke_all", func() error {
		_, err := tx.Exec(ctx, `
			DELETE FROM access_tokens
			WHERE user_id = $1
		`, userID)
		return err
	})
}

func (r *AccessTokensRepo) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.BeginTx(ctx, pgx.TxOptions{})
}
