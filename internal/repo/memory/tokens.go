package memory

import (
	"context"
	"sync"

	"github.com/geocoder89/accounthub/internal/repo/postgres"
	"github.com/jackc/pgx/v5"
)

type TokensRepo struct {
	mu     sync.RWMutex
	byHash map[string]postgres.AccessTokenRow // digest -> row
}

func NewTokensRepo() *TokensRepo {
	return &TokensRepo{
		byHash: make(map[string]postgres.AccessTokenRow),
	}
}

func (r *TokensRepo) Create(ctx context.Context, tx pgx.Tx, row postgres.AccessTokenRow) error {
	r.mu.Lock()
	r.byHash[row.Digest] = row
	r.mu.Unlock()

	return nil
}

func (r *TokensRepo) Resolve(ctx context.Context, digest string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.byHash[digest]
	if !ok {
		return "", postgres.ErrTokenNotFound
	}

	return row.UserID, nil
}

func (r *TokensRepo) RevokeAllForUser(ctx context.Context, tx pgx.Tx, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for digest, row := range r.byHash {
		if row.UserID == userID {
			delete(r.byHash, digest)
		}
	}

	return nil
}

func (r *TokensRepo) Count(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, row := range r.byHash {
		if row.UserID == userID {
			n++
		}
	}

	return n
}

func (r *TokensRepo) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return noopTx{}, nil
}
