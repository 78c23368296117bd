package tokencache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache keeps recently resolved token digests in redis so hot protected
// routes skip the postgres lookup. Redis only ever mirrors the token table;
// the table stays the source of truth.

var ErrMiss = errors.New("token cache miss")

type Config struct {
	Addr     string
	Password string
	DB       int
}

type Cache struct {
	redisdb *redis.Client
	ttl     time.Duration
}

func New(cfg Config) *Cache {
	redisdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	return &Cache{redisdb: redisdb, ttl: 5 * time.Minute}
}

// this ping function checks redis connectivity

func (c *Cache) Ping(ctx context.Context) error {
	return c.redisdb.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.redisdb.Close()
}

func tokenKey(digest string) string {
	return "tok:" + digest
}

func userSetKey(userID string) string {
	return "usertok:" + userID
}

func (c *Cache) GetUserID(ctx context.Context, digest string) (string, error) {
	userID, err := c.redisdb.Get(ctx, tokenKey(digest)).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrMiss
		}

		return "", err
	}

	return userID, nil
}

// SetUserID caches a resolved digest and records it in the owner's set so a
// bulk revoke can find every cached entry.
func (c *Cache) SetUserID(ctx context.Context, digest, userID string) error {
	pipe := c.redisdb.TxPipeline()

	pipe.Set(ctx, tokenKey(digest), userID, c.ttl)
	pipe.SAdd(ctx, userSetKey(userID), digest)
	pipe.Expire(ctx, userSetKey(userID), c.ttl)

	_, err := pipe.Exec(ctx)

	return err
}

func (c *Cache) InvalidateUser(ctx context.Context, userID string) error {
	digests, err := c.redisdb.SMembers(ctx, userSetKey(userID)).Result()

	if err != nil {
		return err
	}

	keys := make([]string, 0, len(digests)+1)

	for _, d := range digests {
		keys = append(keys, tokenKey(d))
	}

	keys = append(keys, userSetKey(userID))

	return c.redisdb.Del(ctx, keys...).Err()
}
