package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"shoe-store/internal/util"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

// ErrLockBusy is returned when a lock could not be acquired before giving up.
var ErrLockBusy = errors.New("resource is locked by another request")

const idempotencyPending = "pending"

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
	lockTTL       time.Duration
	lockAttempts  int
	lockBackoff   time.Duration
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int, lockTTL time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
		lockTTL:       lockTTL,
		lockAttempts:  20,
		lockBackoff:   50 * time.Millisecond,
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping reports whether Redis is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// AcquireLock tries once to take the lock. The returned token must be passed
// to ReleaseLock.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", lockKey, err)
	}
	return token, ok, nil
}

// ReleaseLock deletes the lock only if it is still owned by token
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

// WithLock runs fn while holding lockKey, retrying acquisition with a fixed
// backoff. It returns ErrLockBusy when the lock stays taken.
func (c *Client) WithLock(ctx context.Context, lockKey string, fn func(context.Context) error) error {
	for attempt := 0; attempt < c.lockAttempts; attempt++ {
		token, ok, err := c.AcquireLock(ctx, lockKey, c.lockTTL)
		if err != nil {
			return err
		}
		if ok {
			defer func() {
				// release on a fresh context so a cancelled request still unlocks
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := c.ReleaseLock(releaseCtx, lockKey, token); err != nil {
					util.GetLogger().Warn("Failed to release lock", zap.String("key", lockKey), zap.Error(err))
				}
			}()
			return fn(ctx)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.lockBackoff):
		}
	}
	return fmt.Errorf("%s: %w", lockKey, ErrLockBusy)
}

// ReserveIdempotencyKey claims key for an in-flight request. It returns false
// when the key already exists.
func (c *Client) ReserveIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("idempotency:%s", key), idempotencyPending, ttl).Result()
}

// CompleteIdempotencyKey records the result of the request that owns key
func (c *Client) CompleteIdempotencyKey(ctx context.Context, key, result string, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", key), result, ttl).Err()
}

// GetIdempotencyKey returns the stored result. pending is true while the
// owning request has not completed.
func (c *Client) GetIdempotencyKey(ctx context.Context, key string) (result string, pending bool, err error) {
	val, err := c.rdb.Get(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if val == idempotencyPending {
		return "", true, nil
	}
	return val, false, nil
}

// DeleteIdempotencyKey forgets key so the request may be retried
func (c *Client) DeleteIdempotencyKey(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("idempotency:%s", key)).Err()
}
