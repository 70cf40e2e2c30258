package slotlock

// This file implements the distributed Locker backend on Redis.  The lock
// is a SET NX PX key holding a random token; release is a token-checked
// delete so one node can never free another node's lock.  The PX expiry
// bounds how long a crashed holder can block a slot, which satisfies the
// no-orphaned-locks requirement without any coordinator process.

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLocker acquires slot locks through a shared Redis instance.
type RedisLocker struct {
	rdb   *redis.Client
	ttl   time.Duration
	retry time.Duration
}

var releaseScript = redis.NewScript(`
    if redis.call('GET', KEYS[1]) == ARGV[1] then
        return redis.call('DEL', KEYS[1])
    end
    return 0
`)

// NewRedisLocker builds a RedisLocker.  ttl caps how long a dead holder
// can pin a slot; retry is the polling interval while waiting.
func NewRedisLocker(rdb *redis.Client, ttl, retry time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	if retry <= 0 {
		retry = 25 * time.Millisecond
	}
	return &RedisLocker{rdb: rdb, ttl: ttl, retry: retry}
}

// WithLock implements Locker.
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	token, err := randomToken()
	if err != nil {
		return err
	}
	redisKey := "lock:" + key

	for {
		ok, err := l.rdb.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return ErrLockTimeout
			}
			return err
		}
		if ok {
			break
		}
		select {
		case <-time.After(l.retry):
		case <-ctx.Done():
			return ErrLockTimeout
		}
	}

	defer func() {
		// Best-effort token-checked release; expiry covers failures.
		relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = releaseScript.Run(relCtx, l.rdb, []string{redisKey}, token).Result()
	}()

	return fn(ctx)
}

func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
