package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired-and-reacquired lock is never released out from under its new owner.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLocker implements Locker using a Redis SET NX lock.
// Use this when multiple server instances share one users directory.
type RedisLocker struct {
	client *redis.Client
	token  string
}

// NewRedisLocker creates a new Redis-backed locker. The token identifies
// this instance's lock ownership.
func NewRedisLocker(client *redis.Client, token string) *RedisLocker {
	return &RedisLocker{
		client: client,
		token:  token,
	}
}

// Acquire attempts to acquire a lock.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, l.token, ttl).Result()
}

// Release releases a lock held by this instance.
func (l *RedisLocker) Release(ctx context.Context, key string) (bool, error) {
	res, err := l.client.Eval(ctx, releaseScript, []string{key}, l.token).Result()
	if err != nil {
		return false, err
	}
	n, ok := res.(int64)
	return ok && n > 0, nil
}

// Ensure RedisLocker implements Locker.
var _ Locker = (*RedisLocker)(nil)
