// Package lock provides locking abstractions used to serialize project
// creation within a user's namespace. Single-node deployments use memory
// locks (or none at all); multi-instance deployments sharing a users
// directory can use Redis-based locks.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrLockNotAcquired indicates the lock could not be acquired.
var ErrLockNotAcquired = errors.New("lock not acquired")

// Locker defines the interface for distributed/local locking.
type Locker interface {
	// Acquire attempts to acquire a lock. Returns true if the lock was
	// acquired, false if it's held elsewhere. The lock automatically
	// expires after the TTL.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release releases a lock. Returns true if the lock was released,
	// false if it wasn't held.
	Release(ctx context.Context, key string) (bool, error)
}

// WithLock acquires the key, runs fn, and releases. Returns
// ErrLockNotAcquired if the key is held elsewhere.
func WithLock(ctx context.Context, l Locker, key string, ttl time.Duration, fn func() error) error {
	acquired, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	if !acquired {
		return ErrLockNotAcquired
	}
	defer l.Release(ctx, key)
	return fn()
}
