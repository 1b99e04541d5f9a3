package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryLockerAcquireRelease(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	acquired, err := locker.Acquire(ctx, "key1", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	// Second acquire of the same key fails while held.
	acquired, err = locker.Acquire(ctx, "key1", time.Minute)
	require.NoError(t, err)
	require.False(t, acquired)

	// A different key is independent.
	acquired, err = locker.Acquire(ctx, "key2", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	released, err := locker.Release(ctx, "key1")
	require.NoError(t, err)
	require.True(t, released)

	acquired, err = locker.Acquire(ctx, "key1", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)
}

func TestMemoryLockerTTLExpiry(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	acquired, err := locker.Acquire(ctx, "key1", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, acquired)

	time.Sleep(20 * time.Millisecond)

	acquired, err = locker.Acquire(ctx, "key1", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)
}

func TestMemoryLockerReleaseUnheld(t *testing.T) {
	locker := NewMemoryLocker()

	released, err := locker.Release(context.Background(), "never-held")
	require.NoError(t, err)
	require.False(t, released)
}

func TestMemoryLockerCanceledContext(t *testing.T) {
	locker := NewMemoryLocker()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := locker.Acquire(ctx, "key1", time.Minute)
	require.Error(t, err)
}

func TestWithLock(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	t.Run("runs fn and releases", func(t *testing.T) {
		ran := false
		err := WithLock(ctx, locker, "key1", time.Minute, func() error {
			ran = true
			return nil
		})
		require.NoError(t, err)
		require.True(t, ran)

		// Lock must have been released.
		acquired, err := locker.Acquire(ctx, "key1", time.Minute)
		require.NoError(t, err)
		require.True(t, acquired)
	})

	t.Run("held elsewhere", func(t *testing.T) {
		acquired, err := locker.Acquire(ctx, "key2", time.Minute)
		require.NoError(t, err)
		require.True(t, acquired)

		err = WithLock(ctx, locker, "key2", time.Minute, func() error {
			t.Fatal("fn must not run when the lock is held")
			return nil
		})
		require.ErrorIs(t, err, ErrLockNotAcquired)
	})

	t.Run("propagates fn error and still releases", func(t *testing.T) {
		sentinel := errors.New("boom")
		err := WithLock(ctx, locker, "key3", time.Minute, func() error {
			return sentinel
		})
		require.ErrorIs(t, err, sentinel)

		acquired, err := locker.Acquire(ctx, "key3", time.Minute)
		require.NoError(t, err)
		require.True(t, acquired)
	})
}

func TestNoOpLocker(t *testing.T) {
	locker := NewNoOpLocker()
	ctx := context.Background()

	acquired, err := locker.Acquire(ctx, "any", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	// No exclusion at all.
	acquired, err = locker.Acquire(ctx, "any", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)
}
