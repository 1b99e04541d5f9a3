package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetSet(t *testing.T) {
	c := NewMemory()
	defer c.Stop()

	_, ok := c.Get("missing")
	require.False(t, ok)

	c.Set("key", []byte("value"), time.Minute)
	got, ok := c.Get("key")
	require.True(t, ok)
	require.Equal(t, []byte("value"), got)
}

func TestExpiry(t *testing.T) {
	c := NewMemory()
	defer c.Stop()

	c.Set("short", []byte("v"), 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("short")
	require.False(t, ok)
}

func TestZeroTTLNeverExpires(t *testing.T) {
	c := NewMemory()
	defer c.Stop()

	c.Set("forever", []byte("v"), 0)
	time.Sleep(10 * time.Millisecond)

	_, ok := c.Get("forever")
	require.True(t, ok)
}

func TestDelete(t *testing.T) {
	c := NewMemory()
	defer c.Stop()

	c.Set("key", []byte("v"), time.Minute)
	c.Delete("key")

	_, ok := c.Get("key")
	require.False(t, ok)
}

func TestStopIsIdempotent(t *testing.T) {
	c := NewMemory()
	c.Stop()
	c.Stop()
}
