package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source shared by backend tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testStorageContract exercises the behavior every backend must share.
// advance moves the backend's notion of time forward.
func testStorageContract(t *testing.T, s Storage, advance func(time.Duration)) {
	ctx := context.Background()

	t.Run("get missing key", func(t *testing.T) {
		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("set and get", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "rateLimit:a", `{"attempts":1}`, 0))

		got, err := s.Get(ctx, "rateLimit:a")
		require.NoError(t, err)
		assert.Equal(t, `{"attempts":1}`, got)
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "rateLimit:a", `{"attempts":2}`, 0))

		got, err := s.Get(ctx, "rateLimit:a")
		require.NoError(t, err)
		assert.Equal(t, `{"attempts":2}`, got)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "tmp", "x", 0))
		require.NoError(t, s.Delete(ctx, "tmp"))

		_, err := s.Get(ctx, "tmp")
		assert.ErrorIs(t, err, ErrNotFound)

		// Deleting again is not an error.
		assert.NoError(t, s.Delete(ctx, "tmp"))
	})

	t.Run("keys by prefix", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "rateLimit:b", "1", 0))
		require.NoError(t, s.Set(ctx, "rateLimit:c", "1", 0))
		require.NoError(t, s.Set(ctx, "ratelimit:lower", "1", 0))
		require.NoError(t, s.Set(ctx, "session:x", "1", 0))
		require.NoError(t, s.Set(ctx, "rate_x", "1", 0))

		keys, err := s.Keys(ctx, "rateLimit:")
		require.NoError(t, err)
		assert.Equal(t, []string{"rateLimit:a", "rateLimit:b", "rateLimit:c"}, keys)

		keys, err = s.Keys(ctx, "rate_")
		require.NoError(t, err)
		assert.Equal(t, []string{"rate_x"}, keys)

		keys, err = s.Keys(ctx, "nothing:")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("ttl expiry", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "rateLimit:ttl", "v", time.Minute))

		got, err := s.Get(ctx, "rateLimit:ttl")
		require.NoError(t, err)
		assert.Equal(t, "v", got)

		advance(2 * time.Minute)

		_, err = s.Get(ctx, "rateLimit:ttl")
		assert.ErrorIs(t, err, ErrNotFound)

		keys, err := s.Keys(ctx, "rateLimit:ttl")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, s.Ping(ctx))
	})
}
