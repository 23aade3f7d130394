package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
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

func TestMemoryCache_ExpiresOnLookup(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}
	c := NewMemoryCacheWithClock("bloombox", clock.Now)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "otp", "1234", 5*time.Minute))

	v, err := c.Get(ctx, "otp")
	require.NoError(t, err)
	assert.Equal(t, "1234", v)

	clock.Advance(5 * time.Minute)
	v, err = c.Get(ctx, "otp")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestMemoryCache_NoTTLNeverExpires(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Now()}
	c := NewMemoryCacheWithClock("bloombox", clock.Now)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	clock.Advance(24 * 365 * time.Hour)
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestMemoryCache_SetNX(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Now()}
	c := NewMemoryCacheWithClock("bloombox", clock.Now)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "lock", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNX(ctx, "lock", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	clock.Advance(time.Minute)
	ok, err = c.SetNX(ctx, "lock", "b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Delete(ctx, "lock"))
	v, err := c.Get(ctx, "lock")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestGenerateKey(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache("bloombox")
	assert.Equal(t, "bloombox:otp:+919876543210", c.GenerateKey("otp", "+919876543210"))
}
