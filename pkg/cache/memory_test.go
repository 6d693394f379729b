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
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type payload struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

func TestMemoryCacheRoundTripAndExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 2, 20, 15, 0, 0, 0, time.UTC)}
	mc := NewMemoryCache(WithMemoryClock(clock.Now))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", payload{Name: "spx", Score: 81.5}, 45*time.Second))

	var got payload
	require.NoError(t, mc.Get(ctx, "k", &got))
	assert.Equal(t, payload{Name: "spx", Score: 81.5}, got)

	ok, err := mc.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(45 * time.Second)
	assert.ErrorIs(t, mc.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 2, 20, 15, 0, 0, 0, time.UTC)}
	mc := NewMemoryCache(WithMemoryMaxSize(2), WithMemoryClock(clock.Now))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", 1, time.Minute))
	clock.Advance(time.Second)
	require.NoError(t, mc.Set(ctx, "b", 2, time.Minute))
	clock.Advance(time.Second)

	var v int
	require.NoError(t, mc.Get(ctx, "a", &v))
	clock.Advance(time.Second)
	require.NoError(t, mc.Set(ctx, "c", 3, time.Minute))

	assert.Equal(t, 2, mc.Len())
	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &v))
	assert.Equal(t, 1, v)
}

func TestGenerateKeyWithParamsSkipsEmpty(t *testing.T) {
	assert.Equal(t, "p:SPY:2026-02-20", GenerateKeyWithParams("p", "SPY", "2026-02-20"))
	assert.Equal(t, "p:2026-02-20", GenerateKeyWithParams("p", "", "2026-02-20"))
}
