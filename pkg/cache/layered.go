package cache

import (
	"context"
	"time"
)

// LayeredCache implements two-level cache (L1: Memory, L2: any Service, usually Redis).
type LayeredCache struct {
	mem    *MemoryCache
	remote Service
	memTTL time.Duration
}

// NewLayeredCache creates a layered cache in front of remote.
func NewLayeredCache(remote Service, opts ...LayeredOption) *LayeredCache {
	cfg := &LayeredConfig{
		MemoryMaxSize: 1000,
		MemoryTTL:     5 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &LayeredCache{
		mem:    NewMemoryCache(WithMemoryMaxSize(cfg.MemoryMaxSize)),
		remote: remote,
		memTTL: cfg.MemoryTTL,
	}
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	// Write-through: remote first, then memory
	if err := lc.remote.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	_ = lc.mem.Set(ctx, key, value, lc.l1TTL(expiration))
	return nil
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.mem.Get(ctx, key, dest); err == nil {
		return nil
	}
	if err := lc.remote.Get(ctx, key, dest); err != nil {
		return err
	}
	_ = lc.mem.Set(ctx, key, dest, lc.memTTL)
	return nil
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.mem.Delete(ctx, keys...)
	return lc.remote.Delete(ctx, keys...)
}

func (lc *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	if ok, _ := lc.mem.Exists(ctx, keys...); ok {
		return true, nil
	}
	return lc.remote.Exists(ctx, keys...)
}

// Close closes both cache layers.
func (lc *LayeredCache) Close() error {
	_ = lc.mem.Close()
	return lc.remote.Close()
}

// l1TTL never lets L1 outlive the remote entry.
func (lc *LayeredCache) l1TTL(expiration time.Duration) time.Duration {
	if expiration > 0 && expiration < lc.memTTL {
		return expiration
	}
	return lc.memTTL
}

var _ Service = (*LayeredCache)(nil)
