package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type memoryItem struct {
	data       []byte
	expireAt   time.Time
	lastAccess time.Time
}

// MemoryCache implements Service in process with LRU eviction.
type MemoryCache struct {
	mu      sync.Mutex
	data    map[string]*memoryItem
	maxSize int
	now     func() time.Time
	ticker  *time.Ticker
	done    chan struct{}
	once    sync.Once
}

// NewMemoryCache creates an in-memory cache.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:         1000,
		CleanupInterval: 5 * time.Minute,
		Now:             time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1000
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	mc := &MemoryCache{
		data:    make(map[string]*memoryItem),
		maxSize: cfg.MaxSize,
		now:     cfg.Now,
		ticker:  time.NewTicker(cfg.CleanupInterval),
		done:    make(chan struct{}),
	}
	go mc.cleanupExpired()
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	now := mc.now()
	if expiration <= 0 {
		expiration = 24 * time.Hour
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	if _, ok := mc.data[key]; !ok && len(mc.data) >= mc.maxSize {
		mc.evictLRU()
	}
	mc.data[key] = &memoryItem{data: data, expireAt: now.Add(expiration), lastAccess: now}
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	item, ok := mc.data[key]
	now := mc.now()
	if ok && !now.Before(item.expireAt) {
		delete(mc.data, key)
		ok = false
	}
	if !ok {
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	item.lastAccess = now
	data := item.data
	mc.mu.Unlock()

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		delete(mc.data, key)
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	now := mc.now()
	for _, key := range keys {
		if item, ok := mc.data[key]; ok && now.Before(item.expireAt) {
			return true, nil
		}
	}
	return false, nil
}

// Len reports the number of stored entries, expired ones included.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return len(mc.data)
}

func (mc *MemoryCache) evictLRU() {
	var oldestKey string
	var oldest time.Time
	for key, item := range mc.data {
		if oldestKey == "" || item.lastAccess.Before(oldest) {
			oldestKey, oldest = key, item.lastAccess
		}
	}
	if oldestKey != "" {
		delete(mc.data, oldestKey)
	}
}

func (mc *MemoryCache) cleanupExpired() {
	for {
		select {
		case <-mc.done:
			return
		case <-mc.ticker.C:
			mc.mu.Lock()
			now := mc.now()
			for key, item := range mc.data {
				if !now.Before(item.expireAt) {
					delete(mc.data, key)
				}
			}
			mc.mu.Unlock()
		}
	}
}

// Close stops the cleanup loop.
func (mc *MemoryCache) Close() error {
	mc.once.Do(func() {
		mc.ticker.Stop()
		close(mc.done)
	})
	return nil
}

var _ Service = (*MemoryCache)(nil)
