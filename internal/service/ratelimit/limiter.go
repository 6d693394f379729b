package ratelimit

import (
    "sync"
    "time"

    "golang.org/x/time/rate"
)

// Limiter hands out one token bucket per key.
type Limiter struct {
    mu    sync.Mutex
    m     map[string]*rate.Limiter
    every rate.Limit
    burst int
    now   func() time.Time
}

// New allows burst requests per key, refilled at one token per interval.
func New(interval time.Duration, burst int) *Limiter {
    if burst < 1 {
        burst = 1
    }
    every := rate.Inf
    if interval > 0 {
        every = rate.Every(interval)
    }
    return &Limiter{m: make(map[string]*rate.Limiter), every: every, burst: burst, now: time.Now}
}

// Allow reports whether one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
    l.mu.Lock()
    lim, ok := l.m[key]
    if !ok {
        lim = rate.NewLimiter(l.every, l.burst)
        l.m[key] = lim
    }
    l.mu.Unlock()
    return lim.AllowN(l.now(), 1)
}
