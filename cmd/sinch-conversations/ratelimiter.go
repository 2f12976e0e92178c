package main

import (
	"sync"
	"time"
)

// RateLimiter is a fixed-window per-client request limiter.
type RateLimiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	visitors map[string]*visitor
}

type visitor struct {
	count       int
	windowStart time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:    limit,
		window:   window,
		visitors: make(map[string]*visitor),
	}
}

// Allow reports whether a request from the given client may proceed and
// counts it against the current window.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	v, exists := rl.visitors[ip]
	if !exists || now.Sub(v.windowStart) >= rl.window {
		rl.visitors[ip] = &visitor{count: 1, windowStart: now}
		rl.pruneLocked(now)
		return true
	}

	if v.count >= rl.limit {
		return false
	}
	v.count++
	return true
}

// pruneLocked drops entries whose window has long expired so the map does
// not grow without bound. Caller holds the mutex.
func (rl *RateLimiter) pruneLocked(now time.Time) {
	if len(rl.visitors) < 10000 {
		return
	}
	for ip, v := range rl.visitors {
		if now.Sub(v.windowStart) >= 2*rl.window {
			delete(rl.visitors, ip)
		}
	}
}
