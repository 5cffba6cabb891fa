package main

import (
	"net/http"
	"sync"
	"time"

	"stagebridge/pkg/httpx"
)

// fixedWindowLimiter caps requests per caller per minute. Counters are
// guarded per call; the map is small (one entry per active caller).
type fixedWindowLimiter struct {
	limit  int
	window time.Duration

	mu    sync.Mutex
	byKey map[string]windowState
}

type windowState struct {
	start time.Time
	count int
}

func newFixedWindowLimiter(perMinute int) *fixedWindowLimiter {
	return &fixedWindowLimiter{
		limit:  perMinute,
		window: time.Minute,
		byKey:  map[string]windowState{},
	}
}

func (l *fixedWindowLimiter) Allow(key string, now time.Time) bool {
	if l == nil || l.limit <= 0 {
		return true
	}
	if key == "" {
		key = "anonymous"
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cur := l.byKey[key]
	if cur.start.IsZero() || now.Sub(cur.start) >= l.window {
		l.byKey[key] = windowState{start: now, count: 1}
		return true
	}
	if cur.count >= l.limit {
		return false
	}
	cur.count++
	l.byKey[key] = cur
	return true
}

// middleware rejects over-limit requests before any business logic runs.
func (l *fixedWindowLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientIP(r), time.Now().UTC()) {
			httpx.WriteErr(w, 429, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
