// Package ratelimit throttles chats that send updates faster than the bot
// should process them.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter counts requests per key in fixed one-minute windows.
type Limiter struct {
	mu      sync.Mutex
	clients map[int64]*clientInfo
	now     func() time.Time

	requestsPerMinute int
	staleAfter        time.Duration
}

type clientInfo struct {
	windowStart time.Time
	lastRequest time.Time
	requests    int
}

type Option func(*Limiter)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter allows requestsPerMinute requests per key. A non-positive limit
// disables throttling.
func NewLimiter(requestsPerMinute int, opts ...Option) *Limiter {
	l := &Limiter{
		clients:           make(map[int64]*clientInfo),
		now:               time.Now,
		requestsPerMinute: requestsPerMinute,
		staleAfter:        10 * time.Minute,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow records a request for key and reports whether it is within the limit.
func (l *Limiter) Allow(key int64) bool {
	if l.requestsPerMinute <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	client, exists := l.clients[key]
	if !exists || now.Sub(client.windowStart) >= time.Minute {
		l.clients[key] = &clientInfo{windowStart: now, lastRequest: now, requests: 1}
		return true
	}

	client.requests++
	client.lastRequest = now
	return client.requests <= l.requestsPerMinute
}

// CleanExpired drops keys idle for longer than ten minutes.
func (l *Limiter) CleanExpired() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.staleAfter)
	removed := 0
	for key, client := range l.clients {
		if client.lastRequest.Before(cutoff) {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

// ActiveClients returns the number of tracked keys.
func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
