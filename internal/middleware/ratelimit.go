package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"pathology-records-server/internal/utils"
)

// ClientLimiter keeps a token bucket per client IP.
type ClientLimiter struct {
	limiters map[string]*clientEntry
	mu       sync.RWMutex
	perIP    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter creates a limiter allowing requestsPerSecond per client
// with the given burst.
func NewClientLimiter(requestsPerSecond float64, burst int) *ClientLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 20
	}
	if burst <= 0 {
		burst = 40
	}
	return &ClientLimiter{
		limiters: make(map[string]*clientEntry),
		perIP:    rate.Limit(requestsPerSecond),
		burst:    burst,
		idle:     10 * time.Minute,
		now:      time.Now,
	}
}

// Allow reports whether a request from ip may proceed now.
func (l *ClientLimiter) Allow(ip string) bool {
	return l.getLimiter(ip).Allow()
}

func (l *ClientLimiter) getLimiter(ip string) *rate.Limiter {
	now := l.now()

	l.mu.RLock()
	entry, ok := l.limiters[ip]
	l.mu.RUnlock()
	if ok {
		l.mu.Lock()
		entry.lastSeen = now
		l.mu.Unlock()
		return entry.limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.limiters[ip]; ok {
		entry.lastSeen = now
		return entry.limiter
	}
	entry = &clientEntry{limiter: rate.NewLimiter(l.perIP, l.burst), lastSeen: now}
	l.limiters[ip] = entry
	return entry.limiter
}

// Cleanup drops clients not seen for the idle period.
func (l *ClientLimiter) Cleanup() {
	cutoff := l.now().Add(-l.idle)

	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, ip)
		}
	}
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (l *ClientLimiter) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Cleanup()
		}
	}
}

// Size returns the number of tracked clients.
func (l *ClientLimiter) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.limiters)
}

// RateLimit rejects requests over the client's budget with 429.
func RateLimit(l *ClientLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			utils.TooManyRequests(c, "Rate limit exceeded, retry later")
			c.Abort()
			return
		}
		c.Next()
	}
}
