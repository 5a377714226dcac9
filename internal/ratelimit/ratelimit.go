// Package ratelimit provides per-client rate limiting middleware.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Config configures rate limiting.
type Config struct {
	// RequestsPerMinute is the sustained per-client rate.
	RequestsPerMinute int
	// BurstSize allows brief bursts above the limit.
	BurstSize int
	// CleanupInterval is how often idle client entries are dropped.
	CleanupInterval time.Duration
}

// DefaultConfig returns the defaults used by the API server.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 120,
		BurstSize:         20,
		CleanupInterval:   time.Minute,
	}
}

// Limiter tracks token buckets by client key.
type Limiter struct {
	cfg     Config
	mu      sync.Mutex
	clients map[string]*bucket
	stop    chan struct{}
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// New creates a rate limiter and starts its cleanup loop.
func New(cfg Config) *Limiter {
	l := &Limiter{
		cfg:     cfg,
		clients: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	go l.cleanup()
	return l
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			cutoff := time.Now().Add(-2 * time.Minute)
			for key, b := range l.clients {
				if b.lastCheck.Before(cutoff) {
					delete(l.clients, key)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

// Stop stops the cleanup goroutine.
func (l *Limiter) Stop() {
	close(l.stop)
}

// Allow reports whether a request under the given key may proceed.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, exists := l.clients[key]
	if !exists {
		l.clients[key] = &bucket{
			tokens:    float64(l.cfg.BurstSize - 1),
			lastCheck: now,
		}
		return true
	}

	elapsed := now.Sub(b.lastCheck).Seconds()
	b.tokens += elapsed * float64(l.cfg.RequestsPerMinute) / 60.0
	if b.tokens > float64(l.cfg.BurstSize) {
		b.tokens = float64(l.cfg.BurstSize)
	}
	b.lastCheck = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Middleware returns a Gin middleware that rate limits by client IP.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "Too many requests. Please slow down.",
				"retry_after": 1,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// MiddlewareWithConfig creates middleware with custom config.
func MiddlewareWithConfig(cfg Config) gin.HandlerFunc {
	return New(cfg).Middleware()
}
