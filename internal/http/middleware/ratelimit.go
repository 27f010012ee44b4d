package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Counter bumps a fixed-window counter and returns its current value.
type Counter interface {
	CountInWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// CounterFunc adapts a function to Counter (the redis package provides one).
type CounterFunc func(ctx context.Context, key string, window time.Duration) (int64, error)

func (f CounterFunc) CountInWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	return f(ctx, key, window)
}

// MemoryCounter is the in-process fallback used when no redis is configured
// and in tests. Buckets reset at fixed window boundaries. Unlike redis keys,
// map entries do not expire on their own, so expired buckets are pruned
// whenever the map grows past memoryCounterPruneSize. That keeps the map
// bounded by the number of distinct keys active within one window.
type MemoryCounter struct {
	mu      sync.Mutex
	Now     func() time.Time
	buckets map[string]memoryBucket
}

type memoryBucket struct {
	expires time.Time
	count   int64
}

const memoryCounterPruneSize = 1024

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{Now: time.Now, buckets: make(map[string]memoryBucket)}
}

func (m *MemoryCounter) CountInWindow(_ context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	if len(m.buckets) >= memoryCounterPruneSize {
		m.prune(now)
	}
	b, ok := m.buckets[key]
	if !ok || !now.Before(b.expires) {
		b = memoryBucket{expires: now.Add(window)}
	}
	b.count++
	m.buckets[key] = b
	return b.count, nil
}

// prune drops every expired bucket. Caller holds the lock.
func (m *MemoryCounter) prune(now time.Time) {
	for k, b := range m.buckets {
		if !now.Before(b.expires) {
			delete(m.buckets, k)
		}
	}
}

// RateLimit enforces a fixed-window limit over every key keyFn yields for a
// request; any exhausted key rejects with 429. The sync apply endpoint keys
// by user id and by client address (4 requests / 10 minutes each).
func RateLimit(counter Counter, limit int64, window time.Duration, keyFn func(*gin.Context) []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, key := range keyFn(c) {
			n, err := counter.CountInWindow(c.Request.Context(), key, window)
			if err != nil {
				// a broken counter must not take the endpoint down
				log.Error().Err(err).Str("key", key).Msg("rate limit counter unavailable")
				continue
			}
			if n > limit {
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
					"error": fmt.Sprintf("rate limit exceeded: %d requests per %s", limit, window),
				})
				return
			}
		}
		c.Next()
	}
}

// UserAndAddrKeys keys a request by authenticated user id and client IP.
func UserAndAddrKeys(prefix string) func(*gin.Context) []string {
	return func(c *gin.Context) []string {
		keys := []string{fmt.Sprintf("%s:addr:%s", prefix, c.ClientIP())}
		if user, ok := GetCurrentUser(c); ok {
			keys = append(keys, fmt.Sprintf("%s:user:%d", prefix, user.ID))
		}
		return keys
	}
}
