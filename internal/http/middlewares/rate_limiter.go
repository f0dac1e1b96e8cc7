package middlewares

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// WindowCounter counts hits per key in fixed windows. redisclient.Client
// implements it for multi-instance deployments; MemoryCounter for one.
type WindowCounter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (count int64, resetIn time.Duration, err error)
}

type RateLimiter struct {
	counter WindowCounter
	window  time.Duration
	limit   int
	prefix  string
	log     *slog.Logger
}

func NewRateLimiter(counter WindowCounter, prefix string, limit int, window time.Duration, log *slog.Logger) *RateLimiter {
	return &RateLimiter{
		counter: counter,
		limit:   limit,
		window:  window,
		prefix:  prefix,
		log:     log,
	}
}

// RateLimiterMiddleware enforces the limit for the key derived by keyFn.
// If the counter backend is unreachable the request is let through.
func (rl *RateLimiter) RateLimiterMiddleware(keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.limit <= 0 {
			c.Next()
			return
		}

		key := keyFn(c)

		if key == "" {
			// fallback to IP if key cannot be derived
			key = clientIP(c)
		}

		count, resetIn, err := rl.counter.IncrWindow(c.Request.Context(), "ratelimit:"+rl.prefix+":"+key, rl.window)
		if err != nil {
			rl.log.WarnContext(c.Request.Context(), "rate limiter unavailable", "err", err)
			c.Next()
			return
		}

		if count > int64(rl.limit) {
			retryAfter := int(resetIn.Seconds())

			if retryAfter < 0 {
				retryAfter = 0
			}

			c.Header("Retry-After", strconv.Itoa(retryAfter))

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests. Please try again shortly.",
				"code":  "rate_limited",
			})

			return
		}

		c.Next()
	}
}

// MemoryCounter is a single-process WindowCounter.
type MemoryCounter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	now     func() time.Time
}

type clientBucket struct {
	count     int64
	windowEnd time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		clients: make(map[string]*clientBucket),
		now:     time.Now,
	}
}

func (m *MemoryCounter) IncrWindow(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	// drop expired buckets once the map grows
	if len(m.clients) > 10_000 {
		for k, b := range m.clients {
			if now.After(b.windowEnd) {
				delete(m.clients, k)
			}
		}
	}

	b, ok := m.clients[key]

	if !ok || now.After(b.windowEnd) {
		b = &clientBucket{windowEnd: now.Add(window)}
		m.clients[key] = b
	}

	b.count++

	return b.count, b.windowEnd.Sub(now), nil
}

// KeyByIP rate limits unauthenticated endpoints by client IP.
func KeyByIP(c *gin.Context) string {
	return clientIP(c)
}

func clientIP(c *gin.Context) string {
	// Gin's ClientIP respects X-Forwarded-For / X-Real-IP if configured.
	ip := c.ClientIP()

	host, _, err := net.SplitHostPort(ip)

	if err == nil && host != "" {
		return host
	}

	return ip
}
