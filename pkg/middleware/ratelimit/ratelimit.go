package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	appErrors "github.com/noah-isme/attendease-api/pkg/errors"
	"github.com/noah-isme/attendease-api/pkg/response"
)

const staleAfter = 3 * time.Minute

type client struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter keeps one token bucket per client IP.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*client
	r       rate.Limit
	burst   int
	now     func() time.Time
}

// New builds a limiter allowing rps requests per second with the given burst.
func New(rps float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		clients: make(map[string]*client),
		r:       rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
	}
}

// StartCleanup evicts idle clients every interval until ctx is cancelled.
func (l *Limiter) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.evict()
			}
		}
	}()
}

// Allow reports whether the key may proceed now.
func (l *Limiter) Allow(key string) bool {
	return l.get(key).Allow()
}

// Middleware rejects requests exceeding the per-IP budget with 429.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			response.Error(c, appErrors.Clone(appErrors.ErrTooManyRequests, "frame rate limit exceeded, slow down the capture interval"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.clients[key]; ok {
		c.seen = l.now()
		return c.lim
	}
	lim := rate.NewLimiter(l.r, l.burst)
	l.clients[key] = &client{lim: lim, seen: l.now()}
	return lim
}

func (l *Limiter) evict() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, c := range l.clients {
		if l.now().Sub(c.seen) > staleAfter {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}
