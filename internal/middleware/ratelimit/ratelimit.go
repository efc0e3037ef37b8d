// Package ratelimit caps how often each client may hit the API. Council runs
// fan out to paid model providers, so a runaway client is a cost problem
// before it is a load problem.
package ratelimit

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Config tunes one limiter. Zero values fall back to 60 requests per minute.
type Config struct {
	Limit  int           // requests allowed per client per window
	Window time.Duration // window length
	Logger *zap.Logger
}

// Limiter counts requests per client IP over fixed windows. Counters reset
// when their window lapses; a background sweep drops idle clients.
type Limiter struct {
	limit  int
	window time.Duration
	logger *zap.Logger

	mu      sync.Mutex
	clients map[string]*counter
	done    chan struct{}
}

// counter is one client's request count within the window opened at since.
type counter struct {
	seen  int
	since time.Time
}

func New(cfg Config) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	l := &Limiter{
		limit:   cfg.Limit,
		window:  cfg.Window,
		logger:  cfg.Logger,
		clients: make(map[string]*counter),
		done:    make(chan struct{}),
	}
	go l.sweep()

	return l
}

// Middleware rejects requests over the per-client budget with 429 and a
// Retry-After hint for when the window resets.
func (l *Limiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ok, retryAfter := l.take(c.IP())
		if !ok {
			l.logger.Warn("Rate limit exceeded",
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()),
			)
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(retryAfter.Seconds())+1))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded. Please try again later.",
			})
		}
		return c.Next()
	}
}

// take consumes one slot for key, reporting how long until the window resets
// when the budget is spent.
func (l *Limiter) take(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	ct := l.clients[key]
	if ct == nil || now.Sub(ct.since) >= l.window {
		l.clients[key] = &counter{seen: 1, since: now}
		return true, 0
	}
	if ct.seen >= l.limit {
		return false, l.window - now.Sub(ct.since)
	}
	ct.seen++
	return true, 0
}

// sweep drops counters whose window lapsed so idle clients do not accumulate.
func (l *Limiter) sweep() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.mu.Lock()
			now := time.Now()
			for key, ct := range l.clients {
				if now.Sub(ct.since) >= l.window {
					delete(l.clients, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Stop ends the background sweep.
func (l *Limiter) Stop() {
	close(l.done)
}
