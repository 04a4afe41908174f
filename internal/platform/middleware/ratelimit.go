package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL evicts limiters for keys that have been quiet this long.
	IdleTTL time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 50,
		BurstSize:         100,
		IdleTTL:           10 * time.Minute,
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type rateLimiterStore struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	config   RateLimitConfig
	lastGC   time.Time
}

func newRateLimiterStore(cfg RateLimitConfig) *rateLimiterStore {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &rateLimiterStore{
		limiters: make(map[string]*limiterEntry),
		config:   cfg,
		lastGC:   time.Now(),
	}
}

func (s *rateLimiterStore) get(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastGC) > s.config.IdleTTL {
		for k, e := range s.limiters {
			if now.Sub(e.lastSeen) > s.config.IdleTTL {
				delete(s.limiters, k)
			}
		}
		s.lastGC = now
	}

	e, ok := s.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(s.config.RequestsPerSecond), s.config.BurstSize)}
		s.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// RateLimit applies a token bucket per caller. Authenticated callers are
// keyed by actor id, anonymous ones by client IP.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := newRateLimiterStore(cfg)
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()
			if actorID, ok := c.Get("actor_id").(string); ok && actorID != "" {
				key = "actor:" + actorID
			}

			now := time.Now()
			limiter := store.get(key, now)
			c.Response().Header().Set("X-RateLimit-Limit", limitHeader)

			r := limiter.ReserveN(now, 1)
			if !r.OK() {
				return tooManyRequests(c, time.Second)
			}
			if delay := r.DelayFrom(now); delay > 0 {
				r.CancelAt(now)
				return tooManyRequests(c, delay)
			}

			return next(c)
		}
	}
}

func tooManyRequests(c echo.Context, retryAfter time.Duration) error {
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
	c.Response().Header().Set("X-RateLimit-Remaining", "0")
	return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
}
