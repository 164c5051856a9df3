package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"restorify/internal/config"

	"github.com/gin-gonic/gin"
	appmetrics "restorify/internal/metrics"
)

// tokenBucket is a simple token bucket implementation for rate limiting.
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	ratePerSec float64 // tokens per second
	burst      float64
}

func newBucket(rpm, burst int) *tokenBucket {
	if rpm <= 0 {
		rpm = 60
	}
	if burst <= 0 {
		burst = rpm // default burst equals a minute worth
	}
	return &tokenBucket{
		tokens:     float64(burst),
		lastRefill: time.Now(),
		ratePerSec: float64(rpm) / 60.0,
		burst:      float64(burst),
	}
}

func (b *tokenBucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.ratePerSec
		if b.tokens > b.burst {
			b.tokens = b.burst
		}
		b.lastRefill = now
	}
	if b.tokens >= 1 {
		b.tokens -= 1
		return true
	}
	return false
}

// limiter groups per-key buckets sharing one limit config.
type limiter struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket // key -> bucket
	cfg     config.PathRateLimitConfig
}

func (l *limiter) get(key string) *tokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[key]; ok {
		return b
	}
	b := newBucket(l.cfg.RequestsPerMinute, l.cfg.Burst)
	l.buckets[key] = b
	return b
}

// RateLimitMiddleware rate-limits by client key with optional per-path
// overrides. Matching is done by the first Paths entry whose Prefix matches
// the request path prefix; requests not covered by a path override fall back
// to the global limit. If rate limiting is disabled, it no-ops.
func RateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	rl := cfg.Security.RateLimiting
	if !rl.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	extractKey := func(c *gin.Context) string {
		if rl.KeyHeader != "" {
			hVal := c.GetHeader(rl.KeyHeader)
			if hVal != "" {
				// If X-Forwarded-For, take the first IP
				if strings.EqualFold(rl.KeyHeader, "X-Forwarded-For") {
					parts := strings.Split(hVal, ",")
					if len(parts) > 0 {
						return strings.TrimSpace(parts[0])
					}
				}
				return hVal
			}
		}
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		return ip
	}
	inStrings := func(needle string, hay []string) bool {
		for _, s := range hay {
			if needle == s {
				return true
			}
		}
		return false
	}

	var pathLimiters []*limiter
	for _, p := range rl.Paths {
		if !p.Enabled || p.RequestsPerMinute <= 0 {
			continue
		}
		pathLimiters = append(pathLimiters, &limiter{
			buckets: make(map[string]*tokenBucket),
			cfg:     p,
		})
	}

	var global *limiter
	if rl.RequestsPerMinute > 0 {
		global = &limiter{
			buckets: make(map[string]*tokenBucket),
			cfg: config.PathRateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: rl.RequestsPerMinute,
				Burst:             rl.Burst,
			},
		}
	}

	reject := func(c *gin.Context, prefix string) {
		appmetrics.IncRateLimitDrop(prefix)
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":   "Too Many Requests",
			"message": "rate limit exceeded",
		})
	}

	return func(c *gin.Context) {
		key := extractKey(c)
		if rl.KeyHeader != "" && inStrings(key, rl.WhitelistKeys) {
			c.Next()
			return
		}
		if (rl.KeyHeader == "" || key == "unknown") && inStrings(c.ClientIP(), rl.WhitelistIPs) {
			c.Next()
			return
		}

		// per-path overrides first
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		for _, pl := range pathLimiters {
			if pl.cfg.Prefix != "" && strings.HasPrefix(path, pl.cfg.Prefix) {
				if !pl.get(key).allow() {
					reject(c, pl.cfg.Prefix)
					return
				}
				c.Next()
				return
			}
		}

		// fallback to global
		if global != nil {
			if !global.get(key).allow() {
				reject(c, "global")
				return
			}
		}
		c.Next()
	}
}
