package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"github.com/simp-lee/attendance/internal/pkg"
	"golang.org/x/time/rate"
)

// RateLimitConfig configures RateLimit.
type RateLimitConfig struct {
	// RPS is the sustained request rate allowed per client IP.
	RPS float64
	// Burst is the bucket size per client IP.
	Burst int
	// IdleTTL drops limiters of clients that have been quiet this long.
	IdleTTL time.Duration
}

// RateLimit returns a token-bucket limiter keyed by client IP. Rejected
// requests get 429 with a Retry-After header.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	limiters := gocache.New(cfg.IdleTTL, 2*cfg.IdleTTL)

	return func(c *gin.Context) {
		lim := clientLimiter(limiters, c.ClientIP(), cfg)
		r := lim.Reserve()
		if delay := r.Delay(); !r.OK() || delay > 0 {
			r.Cancel()
			retry := int(math.Ceil(delay.Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, pkg.Response{
				Code:    http.StatusTooManyRequests,
				Message: "too many requests",
			})
			return
		}
		c.Next()
	}
}

func clientLimiter(limiters *gocache.Cache, key string, cfg RateLimitConfig) *rate.Limiter {
	if v, ok := limiters.Get(key); ok {
		lim := v.(*rate.Limiter)
		limiters.SetDefault(key, lim)
		return lim
	}
	lim := rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)
	if err := limiters.Add(key, lim, gocache.DefaultExpiration); err != nil {
		// Another request created it first.
		if v, ok := limiters.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}
