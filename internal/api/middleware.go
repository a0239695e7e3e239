package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/zulandar/shopclock/internal/logger"
	"golang.org/x/time/rate"
)

// RequestIDHeader carries the request id in and out.
const RequestIDHeader = "X-Request-ID"

// requestID propagates an incoming X-Request-ID or assigns a new one, and
// stores it in the request context for logging.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func accessLog(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.FromContext(c.Request.Context(), base).Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

// rateLimiter keeps one token bucket per client IP.
type rateLimiter struct {
	perMinute int
	ttl       time.Duration
	limiters  sync.Map // client IP -> *cachedLimiter
}

type cachedLimiter struct {
	limiter   *rate.Limiter
	expiresAt time.Time
}

func newRateLimiter(perMinute int, ttl time.Duration) *rateLimiter {
	return &rateLimiter{perMinute: perMinute, ttl: ttl}
}

func (rl *rateLimiter) get(key string) *rate.Limiter {
	if v, ok := rl.limiters.Load(key); ok {
		cached := v.(*cachedLimiter)
		if time.Now().Before(cached.expiresAt) {
			return cached.limiter
		}
	}
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.perMinute)), rl.perMinute)
	rl.limiters.Store(key, &cachedLimiter{limiter: limiter, expiresAt: time.Now().Add(rl.ttl)})
	return limiter
}

// middleware rejects requests over the per-IP budget with 429.
// perMinute <= 0 means unlimited.
func (rl *rateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.perMinute <= 0 {
			c.Next()
			return
		}
		if !rl.get(c.ClientIP()).Allow() {
			c.Header("Retry-After", strconv.Itoa(int(time.Minute/time.Duration(rl.perMinute)/time.Second)+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, envelope{
				Error:   "rate_limited",
				Message: "too many requests, try again shortly",
			})
			return
		}
		c.Next()
	}
}
