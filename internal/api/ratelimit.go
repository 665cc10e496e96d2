package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gracefellowship/fellowship/internal/metrics"
	"github.com/gracefellowship/fellowship/internal/redis"
)

// RateLimit is a fixed-window request budget. Requests are counted per user
// when signed in and per client IP otherwise. Routes that use the same
// Bucket draw from the same budget.
type RateLimit struct {
	Bucket string
	Limit  int
	Window time.Duration
}

var (
	authLimit     = RateLimit{Bucket: "auth", Limit: 5, Window: time.Minute}
	checkoutLimit = RateLimit{Bucket: "checkout", Limit: 10, Window: time.Minute}
	apiLimit      = RateLimit{Bucket: "api", Limit: 50, Window: time.Minute}
	// Per user across all rooms.
	chatSendLimit = RateLimit{Bucket: "chat_send", Limit: 10, Window: 10 * time.Second}
)

func (rl RateLimit) key(c echo.Context) string {
	if uid, ok := c.Get("user_id").(int64); ok {
		return "rl:" + rl.Bucket + ":user:" + strconv.FormatInt(uid, 10)
	}
	return "rl:" + rl.Bucket + ":ip:" + c.RealIP()
}

// Middleware enforces the budget using Redis. When Redis is unreachable
// requests are let through.
func (rl RateLimit) Middleware(rdb *redis.Client) echo.MiddlewareFunc {
	limit := strconv.Itoa(rl.Limit)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			allowed, count, ttlMs, err := rdb.CheckRateLimit(c.Request().Context(), rl.key(c), rl.Limit, rl.Window)
			if err != nil {
				slog.Warn("rate limit check failed", "bucket", rl.Bucket, "error", err)
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(max(int64(rl.Limit)-count, 0), 10))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Duration(ttlMs)*time.Millisecond).Unix(), 10))

			if !allowed {
				metrics.RateLimited.WithLabelValues(rl.Bucket).Inc()
				h.Set("Retry-After", strconv.FormatInt((ttlMs+999)/1000, 10))
				return Error(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, please try again later")
			}
			return next(c)
		}
	}
}
