package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Client wraps a Redis connection for sessions, rate limiting and online status.
type Client struct {
	rdb *goredis.Client
}

// NewClient creates a Redis client from a URL and verifies the connection.
func NewClient(redisURL string) (*Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	rdb := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

const (
	refreshTokenPrefix = "fellowship:refresh:"
	onlinePrefix       = "fellowship:online:"
	onlineTTL          = 5 * time.Minute
)

// StoreRefreshToken maps a refresh token to a user ID until expiry.
func (c *Client) StoreRefreshToken(ctx context.Context, token string, userID int64, expiry time.Duration) error {
	return c.rdb.Set(ctx, refreshTokenPrefix+token, userID, expiry).Err()
}

// ConsumeRefreshToken atomically reads and deletes a refresh token so it
// cannot be replayed.
func (c *Client) ConsumeRefreshToken(ctx context.Context, token string) (int64, error) {
	val, err := c.rdb.GetDel(ctx, refreshTokenPrefix+token).Result()
	if err == goredis.Nil {
		return 0, fmt.Errorf("refresh token not found")
	}
	if err != nil {
		return 0, fmt.Errorf("consuming refresh token: %w", err)
	}

	userID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing user ID: %w", err)
	}
	return userID, nil
}

// revokeScript deletes a refresh token only when it belongs to ARGV[1].
var revokeScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RevokeRefreshToken deletes a refresh token issued to userID. It reports
// false when the token is unknown or belongs to someone else.
func (c *Client) RevokeRefreshToken(ctx context.Context, token string, userID int64) (bool, error) {
	n, err := revokeScript.Run(ctx, c.rdb, []string{refreshTokenPrefix + token}, strconv.FormatInt(userID, 10)).Int64()
	if err != nil {
		return false, fmt.Errorf("revoking refresh token: %w", err)
	}
	return n == 1, nil
}

// rateLimitScript increments a fixed-window counter, sets its TTL on first
// use, and returns {count, remaining ttl in ms}.
var rateLimitScript = goredis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
    redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`)

// CheckRateLimit reports whether the request is within limit for the current
// window, along with the hit count and the milliseconds until the window resets.
func (c *Client) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, count int64, ttlMs int64, err error) {
	res, err := rateLimitScript.Run(ctx, c.rdb, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, 0, fmt.Errorf("checking rate limit: %w", err)
	}
	if len(res) != 2 {
		return false, 0, 0, fmt.Errorf("checking rate limit: unexpected reply %v", res)
	}
	count, ttlMs = res[0], res[1]
	if ttlMs < 0 {
		ttlMs = window.Milliseconds()
	}
	return count <= int64(limit), count, ttlMs, nil
}

// SetOnline records that a user has at least one live gateway connection.
func (c *Client) SetOnline(ctx context.Context, userID int64) error {
	return c.rdb.Set(ctx, onlinePrefix+strconv.FormatInt(userID, 10), time.Now().Unix(), onlineTTL).Err()
}

// SetOffline clears a user's online marker.
func (c *Client) SetOffline(ctx context.Context, userID int64) error {
	return c.rdb.Del(ctx, onlinePrefix+strconv.FormatInt(userID, 10)).Err()
}

// IsOnline reports whether the user's online marker is present.
func (c *Client) IsOnline(ctx context.Context, userID int64) (bool, error) {
	n, err := c.rdb.Exists(ctx, onlinePrefix+strconv.FormatInt(userID, 10)).Result()
	if err != nil {
		return false, fmt.Errorf("checking online status: %w", err)
	}
	return n == 1, nil
}
