package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"nftflip/internal/metrics"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
)

var redisClient *redis.Client

// InitRedisRateLimiter initializes a shared Redis client used by the
// middleware. If the connection fails, redisClient remains nil and the
// middleware acts as fail-open.
func InitRedisRateLimiter(addr, password string, db int) {
	if addr == "" {
		return
	}
	redisClient = redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// on ping failure, disable redis client to keep server available
		redisClient = nil
	}
}

// RedisRateLimit implements a fixed-window rate limiter using Redis
// INCR/EXPIRE. key format: rl:<window_seconds>:<identifier>
func RedisRateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if redisClient == nil {
			c.Next()
			return
		}

		ident := c.ClientIP()
		key := "rl:" + strconv.FormatInt(int64(window.Seconds()), 10) + ":" + ident
		ctx := context.Background()

		val, err := redisClient.Incr(ctx, key).Result()
		if err != nil {
			// on Redis error, fail-open (allow) but set header
			c.Header("X-RateLimit-Error", "redis-error")
			c.Next()
			return
		}

		if val == 1 {
			redisClient.Expire(ctx, key, window)
		}

		if val > int64(maxRequests) {
			metrics.RLBlocked.WithLabelValues(c.FullPath()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}

		metrics.RLRequests.WithLabelValues(c.FullPath()).Inc()

		c.Next()
	}
}

// IdentityRateLimit limits writes per wallet address (not per IP).
// Requires the JWT middleware to have run first.
func IdentityRateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if redisClient == nil {
			c.Next()
			return
		}

		address, ok := c.Get("address")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		key := "id_rl:" + address.(string) + ":" + strconv.FormatInt(int64(window.Seconds()), 10)
		ctx := context.Background()

		val, err := redisClient.Incr(ctx, key).Result()
		if err != nil {
			c.Header("X-RateLimit-Error", "redis-error")
			c.Next()
			return
		}

		if val == 1 {
			redisClient.Expire(ctx, key, window)
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		if remaining := int64(maxRequests) - val; remaining > 0 {
			c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		} else {
			c.Header("X-RateLimit-Remaining", "0")
		}

		if val > int64(maxRequests) {
			metrics.RLBlocked.WithLabelValues("identity:" + c.FullPath()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": int(window.Seconds()),
			})
			return
		}

		metrics.RLRequests.WithLabelValues(c.FullPath()).Inc()

		c.Next()
	}
}
