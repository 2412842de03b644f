package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RateLimiter enforces a fixed-window request limit backed by redis, so the
// count is shared across dispatch instances.
type RateLimiter struct {
	redis  *redis.Client
	logger *zap.Logger
}

type RateLimitConfig struct {
	RequestsPerMinute int
	WindowDuration    time.Duration
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

func NewRateLimiter(redisClient *redis.Client, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		logger: logger,
	}
}

func (rl *RateLimiter) CheckLimit(ctx context.Context, key string, config RateLimitConfig) (*RateLimitResult, error) {
	now := time.Now()
	window := now.Truncate(config.WindowDuration)
	redisKey := fmt.Sprintf("rate_limit:%s:%d", key, window.Unix())

	pipe := rl.redis.Pipeline()
	incrCmd := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, config.WindowDuration)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return nil, err
	}

	count := int(incrCmd.Val())

	resetTime := window.Add(config.WindowDuration)
	remaining := config.RequestsPerMinute - count
	if remaining < 0 {
		remaining = 0
	}

	return &RateLimitResult{
		Allowed:    count <= config.RequestsPerMinute,
		Limit:      config.RequestsPerMinute,
		Remaining:  remaining,
		ResetTime:  resetTime,
		RetryAfter: time.Until(resetTime),
	}, nil
}

// RateLimitMiddleware keys on the authenticated subject when present,
// falling back to the client IP. A redis failure lets the request through.
func (rl *RateLimiter) RateLimitMiddleware(config RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rl.generateKey(c)

		result, err := rl.CheckLimit(c.Request.Context(), key, config)
		if err != nil {
			rl.logger.Error("Rate limit check failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime.Unix(), 10))

		if !result.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))

			rl.logger.Warn("Rate limit exceeded",
				zap.String("key", key),
				zap.String("ip", c.ClientIP()),
				zap.String("path", c.Request.URL.Path))

			c.JSON(429, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": result.RetryAfter.Seconds(),
				"limit":       result.Limit,
				"reset_time":  result.ResetTime.Unix(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func (rl *RateLimiter) generateKey(c *gin.Context) string {
	subjectID := GetSubjectID(c)
	if subjectID != "" {
		return fmt.Sprintf("subject:%s", subjectID)
	}

	return fmt.Sprintf("ip:%s", c.ClientIP())
}

func (rl *RateLimiter) GetLimitStatus(ctx context.Context, key string, config RateLimitConfig) (*RateLimitResult, error) {
	now := time.Now()
	window := now.Truncate(config.WindowDuration)
	redisKey := fmt.Sprintf("rate_limit:%s:%d", key, window.Unix())

	count, err := rl.redis.Get(ctx, redisKey).Int()
	if err != nil {
		if err == redis.Nil {
			count = 0
		} else {
			return nil, err
		}
	}

	resetTime := window.Add(config.WindowDuration)
	remaining := config.RequestsPerMinute - count
	if remaining < 0 {
		remaining = 0
	}

	return &RateLimitResult{
		Allowed:    count < config.RequestsPerMinute,
		Limit:      config.RequestsPerMinute,
		Remaining:  remaining,
		ResetTime:  resetTime,
		RetryAfter: time.Until(resetTime),
	}, nil
}
