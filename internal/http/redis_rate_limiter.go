package httpx

import (
	"context"
	"strings"
	"time"

	"log/slog"

	redis "github.com/redis/go-redis/v9"

	"github.com/splax/icm/pkg/config"
)

const (
	defaultRedisRatePrefix = "icm:ratelimit:"
	redisRateTimeout       = 250 * time.Millisecond
)

type redisRateLimiter struct {
	client  *redis.Client
	logger  *slog.Logger
	prefix  string
	timeout time.Duration
}

// NewRedisRateLimiter returns a limiter whose windows are shared by every
// emulator replica pointed at the same Redis. Keys are namespaced with
// cfg.RateLimitRedisPrefix.
func NewRedisRateLimiter(cfg config.ServerConfig, logger *slog.Logger) (RateLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.RateLimitRedisAddr),
		Password: cfg.RateLimitRedisPass,
		DB:       cfg.RateLimitRedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	prefix := cfg.RateLimitRedisPrefix
	if prefix == "" {
		prefix = defaultRedisRatePrefix
	}
	return &redisRateLimiter{
		client:  client,
		logger:  logger,
		prefix:  prefix,
		timeout: redisRateTimeout,
	}, nil
}

// Allow counts the request and its window in one transaction. A counter left
// without an expiry gets one, so a key never pins an account at its limit.
// Redis failures let the request through.
func (rl *redisRateLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), rl.timeout)
	defer cancel()

	redisKey := rl.prefix + key
	var (
		count *redis.IntCmd
		ttl   *redis.DurationCmd
	)
	_, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		count = pipe.Incr(ctx, redisKey)
		ttl = pipe.PTTL(ctx, redisKey)
		return nil
	})
	if err != nil {
		rl.logRedisError("count", key, err)
		return rateDecision{allowed: true}
	}

	remaining := ttl.Val()
	if remaining <= 0 {
		if err := rl.client.PExpire(ctx, redisKey, window).Err(); err != nil {
			rl.logRedisError("expire", key, err)
		}
		remaining = window
	}
	n := int(count.Val())
	return rateDecision{
		allowed:   n <= limit,
		count:     n,
		windowEnd: time.Now().Add(remaining),
	}
}

func (rl *redisRateLimiter) Close() {
	if rl.client != nil {
		_ = rl.client.Close()
	}
}

func (rl *redisRateLimiter) logRedisError(op, key string, err error) {
	if rl.logger == nil {
		return
	}
	rl.logger.Warn("redis rate limiter degraded", "op", op, "key", rateMetricKey(key), "error", err)
}
