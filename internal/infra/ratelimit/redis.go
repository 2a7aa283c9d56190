package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/Archive-Origin/backend-sub002/internal/domain"

	"github.com/redis/go-redis/v9"
)

type redisLimiter struct {
	client  *redis.Client
	classes map[domain.IdentityClass]ClassLimit
	now     func() time.Time
}

// Token bucket in a hash: tokens refill continuously from the stored
// timestamp, consume-one is atomic inside the script.
var redisBucketScript = redis.NewScript(`
local tokens = tonumber(redis.call("HGET", KEYS[1], "tokens"))
local ts = tonumber(redis.call("HGET", KEYS[1], "ts"))
local now = tonumber(ARGV[1])
local refill = tonumber(ARGV[2])
local cap = tonumber(ARGV[3])
if tokens == nil or ts == nil then
  tokens = cap
  ts = now
end
local elapsed = (now - ts) / 1000.0
if elapsed > 0 then
  tokens = math.min(cap, tokens + elapsed * refill)
end
local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end
redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], math.ceil(cap / refill * 2000))
return {allowed, tostring(tokens)}
`)

type RedisLimiterConfig struct {
	Addr      string
	Password  string
	DB        int
	Anonymous ClassLimit
	APIKey    ClassLimit
	Now       func() time.Time
}

func NewRedisLimiter(cfg RedisLimiterConfig) (domain.RateLimiter, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &redisLimiter{
		client: client,
		classes: map[domain.IdentityClass]ClassLimit{
			domain.IdentityAnonymous: cfg.Anonymous,
			domain.IdentityAPIKey:    cfg.APIKey,
		},
		now: cfg.Now,
	}, nil
}

func (r *redisLimiter) Allow(ctx context.Context, identity domain.CallerIdentity) (domain.RateLimitDecision, error) {
	limit, ok := r.classes[identity.Class]
	if !ok || limit.Capacity <= 0 || limit.RefillPerSec <= 0 {
		return domain.RateLimitDecision{Allowed: true, Remaining: -1}, nil
	}
	now := r.now()
	result, err := redisBucketScript.Run(ctx, r.client,
		[]string{"ratelimit:" + identity.BucketKey()},
		now.UnixMilli(),
		limit.RefillPerSec,
		limit.Capacity,
	).Result()
	if err != nil {
		return domain.RateLimitDecision{}, err
	}
	values, ok := result.([]any)
	if !ok || len(values) < 2 {
		return domain.RateLimitDecision{}, errors.New("unexpected redis rate limit response")
	}
	allowed, ok := values[0].(int64)
	if !ok {
		return domain.RateLimitDecision{}, errors.New("invalid redis rate limit flag")
	}
	remaining := 0
	if raw, ok := values[1].(string); ok {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
			remaining = int(parsed)
		}
	}
	decision := domain.RateLimitDecision{
		Allowed:   allowed == 1,
		Remaining: remaining,
	}
	if !decision.Allowed {
		decision.RetryAt = now.Add(time.Duration(float64(time.Second) / limit.RefillPerSec))
	}
	return decision, nil
}
