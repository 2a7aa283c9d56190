package replayguard

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/Archive-Origin/backend-sub002/internal/domain"

	"github.com/redis/go-redis/v9"
)

type redisGuard struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// SET NX gives the single-writer semantics; the GET branch returns the
// first-seen timestamp recorded by whoever won.
var redisRegisterScript = redis.NewScript(`
local ok = redis.call("SET", KEYS[1], ARGV[1], "NX", "PX", ARGV[2])
if ok then
  return {1, ARGV[1]}
end
return {0, redis.call("GET", KEYS[1])}
`)

func NewRedisGuard(addr, password string, db int, ttl time.Duration, now func() time.Time) (domain.ReplayGuard, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	if ttl <= 0 {
		return nil, errors.New("replay ttl must be positive")
	}
	if now == nil {
		now = time.Now
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &redisGuard{client: client, ttl: ttl, now: now}, nil
}

func (g *redisGuard) CheckAndRegister(ctx context.Context, fingerprint string) (domain.ReplayDecision, error) {
	nowMillis := g.now().UnixMilli()
	result, err := redisRegisterScript.Run(ctx, g.client,
		[]string{replayKey(fingerprint)},
		strconv.FormatInt(nowMillis, 10),
		g.ttl.Milliseconds(),
	).Result()
	if err != nil {
		return domain.ReplayDecision{}, err
	}
	values, ok := result.([]any)
	if !ok || len(values) < 2 {
		return domain.ReplayDecision{}, errors.New("unexpected redis replay response")
	}
	fresh, ok := values[0].(int64)
	if !ok {
		return domain.ReplayDecision{}, errors.New("invalid redis replay flag")
	}
	firstSeenRaw, _ := values[1].(string)
	firstSeenMillis, err := strconv.ParseInt(firstSeenRaw, 10, 64)
	if err != nil {
		firstSeenMillis = nowMillis
	}
	return domain.ReplayDecision{
		Fresh:     fresh == 1,
		FirstSeen: time.UnixMilli(firstSeenMillis),
	}, nil
}

func (g *redisGuard) Unregister(ctx context.Context, fingerprint string) error {
	return g.client.Del(ctx, replayKey(fingerprint)).Err()
}

func replayKey(fingerprint string) string {
	return "replay:" + fingerprint
}
