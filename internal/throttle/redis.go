package throttle

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/healthbridge/verification-service/internal/domain"
)

const defaultKeyPrefix = "verification:teletan:rl:"

// The counter and its expiry are set in one script so concurrent admission
// checks cannot overshoot the ceiling.
var admitScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])

local current = redis.call("INCR", key)
if current == 1 then
  redis.call("PEXPIRE", key, window_ms)
end

if current > limit then
  return {0, current}
end
return {1, current}
`)

// RedisThrottle is a fixed-window counter shared across service replicas.
type RedisThrottle struct {
	client *redis.Client
	limits Limits
	prefix string
	logger *zap.Logger
}

// NewRedisThrottle constructs the throttle.
func NewRedisThrottle(client *redis.Client, limits Limits, logger *zap.Logger) *RedisThrottle {
	return &RedisThrottle{client: client, limits: limits, prefix: defaultKeyPrefix, logger: logger}
}

// Admit counts this attempt against the window for the TeleTAN type and
// reports whether the ceiling still holds.
func (t *RedisThrottle) Admit(ctx context.Context, teleTanType domain.TeleTanType) (bool, error) {
	key := t.prefix + string(teleTanType)
	windowMS := t.limits.Window.Milliseconds()
	if windowMS <= 0 {
		return false, fmt.Errorf("invalid throttle window")
	}

	res, err := admitScript.Run(ctx, t.client, []string{key}, t.limits.Count, windowMS).Result()
	if err != nil {
		return false, err
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return false, fmt.Errorf("unexpected redis response")
	}
	admitted, ok := vals[0].(int64)
	if !ok {
		return false, fmt.Errorf("unexpected redis response")
	}
	count, ok := vals[1].(int64)
	if !ok {
		return false, fmt.Errorf("unexpected redis response")
	}

	if admitted != 1 {
		t.logger.Warn("teletan rate limit exceeded",
			zap.String("type", string(teleTanType)),
			zap.Int("limit", t.limits.Count),
			zap.Duration("window", t.limits.Window))
		return false, nil
	}
	if int(count) >= t.limits.WarnCeiling() {
		t.logger.Warn("teletan rate limit threshold reached",
			zap.String("type", string(teleTanType)),
			zap.Int64("count", count),
			zap.Int("limit", t.limits.Count))
	}
	return true, nil
}
