package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimitConfig is a sliding window: at most Limit runs per Window.
type RateLimitConfig struct {
	Key    string // e.g. "run:test"
	Limit  int
	Window time.Duration
}

// Limits for tasks triggered over HTTP. Each run spawns an external process,
// so the budgets are small.
var (
	RunTestRateLimit   = RateLimitConfig{Key: "run:test", Limit: 3, Window: time.Minute}
	RunReportRateLimit = RateLimitConfig{Key: "run:report", Limit: 3, Window: time.Minute}
	RunBuildRateLimit  = RateLimitConfig{Key: "run:build", Limit: 1, Window: time.Minute}
)

// RunRateLimit returns the limit for a runner task. Unknown tasks share the
// test budget.
func RunRateLimit(task string) RateLimitConfig {
	switch task {
	case "report":
		return RunReportRateLimit
	case "build":
		return RunBuildRateLimit
	default:
		return RunTestRateLimit
	}
}

// slidingWindow trims the sorted set to the window and admits the caller when
// there is room. Returns {allowed, remaining}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window_ms)
local count = redis.call('ZCARD', key)
if count >= limit then
	return {0, 0}
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window_ms)
return {1, limit - count - 1}
`)

// RateLimiter guards externally triggered runs
// ⭐ SSOT: 레이트 리밋은 여기서만
type RateLimiter struct {
	client *Client
	prefix string
	now    func() time.Time
}

// NewRateLimiter creates a limiter whose keys live under prefix.
func NewRateLimiter(client *Client, prefix string) *RateLimiter {
	return &RateLimiter{client: client, prefix: prefix, now: time.Now}
}

func (r *RateLimiter) key(cfg RateLimitConfig) string {
	return fmt.Sprintf("%s:ratelimit:%s", r.prefix, cfg.Key)
}

// Allow records one attempt and reports whether it fits the window, plus the
// runs left. Without redis every run is allowed.
func (r *RateLimiter) Allow(ctx context.Context, cfg RateLimitConfig) (bool, int, error) {
	if r == nil || !r.client.Enabled() {
		return true, cfg.Limit, nil
	}

	res, err := slidingWindow.Run(ctx, r.client.Redis(), []string{r.key(cfg)},
		r.now().UnixMilli(),
		cfg.Window.Milliseconds(),
		cfg.Limit,
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit %s: %w", cfg.Key, err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("rate limit %s: unexpected reply %v", cfg.Key, res)
	}

	return res[0] == 1, int(res[1]), nil
}
