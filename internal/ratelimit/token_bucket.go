package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Tokens are stored in thousandths so the script only deals in integers.
const milli = 1000

// KEYS[1] bucket hash. ARGV: refill per second in milli-tokens, capacity in
// milli-tokens, key ttl in ms. Returns {allowed, remaining milli-tokens, now ms}.
const submissionBucketScript = `
local refill = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local clock = redis.call("TIME")
local now = clock[1] * 1000 + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "level", "at")
local level = tonumber(state[1]) or capacity
local at = tonumber(state[2]) or now

local elapsed = math.max(0, now - at)
level = math.min(capacity, level + math.floor(elapsed * refill / 1000))

local allowed = 0
if level >= 1000 then
  allowed = 1
  level = level - 1000
end

redis.call("HSET", KEYS[1], "level", level, "at", now)
redis.call("PEXPIRE", KEYS[1], ttl)
return {allowed, level, now}
`

// Decision is the outcome of one submission check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

type tokenBucket struct {
	client *redis.Client
	script *redis.Script
}

func newTokenBucket(client *redis.Client) *tokenBucket {
	return &tokenBucket{client: client, script: redis.NewScript(submissionBucketScript)}
}

// take removes one token from the bucket at key. The bucket holds burst
// tokens and refills continuously at rate tokens per second.
func (b *tokenBucket) take(ctx context.Context, key string, rate float64, burst int) (Decision, error) {
	if key == "" {
		return Decision{}, errors.New("rate limit key is empty")
	}
	if rate <= 0 || burst <= 0 {
		return Decision{}, errors.New("rate limit rate and burst must be positive")
	}

	refill := int64(math.Round(rate * milli))
	if refill < 1 {
		refill = 1
	}
	ttl := bucketTTL(rate, burst)

	res, err := b.script.Run(ctx, b.client, []string{key}, refill, int64(burst)*milli, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("rate limit script returned %d values", len(res))
	}

	level, now := res[1], time.UnixMilli(res[2])
	d := Decision{
		Allowed:   res[0] == 1,
		Limit:     burst,
		Remaining: int(level / milli),
		ResetAt:   now,
	}
	if !d.Allowed {
		missing := milli - level
		d.RetryAfter = time.Duration(float64(missing) / float64(refill) * float64(time.Second))
		d.ResetAt = now.Add(d.RetryAfter)
	}
	return d, nil
}

// bucketTTL keeps an idle bucket around for twice its full refill time.
func bucketTTL(rate float64, burst int) time.Duration {
	ttl := time.Duration(math.Ceil(2*float64(burst)/rate)) * time.Second
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}
