package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// hitScript reads the counter, refreshes the TTL, and increments only when
// the count is below the maximum. Returns {allowed, count}.
var hitScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if count >= tonumber(ARGV[1]) then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  return {0, count}
end
count = redis.call('INCR', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return {1, count}
`)

// Redis is the remote counter shared by every process.
type Redis struct {
	Client  redis.Scripter
	Timeout time.Duration
	now     func() time.Time
}

func NewRedis(client redis.Scripter, timeout time.Duration) *Redis {
	return &Redis{Client: client, Timeout: timeout, now: time.Now}
}

// Dial parses a redis:// URL and returns a client.
func Dial(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opt), nil
}

func (r *Redis) Hit(ctx context.Context, key string, p Policy) (Result, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	resetAt := r.now().Add(p.Window)
	vals, err := hitScript.Run(ctx, r.Client, []string{key}, p.Max, p.Window.Milliseconds()).Slice()
	if err != nil {
		return Result{}, err
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("rate limit script: unexpected reply %v", vals)
	}
	allowed, _ := vals[0].(int64)
	count, _ := vals[1].(int64)

	if allowed == 0 {
		return Result{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}
	remaining := p.Max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Remaining: remaining, ResetAt: resetAt}, nil
}
