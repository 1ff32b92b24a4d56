// Package ratelimit counts submissions per (sender signal, recipient) key.
//
// The remote counter refreshes the key TTL on every touch, so a window ends
// only after a quiet period of one window length. Treat the result as an
// approximate limit. When the remote counter fails the limiter falls back
// to a process-local counter; with several processes this under-enforces
// until the remote recovers.
package ratelimit

import (
	"context"
	"time"

	"anonuplift/internal/logging"
)

type Policy struct {
	Max    int
	Window time.Duration
}

type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Counter records one hit against key and reports whether it is allowed.
type Counter interface {
	Hit(ctx context.Context, key string, p Policy) (Result, error)
}

// Key builds the submission key for a sender address and target username.
func Key(clientIP, username string) string {
	return "message:" + clientIP + ":" + username
}

// Limiter is the single entry point handlers use. Remote may be nil.
type Limiter struct {
	Remote Counter
	Local  *Memory
	Policy Policy
	Log    logging.Logger
}

func New(remote Counter, p Policy, log logging.Logger) *Limiter {
	return &Limiter{Remote: remote, Local: NewMemory(), Policy: p, Log: log}
}

// Allow never returns an error: a failing remote counter is replaced by the
// local one for this call.
func (l *Limiter) Allow(ctx context.Context, key string) Result {
	if l.Remote != nil {
		res, err := l.Remote.Hit(ctx, key, l.Policy)
		if err == nil {
			return res
		}
		l.Log.Warn(ctx, "remote rate limit failed, using local counter", "err", err)
	}
	res, _ := l.Local.Hit(ctx, key, l.Policy)
	return res
}
