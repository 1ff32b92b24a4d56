package middleware

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle is a per-client-address token bucket for cheap abuse protection
// on unauthenticated lookups. It is separate from the message rate limit.
type Throttle struct {
	mu       sync.Mutex
	limiters map[string]*bucketEntry

	perSecond float64
	burst     int
	bucketTTL time.Duration
	now       func() time.Time
}

type bucketEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

func NewThrottle(perSecond float64, burst int) *Throttle {
	return &Throttle{
		limiters:  make(map[string]*bucketEntry),
		perSecond: perSecond,
		burst:     burst,
		bucketTTL: time.Hour,
		now:       time.Now,
	}
}

func (t *Throttle) allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	entry, ok := t.limiters[key]
	if !ok {
		entry = &bucketEntry{limiter: rate.NewLimiter(rate.Limit(t.perSecond), t.burst)}
		t.limiters[key] = entry
	}
	entry.lastAccess = now
	return entry.limiter.AllowN(now, 1)
}

// Run drops idle buckets until ctx is done.
func (t *Throttle) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.cleanup()
		case <-ctx.Done():
			return
		}
	}
}

func (t *Throttle) cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for k, e := range t.limiters {
		if now.Sub(e.lastAccess) > t.bucketTTL {
			delete(t.limiters, k)
		}
	}
}

// Middleware rejects with reject once a client's bucket is empty.
func (t *Throttle) Middleware(reject http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !t.allow(ClientIP(r)) {
				reject(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the caller address with the port stripped. Proxy headers
// count only when the router installed chi's RealIP ahead of this.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
