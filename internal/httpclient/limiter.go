package httpclient

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter paces requests per upstream host. Pages and chunks are fetched
// sequentially; the limiter keeps a burst of them from hammering one gateway.
//
//	if err := limiter.Wait(ctx, req.URL.String()); err != nil {
//		return err
//	}
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewHostLimiter allows rps requests per second per host with the given burst.
// rps <= 0 disables pacing.
func NewHostLimiter(rps float64, burst int) *HostLimiter {
	if burst < 1 {
		burst = 1
	}
	l := rate.Limit(rps)
	if rps <= 0 {
		l = rate.Inf
	}
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      l,
		burst:    burst,
	}
}

// Wait blocks until host may be contacted or ctx is done.
// host may be a full URL; only scheme and host are used.
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	if h == nil {
		return ctx.Err()
	}
	return h.limiterFor(host).Wait(ctx)
}

func (h *HostLimiter) limiterFor(host string) *rate.Limiter {
	if u, err := url.Parse(host); err == nil && u.Host != "" {
		host = u.Scheme + "://" + u.Host
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(h.rps, h.burst)
		h.limiters[host] = l
	}
	return l
}
