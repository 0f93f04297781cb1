package portal

import (
	"sync"
	"time"

	apierr "github.com/amrdata/amrportal/pkg/api/types/errors"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

const (
	limiterIdle  = 10 * time.Minute
	limiterSweep = time.Minute
)

// ipLimiter throttles attempts per client IP.
//
// Limiters of clients idle for a while are dropped on the next call after a sweep interval.
type ipLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	clients   map[string]*ipEntry
	lastSweep time.Time
}

type ipEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newIPLimiter(limit rate.Limit, burst int, now func() time.Time) *ipLimiter {
	return &ipLimiter{
		limit:     limit,
		burst:     burst,
		now:       now,
		clients:   map[string]*ipEntry{},
		lastSweep: now(),
	}
}

// Allow consumes one attempt of ip. It returns false when ip has no attempts left.
func (l *ipLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if limiterSweep <= now.Sub(l.lastSweep) {
		for k, e := range l.clients {
			if limiterIdle <= now.Sub(e.lastSeen) {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	e, ok := l.clients[ip]
	if !ok {
		e = &ipEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = e
	}
	e.lastSeen = now
	return e.lim.AllowN(now, 1)
}

// Len is the number of clients tracked.
func (l *ipLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// throttle refuses requests from clients out of attempts.
//
// Attempts are shared with login.
func (p *Portal) throttle(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !p.limiter.Allow(c.RealIP()) {
			return apierr.TooManyRequests("wait a minute and try again.")
		}
		return next(c)
	}
}
