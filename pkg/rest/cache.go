package rest

import (
	"context"
	"sync"
	"time"

	"github.com/amrdata/amrportal/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// Query groups. A mutation invalidates groups it affects.
const (
	GroupDataSets    = "datasets"
	GroupPermissions = "permissions"
	GroupUsers       = "users"
	GroupModels      = "models"
	GroupResistance  = "resistance"
)

// GroupDataSet is the group of queries about one dataset.
func GroupDataSet(id string) string {
	return "dataset/" + id
}

// Cache holds bodies of successful GET responses per (token, URL).
//
// Concurrent lookups of the same key share one fetch.
// Errors are never cached.
type Cache struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	metrics    *metrics.Metrics

	// fetchTimeout bounds a shared fetch, which outlives the caller who started it.
	fetchTimeout time.Duration

	mu      sync.Mutex
	entries map[string]*cacheEntry
	// gen is bumped on each invalidation. A fetch started in an older generation is not stored.
	gen uint64

	flight singleflight.Group

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type cacheEntry struct {
	token   string
	groups  []string
	body    []byte
	expires time.Time
}

type CacheOption func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// WithCacheMetrics counts hits and misses.
func WithCacheMetrics(m *metrics.Metrics) CacheOption {
	return func(c *Cache) { c.metrics = m }
}

// WithFetchTimeout bounds each upstream fetch. Zero means no bound.
func WithFetchTimeout(d time.Duration) CacheOption {
	return func(c *Cache) { c.fetchTimeout = d }
}

// NewCache creates a cache and starts its janitor, which sweeps expired entries every sweep.
//
// maxEntries <= 0 means unbounded. sweep <= 0 disables the janitor.
// Call Close to stop the janitor.
func NewCache(ttl time.Duration, maxEntries int, sweep time.Duration, opts ...CacheOption) *Cache {
	c := &Cache{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    map[string]*cacheEntry{},
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if sweep <= 0 {
		close(c.done)
		return c
	}
	go func() {
		defer close(c.done)
		tick := time.NewTicker(sweep)
		defer tick.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-tick.C:
				c.Sweep()
			}
		}
	}()
	return c
}

// Close stops the janitor and waits for it.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.stop) })
	<-c.done
}

func cacheKey(token, url string) string {
	return token + "\x00" + url
}

// Fetch returns the cached body for (token, url), or calls fetch and caches its result.
//
// groups are query groups the entry belongs to, for Invalidate.
func (c *Cache) Fetch(
	ctx context.Context, token, url string, groups []string,
	fetch func(context.Context) ([]byte, error),
) ([]byte, error) {
	key := cacheKey(token, url)
	if body, ok := c.lookup(key); ok {
		c.metrics.ObserveCache(true)
		return body, nil
	}
	c.metrics.ObserveCache(false)

	// The fetch is shared by every caller waiting on key, so it must not die
	// with the caller who happened to start it.
	fctx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(key, func() (any, error) {
		c.mu.Lock()
		gen := c.gen
		c.mu.Unlock()

		fctx, cancel := fctx, context.CancelFunc(func() {})
		if c.fetchTimeout > 0 {
			fctx, cancel = context.WithTimeout(fctx, c.fetchTimeout)
		}
		defer cancel()

		body, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		c.store(key, gen, &cacheEntry{
			token:   token,
			groups:  groups,
			body:    body,
			expires: c.now().Add(c.ttl),
		})
		return body, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.([]byte), nil
	}
}

func (c *Cache) lookup(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.body, true
}

func (c *Cache) store(key string, gen uint64, e *cacheEntry) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	if _, ok := c.entries[key]; !ok && 0 < c.maxEntries && c.maxEntries <= len(c.entries) {
		c.sweepLocked()
		for c.maxEntries <= len(c.entries) {
			c.evictLocked()
		}
	}
	c.entries[key] = e
}

// evictLocked drops the entry which expires first.
func (c *Cache) evictLocked() {
	var victim string
	var earliest time.Time
	first := true
	for k, e := range c.entries {
		if first || e.expires.Before(earliest) {
			victim, earliest, first = k, e.expires, false
		}
	}
	delete(c.entries, victim)
}

func (c *Cache) sweepLocked() {
	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
}

// Sweep drops expired entries.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
}

// Invalidate drops entries in any of groups, for all tokens.
func (c *Cache) Invalidate(groups ...string) {
	if len(groups) == 0 {
		return
	}
	want := map[string]struct{}{}
	for _, g := range groups {
		want[g] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	for k, e := range c.entries {
		for _, g := range e.groups {
			if _, ok := want[g]; ok {
				delete(c.entries, k)
				break
			}
		}
	}
}

// InvalidateToken drops all entries of token.
func (c *Cache) InvalidateToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	for k, e := range c.entries {
		if e.token == token {
			delete(c.entries, k)
		}
	}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
