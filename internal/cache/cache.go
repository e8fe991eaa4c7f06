package cache

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-kit/log"
	"golang.org/x/sync/singleflight"

	"dashcache/internal/storage"
)

// Config controls one cache instance.
//
// All three durations/counts must be positive; New rejects anything else.
// Named instances (widgets, users, analytics) each get their own Config and
// run fully independently.
type Config struct {
	// Name labels the instance in logs and metrics and derives its fixed
	// snapshot storage key. Empty means "default".
	Name string

	// DefaultTTL applies to entries written without WithTTL.
	DefaultTTL time.Duration

	// MaxEntries bounds the entry count; the least recently used entry is
	// evicted when a write pushes the cache over this bound.
	MaxEntries int

	// CleanupInterval is the period of the background sweep, which removes
	// expired entries and then snapshots the survivors to storage.
	CleanupInterval time.Duration
}

// Cache is a concurrency-safe in-memory cache with TTL expiry, LRU eviction,
// and periodic snapshotting.
//
// The core design is intentionally explicit and "mechanical": a map gives
// O(1) key lookup, and a doubly-linked list maintains recency ordering. The
// two structures are kept in bijection — every map key is on the list exactly
// once and vice versa.
//
// Ownership model: Cache owns its maintenance goroutine. Call Shutdown to
// stop it; after Shutdown, writes are dropped and reads miss.
type Cache[V any] struct {
	mu sync.RWMutex

	name         string
	defaultTTL   time.Duration
	maxEntries   int
	cleanupEvery time.Duration

	items map[string]*list.Element
	lru   *list.List // Front = most recently used (MRU), Back = least recently used (LRU)

	store      storage.Store
	storageKey string

	group singleflight.Group

	logger  log.Logger
	m       cacheMetrics
	timeNow func() time.Time // for testing

	// Goroutine ownership.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// entry is the value stored in the LRU list elements. The key lives here too
// because eviction starts from list nodes.
//
// createdAt and ttl are kept separately (rather than a precomputed deadline)
// because Touch extends ttl in place and snapshots serialize both fields.
type entry[V any] struct {
	key       string
	value     V
	createdAt time.Time
	ttl       time.Duration
}

// expired reports whether e is past its deadline. Strictly greater-than: an
// entry is valid exactly through its nominal TTL boundary.
func (e *entry[V]) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// New constructs a cache and starts its background maintenance goroutine.
//
// store may be nil, in which case the cache runs purely in memory and the
// snapshot methods are no-ops.
func New[V any](cfg Config, store storage.Store, opts ...Option) (*Cache[V], error) {
	if cfg.DefaultTTL <= 0 {
		return nil, errors.New("cache: DefaultTTL must be greater than zero")
	}
	if cfg.MaxEntries <= 0 {
		return nil, errors.New("cache: MaxEntries must be greater than zero")
	}
	if cfg.CleanupInterval <= 0 {
		return nil, errors.New("cache: CleanupInterval must be greater than zero")
	}

	name := cfg.Name
	if name == "" {
		name = "default"
	}

	o := options{logger: log.NewNopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = NewMetrics(nil)
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Cache[V]{
		name:         name,
		defaultTTL:   cfg.DefaultTTL,
		maxEntries:   cfg.MaxEntries,
		cleanupEvery: cfg.CleanupInterval,
		items:        make(map[string]*list.Element),
		lru:          list.New(),
		store:        store,
		storageKey:   "dashcache-snapshot-" + name,
		logger:       log.With(o.logger, "cache", name),
		m:            o.metrics.forCache(name),
		timeNow:      time.Now,
		ctx:          ctx,
		cancel:       cancel,
	}

	c.wg.Add(1)
	go c.maintenanceLoop()

	return c, nil
}

// Set writes or overwrites a key using the default TTL, or the one supplied
// via WithTTL. Writing an existing key repositions it as most recently used
// rather than duplicating it on the recency list.
func (c *Cache[V]) Set(key string, value V, opts ...SetOption) {
	ttl := c.resolveTTL(opts)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.setLocked(key, value, ttl)
}

// setLocked inserts or replaces an entry, moves it to MRU, and then enforces
// the capacity bound. The cache can sit one entry over MaxEntries between the
// insert and the enforcement below, but never while the lock is released.
func (c *Cache[V]) setLocked(key string, value V, ttl time.Duration) {
	now := c.timeNow()

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[V])
		e.value = value
		e.createdAt = now
		e.ttl = ttl
		c.lru.MoveToFront(el)
	} else {
		c.items[key] = c.lru.PushFront(&entry[V]{
			key:       key,
			value:     value,
			createdAt: now,
			ttl:       ttl,
		})
	}

	c.enforceMaxEntriesLocked()
	c.m.entries.Set(float64(len(c.items)))
}

// enforceMaxEntriesLocked evicts from the LRU end until the capacity bound
// holds again. Runs after every insert, never before.
func (c *Cache[V]) enforceMaxEntriesLocked() {
	for len(c.items) > c.maxEntries {
		el := c.lru.Back()
		if el == nil {
			return
		}
		c.removeLocked(el.Value.(*entry[V]).key)
		c.m.evictions.Inc()
	}
}

// Get reads a key. A structurally present but expired entry is removed on
// access (lazy expiration) and reported as a miss. A valid hit refreshes the
// entry's recency.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.m.misses.Inc()
		return zero, false
	}

	e := el.Value.(*entry[V])
	if e.expired(c.timeNow()) {
		c.removeLocked(key)
		c.m.expirations.Inc()
		c.m.misses.Inc()
		return zero, false
	}

	c.lru.MoveToFront(el)
	c.m.hits.Inc()
	return e.value, true
}

// Has reports whether key holds a valid entry. It applies the same
// expiry-aware logic as Get, including lazy removal of an expired entry, so
// the two never disagree about a key. Has does not refresh recency.
func (c *Cache[V]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	if el.Value.(*entry[V]).expired(c.timeNow()) {
		c.removeLocked(key)
		c.m.expirations.Inc()
		return false
	}
	return true
}

// Delete removes a key. It returns whether the key was structurally present,
// even if it had already expired.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(key)
}

// Clear empties the cache.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

func (c *Cache[V]) clearLocked() {
	c.items = make(map[string]*list.Element)
	c.lru.Init()
	c.m.entries.Set(0)
}

// Touch extends a key's TTL by extra (or by the default TTL when extra <= 0)
// and refreshes its recency. The extension is unconditional: an entry that
// has logically expired but not yet been swept is revived. That matches the
// dashboard's historical behavior, where touching a key always meant "keep
// this alive". Returns false if the key is structurally absent.
func (c *Cache[V]) Touch(key string, extra time.Duration) bool {
	if extra <= 0 {
		extra = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	el, ok := c.items[key]
	if !ok {
		return false
	}

	el.Value.(*entry[V]).ttl += extra
	c.lru.MoveToFront(el)
	return true
}

// Cleanup eagerly removes every expired entry and returns how many were
// removed. This is the only path guaranteed to purge entries nobody queries;
// lazy removal in Get/Has only catches keys that are actually looked up.
func (c *Cache[V]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeExpiredLocked(c.timeNow())
}

func (c *Cache[V]) removeExpiredLocked(now time.Time) int {
	removed := 0
	for key, el := range c.items {
		if el.Value.(*entry[V]).expired(now) {
			c.removeLocked(key)
			removed++
		}
	}
	if removed > 0 {
		c.m.expirations.Add(float64(removed))
	}
	return removed
}

// removeLocked removes a key from both structures, keeping the map/list
// bijection intact. No-op if absent.
func (c *Cache[V]) removeLocked(key string) bool {
	el, ok := c.items[key]
	if !ok {
		return false
	}
	delete(c.items, key)
	c.lru.Remove(el)
	c.m.entries.Set(float64(len(c.items)))
	return true
}

// Len returns the number of currently stored entries, including expired ones
// that haven't been swept yet.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Keys returns all stored keys in MRU -> LRU order, including expired ones
// that haven't been swept yet. Debug helper.
func (c *Cache[V]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, c.lru.Len())
	for el := c.lru.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*entry[V]).key)
	}
	return out
}

// Stats describes the cache's current shape.
type Stats struct {
	Size         int
	MaxEntries   int
	ExpiredCount int

	// HitRate is the fraction of currently stored entries that are still
	// valid. This is a structural approximation carried over from the
	// original dashboard code, not a tracked hit/miss ratio; the Prometheus
	// hit/miss counters are the real access statistics.
	HitRate float64
}

// Stats returns a point-in-time summary without mutating anything.
func (c *Cache[V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.timeNow()
	expired := 0
	for _, el := range c.items {
		if el.Value.(*entry[V]).expired(now) {
			expired++
		}
	}

	s := Stats{
		Size:         len(c.items),
		MaxEntries:   c.maxEntries,
		ExpiredCount: expired,
	}
	if s.Size > 0 {
		s.HitRate = float64(s.Size-expired) / float64(s.Size)
	}
	return s
}

// SetTimeNowFunc replaces the clock, primarily for TTL tests.
// Passing nil resets to time.Now.
func (c *Cache[V]) SetTimeNowFunc(f func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if f == nil {
		f = time.Now
	}
	c.timeNow = f
}

func (c *Cache[V]) resolveTTL(opts []SetOption) time.Duration {
	o := applySetOptions(opts)
	if o.ttl > 0 {
		return o.ttl
	}
	return c.defaultTTL
}
