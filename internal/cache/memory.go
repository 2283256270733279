package cache

import (
	"sync"
	"time"

	"github.com/andresuchdata/autopo-forecast/backend-go/internal/metrics"
)

const (
	defaultMaxEntries = 100
	defaultMemoryTTL  = 5 * time.Minute
)

// Options configures a MemoryCache
type Options struct {
	Name       string
	MaxEntries int
	DefaultTTL time.Duration
	// Clock overrides time.Now, mainly for tests.
	Clock func() time.Time
}

// Stats is a snapshot of cache counters
type Stats struct {
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Sets       int64 `json:"sets"`
	Clears     int64 `json:"clears"`
	Evictions  int64 `json:"evictions"`
	Size       int   `json:"size"`
	MaxEntries int   `json:"max_entries"`
}

// HitRate returns hits / (hits + misses), or 0 before any lookup
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type memoryEntry struct {
	value     any
	expiresAt time.Time
	seq       uint64
}

// MemoryCache is a size-bounded TTL cache shared by the engine components.
// When full it drops expired entries first, then the oldest insertions.
type MemoryCache struct {
	mu         sync.Mutex
	name       string
	maxEntries int
	defaultTTL time.Duration
	now        func() time.Time
	entries    map[string]*memoryEntry
	seq        uint64
	stats      Stats
}

func NewMemoryCache(opts Options) *MemoryCache {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = defaultMaxEntries
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = defaultMemoryTTL
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Name == "" {
		opts.Name = "default"
	}

	return &MemoryCache{
		name:       opts.Name,
		maxEntries: opts.MaxEntries,
		defaultTTL: opts.DefaultTTL,
		now:        opts.Clock,
		entries:    make(map[string]*memoryEntry, opts.MaxEntries),
	}
}

func (c *MemoryCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok && c.now().Before(e.expiresAt) {
		c.stats.Hits++
		c.record("hit")
		return e.value, true
	}
	if ok {
		delete(c.entries, key)
	}
	c.stats.Misses++
	c.record("miss")
	return nil, false
}

// Set stores value under key. A non-positive ttl uses the cache default.
func (c *MemoryCache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.makeRoom()
	}

	c.seq++
	c.entries[key] = &memoryEntry{
		value:     value,
		expiresAt: c.now().Add(ttl),
		seq:       c.seq,
	}
	c.stats.Sets++
	c.record("set")
}

func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*memoryEntry, c.maxEntries)
	c.stats.Clears++
	c.record("clear")
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = len(c.entries)
	s.MaxEntries = c.maxEntries
	return s
}

// makeRoom must be called with mu held.
func (c *MemoryCache) makeRoom() {
	now := c.now()
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
		}
	}

	for len(c.entries) >= c.maxEntries {
		var (
			oldestKey string
			oldestSeq uint64
			found     bool
		)
		for key, e := range c.entries {
			if !found || e.seq < oldestSeq {
				oldestKey, oldestSeq, found = key, e.seq, true
			}
		}
		if !found {
			return
		}
		delete(c.entries, oldestKey)
		c.stats.Evictions++
		c.record("evict")
	}
}

func (c *MemoryCache) record(op string) {
	metrics.CacheOperations.WithLabelValues(c.name, op).Inc()
}

// Cached is the cache-aside wrapper: on a hit the stored value is returned
// without calling compute; on a miss compute runs and a successful result is
// stored. A nil cache always computes.
func Cached[T any](c *MemoryCache, operation string, params map[string]any, ttl time.Duration, compute func() (T, error)) (T, error) {
	if c == nil {
		return compute()
	}

	key := BuildKey(operation, params)
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	value, err := compute()
	if err != nil {
		return value, err
	}
	c.Set(key, value, ttl)
	return value, nil
}
