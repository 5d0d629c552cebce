package cache

import (
	"container/list"
	"sync"
	"time"
)

// Store is the interface shared by the cache backends. Lookups and
// writes are best-effort; a backend that fails internally behaves as a
// miss rather than surfacing an error to the request path.
type Store interface {
	// Get returns the payload for key, or false on a miss. An expired
	// entry is removed and reported as a miss.
	Get(key string) ([]byte, bool)

	// Put stores a payload under key with the given time-to-live. A TTL
	// of zero or less stores an entry that is already expired.
	Put(key string, value []byte, ttl time.Duration)

	// Invalidate removes key, reporting whether it was present.
	Invalidate(key string) bool

	// Clear removes every entry.
	Clear()

	// Len returns the number of stored entries, expired ones included.
	Len() int

	// Sweep removes all expired entries and returns how many it removed.
	Sweep() int

	// Stats returns a point-in-time view of cache effectiveness.
	Stats() Stats
}

// Stats is a point-in-time view of cache behavior.
type Stats struct {
	// Hits is the number of lookups served from the cache
	Hits int64 `json:"hits"`

	// Misses is the number of lookups that found nothing usable
	Misses int64 `json:"misses"`

	// Evictions counts entries removed to stay within bounds
	Evictions int64 `json:"evictions"`

	// Expirations counts entries removed because their TTL lapsed
	Expirations int64 `json:"expirations"`

	// Entries is the current entry count
	Entries int `json:"entries"`

	// Bytes is the current payload byte total
	Bytes int64 `json:"bytes"`
}

// HitRate returns hits over total lookups, zero when nothing has been
// looked up yet.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Config bounds an in-memory Cache.
type Config struct {
	// MaxEntries caps the entry count. Zero means no entry bound.
	MaxEntries int

	// MaxBytes caps the total payload size. Zero means no byte bound.
	MaxBytes int64

	// DefaultTTL applies when Put receives no explicit TTL resolution
	// upstream. It is advisory; Put always receives a concrete TTL.
	DefaultTTL time.Duration
}

type entry struct {
	key     string
	value   []byte
	expires time.Time
}

// Cache is the in-memory Store. Entries are kept in a doubly linked
// list ordered by recency; the map indexes list elements by key.
//
// A lookup counts as use: hits move the entry to the front, so eviction
// removes the entry that has gone longest without being read or written.
type Cache struct {
	mu      sync.Mutex
	config  Config
	order   *list.List // front = most recently used
	entries map[string]*list.Element
	bytes   int64

	hits        int64
	misses      int64
	evictions   int64
	expirations int64
}

// New creates an empty in-memory cache.
func New(config Config) *Cache {
	return &Cache{
		config:  config,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

// Get implements Store.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	e := elem.Value.(*entry)
	if !time.Now().Before(e.expires) {
		c.removeLocked(elem)
		c.expirations++
		c.misses++
		return nil, false
	}

	c.order.MoveToFront(elem)
	c.hits++
	return e.value, true
}

// Put implements Store. Replacing an existing key refreshes both its
// payload and its recency.
func (c *Cache) Put(key string, value []byte, ttl time.Duration) {
	expires := time.Now().Add(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		e := elem.Value.(*entry)
		c.bytes += int64(len(value)) - int64(len(e.value))
		e.value = value
		e.expires = expires
		c.order.MoveToFront(elem)
	} else {
		elem := c.order.PushFront(&entry{key: key, value: value, expires: expires})
		c.entries[key] = elem
		c.bytes += int64(len(value))
	}

	c.evictLocked()
}

// Invalidate implements Store.
func (c *Cache) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeLocked(elem)
	return true
}

// Clear implements Store.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.entries = make(map[string]*list.Element)
	c.bytes = 0
}

// Len implements Store.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep implements Store.
func (c *Cache) Sweep() int {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if e := elem.Value.(*entry); !now.Before(e.expires) {
			c.removeLocked(elem)
			c.expirations++
			removed++
		}
		elem = prev
	}
	return removed
}

// Stats implements Store.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		Entries:     len(c.entries),
		Bytes:       c.bytes,
	}
}

// evictLocked removes least-recently-used entries until the cache is
// within its configured bounds. Caller must hold mu.
func (c *Cache) evictLocked() {
	for c.overLimitLocked() {
		elem := c.order.Back()
		if elem == nil {
			return
		}
		c.removeLocked(elem)
		c.evictions++
	}
}

func (c *Cache) overLimitLocked() bool {
	if c.config.MaxEntries > 0 && len(c.entries) > c.config.MaxEntries {
		return true
	}
	if c.config.MaxBytes > 0 && c.bytes > c.config.MaxBytes {
		return true
	}
	return false
}

// removeLocked unlinks elem from both the list and the index. Caller
// must hold mu.
func (c *Cache) removeLocked(elem *list.Element) {
	e := elem.Value.(*entry)
	c.order.Remove(elem)
	delete(c.entries, e.key)
	c.bytes -= int64(len(e.value))
}
