package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMaxSize = 100

// QueryCache is a bounded LRU of query results. Entries are grouped by
// namespace so one group can be dropped without touching the others.
type QueryCache[V any] struct {
	mu       sync.Mutex
	entries  *lru.Cache[string, *cacheEntry[V]]
	ttl      time.Duration
	indexGen uint64
	nsGen    map[string]uint64
	now      func() time.Time

	hits   uint64
	misses uint64
}

type cacheEntry[V any] struct {
	value     V
	timestamp time.Time
	indexGen  uint64
}

// Generation identifies the state of a namespace at one moment. It changes
// whenever the namespace or the whole cache is invalidated.
type Generation struct {
	namespace string
	index     uint64
	ns        uint64
}

// Stats is a point-in-time view of cache usage.
type Stats struct {
	Size   int
	Hits   uint64
	Misses uint64
}

// NewQueryCache creates a cache holding at most maxSize entries.
// A ttl of zero keeps entries until they are evicted or invalidated.
func NewQueryCache[V any](maxSize int, ttl time.Duration) *QueryCache[V] {
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	entries, err := lru.New[string, *cacheEntry[V]](maxSize)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &QueryCache[V]{
		entries: entries,
		ttl:     ttl,
		nsGen:   make(map[string]uint64),
		now:     time.Now,
	}
}

// Key builds a cache key inside namespace from the given parts.
func Key(namespace string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	sum := h.Sum(nil)
	return namespace + "\x00" + hex.EncodeToString(sum[:16])
}

func (c *QueryCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	entry, ok := c.entries.Get(key)
	if !ok {
		c.misses++
		return zero, false
	}
	if entry.indexGen != c.indexGen || (c.ttl > 0 && c.now().Sub(entry.timestamp) > c.ttl) {
		c.entries.Remove(key)
		c.misses++
		return zero, false
	}
	c.hits++
	return entry.value, true
}

func (c *QueryCache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Add(key, &cacheEntry[V]{
		value:     value,
		timestamp: c.now(),
		indexGen:  c.indexGen,
	})
}

// Generation returns the current generation of namespace. Capture it before
// computing a value and store the value with PutAt.
func (c *QueryCache[V]) Generation(namespace string) Generation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Generation{namespace: namespace, index: c.indexGen, ns: c.nsGen[namespace]}
}

// PutAt stores value only if gen's namespace has not been invalidated since
// gen was taken. It reports whether the value was stored.
func (c *QueryCache[V]) PutAt(key string, value V, gen Generation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen.index != c.indexGen || gen.ns != c.nsGen[gen.namespace] {
		return false
	}
	c.entries.Add(key, &cacheEntry[V]{
		value:     value,
		timestamp: c.now(),
		indexGen:  c.indexGen,
	})
	return true
}

// Invalidate drops every entry.
func (c *QueryCache[V]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Purge()
	c.indexGen++
}

// InvalidateNamespace drops every entry created with Key(namespace, ...).
func (c *QueryCache[V]) InvalidateNamespace(namespace string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nsGen[namespace]++
	prefix := namespace + "\x00"
	removed := 0
	for _, k := range c.entries.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.entries.Remove(k)
			removed++
		}
	}
	return removed
}

func (c *QueryCache[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

func (c *QueryCache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Size: c.entries.Len(), Hits: c.hits, Misses: c.misses}
}
