// Package cache holds analyzed documents in a bounded, thread-safe LRU
// keyed by content hash. It is the only store the orchestrator consults
// before paying for a classifier call.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/formvault/formvault/internal/core/domain"
)

// perObjectOverhead biases every string-bearing object in the size
// estimate to account for headers, map buckets and slice backing.
const perObjectOverhead = 64

type Config struct {
	MaxEntries     int
	MaxMemoryBytes int64
}

func DefaultConfig() Config {
	return Config{
		MaxEntries:     100,
		MaxMemoryBytes: 256 << 20,
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()
	if out.MaxEntries <= 0 {
		out.MaxEntries = def.MaxEntries
	}
	if out.MaxMemoryBytes <= 0 {
		out.MaxMemoryBytes = def.MaxMemoryBytes
	}
	return out
}

type cacheEntry struct {
	id         string
	value      domain.DocumentCatalogEntry
	sizeBytes  int64
	lastAccess time.Time
}

// Cache is a dual-bounded LRU: a maximum entry count and a maximum
// approximate byte footprint. A secondary per-document page index is
// kept in lock-step with the primary store so GetPage is O(1); both
// structures live under one mutex and every mutation touches both.
type Cache struct {
	cfg Config

	mu        sync.Mutex
	order     *list.List // front = most recently used
	entries   map[string]*list.Element
	pageIndex map[string]map[int]domain.PageAnalysis
	usedBytes int64

	hits       uint64
	misses     uint64
	evictions  uint64
	totalPages int

	createdAt time.Time
	lastUsed  time.Time

	clock func() time.Time
}

func New(cfg Config) *Cache {
	now := time.Now()
	return &Cache{
		cfg:       cfg.normalize(),
		order:     list.New(),
		entries:   make(map[string]*list.Element),
		pageIndex: make(map[string]map[int]domain.PageAnalysis),
		createdAt: now,
		lastUsed:  now,
		clock:     time.Now,
	}
}

// SetClock replaces the time source. Test hook.
func (c *Cache) SetClock(clock func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = clock
}

// Store inserts or replaces an entry, evicting least-recently-used
// entries until both bounds hold. An entry whose own size exceeds the
// memory bound is rejected outright and nothing is evicted for it.
func (c *Cache) Store(id string, value domain.DocumentCatalogEntry) bool {
	size := estimateEntrySize(value)
	if size > c.cfg.MaxMemoryBytes {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()
	c.lastUsed = now

	if elem, ok := c.entries[id]; ok {
		c.removeElementLocked(elem, false)
	}

	for c.order.Len() >= c.cfg.MaxEntries || c.usedBytes+size > c.cfg.MaxMemoryBytes {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeElementLocked(oldest, true)
	}

	entry := &cacheEntry{id: id, value: value, sizeBytes: size, lastAccess: now}
	c.entries[id] = c.order.PushFront(entry)
	c.usedBytes += size
	c.totalPages += len(value.Pages)
	c.pageIndex[id] = indexPages(value)
	return true
}

// Get returns the cached entry and refreshes its recency.
func (c *Cache) Get(id string) (domain.DocumentCatalogEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUsed = c.clock()

	elem, ok := c.entries[id]
	if !ok {
		c.misses++
		return domain.DocumentCatalogEntry{}, false
	}
	c.hits++
	c.touchLocked(elem)
	return elem.Value.(*cacheEntry).value, true
}

// GetPage answers from the page index without scanning the entry's page
// list. A hit refreshes the owning entry's recency.
func (c *Cache) GetPage(id string, pageNumber int) (domain.PageAnalysis, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUsed = c.clock()

	pages, ok := c.pageIndex[id]
	if !ok {
		c.misses++
		return domain.PageAnalysis{}, false
	}
	page, ok := pages[pageNumber]
	if !ok {
		c.misses++
		return domain.PageAnalysis{}, false
	}
	c.hits++
	if elem, ok := c.entries[id]; ok {
		c.touchLocked(elem)
	}
	return page, true
}

func (c *Cache) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[id]
	if !ok {
		return false
	}
	c.removeElementLocked(elem, false)
	return true
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache) MemoryUsageBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usedBytes
}

// CleanupOlderThan evicts entries whose last access is older than the
// given age and returns how many were removed. The memory-pressure
// handler uses it for staged relief.
func (c *Cache) CleanupOlderThan(age time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.clock().Add(-age)
	removed := 0
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*cacheEntry).lastAccess.Before(cutoff) {
			c.removeElementLocked(elem, true)
			removed++
		}
		elem = prev
	}
	return removed
}

// ShrinkTo force-evicts oldest entries until at most target remain and
// returns how many were removed.
func (c *Cache) ShrinkTo(target int) int {
	if target < 0 {
		target = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for c.order.Len() > target {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeElementLocked(oldest, true)
		removed++
	}
	return removed
}

func (c *Cache) touchLocked(elem *list.Element) {
	c.order.MoveToFront(elem)
	elem.Value.(*cacheEntry).lastAccess = c.clock()
}

func (c *Cache) removeElementLocked(elem *list.Element, evicted bool) {
	entry := elem.Value.(*cacheEntry)
	c.order.Remove(elem)
	delete(c.entries, entry.id)
	delete(c.pageIndex, entry.id)
	c.usedBytes -= entry.sizeBytes
	c.totalPages -= len(entry.value.Pages)
	if evicted {
		c.evictions++
	}
}

func indexPages(value domain.DocumentCatalogEntry) map[int]domain.PageAnalysis {
	index := make(map[int]domain.PageAnalysis, len(value.Pages))
	for _, page := range value.Pages {
		index[page.PageNumber] = page
	}
	return index
}
