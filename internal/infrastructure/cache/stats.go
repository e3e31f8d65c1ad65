package cache

import "time"

// Statistics is a point-in-time snapshot of cache counters. It is
// derived from cache contents, not authoritative.
type Statistics struct {
	Hits             uint64    `json:"hits"`
	Misses           uint64    `json:"misses"`
	Evictions        uint64    `json:"evictions"`
	TotalDocuments   int       `json:"total_documents"`
	TotalPages       int       `json:"total_pages"`
	MemoryUsageBytes int64     `json:"memory_usage_bytes"`
	HitRate          float64   `json:"hit_rate"`
	CreatedAt        time.Time `json:"created_at"`
	LastAccess       time.Time `json:"last_access"`
}

func (c *Cache) Stats() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Statistics{
		Hits:             c.hits,
		Misses:           c.misses,
		Evictions:        c.evictions,
		TotalDocuments:   c.order.Len(),
		TotalPages:       c.totalPages,
		MemoryUsageBytes: c.usedBytes,
		CreatedAt:        c.createdAt,
		LastAccess:       c.lastUsed,
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}
