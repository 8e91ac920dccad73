package dataset

import (
	"container/list"
	"fmt"
	"sync"
)

// SampleCache is an LRU cache of transformed samples keyed by dataset index
type SampleCache struct {
	mu      sync.Mutex
	cache   map[int][]float64
	lru     *list.List
	lruMap  map[int]*list.Element
	maxSize int

	// Statistics
	hits   int64
	misses int64
}

// NewSampleCache creates a cache holding at most maxSize samples
func NewSampleCache(maxSize int) *SampleCache {
	return &SampleCache{
		cache:   make(map[int][]float64),
		lru:     list.New(),
		lruMap:  make(map[int]*list.Element),
		maxSize: maxSize,
	}
}

// Get retrieves a sample from the cache
func (c *SampleCache) Get(idx int) ([]float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if data, exists := c.cache[idx]; exists {
		c.lru.MoveToFront(c.lruMap[idx])
		c.hits++
		return data, true
	}

	c.misses++
	return nil, false
}

// Put adds a sample to the cache, evicting the least recently used entries
// once the cache is full. The cache keeps data; callers must not modify it
func (c *SampleCache) Put(idx int, data []float64) {
	if c.maxSize <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.lruMap[idx]; exists {
		c.lru.MoveToFront(elem)
		return
	}

	c.lruMap[idx] = c.lru.PushFront(idx)
	c.cache[idx] = data

	for len(c.cache) > c.maxSize {
		c.removeElement(c.lru.Back())
	}
}

func (c *SampleCache) removeElement(elem *list.Element) {
	idx := elem.Value.(int)
	c.lru.Remove(elem)
	delete(c.lruMap, idx)
	delete(c.cache, idx)
}

// Stats returns cache statistics
func (c *SampleCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Size:    len(c.cache),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total) * 100
	}
	return stats
}

// Clear empties the cache. Statistics stay cumulative
func (c *SampleCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[int][]float64)
	c.lru = list.New()
	c.lruMap = make(map[int]*list.Element)
}

// ResetStats resets the statistics
func (c *SampleCache) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits = 0
	c.misses = 0
}

// CacheStats holds cache statistics
type CacheStats struct {
	Size    int
	MaxSize int
	Hits    int64
	Misses  int64
	HitRate float64
}

// String returns a string representation of cache stats
func (cs CacheStats) String() string {
	return fmt.Sprintf("Cache: %d/%d samples, Hits: %d, Misses: %d, Hit Rate: %.1f%%",
		cs.Size, cs.MaxSize, cs.Hits, cs.Misses, cs.HitRate)
}
