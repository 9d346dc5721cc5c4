// Package cache memoizes keyword search results.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"topicidx/internal/metrics"
	"topicidx/internal/port"
)

// SearchCache is a size- and TTL-bounded LRU of ranked identity lists.
type SearchCache struct {
	lru *expirable.LRU[string, []string]
}

// NewSearchCache creates a cache. Non-positive arguments fall back to
// 100 entries and five minutes.
func NewSearchCache(maxSize int, ttl time.Duration) *SearchCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SearchCache{lru: expirable.NewLRU[string, []string](maxSize, nil, ttl)}
}

func cacheKey(algorithm string, size int, query string) string {
	data := []byte(algorithm + "\x00" + strconv.Itoa(size) + "\x00" + query)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:16])
}

// Get returns a cached result.
func (c *SearchCache) Get(algorithm string, size int, query string) ([]string, bool) {
	ids, ok := c.lru.Get(cacheKey(algorithm, size, query))
	if !ok {
		return nil, false
	}
	return append([]string(nil), ids...), true
}

// Put stores a result.
func (c *SearchCache) Put(algorithm string, size int, query string, ids []string) {
	c.lru.Add(cacheKey(algorithm, size, query), append([]string(nil), ids...))
}

// Invalidate drops every entry.
func (c *SearchCache) Invalidate() {
	c.lru.Purge()
}

// Size returns the number of live entries.
func (c *SearchCache) Size() int {
	return c.lru.Len()
}

// CachedSearcher wraps a KeywordSearcher with a SearchCache. Errors are
// never cached.
type CachedSearcher struct {
	searcher port.KeywordSearcher
	cache    *SearchCache
	metrics  *metrics.Metrics
}

// NewCachedSearcher creates a CachedSearcher. m may be nil.
func NewCachedSearcher(searcher port.KeywordSearcher, cache *SearchCache, m *metrics.Metrics) *CachedSearcher {
	return &CachedSearcher{
		searcher: searcher,
		cache:    cache,
		metrics:  m,
	}
}

// Search implements port.KeywordSearcher.
func (s *CachedSearcher) Search(ctx context.Context, algorithm string, size int, query string) ([]string, error) {
	if ids, hit := s.cache.Get(algorithm, size, query); hit {
		s.metrics.CacheLookup(true)
		return ids, nil
	}
	s.metrics.CacheLookup(false)

	ids, err := s.searcher.Search(ctx, algorithm, size, query)
	if err != nil {
		return nil, err
	}

	s.cache.Put(algorithm, size, query, ids)
	return ids, nil
}
