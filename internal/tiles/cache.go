package tiles

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MaxCacheBytes is the approximate byte budget for cached tile bodies.
const MaxCacheBytes = 50 * 1024 * 1024

// Cache is an in-memory, byte-weighted LRU of encoded tile bodies, keyed by
// "{upload}:{z}:{x}:{y}:{filter_hash}". Eviction happens both on entry count
// (the underlying LRU's own bound, generously sized) and on total byte
// weight, tracked alongside it.
type Cache struct {
	mu        sync.Mutex
	lru       *lru.Cache[string, []byte]
	totalSize int
}

// NewCache returns an empty tile cache.
func NewCache() *Cache {
	// A generous entry cap; the byte budget below is the real constraint.
	l, _ := lru.New[string, []byte](100_000)
	return &Cache{lru: l}
}

// Key builds the cache key for a tile + query composition.
func Key(uploadID string, z, x, y int, filterHash string) string {
	return fmt.Sprintf("%s:%d:%d:%d:%s", uploadID, z, x, y, filterHash)
}

// FilterHash hashes the serialised (filter, lifers_only, year_tick_year,
// country_tick_country) composition so semantically-identical-but-differently
// -whitespaced filter JSON still lands on distinct keys (a cache-hit-rate
// tradeoff, not a correctness one).
func FilterHash(rawFilter []byte, lifersOnly bool, yearTickYear *int, countryTickCountry *string) string {
	var sb strings.Builder
	sb.Write(rawFilter)
	sb.WriteByte('|')
	if lifersOnly {
		sb.WriteByte('1')
	}
	sb.WriteByte('|')
	if yearTickYear != nil {
		sb.WriteString(strconv.Itoa(*yearTickYear))
	}
	sb.WriteByte('|')
	if countryTickCountry != nil {
		sb.WriteString(*countryTickCountry)
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached tile body for key, if present.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(key)
}

// Put stores body under key, evicting the oldest entries until the total
// byte budget is respected.
func (c *Cache) Put(key string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.lru.Peek(key); ok {
		c.totalSize -= len(old)
	}
	c.lru.Add(key, body)
	c.totalSize += len(body)

	for c.totalSize > MaxCacheBytes {
		_, evicted, ok := c.lru.RemoveOldest()
		if !ok {
			break
		}
		c.totalSize -= len(evicted)
	}
}

// InvalidateUpload drops every cached entry whose key starts with
// "{uploadID}:", called on any mutation of that upload.
func (c *Cache) InvalidateUpload(uploadID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := uploadID + ":"
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			if body, ok := c.lru.Peek(key); ok {
				c.totalSize -= len(body)
			}
			c.lru.Remove(key)
		}
	}
}
