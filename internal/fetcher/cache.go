package fetcher

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedResource is one subresource response admitted to the cache.
type CachedResource struct {
	// Body is the response payload.
	Body []byte

	// ContentType is the response MIME type.
	ContentType string

	// Status is the HTTP status. Only 2xx responses are admitted.
	Status int
}

// ResourceCache is the process-wide LRU for browser subresources, bounded
// by item count and per-item byte size. Reads are side-effect-free beyond
// recency tracking; only successful small GETs are admitted.
type ResourceCache struct {
	mu      sync.Mutex
	items   *lru.Cache[string, CachedResource]
	maxItem int
}

// NewResourceCache creates the cache. maxItems bounds the entry count,
// maxItemSize the admitted payload size in bytes.
func NewResourceCache(maxItems, maxItemSize int) (*ResourceCache, error) {
	if maxItems <= 0 {
		maxItems = 1000
	}
	items, err := lru.New[string, CachedResource](maxItems)
	if err != nil {
		return nil, err
	}
	return &ResourceCache{items: items, maxItem: maxItemSize}, nil
}

// Get returns the cached response for a canonical URL.
func (c *ResourceCache) Get(url string) (CachedResource, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Get(url)
}

// Put admits a response when it is successful and small enough.
// Non-2xx and oversized responses are ignored.
func (c *ResourceCache) Put(url string, res CachedResource) {
	if res.Status < 200 || res.Status >= 300 {
		return
	}
	if c.maxItem > 0 && len(res.Body) > c.maxItem {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Add(url, res)
}

// Len returns the current entry count.
func (c *ResourceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Len()
}
