package scale

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/user/chunkdecode/pkg/pipeline"
	"github.com/user/chunkdecode/pkg/ports"
)

// Cache remembers the scale of each decoder so the probe runs once per
// decoder rather than once per call. It is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]pipeline.ScaleInfo
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]pipeline.ScaleInfo),
	}
}

// Get returns the cached scale of a decoder.
func (c *Cache) Get(decoder ports.LatentDecoder) (pipeline.ScaleInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.entries[Key(decoder)]
	return info, ok
}

// Put stores the scale of a decoder.
func (c *Cache) Put(decoder ports.LatentDecoder, info pipeline.ScaleInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[Key(decoder)] = info
}

// Invalidate forgets a single decoder, e.g. after its weights were swapped.
func (c *Cache) Invalidate(decoder ports.LatentDecoder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, Key(decoder))
}

// Reset forgets every decoder.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]pipeline.ScaleInfo)
}

// Len returns the number of cached decoders.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Key returns the cache identity of a decoder: its DecoderID when it
// implements ports.Identifier with a non-empty ID, otherwise its dynamic type
// and, for pointers, the instance address.
func Key(decoder ports.LatentDecoder) string {
	if id, ok := decoder.(ports.Identifier); ok && id.DecoderID() != "" {
		return "id:" + id.DecoderID()
	}
	v := reflect.ValueOf(decoder)
	if v.Kind() == reflect.Pointer {
		return fmt.Sprintf("%T@%x", decoder, v.Pointer())
	}
	return fmt.Sprintf("%T", decoder)
}
