package store

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/stevemurr/termstore/document"
)

// DefaultCacheSize is the number of documents NewCached keeps when given a
// non-positive size.
const DefaultCacheSize = 1000

// Cached wraps a Provider with an LRU of recently read or written documents.
// Every write must go through the wrapper for the cache to stay correct.
//
// mu orders cache fills against writes: a miss holds it from the inner read
// to the fill, and writes hold it from the inner call to the cache change, so
// a fill can never put back a document a write has replaced or removed.
// Hits do not take it.
type Cached struct {
	inner Provider
	cache *lru.Cache[string, document.Document]

	mu sync.Mutex
}

// NewCached creates a cached provider wrapping inner.
func NewCached(inner Provider, size int) *Cached {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, document.Document](size)
	return &Cached{inner: inner, cache: cache}
}

func (c *Cached) Create(ctx context.Context, id string, doc document.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.inner.Create(ctx, id, doc); err != nil {
		return err
	}
	doc.ID = id
	c.cache.Add(id, doc.Clone())
	return nil
}

func (c *Cached) Read(ctx context.Context, id string) (*document.Document, error) {
	if doc, ok := c.cache.Get(id); ok {
		out := doc.Clone()
		return &out, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// A write may have filled the entry while we waited.
	if doc, ok := c.cache.Get(id); ok {
		out := doc.Clone()
		return &out, nil
	}
	doc, err := c.inner.Read(ctx, id)
	if err != nil || doc == nil {
		return doc, err
	}
	c.cache.Add(id, doc.Clone())
	return doc, nil
}

func (c *Cached) Update(ctx context.Context, id string, partial document.Payload) (document.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, err := c.inner.Update(ctx, id, partial)
	if err != nil {
		// The stored state is unknown after a failed write.
		c.cache.Remove(id)
		return doc, err
	}
	c.cache.Add(id, doc.Clone())
	return doc, nil
}

func (c *Cached) Delete(ctx context.Context, id string) (document.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, err := c.inner.Delete(ctx, id)
	c.cache.Remove(id)
	return doc, err
}

func (c *Cached) List(ctx context.Context) ([]document.Document, error) {
	return c.inner.List(ctx)
}

// Len returns the number of cached documents.
func (c *Cached) Len() int {
	return c.cache.Len()
}
