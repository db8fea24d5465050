package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/termstore/document"
	"github.com/stevemurr/termstore/store"
)

// countingProvider records how many reads reach the wrapped provider.
type countingProvider struct {
	store.Provider
	reads int
}

func (c *countingProvider) Read(ctx context.Context, id string) (*document.Document, error) {
	c.reads++
	return c.Provider.Read(ctx, id)
}

func TestCachedServesReadsFromCache(t *testing.T) {
	ctx := context.Background()
	inner := &countingProvider{Provider: store.Scope(store.NewMemoryStore(), "c")}
	c := store.NewCached(inner, 10)

	require.NoError(t, c.Create(ctx, "1", document.Document{Data: document.Payload{"a": "x"}}))
	got, err := c.Read(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "x", got.Data["a"])
	assert.Equal(t, 0, inner.reads)

	// Mutating the returned copy must not leak into the cache.
	got.Data["a"] = "mutated"
	again, err := c.Read(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "x", again.Data["a"])
}

func TestCachedTracksWrites(t *testing.T) {
	ctx := context.Background()
	inner := &countingProvider{Provider: store.Scope(store.NewMemoryStore(), "c")}
	c := store.NewCached(inner, 10)

	require.NoError(t, c.Create(ctx, "1", document.Document{Data: document.Payload{"a": "x", "b": "y"}}))
	_, err := c.Update(ctx, "1", document.Payload{"a": "z"})
	require.NoError(t, err)

	got, err := c.Read(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, document.Payload{"a": "z", "b": "y"}, got.Data)

	_, err = c.Delete(ctx, "1")
	require.NoError(t, err)
	gone, err := c.Read(ctx, "1")
	require.NoError(t, err)
	assert.Nil(t, gone)
	assert.Equal(t, 1, inner.reads)
	assert.Equal(t, 0, c.Len())
}

func TestCachedMissFillsCache(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryStore()
	require.NoError(t, backend.Create(ctx, "c", document.Document{ID: "1", Data: document.Payload{"a": "x"}}))

	inner := &countingProvider{Provider: store.Scope(backend, "c")}
	c := store.NewCached(inner, 0)

	for i := 0; i < 3; i++ {
		got, err := c.Read(ctx, "1")
		require.NoError(t, err)
		require.NotNil(t, got)
	}
	assert.Equal(t, 1, inner.reads)
}

// pausedProvider holds its first Read after fetching, until release is closed.
type pausedProvider struct {
	store.Provider
	fetched chan struct{}
	release chan struct{}
	once    sync.Once
}

func newPausedProvider(p store.Provider) *pausedProvider {
	return &pausedProvider{Provider: p, fetched: make(chan struct{}), release: make(chan struct{})}
}

func (p *pausedProvider) Read(ctx context.Context, id string) (*document.Document, error) {
	doc, err := p.Provider.Read(ctx, id)
	p.once.Do(func() {
		close(p.fetched)
		<-p.release
	})
	return doc, err
}

// raceWriteWithFill starts a cache-missing Read, runs write while that Read
// holds a fetched document, then lets the Read finish.
func raceWriteWithFill(t *testing.T, c *store.Cached, inner *pausedProvider, id string, write func() error) {
	t.Helper()
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := c.Read(ctx, id)
		assert.NoError(t, err)
	}()
	<-inner.fetched

	go func() {
		defer wg.Done()
		assert.NoError(t, write())
	}()
	// Give the write a chance to run before the stale fill.
	time.Sleep(20 * time.Millisecond)
	close(inner.release)
	wg.Wait()
}

func TestCachedFillDoesNotResurrectDeleted(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryStore()
	require.NoError(t, backend.Create(ctx, "c", document.Document{ID: "a", Data: document.Payload{"x": float64(1)}}))
	inner := newPausedProvider(store.Scope(backend, "c"))
	c := store.NewCached(inner, 10)

	raceWriteWithFill(t, c, inner, "a", func() error {
		_, err := c.Delete(ctx, "a")
		return err
	})

	got, err := c.Read(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCachedFillDoesNotRevertUpdate(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryStore()
	require.NoError(t, backend.Create(ctx, "c", document.Document{ID: "a", Data: document.Payload{"x": float64(1)}}))
	inner := newPausedProvider(store.Scope(backend, "c"))
	c := store.NewCached(inner, 10)

	raceWriteWithFill(t, c, inner, "a", func() error {
		_, err := c.Update(ctx, "a", document.Payload{"x": float64(2)})
		return err
	})

	got, err := c.Read(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, float64(2), got.Data["x"])
}
