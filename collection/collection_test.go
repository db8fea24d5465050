package collection_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/termstore/collection"
	"github.com/stevemurr/termstore/document"
	"github.com/stevemurr/termstore/store"
)

// recorder collects every event of every kind.
type recorder struct {
	mu     sync.Mutex
	events []collection.Event
}

func record(c *collection.Collection) *recorder {
	r := &recorder{}
	for _, k := range collection.Kinds {
		c.Subscribe(k, func(_ context.Context, ev collection.Event) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, ev)
		})
	}
	return r
}

func (r *recorder) kinds() []collection.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]collection.Kind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func newCollection(opts ...collection.Option) *collection.Collection {
	return collection.New("users", store.Scope(store.NewMemoryStore(), "users"), opts...)
}

func TestCreatePublishesOneDocument(t *testing.T) {
	ctx := context.Background()
	c := newCollection()
	r := record(c)

	id, err := c.Create(ctx, document.Payload{"name": "ann", "email": "ann@example.com"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Len(t, r.events, 1)
	ev := r.events[0]
	assert.Equal(t, collection.KindCreate, ev.Kind)
	assert.Equal(t, "users", ev.Collection)
	require.Len(t, ev.Documents, 1)
	assert.Equal(t, id, ev.Documents[0].ID)
	assert.Equal(t, "ann", ev.Documents[0].Data["name"])
}

func TestCreateGeneratesDistinctIDs(t *testing.T) {
	ctx := context.Background()
	c := newCollection()
	a, err := c.Create(ctx, document.Payload{"n": 1})
	require.NoError(t, err)
	b, err := c.Create(ctx, document.Payload{"n": 1})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestReadPublishesOnlyWhenFound(t *testing.T) {
	ctx := context.Background()
	c := newCollection()
	id, err := c.Create(ctx, document.Payload{"name": "ann"})
	require.NoError(t, err)
	r := record(c)

	doc, err := c.Read(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "ann", doc.Data["name"])

	missing, err := c.Read(ctx, "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.Equal(t, []collection.Kind{collection.KindRead}, r.kinds())
}

func TestUpdateMergesAndPublishes(t *testing.T) {
	ctx := context.Background()
	c := newCollection()
	id, err := c.Create(ctx, document.Payload{"a": 1, "b": 2})
	require.NoError(t, err)
	r := record(c)

	doc, err := c.Update(ctx, id, document.Payload{"b": 3})
	require.NoError(t, err)
	assert.Equal(t, document.Payload{"a": float64(1), "b": float64(3)}, doc.Data)

	doc, err = c.Update(ctx, id, document.Payload{"c": 4})
	require.NoError(t, err)
	assert.Equal(t, document.Payload{"a": float64(1), "b": float64(3), "c": float64(4)}, doc.Data)

	require.Len(t, r.events, 2)
	assert.Equal(t, collection.KindUpdate, r.events[1].Kind)
	assert.Equal(t, doc.Data, r.events[1].Documents[0].Data)
}

func TestDeletePublishesRemovedDocument(t *testing.T) {
	ctx := context.Background()
	c := newCollection()
	id, err := c.Create(ctx, document.Payload{"email": "a@b.com"})
	require.NoError(t, err)
	r := record(c)

	require.NoError(t, c.Delete(ctx, id))
	require.Len(t, r.events, 1)
	assert.Equal(t, collection.KindDelete, r.events[0].Kind)
	assert.Equal(t, id, r.events[0].Documents[0].ID)
	assert.Equal(t, "a@b.com", r.events[0].Documents[0].Data["email"])

	gone, err := c.Read(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestFailuresPublishNothing(t *testing.T) {
	ctx := context.Background()
	c := newCollection()
	r := record(c)

	_, err := c.Update(ctx, "nope", document.Payload{"a": 1})
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = c.Delete(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = c.Create(ctx, document.Payload{"bad": []int{1}})
	assert.ErrorIs(t, err, document.ErrInvalidPayload)

	assert.Empty(t, r.kinds())
}

// failingProvider rejects every write with a storage error.
type failingProvider struct {
	store.Provider
}

var errDisk = errors.New("disk unavailable")

func (failingProvider) Create(context.Context, string, document.Document) error {
	return &store.StorageError{Backend: "test", Op: "create", Err: errDisk}
}

func TestStorageErrorPropagatesUnchanged(t *testing.T) {
	c := collection.New("users", failingProvider{Provider: store.Scope(store.NewMemoryStore(), "users")})
	r := record(c)

	_, err := c.Create(context.Background(), document.Payload{"a": "b"})
	require.Error(t, err)
	assert.True(t, store.IsStorageError(err))
	assert.ErrorIs(t, err, errDisk)
	assert.Empty(t, r.kinds())
}

func TestSchemaIsEnforced(t *testing.T) {
	ctx := context.Background()
	c := newCollection(collection.WithSchema(map[string]any{
		"type":     "object",
		"required": []any{"email"},
		"properties": map[string]any{
			"email": map[string]any{"type": "string"},
			"age":   map[string]any{"type": "integer", "minimum": 0},
		},
	}))

	_, err := c.Create(ctx, document.Payload{"age": 3})
	assert.ErrorIs(t, err, document.ErrInvalidPayload)

	id, err := c.Create(ctx, document.Payload{"email": "x@y.com", "age": 3})
	require.NoError(t, err)

	// Partial updates skip the required check but keep type checks.
	_, err = c.Update(ctx, id, document.Payload{"age": 4})
	require.NoError(t, err)
	_, err = c.Update(ctx, id, document.Payload{"age": -1})
	assert.ErrorIs(t, err, document.ErrInvalidPayload)
}

func TestConcurrentUpdatesKeepEveryField(t *testing.T) {
	ctx := context.Background()
	c := newCollection()
	id, err := c.Create(ctx, document.Payload{"seed": true})
	require.NoError(t, err)
	r := record(c)

	const writers = 32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.Update(ctx, id, document.Payload{fmt.Sprintf("f%d", i): i})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	doc, err := c.Read(ctx, id)
	require.NoError(t, err)
	assert.Len(t, doc.Data, writers+1)

	// Each update event carries a strictly larger payload than the last.
	prev := 1
	for _, ev := range r.events {
		if ev.Kind != collection.KindUpdate {
			continue
		}
		n := len(ev.Documents[0].Data)
		assert.Equal(t, prev+1, n)
		prev = n
	}
}
