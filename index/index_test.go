package index_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/termstore/collection"
	"github.com/stevemurr/termstore/document"
	"github.com/stevemurr/termstore/index"
	"github.com/stevemurr/termstore/store"
)

func newUsers(t *testing.T) (*collection.Collection, store.Provider) {
	t.Helper()
	p := store.Scope(store.NewMemoryStore(), "users")
	return collection.New("users", p), p
}

func newIndex(t *testing.T, c index.Source, fields ...string) *index.Index {
	t.Helper()
	ix, err := index.New("by", c, fields)
	require.NoError(t, err)
	t.Cleanup(ix.Close)
	return ix
}

func ids(docs []document.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}

func TestNewRejectsBadFields(t *testing.T) {
	c, _ := newUsers(t)

	_, err := index.New("x", c, nil)
	assert.ErrorIs(t, err, index.ErrNoTerms)

	_, err = index.New("x", c, []string{"a", ""})
	assert.Error(t, err)

	_, err = index.New("x", c, []string{"a", "a"})
	assert.Error(t, err)
}

func TestMatchAfterCreate(t *testing.T) {
	ctx := context.Background()
	c, _ := newUsers(t)
	ix := newIndex(t, c, "email")

	id, err := c.Create(ctx, document.Payload{"email": "a@x", "name": "ann"})
	require.NoError(t, err)
	_, err = c.Create(ctx, document.Payload{"email": "b@x", "name": "bob"})
	require.NoError(t, err)

	got, err := ix.Match(ctx, document.Payload{"email": "a@x"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, "ann", got[0].Data["name"])

	got, err = ix.Match(ctx, document.Payload{"email": "nobody@x"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMatchNoDuplicatesAfterUpdates(t *testing.T) {
	ctx := context.Background()
	c, _ := newUsers(t)
	ix := newIndex(t, c, "email")

	id, err := c.Create(ctx, document.Payload{"email": "a@x", "n": 1})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = c.Update(ctx, id, document.Payload{"n": i})
		require.NoError(t, err)
	}

	got, err := ix.Match(ctx, document.Payload{"email": "a@x"})
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids(got))
	assert.Equal(t, 1, ix.Len())
}

func TestUpdateMovesDocument(t *testing.T) {
	ctx := context.Background()
	c, _ := newUsers(t)
	ix := newIndex(t, c, "email")

	id, err := c.Create(ctx, document.Payload{"email": "old@x"})
	require.NoError(t, err)
	_, err = c.Update(ctx, id, document.Payload{"email": "new@x"})
	require.NoError(t, err)

	got, err := ix.Match(ctx, document.Payload{"email": "old@x"})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = ix.Match(ctx, document.Payload{"email": "new@x"})
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids(got))
}

func TestDeleteRemovesOnlyThatDocument(t *testing.T) {
	ctx := context.Background()
	c, _ := newUsers(t)
	ix := newIndex(t, c, "team")

	a, err := c.Create(ctx, document.Payload{"team": "red"})
	require.NoError(t, err)
	b, err := c.Create(ctx, document.Payload{"team": "red"})
	require.NoError(t, err)

	require.NoError(t, c.Delete(ctx, a))

	got, err := ix.Match(ctx, document.Payload{"team": "red"})
	require.NoError(t, err)
	assert.Equal(t, []string{b}, ids(got))
	assert.Equal(t, 1, ix.Len())
}

func TestMatchMultipleFields(t *testing.T) {
	ctx := context.Background()
	c, _ := newUsers(t)
	ix := newIndex(t, c, "last", "first")

	id, err := c.Create(ctx, document.Payload{"first": "ann", "last": "lee", "age": 30})
	require.NoError(t, err)
	_, err = c.Create(ctx, document.Payload{"first": "bob", "last": "lee"})
	require.NoError(t, err)

	got, err := ix.Match(ctx, document.Payload{"first": "ann", "last": "lee"})
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids(got))

	// A subset of the term fields hashes to a key no complete document has.
	got, err = ix.Match(ctx, document.Payload{"last": "lee"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMatchNumbersAcrossTypes(t *testing.T) {
	ctx := context.Background()
	c, _ := newUsers(t)
	ix := newIndex(t, c, "age")

	id, err := c.Create(ctx, document.Payload{"age": 30})
	require.NoError(t, err)

	got, err := ix.Match(ctx, document.Payload{"age": float64(30)})
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids(got))

	got, err = ix.Match(ctx, document.Payload{"age": "30"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMatchRejectsUnknownTerms(t *testing.T) {
	c, _ := newUsers(t)
	ix := newIndex(t, c, "email")

	_, err := ix.Match(context.Background(), document.Payload{"emial": "a@x"})
	assert.ErrorIs(t, err, index.ErrUnknownTerm)
}

func TestMatchRejectsInvalidTerms(t *testing.T) {
	c, _ := newUsers(t)
	ix := newIndex(t, c, "email")

	_, err := ix.Match(context.Background(), document.Payload{"email": []string{"a"}})
	assert.ErrorIs(t, err, document.ErrInvalidPayload)
}

func TestMatchDropsVanishedDocuments(t *testing.T) {
	ctx := context.Background()
	c, p := newUsers(t)
	ix := newIndex(t, c, "team")

	a, err := c.Create(ctx, document.Payload{"team": "red"})
	require.NoError(t, err)
	b, err := c.Create(ctx, document.Payload{"team": "red"})
	require.NoError(t, err)

	// Deleted behind the collection's back, so the index never hears of it.
	_, err = p.Delete(ctx, a)
	require.NoError(t, err)

	got, err := ix.Match(ctx, document.Payload{"team": "red"})
	require.NoError(t, err)
	assert.Equal(t, []string{b}, ids(got))
}

func TestReindexMatchesIncremental(t *testing.T) {
	ctx := context.Background()
	c, _ := newUsers(t)
	ix := newIndex(t, c, "team", "level")

	rng := rand.New(rand.NewSource(42))
	teams := []string{"red", "blue", "green"}
	var live []string
	for i := 0; i < 300; i++ {
		switch op := rng.Intn(3); {
		case op == 0 || len(live) == 0:
			payload := document.Payload{"team": teams[rng.Intn(len(teams))]}
			if rng.Intn(4) > 0 {
				payload["level"] = rng.Intn(3)
			}
			id, err := c.Create(ctx, payload)
			require.NoError(t, err)
			live = append(live, id)
		case op == 1:
			id := live[rng.Intn(len(live))]
			_, err := c.Update(ctx, id, document.Payload{"level": rng.Intn(3), "team": teams[rng.Intn(len(teams))]})
			require.NoError(t, err)
		default:
			i := rng.Intn(len(live))
			require.NoError(t, c.Delete(ctx, live[i]))
			live = append(live[:i], live[i+1:]...)
		}
	}

	incremental := ix.Snapshot()
	before := ix.Fingerprint()
	require.NoError(t, ix.Reindex(ctx))
	assert.Equal(t, incremental, ix.Snapshot())
	assert.Equal(t, before, ix.Fingerprint())
	assert.Equal(t, len(live), ix.Len())
}

func TestReindexPicksUpExistingDocuments(t *testing.T) {
	ctx := context.Background()
	c, _ := newUsers(t)

	id, err := c.Create(ctx, document.Payload{"email": "a@x"})
	require.NoError(t, err)

	ix := newIndex(t, c, "email")
	got, err := ix.Match(ctx, document.Payload{"email": "a@x"})
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, ix.Reindex(ctx))
	got, err = ix.Match(ctx, document.Payload{"email": "a@x"})
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids(got))
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	c, p := newUsers(t)
	ix := newIndex(t, c, "email")

	_, err := c.Create(ctx, document.Payload{"email": "a@x"})
	require.NoError(t, err)

	r, err := ix.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, r.Consistent)
	assert.Equal(t, 1, r.Documents)
	assert.Equal(t, 1, r.Entries)

	// A write that bypasses the collection leaves the index stale.
	require.NoError(t, p.Create(ctx, "manual", document.Document{Data: document.Payload{"email": "b@x"}}))
	r, err = ix.Verify(ctx)
	require.NoError(t, err)
	assert.False(t, r.Consistent)
	assert.NotEqual(t, r.Live, r.Rebuilt)

	require.NoError(t, ix.Reindex(ctx))
	r, err = ix.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, r.Consistent)
}

type failingList struct {
	*collection.Collection
	err error
}

func (f failingList) List(context.Context) ([]document.Document, error) {
	return nil, f.err
}

func TestReindexKeepsMapOnError(t *testing.T) {
	ctx := context.Background()
	c, _ := newUsers(t)
	boom := errors.New("disk on fire")
	ix := newIndex(t, failingList{Collection: c, err: boom}, "email")

	_, err := c.Create(ctx, document.Payload{"email": "a@x"})
	require.NoError(t, err)
	before := ix.Snapshot()

	err = ix.Reindex(ctx)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, before, ix.Snapshot())

	_, err = ix.Verify(ctx)
	assert.ErrorIs(t, err, boom)
}

func TestCloseStopsMaintenance(t *testing.T) {
	ctx := context.Background()
	c, _ := newUsers(t)
	ix, err := index.New("by", c, []string{"email"})
	require.NoError(t, err)

	ix.Close()
	ix.Close()
	_, err = c.Create(ctx, document.Payload{"email": "a@x"})
	require.NoError(t, err)
	assert.Equal(t, 0, ix.Len())
}

func TestMatchManyConcurrentReads(t *testing.T) {
	ctx := context.Background()
	c, _ := newUsers(t)
	ix, err := index.New("by", c, []string{"team"}, index.WithConcurrency(3))
	require.NoError(t, err)
	t.Cleanup(ix.Close)

	want := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		id, err := c.Create(ctx, document.Payload{"team": "red", "n": i})
		require.NoError(t, err)
		want = append(want, id)
	}

	got, err := ix.Match(ctx, document.Payload{"team": "red"})
	require.NoError(t, err)
	assert.ElementsMatch(t, want, ids(got))
	assert.IsIncreasing(t, ids(got), "ids come back sorted")
}

func TestMatchCancelled(t *testing.T) {
	c, _ := newUsers(t)
	ix := newIndex(t, c, "email")
	_, err := c.Create(context.Background(), document.Payload{"email": "a@x"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ix.Match(ctx, document.Payload{"email": "a@x"})
	assert.ErrorIs(t, err, context.Canceled)
}
