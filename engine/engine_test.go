package engine_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/termstore/config"
	"github.com/stevemurr/termstore/document"
	"github.com/stevemurr/termstore/engine"
)

func openEngine(t *testing.T, cfg *config.Config) *engine.Engine {
	t.Helper()
	e, err := engine.Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	return e
}

func TestOpenDefaults(t *testing.T) {
	e := openEngine(t, config.NewConfig())
	defer e.Close()

	assert.Equal(t, []string{"users"}, e.Collections())

	ix, err := e.Index("users", "usersByEmail")
	require.NoError(t, err)
	assert.Equal(t, []string{"email"}, ix.Terms())

	indexes, err := e.Indexes("users")
	require.NoError(t, err)
	assert.Len(t, indexes, 1)
}

func TestUnknownNames(t *testing.T) {
	e := openEngine(t, config.NewConfig())
	defer e.Close()

	_, err := e.Collection("orders")
	assert.ErrorIs(t, err, engine.ErrUnknownCollection)

	_, err = e.Index("orders", "x")
	assert.ErrorIs(t, err, engine.ErrUnknownCollection)

	_, err = e.Index("users", "byName")
	assert.ErrorIs(t, err, engine.ErrUnknownIndex)

	_, err = e.Indexes("orders")
	assert.ErrorIs(t, err, engine.ErrUnknownCollection)
}

func TestCollectionFeedsIndex(t *testing.T) {
	ctx := context.Background()
	cfg := config.NewConfig()
	cfg.Storage.CacheSize = 16
	e := openEngine(t, cfg)
	defer e.Close()

	users, err := e.Collection("users")
	require.NoError(t, err)
	id, err := users.Create(ctx, document.Payload{"email": "a@x"})
	require.NoError(t, err)

	ix, err := e.Index("users", "usersByEmail")
	require.NoError(t, err)
	got, err := ix.Match(ctx, document.Payload{"email": "a@x"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
}

func TestReopenPersistentBackendReindexes(t *testing.T) {
	ctx := context.Background()
	cfg := config.NewConfig()
	cfg.Storage.Backend = "bolt"
	cfg.Storage.DataDir = t.TempDir()

	e := openEngine(t, cfg)
	users, err := e.Collection("users")
	require.NoError(t, err)
	id, err := users.Create(ctx, document.Payload{"email": "a@x"})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	e = openEngine(t, cfg)
	defer e.Close()
	ix, err := e.Index("users", "usersByEmail")
	require.NoError(t, err)
	got, err := ix.Match(ctx, document.Payload{"email": "a@x"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
}

func TestSchemaApplied(t *testing.T) {
	ctx := context.Background()
	cfg := config.NewConfig()
	cfg.Collections[0].Schema = map[string]any{
		"type":     "object",
		"required": []any{"email"},
	}
	e := openEngine(t, cfg)
	defer e.Close()

	users, err := e.Collection("users")
	require.NoError(t, err)
	_, err = users.Create(ctx, document.Payload{"name": "ann"})
	assert.ErrorIs(t, err, document.ErrInvalidPayload)
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Storage.Backend = "redis"
	_, err := engine.Open(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestCollector(t *testing.T) {
	ctx := context.Background()
	cfg := config.NewConfig()
	cfg.Storage.CacheSize = 8
	e := openEngine(t, cfg)
	defer e.Close()

	users, err := e.Collection("users")
	require.NoError(t, err)
	_, err = users.Create(ctx, document.Payload{"email": "a@x"})
	require.NoError(t, err)

	// One index gauge and one cache gauge for the single collection.
	assert.Equal(t, 2, testutil.CollectAndCount(engine.NewCollector(e)))
}
