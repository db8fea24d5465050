// Package engine assembles a running termstore from its configuration: the
// storage backend, one collection per declared name and the term indexes
// attached to them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/stevemurr/termstore/collection"
	"github.com/stevemurr/termstore/config"
	"github.com/stevemurr/termstore/index"
	"github.com/stevemurr/termstore/store"
)

var (
	ErrUnknownCollection = errors.New("unknown collection")
	ErrUnknownIndex      = errors.New("unknown index")
)

// Engine owns the backend and everything built on it.
type Engine struct {
	backend     store.Backend
	logger      *slog.Logger
	names       []string
	collections map[string]*collection.Collection
	caches      map[string]*store.Cached
	indexes     map[string][]*index.Index
}

// Open builds the engine described by cfg and reindexes every index so that
// documents already held by a persistent backend are matchable.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	location := cfg.Storage.DataDir
	if cfg.Storage.Backend == "remote" {
		location = cfg.Storage.RemoteURL
	}
	backend, err := store.New(cfg.Storage.Backend, location)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		backend:     backend,
		logger:      logger,
		collections: make(map[string]*collection.Collection),
		caches:      make(map[string]*store.Cached),
		indexes:     make(map[string][]*index.Index),
	}

	for _, cc := range cfg.Collections {
		var provider store.Provider = store.Scope(backend, cc.Name)
		if cfg.Storage.CacheSize > 0 {
			cached := store.NewCached(provider, cfg.Storage.CacheSize)
			e.caches[cc.Name] = cached
			provider = cached
		}

		opts := []collection.Option{collection.WithLogger(logger)}
		if cc.Schema != nil {
			opts = append(opts, collection.WithSchema(cc.Schema))
		}
		c := collection.New(cc.Name, provider, opts...)
		e.names = append(e.names, cc.Name)
		e.collections[cc.Name] = c

		for _, ic := range cc.Indexes {
			ix, err := index.New(ic.Name, c, ic.Terms,
				index.WithLogger(logger),
				index.WithConcurrency(cfg.Storage.MatchConcurrency))
			if err != nil {
				e.Close()
				return nil, fmt.Errorf("collection %s: %w", cc.Name, err)
			}
			e.indexes[cc.Name] = append(e.indexes[cc.Name], ix)
		}
	}

	if err := e.ReindexAll(ctx); err != nil {
		e.Close()
		return nil, err
	}

	logger.Info("engine ready",
		"backend", cfg.Storage.Backend,
		"collections", len(e.names),
		"cache_size", cfg.Storage.CacheSize)
	return e, nil
}

// ReindexAll rebuilds every index concurrently.
func (e *Engine) ReindexAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range e.names {
		for _, ix := range e.indexes[name] {
			g.Go(func() error {
				return ix.Reindex(gctx)
			})
		}
	}
	return g.Wait()
}

// Collection returns the collection named name.
func (e *Engine) Collection(name string) (*collection.Collection, error) {
	c, ok := e.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
	}
	return c, nil
}

// Index returns the index named name on collection.
func (e *Engine) Index(collectionName, name string) (*index.Index, error) {
	if _, err := e.Collection(collectionName); err != nil {
		return nil, err
	}
	for _, ix := range e.indexes[collectionName] {
		if ix.Name() == name {
			return ix, nil
		}
	}
	return nil, fmt.Errorf("%w: %s on %s", ErrUnknownIndex, name, collectionName)
}

// Collections returns the collection names in declaration order.
func (e *Engine) Collections() []string {
	return slices.Clone(e.names)
}

// Indexes returns the indexes of a collection in declaration order.
func (e *Engine) Indexes(collectionName string) ([]*index.Index, error) {
	if _, err := e.Collection(collectionName); err != nil {
		return nil, err
	}
	return slices.Clone(e.indexes[collectionName]), nil
}

func (e *Engine) Backend() store.Backend {
	return e.backend
}

// Close detaches every index and closes the backend.
func (e *Engine) Close() error {
	for _, ixs := range e.indexes {
		for _, ix := range ixs {
			ix.Close()
		}
	}
	return e.backend.Close()
}
