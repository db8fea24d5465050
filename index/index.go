// Package index maintains exact-match term indexes over a collection.
//
// An Index subscribes to a collection's create, update and delete events
// and keeps a map from the composite key of each document's term fields to
// the ids carrying those values. Match answers equality lookups on the full
// set of term fields; Reindex rebuilds the map from the collection's storage
// and always yields the same map incremental maintenance would.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stevemurr/termstore/collection"
	"github.com/stevemurr/termstore/document"
)

// DefaultConcurrency bounds the parallel reads Match issues to resolve ids.
const DefaultConcurrency = 8

var (
	ErrNoTerms     = errors.New("index needs at least one term field")
	ErrUnknownTerm = errors.New("unknown term field")
)

// Source is what an Index reads from and listens to.
// *collection.Collection satisfies it.
type Source interface {
	Name() string
	Subscribe(kind collection.Kind, h collection.Handler) (unsubscribe func())
	Read(ctx context.Context, id string) (*document.Document, error)
	List(ctx context.Context) ([]document.Document, error)
}

// Index maps composite term keys to document ids.
type Index struct {
	name        string
	source      Source
	fields      []string
	logger      *slog.Logger
	concurrency int
	label       string

	mu    sync.RWMutex
	terms map[string]map[string]struct{}
	byID  map[string]string

	closeOnce   sync.Once
	unsubscribe []func()
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(ix *Index) { ix.logger = l }
}

// WithConcurrency bounds the parallel reads of Match. Values below 1 are
// ignored.
func WithConcurrency(n int) Option {
	return func(ix *Index) {
		if n > 0 {
			ix.concurrency = n
		}
	}
}

// New creates an index named name over the ordered term fields and
// subscribes it to source. The index starts empty; call Reindex to pick up
// documents stored before it was created.
func New(name string, source Source, fields []string, opts ...Option) (*Index, error) {
	if len(fields) == 0 {
		return nil, ErrNoTerms
	}
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f == "" {
			return nil, fmt.Errorf("index %s: empty term field", name)
		}
		if _, dup := seen[f]; dup {
			return nil, fmt.Errorf("index %s: duplicate term field %q", name, f)
		}
		seen[f] = struct{}{}
	}

	ix := &Index{
		name:        name,
		source:      source,
		fields:      slices.Clone(fields),
		logger:      slog.Default(),
		concurrency: DefaultConcurrency,
		label:       source.Name() + "/" + name,
		terms:       make(map[string]map[string]struct{}),
		byID:        make(map[string]string),
	}
	for _, opt := range opts {
		opt(ix)
	}
	ix.logger = ix.logger.With("collection", source.Name(), "index", name)

	ix.unsubscribe = []func(){
		source.Subscribe(collection.KindCreate, ix.onCreate),
		source.Subscribe(collection.KindUpdate, ix.onUpdate),
		source.Subscribe(collection.KindDelete, ix.onDelete),
	}
	return ix, nil
}

func (ix *Index) Name() string {
	return ix.name
}

// Terms returns the term fields in key order.
func (ix *Index) Terms() []string {
	return slices.Clone(ix.fields)
}

// Close stops listening to the source. Safe to call more than once.
func (ix *Index) Close() {
	ix.closeOnce.Do(func() {
		for _, unsub := range ix.unsubscribe {
			unsub()
		}
	})
}

func (ix *Index) onCreate(_ context.Context, ev collection.Event) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	addAll(ix.terms, ix.byID, ix.fields, ev.Documents)
	entries.WithLabelValues(ix.label).Set(float64(len(ix.byID)))
}

// onUpdate drops the prior entries of the updated documents, found by id,
// and indexes their new state.
func (ix *Index) onUpdate(_ context.Context, ev collection.Event) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, doc := range ev.Documents {
		removeID(ix.terms, ix.byID, doc.ID)
	}
	addAll(ix.terms, ix.byID, ix.fields, ev.Documents)
	entries.WithLabelValues(ix.label).Set(float64(len(ix.byID)))
}

func (ix *Index) onDelete(_ context.Context, ev collection.Event) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, doc := range ev.Documents {
		removeID(ix.terms, ix.byID, doc.ID)
	}
	entries.WithLabelValues(ix.label).Set(float64(len(ix.byID)))
}

// addAll files each document under the key of its term fields. A document
// already filed under another key is moved, so an id never sits in two
// buckets.
func addAll(terms map[string]map[string]struct{}, byID map[string]string, fields []string, docs []document.Document) {
	for _, doc := range docs {
		key := HashTerms(fields, doc.Data)
		if prev, ok := byID[doc.ID]; ok && prev != key {
			removeID(terms, byID, doc.ID)
		}
		bucket, ok := terms[key]
		if !ok {
			bucket = make(map[string]struct{})
			terms[key] = bucket
		}
		bucket[doc.ID] = struct{}{}
		byID[doc.ID] = key
	}
}

// removeID uses the reverse map, so removal does not scan the buckets.
func removeID(terms map[string]map[string]struct{}, byID map[string]string, id string) {
	key, ok := byID[id]
	if !ok {
		return
	}
	delete(byID, id)
	bucket := terms[key]
	delete(bucket, id)
	if len(bucket) == 0 {
		delete(terms, key)
	}
}

func build(fields []string, docs []document.Document) (map[string]map[string]struct{}, map[string]string) {
	terms := make(map[string]map[string]struct{})
	byID := make(map[string]string, len(docs))
	addAll(terms, byID, fields, docs)
	return terms, byID
}

// Match returns the documents whose term fields equal terms. terms must use
// exactly the index's term fields: a proper subset hashes to a key the index
// never stores and matches nothing. Ids whose document has disappeared, or
// cannot be read, are dropped from the result.
func (ix *Index) Match(ctx context.Context, terms document.Payload) ([]document.Document, error) {
	for field := range terms {
		if !slices.Contains(ix.fields, field) {
			return nil, fmt.Errorf("%w %q for index %s (terms: %v)", ErrUnknownTerm, field, ix.name, ix.fields)
		}
	}
	norm, err := document.Normalize(terms)
	if err != nil {
		return nil, err
	}
	key := HashTerms(ix.fields, norm)
	matchesTotal.WithLabelValues(ix.label).Inc()

	ix.mu.RLock()
	ids := slices.Sorted(maps.Keys(ix.terms[key]))
	ix.mu.RUnlock()

	resolved := make([]*document.Document, len(ids))
	var g errgroup.Group
	g.SetLimit(ix.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			doc, err := ix.source.Read(ctx, id)
			if err != nil {
				ix.logger.Warn("dropping unreadable match", "id", id, "error", err)
				return nil
			}
			resolved[i] = doc
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	docs := make([]document.Document, 0, len(resolved))
	for _, doc := range resolved {
		if doc != nil {
			docs = append(docs, *doc)
		}
	}
	return docs, nil
}

// Reindex discards the map and rebuilds it from every stored document.
// Events arriving meanwhile wait and apply on top of the rebuilt map. On a
// storage error the previous map is kept and the error returned.
func (ix *Index) Reindex(ctx context.Context) error {
	start := time.Now()
	ix.mu.Lock()
	defer ix.mu.Unlock()

	docs, err := ix.source.List(ctx)
	if err != nil {
		reindexTotal.WithLabelValues(ix.label, "error").Inc()
		return fmt.Errorf("reindex %s: %w", ix.name, err)
	}
	ix.terms, ix.byID = build(ix.fields, docs)

	reindexTotal.WithLabelValues(ix.label, "ok").Inc()
	reindexDuration.WithLabelValues(ix.label).Observe(time.Since(start).Seconds())
	entries.WithLabelValues(ix.label).Set(float64(len(ix.byID)))
	ix.logger.Info("reindexed", "documents", len(docs), "keys", len(ix.terms), "took", time.Since(start))
	return nil
}

// Len returns the number of indexed document ids.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byID)
}

// KeyCount returns the number of distinct composite keys.
func (ix *Index) KeyCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.terms)
}

// Snapshot returns a copy of the map with ids sorted.
func (ix *Index) Snapshot() map[string][]string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make(map[string][]string, len(ix.terms))
	for key, bucket := range ix.terms {
		out[key] = slices.Sorted(maps.Keys(bucket))
	}
	return out
}
