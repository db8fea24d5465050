// Package collection implements a CRUD facade over a storage provider that
// publishes a change event after every successful operation.
package collection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stevemurr/termstore/document"
	"github.com/stevemurr/termstore/schema"
	"github.com/stevemurr/termstore/store"
)

// Collection owns a storage provider and announces every change on its bus.
//
// Create, Update and Delete hold a per-collection lock across the storage
// write and the publish, so events go out in the order writes completed and
// subscribers see one mutation at a time. Handlers run synchronously and must
// not call the mutating methods of the collection that invoked them.
type Collection struct {
	name     string
	provider store.Provider
	bus      *Bus
	schema   map[string]any
	logger   *slog.Logger

	mu sync.Mutex
}

// Option configures a Collection.
type Option func(*Collection)

// WithSchema validates payloads against s before they are written.
func WithSchema(s map[string]any) Option {
	return func(c *Collection) { c.schema = s }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Collection) { c.logger = l }
}

// New creates a collection named name over p.
func New(name string, p store.Provider, opts ...Option) *Collection {
	c := &Collection{
		name:     name,
		provider: p,
		bus:      NewBus(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("collection", name)
	return c
}

func (c *Collection) Name() string {
	return c.name
}

// Subscribe registers h for events of kind. See Bus.Subscribe.
func (c *Collection) Subscribe(kind Kind, h Handler) (unsubscribe func()) {
	return c.bus.Subscribe(kind, h)
}

func (c *Collection) publish(ctx context.Context, kind Kind, doc document.Document) {
	c.bus.Publish(ctx, Event{Kind: kind, Collection: c.name, Documents: []document.Document{doc}})
}

// Create stores payload under a freshly generated id and publishes a create
// event.
func (c *Collection) Create(ctx context.Context, payload document.Payload) (id string, err error) {
	defer c.observe("create", time.Now(), &err)

	data, err := document.Normalize(payload)
	if err != nil {
		return "", err
	}
	if err := schema.Validate(c.schema, data); err != nil {
		return "", fmt.Errorf("%w: %w", document.ErrInvalidPayload, err)
	}

	doc := document.Document{ID: document.NewID(), Data: data}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.provider.Create(ctx, doc.ID, doc); err != nil {
		return "", err
	}
	c.logger.Debug("document created", "id", doc.ID)
	c.publish(ctx, KindCreate, doc)
	return doc.ID, nil
}

// Read returns the document for id, or nil if there is none. A found
// document is published as a read event; absence is not an error.
func (c *Collection) Read(ctx context.Context, id string) (doc *document.Document, err error) {
	defer c.observe("read", time.Now(), &err)

	doc, err = c.provider.Read(ctx, id)
	if err != nil || doc == nil {
		return nil, err
	}
	c.publish(ctx, KindRead, doc.Clone())
	return doc, nil
}

// Update shallow-merges partial into the document and publishes the merged
// result as an update event.
func (c *Collection) Update(ctx context.Context, id string, partial document.Payload) (doc document.Document, err error) {
	defer c.observe("update", time.Now(), &err)

	data, err := document.Normalize(partial)
	if err != nil {
		return document.Document{}, err
	}
	if err := schema.ValidatePartial(c.schema, data); err != nil {
		return document.Document{}, fmt.Errorf("%w: %w", document.ErrInvalidPayload, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	doc, err = c.provider.Update(ctx, id, data)
	if err != nil {
		return document.Document{}, err
	}
	c.logger.Debug("document updated", "id", id)
	c.publish(ctx, KindUpdate, doc.Clone())
	return doc, nil
}

// Delete removes the document and publishes what was removed.
func (c *Collection) Delete(ctx context.Context, id string) (err error) {
	defer c.observe("delete", time.Now(), &err)

	c.mu.Lock()
	defer c.mu.Unlock()
	doc, err := c.provider.Delete(ctx, id)
	if err != nil {
		return err
	}
	c.logger.Debug("document deleted", "id", id)
	c.publish(ctx, KindDelete, doc)
	return nil
}

// List returns every stored document without publishing anything.
func (c *Collection) List(ctx context.Context) (docs []document.Document, err error) {
	defer c.observe("list", time.Now(), &err)
	return c.provider.List(ctx)
}

func (c *Collection) observe(op string, start time.Time, errp *error) {
	result := "ok"
	if *errp != nil {
		result = "error"
		c.logger.Debug("operation failed", "op", op, "error", *errp)
	}
	operationsTotal.WithLabelValues(c.name, op, result).Inc()
	operationDuration.WithLabelValues(c.name, op).Observe(time.Since(start).Seconds())
}
