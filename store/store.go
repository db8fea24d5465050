// Package store defines the storage provider contract and its backends.
package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/stevemurr/termstore/document"
)

// ErrInvalidCollection marks a collection name no backend accepts.
var ErrInvalidCollection = errors.New("invalid collection name")

// ValidateCollectionName rejects names that cannot be used as a single file
// name inside a data directory: empty, dot-prefixed, or containing a path
// separator or NUL.
func ValidateCollectionName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidCollection)
	case strings.HasPrefix(name, "."),
		strings.ContainsAny(name, "/\\\x00"),
		filepath.Base(name) != name:
		return fmt.Errorf("%w: %q", ErrInvalidCollection, name)
	}
	return nil
}

// Provider is the per-collection CRUD contract a Collection is built on.
type Provider interface {
	// Create stores doc under id. Fails with AlreadyExistsError if id is taken.
	Create(ctx context.Context, id string, doc document.Document) error

	// Read returns the document, or nil if there is none.
	Read(ctx context.Context, id string) (*document.Document, error)

	// Update shallow-merges partial into the stored payload and returns the
	// result. Fails with NotFoundError.
	Update(ctx context.Context, id string, partial document.Payload) (document.Document, error)

	// Delete removes the document and returns what was removed.
	// Fails with NotFoundError.
	Delete(ctx context.Context, id string) (document.Document, error)

	// List returns every document, ordered by id.
	List(ctx context.Context) ([]document.Document, error)
}

// Backend holds any number of named collections. Every method mirrors the
// Provider method of the same name, scoped to one collection.
type Backend interface {
	Create(ctx context.Context, collection string, doc document.Document) error
	Get(ctx context.Context, collection, id string) (*document.Document, error)
	Update(ctx context.Context, collection, id string, partial document.Payload) (document.Document, error)
	Delete(ctx context.Context, collection, id string) (document.Document, error)
	List(ctx context.Context, collection string) ([]document.Document, error)

	// ListCollections returns the names of all collections that contain data.
	ListCollections(ctx context.Context) ([]string, error)

	Close() error
}

// Scoped is the Provider view of one collection in a Backend.
type Scoped struct {
	backend    Backend
	collection string
}

// Scope binds a Backend to a collection name.
func Scope(b Backend, collection string) *Scoped {
	return &Scoped{backend: b, collection: collection}
}

func (s *Scoped) Create(ctx context.Context, id string, doc document.Document) error {
	doc.ID = id
	return s.backend.Create(ctx, s.collection, doc)
}

func (s *Scoped) Read(ctx context.Context, id string) (*document.Document, error) {
	return s.backend.Get(ctx, s.collection, id)
}

func (s *Scoped) Update(ctx context.Context, id string, partial document.Payload) (document.Document, error) {
	return s.backend.Update(ctx, s.collection, id, partial)
}

func (s *Scoped) Delete(ctx context.Context, id string) (document.Document, error) {
	return s.backend.Delete(ctx, s.collection, id)
}

func (s *Scoped) List(ctx context.Context) ([]document.Document, error) {
	return s.backend.List(ctx, s.collection)
}

// sortDocuments orders docs by id so List is deterministic on every backend.
func sortDocuments(docs []document.Document) {
	slices.SortFunc(docs, func(a, b document.Document) int {
		return strings.Compare(a.ID, b.ID)
	})
}
