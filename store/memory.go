package store

import (
	"context"
	"sort"
	"sync"

	"github.com/stevemurr/termstore/document"
)

// MemoryStore keeps everything in memory. Data is lost on restart.
// Safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]document.Payload
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]document.Payload),
	}
}

func (m *MemoryStore) Create(_ context.Context, collection string, doc document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[collection]
	if !ok {
		coll = make(map[string]document.Payload)
		m.collections[collection] = coll
	}
	if _, exists := coll[doc.ID]; exists {
		return &AlreadyExistsError{Collection: collection, ID: doc.ID}
	}
	coll[doc.ID] = doc.Data.Clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, collection, id string) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.collections[collection][id]
	if !ok {
		return nil, nil
	}
	return &document.Document{ID: id, Data: data.Clone()}, nil
}

func (m *MemoryStore) Update(_ context.Context, collection, id string, partial document.Payload) (document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.collections[collection][id]
	if !ok {
		return document.Document{}, &NotFoundError{Collection: collection, ID: id}
	}
	merged := document.Merge(existing, partial)
	m.collections[collection][id] = merged
	return document.Document{ID: id, Data: merged.Clone()}, nil
}

func (m *MemoryStore) Delete(_ context.Context, collection, id string) (document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll := m.collections[collection]
	data, ok := coll[id]
	if !ok {
		return document.Document{}, &NotFoundError{Collection: collection, ID: id}
	}
	delete(coll, id)
	return document.Document{ID: id, Data: data}, nil
}

func (m *MemoryStore) List(_ context.Context, collection string) ([]document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	coll := m.collections[collection]
	docs := make([]document.Document, 0, len(coll))
	for id, data := range coll {
		docs = append(docs, document.Document{ID: id, Data: data.Clone()})
	}
	sortDocuments(docs)
	return docs, nil
}

func (m *MemoryStore) ListCollections(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for name, docs := range m.collections {
		if len(docs) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
