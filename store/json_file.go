package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"github.com/stevemurr/termstore/document"
)

const jsonBackend = "json"

// JsonFileStore stores each collection as a separate JSON file on disk.
// The directory is locked against other processes while the store is open.
//
// Layout:
//
//	data_dir/
//	  .lock        # held by the owning process
//	  users.json   # "users" collection: {"<id>": {...payload...}}
//	  orders.json  # "orders" collection
type JsonFileStore struct {
	mu   sync.RWMutex
	dir  string
	lock *flock.Flock
}

func NewJsonFileStore(dir string) (*JsonFileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, storageErr(jsonBackend, "open", err)
	}
	lock := flock.New(filepath.Join(dir, ".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, storageErr(jsonBackend, "lock", err)
	}
	if !locked {
		return nil, storageErr(jsonBackend, "lock", fmt.Errorf("data directory %s is in use by another process", dir))
	}
	return &JsonFileStore{dir: dir, lock: lock}, nil
}

// Close releases the directory lock.
func (s *JsonFileStore) Close() error {
	return s.lock.Unlock()
}

func (s *JsonFileStore) collectionPath(collection string) (string, error) {
	if err := ValidateCollectionName(collection); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, collection+".json"), nil
}

// loadCollection reads a collection file. A missing file is an empty collection.
func (s *JsonFileStore) loadCollection(collection string) (map[string]document.Payload, error) {
	path, err := s.collectionPath(collection)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]document.Payload{}, nil
		}
		return nil, storageErr(jsonBackend, "read", err)
	}
	result := map[string]document.Payload{}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, storageErr(jsonBackend, "decode", fmt.Errorf("%s: %w", collection, err))
	}
	return result, nil
}

// saveCollection writes through a temp file so a crash never leaves a
// truncated collection behind.
func (s *JsonFileStore) saveCollection(collection string, coll map[string]document.Payload) error {
	b, err := json.MarshalIndent(coll, "", "  ")
	if err != nil {
		return storageErr(jsonBackend, "encode", err)
	}
	path, err := s.collectionPath(collection)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return storageErr(jsonBackend, "write", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return storageErr(jsonBackend, "write", err)
	}
	return nil
}

func (s *JsonFileStore) Create(_ context.Context, collection string, doc document.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, err := s.loadCollection(collection)
	if err != nil {
		return err
	}
	if _, ok := coll[doc.ID]; ok {
		return &AlreadyExistsError{Collection: collection, ID: doc.ID}
	}
	coll[doc.ID] = doc.Data
	return s.saveCollection(collection, coll)
}

func (s *JsonFileStore) Get(_ context.Context, collection, id string) (*document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coll, err := s.loadCollection(collection)
	if err != nil {
		return nil, err
	}
	data, ok := coll[id]
	if !ok {
		return nil, nil
	}
	return &document.Document{ID: id, Data: data}, nil
}

func (s *JsonFileStore) Update(_ context.Context, collection, id string, partial document.Payload) (document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, err := s.loadCollection(collection)
	if err != nil {
		return document.Document{}, err
	}
	existing, ok := coll[id]
	if !ok {
		return document.Document{}, &NotFoundError{Collection: collection, ID: id}
	}
	merged := document.Merge(existing, partial)
	coll[id] = merged
	if err := s.saveCollection(collection, coll); err != nil {
		return document.Document{}, err
	}
	return document.Document{ID: id, Data: merged.Clone()}, nil
}

func (s *JsonFileStore) Delete(_ context.Context, collection, id string) (document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, err := s.loadCollection(collection)
	if err != nil {
		return document.Document{}, err
	}
	data, ok := coll[id]
	if !ok {
		return document.Document{}, &NotFoundError{Collection: collection, ID: id}
	}
	delete(coll, id)
	if err := s.saveCollection(collection, coll); err != nil {
		return document.Document{}, err
	}
	return document.Document{ID: id, Data: data}, nil
}

func (s *JsonFileStore) List(_ context.Context, collection string) ([]document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coll, err := s.loadCollection(collection)
	if err != nil {
		return nil, err
	}
	docs := make([]document.Document, 0, len(coll))
	for id, data := range coll {
		docs = append(docs, document.Document{ID: id, Data: data})
	}
	sortDocuments(docs)
	return docs, nil
}

func (s *JsonFileStore) ListCollections(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, storageErr(jsonBackend, "list", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(names)
	return names, nil
}
