package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/stevemurr/termstore/document"
)

const boltBackend = "bolt"

// BoltStore keeps one bbolt bucket per collection, keyed by document id,
// with the payload stored as JSON.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, storageErr(boltBackend, "open", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, storageErr(boltBackend, "open", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// boltErr wraps driver failures but lets NotFound/AlreadyExists through.
func boltErr(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyExists) || IsStorageError(err) {
		return err
	}
	return storageErr(boltBackend, op, err)
}

func decodePayload(raw []byte) (document.Payload, error) {
	var data document.Payload
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, storageErr(boltBackend, "decode", err)
	}
	return data, nil
}

func (s *BoltStore) Create(_ context.Context, collection string, doc document.Document) error {
	raw, err := json.Marshal(doc.Data)
	if err != nil {
		return storageErr(boltBackend, "create", err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(collection))
		if err != nil {
			return err
		}
		if b.Get([]byte(doc.ID)) != nil {
			return &AlreadyExistsError{Collection: collection, ID: doc.ID}
		}
		return b.Put([]byte(doc.ID), raw)
	})
	return boltErr("create", err)
}

func (s *BoltStore) Get(_ context.Context, collection, id string) (*document.Document, error) {
	var result *document.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		raw := b.Get([]byte(id))
		if raw == nil {
			return nil
		}
		data, err := decodePayload(raw)
		if err != nil {
			return err
		}
		result = &document.Document{ID: id, Data: data}
		return nil
	})
	return result, boltErr("read", err)
}

func (s *BoltStore) Update(_ context.Context, collection, id string, partial document.Payload) (document.Document, error) {
	var result document.Document
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return &NotFoundError{Collection: collection, ID: id}
		}
		raw := b.Get([]byte(id))
		if raw == nil {
			return &NotFoundError{Collection: collection, ID: id}
		}
		existing, err := decodePayload(raw)
		if err != nil {
			return err
		}
		merged := document.Merge(existing, partial)
		out, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(id), out); err != nil {
			return err
		}
		result = document.Document{ID: id, Data: merged}
		return nil
	})
	return result, boltErr("update", err)
}

func (s *BoltStore) Delete(_ context.Context, collection, id string) (document.Document, error) {
	var result document.Document
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return &NotFoundError{Collection: collection, ID: id}
		}
		raw := b.Get([]byte(id))
		if raw == nil {
			return &NotFoundError{Collection: collection, ID: id}
		}
		data, err := decodePayload(raw)
		if err != nil {
			return err
		}
		if err := b.Delete([]byte(id)); err != nil {
			return err
		}
		result = document.Document{ID: id, Data: data}
		return nil
	})
	return result, boltErr("delete", err)
}

// List relies on bbolt iterating keys in byte order.
func (s *BoltStore) List(_ context.Context, collection string) ([]document.Document, error) {
	docs := []document.Document{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			data, err := decodePayload(v)
			if err != nil {
				return err
			}
			docs = append(docs, document.Document{ID: string(k), Data: data})
			return nil
		})
	})
	if err != nil {
		return nil, boltErr("list", err)
	}
	return docs, nil
}

func (s *BoltStore) ListCollections(_ context.Context) ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bbolt.Bucket) error {
			if k, _ := b.Cursor().First(); k != nil {
				names = append(names, string(name))
			}
			return nil
		})
	})
	return names, boltErr("list", err)
}
