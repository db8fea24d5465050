package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" // cgo SQLite driver, registers "sqlite3"
	_ "modernc.org/sqlite"          // pure Go SQLite driver, registers "sqlite"

	"github.com/stevemurr/termstore/document"
)

// SQLite driver names accepted by NewSqliteStoreWithDriver.
const (
	DriverCgo  = "sqlite3"
	DriverPure = "sqlite"
)

// SqliteStore stores all collections in a single SQLite database.
//
// Tables:
//
//	documents(collection, id, data)  PRIMARY KEY (collection, id)
type SqliteStore struct {
	mu      sync.RWMutex
	db      *sql.DB
	backend string
}

// NewSqliteStore opens dbPath with the cgo driver.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	return NewSqliteStoreWithDriver(DriverCgo, dbPath)
}

// NewSqliteStoreWithDriver opens dbPath with the named database/sql driver.
func NewSqliteStoreWithDriver(driver, dbPath string) (*SqliteStore, error) {
	backend := "sqlite"
	if driver == DriverPure {
		backend = "sqlite-pure"
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, storageErr(backend, "open", err)
	}
	db, err := sql.Open(driver, dbPath)
	if err != nil {
		return nil, storageErr(backend, "open", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, storageErr(backend, "open", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	)`); err != nil {
		db.Close()
		return nil, storageErr(backend, "open", err)
	}
	return &SqliteStore{db: db, backend: backend}, nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) Create(ctx context.Context, collection string, doc document.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := json.Marshal(doc.Data)
	if err != nil {
		return storageErr(s.backend, "create", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)
		 ON CONFLICT(collection, id) DO NOTHING`,
		collection, doc.ID, string(b),
	)
	if err != nil {
		return storageErr(s.backend, "create", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &AlreadyExistsError{Collection: collection, ID: doc.ID}
	}
	return nil
}

func (s *SqliteStore) Get(ctx context.Context, collection, id string) (*document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := s.get(ctx, s.db, collection, id)
	if err != nil || data == nil {
		return nil, err
	}
	return &document.Document{ID: id, Data: data}, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// get returns nil, nil when the row does not exist.
func (s *SqliteStore) get(ctx context.Context, q queryer, collection, id string) (document.Payload, error) {
	var raw string
	err := q.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(s.backend, "read", err)
	}
	var data document.Payload
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, storageErr(s.backend, "decode", err)
	}
	return data, nil
}

func (s *SqliteStore) Update(ctx context.Context, collection, id string, partial document.Payload) (document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return document.Document{}, storageErr(s.backend, "update", err)
	}
	defer tx.Rollback()

	existing, err := s.get(ctx, tx, collection, id)
	if err != nil {
		return document.Document{}, err
	}
	if existing == nil {
		return document.Document{}, &NotFoundError{Collection: collection, ID: id}
	}
	merged := document.Merge(existing, partial)
	b, err := json.Marshal(merged)
	if err != nil {
		return document.Document{}, storageErr(s.backend, "update", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE documents SET data = ? WHERE collection = ? AND id = ?",
		string(b), collection, id,
	); err != nil {
		return document.Document{}, storageErr(s.backend, "update", err)
	}
	if err := tx.Commit(); err != nil {
		return document.Document{}, storageErr(s.backend, "update", err)
	}
	return document.Document{ID: id, Data: merged}, nil
}

func (s *SqliteStore) Delete(ctx context.Context, collection, id string) (document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return document.Document{}, storageErr(s.backend, "delete", err)
	}
	defer tx.Rollback()

	existing, err := s.get(ctx, tx, collection, id)
	if err != nil {
		return document.Document{}, err
	}
	if existing == nil {
		return document.Document{}, &NotFoundError{Collection: collection, ID: id}
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	); err != nil {
		return document.Document{}, storageErr(s.backend, "delete", err)
	}
	if err := tx.Commit(); err != nil {
		return document.Document{}, storageErr(s.backend, "delete", err)
	}
	return document.Document{ID: id, Data: existing}, nil
}

func (s *SqliteStore) List(ctx context.Context, collection string) ([]document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, data FROM documents WHERE collection = ? ORDER BY id",
		collection,
	)
	if err != nil {
		return nil, storageErr(s.backend, "list", err)
	}
	defer rows.Close()
	docs := []document.Document{}
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, storageErr(s.backend, "list", err)
		}
		var data document.Payload
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return nil, storageErr(s.backend, "decode", err)
		}
		docs = append(docs, document.Document{ID: id, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(s.backend, "list", err)
	}
	return docs, nil
}

func (s *SqliteStore) ListCollections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT collection FROM documents ORDER BY collection")
	if err != nil {
		return nil, storageErr(s.backend, "list", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, storageErr(s.backend, "list", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(s.backend, "list", err)
	}
	return names, nil
}
