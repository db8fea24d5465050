package store

import (
	"fmt"
	"path/filepath"
	"strings"
)

// New creates a Backend based on the backend name.
//
// Supported backends:
//
//	"memory"      - In-memory (ephemeral, default)
//	"json"        - JSON files in location
//	"sqlite"      - SQLite database at location/termstore.db (cgo driver)
//	"sqlite-pure" - SQLite database at location/termstore.db (pure Go driver)
//	"bolt"        - bbolt database at location/termstore.bolt
//	"remote"      - another termstore server; location is its base URL
func New(backend, location string) (Backend, error) {
	switch backend {
	case "memory", "":
		return NewMemoryStore(), nil
	case "json":
		return NewJsonFileStore(location)
	case "sqlite":
		return NewSqliteStore(filepath.Join(location, "termstore.db"))
	case "sqlite-pure":
		return NewSqliteStoreWithDriver(DriverPure, filepath.Join(location, "termstore.db"))
	case "bolt":
		return NewBoltStore(filepath.Join(location, "termstore.bolt"))
	case "remote":
		return NewRemoteStore(location, nil)
	default:
		return nil, fmt.Errorf("unknown store backend: %q (supported: %s)", backend, joinBackends())
	}
}

// Backends lists the names New accepts.
var Backends = []string{"memory", "json", "sqlite", "sqlite-pure", "bolt", "remote"}

func joinBackends() string {
	return strings.Join(Backends, ", ")
}
