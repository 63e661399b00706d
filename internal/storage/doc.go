// Package storage persists index snapshots.
//
// A snapshot is the full content-addressed index of one project: every
// file's path, SHA-256 hash, modification time and content, plus the Merkle
// root at save time. Saving replaces the previous snapshot wholesale.
//
// Two backends implement SnapshotStore:
//
//	json    <root>/.codegraph/index/index.json   (default)
//	sqlite  <root>/.codegraph/index/index.db
//
// # SQLite Drivers
//
// The SQLite driver is chosen at build time:
//
//	go build ./...                                    modernc.org/sqlite (pure Go)
//	CGO_ENABLED=1 go build -tags sqlite_cgo ./...     github.com/mattn/go-sqlite3
//
// # Schema Migrations
//
// The SQLite schema is versioned with semantic versions. ApplyMigrations
// runs every migration newer than the highest recorded version, in order:
//
//	store, err := storage.NewSQLiteStore(path) // migrates on open
//	v, _ := store.SchemaVersion(ctx)           // "1.1.0"
//
// # Basic Usage
//
//	store, err := storage.Open(root, storage.BackendJSON)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	snap, err := store.Load(ctx)
//	if errors.Is(err, storage.ErrNotFound) {
//	    // first run
//	}
package storage
