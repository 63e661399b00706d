package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SQLiteStore keeps the snapshot in a SQLite database
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer; this also keeps :memory:
	// databases on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, nil
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// applies pending migrations
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
	}

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

// Location returns the database path
func (s *SQLiteStore) Location() string {
	return s.path
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load reads the snapshot. An empty database returns ErrNotFound.
func (s *SQLiteStore) Load(ctx context.Context) (*Snapshot, error) {
	meta, err := s.readMeta(ctx)
	if err != nil {
		return nil, err
	}
	if len(meta) == 0 {
		return nil, ErrNotFound
	}

	snap := &Snapshot{
		Version:    meta["version"],
		Root:       meta["root"],
		MerkleRoot: meta["merkle_root"],
		Files:      []FileEntry{},
	}
	if saved, ok := meta["saved_at"]; ok {
		if t, err := time.Parse(time.RFC3339Nano, saved); err == nil {
			snap.SavedAt = t
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT path, content_hash, last_modified, content
		FROM snapshot_files
		ORDER BY path
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot files: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var entry FileEntry
		var modified int64
		if err := rows.Scan(&entry.Path, &entry.Hash, &modified, &entry.Content); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot file: %w", err)
		}
		entry.LastModified = time.Unix(0, modified).UTC()
		snap.Files = append(snap.Files, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read snapshot files: %w", err)
	}

	return snap, nil
}

func (s *SQLiteStore) readMeta(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM snapshot_meta")
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot meta: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot meta: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

// Save overwrites the stored snapshot inside one transaction
func (s *SQLiteStore) Save(ctx context.Context, snap *Snapshot) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = clearTx(ctx, tx); err != nil {
		return err
	}

	meta := map[string]string{
		"version":     snap.Version,
		"root":        snap.Root,
		"merkle_root": snap.MerkleRoot,
		"saved_at":    snap.SavedAt.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range meta {
		if _, err = tx.ExecContext(ctx, "INSERT INTO snapshot_meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("failed to write snapshot meta: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshot_files (path, content_hash, last_modified, content, size_bytes)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, f := range snap.Files {
		if _, err = stmt.ExecContext(ctx, f.Path, f.Hash, f.LastModified.UnixNano(), f.Content, len(f.Content)); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.Path, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// Clear removes the stored snapshot
func (s *SQLiteStore) Clear(ctx context.Context) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err = clearTx(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func clearTx(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM snapshot_files"); err != nil {
		return fmt.Errorf("failed to clear snapshot files: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM snapshot_meta"); err != nil {
		return fmt.Errorf("failed to clear snapshot meta: %w", err)
	}
	return nil
}

// SchemaVersion returns the applied schema version
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (string, error) {
	v, err := currentVersion(ctx, s.db)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", errors.New("no schema applied")
	}
	return v.String(), nil
}
