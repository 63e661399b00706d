package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Snapshot layout under a project root
const (
	DirName      = ".codegraph"
	IndexDirName = "index"
	JSONFileName = "index.json"
	DBFileName   = "index.db"

	// SnapshotVersion is written into every snapshot
	SnapshotVersion = "1"
)

// Backends
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

var (
	// ErrNotFound is returned when no snapshot has been saved yet
	ErrNotFound = errors.New("not found")
	// ErrUnknownBackend is returned for an unsupported backend name
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// SnapshotStore persists the content-addressed index of one project.
// Save replaces the previous snapshot wholesale.
type SnapshotStore interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	Clear(ctx context.Context) error
	Location() string
	Close() error
}

// Snapshot is the persisted index state
type Snapshot struct {
	Version    string      `json:"version"`
	Root       string      `json:"root"`
	MerkleRoot string      `json:"merkle_root,omitempty"`
	SavedAt    time.Time   `json:"saved_at"`
	Files      []FileEntry `json:"files"`
}

// FileEntry is one indexed file
type FileEntry struct {
	Path         string    `json:"path"`
	Hash         string    `json:"hash"`
	LastModified time.Time `json:"last_modified"`
	Content      string    `json:"content"`
}

// IndexDir returns the snapshot directory for root
func IndexDir(root string) string {
	return filepath.Join(root, DirName, IndexDirName)
}

// Open returns the store for backend under root's index directory
func Open(root, backend string) (SnapshotStore, error) {
	dir := IndexDir(root)
	switch strings.ToLower(backend) {
	case "", BackendJSON:
		return NewJSONStore(filepath.Join(dir, JSONFileName)), nil
	case BackendSQLite:
		return NewSQLiteStore(filepath.Join(dir, DBFileName))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, backend)
	}
}
