package merkle

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dshills/codegraph-mcp/pkg/types"
)

// Index is the content-addressed index of a project's files.
// It owns every FileRecord and the most recently computed Merkle root.
type Index struct {
	root string

	mu      sync.RWMutex
	records map[string]types.FileRecord
	merkle  *Node
}

// NewIndex creates an empty index for files under root
func NewIndex(root string) *Index {
	return &Index{
		root:    root,
		records: make(map[string]types.FileRecord),
	}
}

// Root returns the project root directory
func (idx *Index) Root() string {
	return idx.root
}

// RelPath converts a path to the slash separated form used as record key.
// Relative paths are taken to be relative to the project root.
func (idx *Index) RelPath(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(filepath.Clean(path)), nil
	}
	rel, err := filepath.Rel(idx.root, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// AbsPath converts a record key back to an absolute filesystem path
func (idx *Index) AbsPath(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(idx.root, filepath.FromSlash(rel))
}

// ReadFile reads a file and builds its record without storing it
func (idx *Index) ReadFile(path string) (types.FileRecord, error) {
	rel, err := idx.RelPath(path)
	if err != nil {
		return types.FileRecord{}, &types.ReadError{Path: path, Err: err}
	}

	abs := idx.AbsPath(rel)
	info, err := os.Stat(abs)
	if err != nil {
		return types.FileRecord{}, &types.ReadError{Path: rel, Err: err}
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return types.FileRecord{}, &types.ReadError{Path: rel, Err: err}
	}

	return types.FileRecord{
		Path:         rel,
		ContentHash:  Hash(content),
		LastModified: info.ModTime(),
		Content:      string(content),
	}, nil
}

// IndexFile reads and hashes a file. When the digest matches the stored
// record the call is a no-op and changed is false; otherwise the record is
// replaced. Unreadable files yield a *types.ReadError.
func (idx *Index) IndexFile(ctx context.Context, path string) (rec types.FileRecord, changed bool, err error) {
	if err := ctx.Err(); err != nil {
		return types.FileRecord{}, false, err
	}

	rec, err = idx.ReadFile(path)
	if err != nil {
		return types.FileRecord{}, false, err
	}

	changed = idx.Put(rec)
	return rec, changed, nil
}

// Put stores a record and reports whether it differs from the stored one
func (idx *Index) Put(rec types.FileRecord) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if existing, ok := idx.records[rec.Path]; ok && existing.ContentHash == rec.ContentHash {
		return false
	}
	idx.records[rec.Path] = rec
	return true
}

// Get returns the record for a path
func (idx *Index) Get(path string) (types.FileRecord, bool) {
	rel, err := idx.RelPath(path)
	if err != nil {
		return types.FileRecord{}, false
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	rec, ok := idx.records[rel]
	return rec, ok
}

// Remove deletes the record for a path. It reports false for untracked paths.
func (idx *Index) Remove(path string) bool {
	rel, err := idx.RelPath(path)
	if err != nil {
		return false
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.records[rel]; !ok {
		return false
	}
	delete(idx.records, rel)
	return true
}

// Paths returns all tracked paths in ascending order
func (idx *Index) Paths() []string {
	idx.mu.RLock()
	paths := make([]string, 0, len(idx.records))
	for p := range idx.records {
		paths = append(paths, p)
	}
	idx.mu.RUnlock()

	sort.Strings(paths)
	return paths
}

// Records returns a copy of all records ordered by path
func (idx *Index) Records() []types.FileRecord {
	idx.mu.RLock()
	records := make([]types.FileRecord, 0, len(idx.records))
	for _, rec := range idx.records {
		records = append(records, rec)
	}
	idx.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].Path < records[j].Path
	})
	return records
}

// Len returns the number of tracked files
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.records)
}

// Reset drops all records and the computed root
func (idx *Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.records = make(map[string]types.FileRecord)
	idx.merkle = nil
}

// Recompute rebuilds the Merkle tree from the current records and returns the new root.
// The root is nil when the index is empty.
func (idx *Index) Recompute() *types.Digest {
	records := idx.Records()
	tree := BuildRootFromRecords(records)

	idx.mu.Lock()
	idx.merkle = tree
	idx.mu.Unlock()

	if tree == nil {
		return nil
	}
	root := tree.Hash
	return &root
}

// MerkleRoot returns the root computed by the last Recompute, or nil.
// Mutations do not refresh it.
func (idx *Index) MerkleRoot() *types.Digest {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.merkle == nil {
		return nil
	}
	root := idx.merkle.Hash
	return &root
}
