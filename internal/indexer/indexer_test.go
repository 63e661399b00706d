package indexer

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codegraph-mcp/internal/parser"
	"github.com/dshills/codegraph-mcp/internal/searcher"
	"github.com/dshills/codegraph-mcp/internal/storage"
	"github.com/dshills/codegraph-mcp/internal/watcher"
	"github.com/dshills/codegraph-mcp/pkg/types"
)

// countingExtractor wraps the default chain and counts Extract calls
type countingExtractor struct {
	inner parser.Extractor
	calls atomic.Int32
}

func newCountingExtractor() *countingExtractor {
	return &countingExtractor{inner: parser.New()}
}

func (c *countingExtractor) Extract(ctx context.Context, path string, content []byte) ([]types.Symbol, error) {
	c.calls.Add(1)
	return c.inner.Extract(ctx, path, content)
}

func (c *countingExtractor) Supports(path string) bool { return true }
func (c *countingExtractor) Name() string              { return "counting" }

// cancellingExtractor cancels the run it is extracting for when cancel is set
type cancellingExtractor struct {
	inner  parser.Extractor
	cancel context.CancelFunc
}

func (c *cancellingExtractor) Extract(ctx context.Context, path string, content []byte) ([]types.Symbol, error) {
	if c.cancel != nil {
		c.cancel()
	}
	return c.inner.Extract(ctx, path, content)
}

func (c *cancellingExtractor) Supports(path string) bool { return true }
func (c *cancellingExtractor) Name() string              { return "cancelling" }

// createTestFile writes a file under dir, creating parent directories
func createTestFile(t testing.TB, dir, name, content string) string {
	t.Helper()

	filePath := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0o755))
	require.NoError(t, os.WriteFile(filePath, []byte(content), 0o644))
	return filePath
}

const (
	addSource   = "function add(a, b) {\n  return a + b\n}\n"
	totalSource = "const total = add(1, 2)\n"
)

func newTestIndex(t *testing.T, cfg Config, opts ...Option) *Index {
	t.Helper()

	if cfg.StorageBackend == "" {
		cfg.StorageBackend = BackendNone
	}
	idx, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	require.NoError(t, idx.Initialize(context.Background()))
	return idx
}

func TestQueriesBeforeInitialize(t *testing.T) {
	idx, err := New(Config{Root: t.TempDir(), StorageBackend: BackendNone})
	require.NoError(t, err)
	ctx := context.Background()

	_, _, err = idx.IndexProject(ctx)
	assert.ErrorIs(t, err, types.ErrNotInitialized)
	_, err = idx.MerkleRoot()
	assert.ErrorIs(t, err, types.ErrNotInitialized)
	_, err = idx.FindSymbolReferences("add")
	assert.ErrorIs(t, err, types.ErrNotInitialized)
	_, err = idx.GetReferencingFiles("a.js")
	assert.ErrorIs(t, err, types.ErrNotInitialized)
	_, err = idx.HybridSearch(ctx, "add", 5)
	assert.ErrorIs(t, err, types.ErrNotInitialized)
	_, _, err = idx.GetFileContent(ctx, "a.js")
	assert.ErrorIs(t, err, types.ErrNotInitialized)
	assert.ErrorIs(t, idx.IndexFile(ctx, "a.js"), types.ErrNotInitialized)
	assert.ErrorIs(t, idx.StartWatching(ctx), types.ErrNotInitialized)
	assert.False(t, idx.Status().Initialized)
}

func TestNewRejectsMissingRoot(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{Root: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)
}

func TestIndexProject(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, dir, "a.js", addSource)
	createTestFile(t, dir, "b.js", totalSource)
	createTestFile(t, dir, "lib/util.py", "def helper():\n    return 1\n")

	idx := newTestIndex(t, Config{Root: dir})
	root, stats, err := idx.IndexProject(context.Background())
	require.NoError(t, err)
	require.NotNil(t, root)

	assert.Equal(t, 3, stats.FilesIndexed)
	assert.Equal(t, 0, stats.FilesFailed)
	assert.Equal(t, 3, stats.SymbolsExtracted)

	refs, err := idx.FindSymbolReferences("add")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "a.js", refs[0].File)
	assert.Equal(t, 1, refs[0].Line)
	assert.Equal(t, types.KindFunction, refs[0].Kind)

	files, err := idx.GetReferencingFiles("a.js")
	require.NoError(t, err)
	assert.Equal(t, []string{"b.js"}, files)

	files, err = idx.GetReferencingFiles(filepath.Join(dir, "a.js"))
	require.NoError(t, err)
	assert.Equal(t, []string{"b.js"}, files, "absolute paths resolve to the same record")

	files, err = idx.GetReferencedFiles("b.js")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.js"}, files)

	got, err := idx.MerkleRoot()
	require.NoError(t, err)
	assert.Equal(t, *root, *got)
}

func TestIndexProjectIsIncremental(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, dir, "a.js", addSource)
	createTestFile(t, dir, "b.js", totalSource)

	ext := newCountingExtractor()
	idx := newTestIndex(t, Config{Root: dir}, WithExtractor(ext))
	ctx := context.Background()

	first, _, err := idx.IndexProject(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), ext.calls.Load())

	second, stats, err := idx.IndexProject(ctx)
	require.NoError(t, err)
	assert.Equal(t, *first, *second, "unchanged tree keeps the root")
	assert.Equal(t, 2, stats.FilesUnchanged)
	assert.Equal(t, 0, stats.FilesIndexed)
	assert.Equal(t, int32(2), ext.calls.Load(), "unchanged files are not re-parsed")

	createTestFile(t, dir, "b.js", totalSource+"const more = add(total, 1)\n")
	third, stats, err := idx.IndexProject(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, *first, *third)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesUnchanged)
	assert.Equal(t, int32(3), ext.calls.Load())
}

func TestIndexProjectRemovesVanishedFiles(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, dir, "a.js", addSource)
	bPath := createTestFile(t, dir, "b.js", totalSource)

	idx := newTestIndex(t, Config{Root: dir})
	ctx := context.Background()
	_, _, err := idx.IndexProject(ctx)
	require.NoError(t, err)

	require.NoError(t, os.Remove(bPath))
	_, stats, err := idx.IndexProject(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesRemoved)

	files, err := idx.GetReferencingFiles("a.js")
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.Equal(t, 1, idx.Status().Files)
}

func TestIndexProjectEmptyTree(t *testing.T) {
	idx := newTestIndex(t, Config{Root: t.TempDir()})

	root, stats, err := idx.IndexProject(context.Background())
	require.NoError(t, err)
	assert.Nil(t, root)
	assert.Equal(t, 0, stats.FilesIndexed)

	results, err := idx.HybridSearch(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDiscoverySkipsIgnoredBinaryAndLargeFiles(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, dir, "a.js", addSource)
	createTestFile(t, dir, "logo.png", "\x89PNG")
	createTestFile(t, dir, "big.js", string(make([]byte, 2048)))
	createTestFile(t, dir, "node_modules/dep/index.js", "function dep() {}\n")
	createTestFile(t, dir, ".hidden/x.js", "function hidden() {}\n")
	createTestFile(t, dir, "gen/out.js", "function generated() {}\n")

	idx := newTestIndex(t, Config{Root: dir, MaxFileSize: 1024, Ignore: []string{"gen/*"}})
	_, stats, err := idx.IndexProject(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 2, stats.FilesSkipped)
	assert.Equal(t, 1, idx.Status().Files)
}

func TestIndexProjectInProgress(t *testing.T) {
	idx := newTestIndex(t, Config{Root: t.TempDir()})

	require.True(t, idx.lock.TryAcquire())
	_, _, err := idx.IndexProject(context.Background())
	assert.ErrorIs(t, err, ErrIndexingInProgress)
	assert.True(t, idx.Status().Indexing)

	idx.lock.Release()
	_, _, err = idx.IndexProject(context.Background())
	assert.NoError(t, err)
}

func TestIndexFile(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, dir, "a.js", addSource)

	idx := newTestIndex(t, Config{Root: dir})
	ctx := context.Background()
	root, _, err := idx.IndexProject(ctx)
	require.NoError(t, err)

	createTestFile(t, dir, "b.js", totalSource)
	require.NoError(t, idx.IndexFile(ctx, "b.js"))

	files, err := idx.GetReferencingFiles("a.js")
	require.NoError(t, err)
	assert.Equal(t, []string{"b.js"}, files)

	st := idx.Status()
	assert.True(t, st.RootStale)
	got, err := idx.MerkleRoot()
	require.NoError(t, err)
	assert.Equal(t, *root, *got, "single-file updates do not refresh the root")

	refreshed, err := idx.RefreshRoot()
	require.NoError(t, err)
	assert.NotEqual(t, *root, *refreshed)
	assert.False(t, idx.Status().RootStale)

	t.Run("outside root", func(t *testing.T) {
		err := idx.IndexFile(ctx, filepath.Join(filepath.Dir(dir), "elsewhere.js"))
		assert.ErrorIs(t, err, types.ErrInvalidPath)
		assert.ErrorIs(t, idx.IndexFile(ctx, "../x.js"), types.ErrInvalidPath)
	})

	t.Run("missing file is removed", func(t *testing.T) {
		require.NoError(t, os.Remove(filepath.Join(dir, "b.js")))
		require.NoError(t, idx.IndexFile(ctx, "b.js"))
		files, err := idx.GetReferencingFiles("a.js")
		require.NoError(t, err)
		assert.Empty(t, files)
	})

	t.Run("untracked removal is a no-op", func(t *testing.T) {
		assert.NoError(t, idx.RemoveFile(ctx, "never.js"))
		assert.Equal(t, 1, idx.Status().Files)
	})
}

func TestRemoveFileDropsDirectory(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, dir, "lib/a.js", addSource)
	createTestFile(t, dir, "lib/nested/b.js", totalSource)
	createTestFile(t, dir, "library.js", "const library = 1\n")

	idx := newTestIndex(t, Config{Root: dir})
	ctx := context.Background()
	_, _, err := idx.IndexProject(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, idx.Status().Files)

	require.NoError(t, idx.RemoveFile(ctx, filepath.Join(dir, "lib")))
	assert.Equal(t, []string{"library.js"}, idx.files.Paths())
	assert.True(t, idx.Status().RootStale)

	refs, err := idx.FindSymbolReferences("add")
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestCancelledExtractionKeepsPreviousRecord(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, dir, "a.go", "package a\n\nfunc Add() {}\n")

	ext := &cancellingExtractor{inner: parser.New()}
	idx := newTestIndex(t, Config{Root: dir}, WithExtractor(ext))
	ctx := context.Background()
	_, _, err := idx.IndexProject(ctx)
	require.NoError(t, err)

	createTestFile(t, dir, "a.go", "package a\n\nfunc Sub() {}\n")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.ErrorIs(t, idx.IndexFile(cancelled, "a.go"), context.Canceled)

	runCtx, cancelRun := context.WithCancel(ctx)
	ext.cancel = cancelRun
	_, _, err = idx.IndexProject(runCtx)
	require.ErrorIs(t, err, context.Canceled)
	ext.cancel = nil

	refs, err := idx.FindSymbolReferences("Add")
	require.NoError(t, err)
	assert.Len(t, refs, 1, "the previous record stays in place")

	_, stats, err := idx.IndexProject(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 0, stats.FilesUnchanged)

	refs, err = idx.FindSymbolReferences("Sub")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "a.go", refs[0].File)
	refs, err = idx.FindSymbolReferences("Add")
	require.NoError(t, err)
	assert.Empty(t, refs)

	require.NoError(t, idx.IndexFile(ctx, "a.go"), "an unchanged file stays a no-op")
}

func TestGetFileContent(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, dir, "a.js", addSource)

	idx := newTestIndex(t, Config{Root: dir})
	ctx := context.Background()
	_, _, err := idx.IndexProject(ctx)
	require.NoError(t, err)

	content, found, err := idx.GetFileContent(ctx, "a.js")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, addSource, content)

	createTestFile(t, dir, "late.js", totalSource)
	content, found, err = idx.GetFileContent(ctx, "late.js")
	require.NoError(t, err)
	assert.True(t, found, "files not yet indexed are read from disk")
	assert.Equal(t, totalSource, content)
	assert.Equal(t, 2, idx.Status().Files)

	_, found, err = idx.GetFileContent(ctx, "missing.js")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestHybridSearch(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, dir, "a.js", addSource)
	createTestFile(t, dir, "b.js", totalSource)

	idx := newTestIndex(t, Config{Root: dir, DefaultTopK: 1})
	ctx := context.Background()
	_, _, err := idx.IndexProject(ctx)
	require.NoError(t, err)

	results, err := idx.HybridSearch(ctx, "add numbers", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a.js", results[0].File)
	assert.Equal(t, 1.0, results[0].StructuralScore)
	assert.Equal(t, addSource, results[0].Content)

	results, err = idx.HybridSearch(ctx, "add numbers", 0)
	require.NoError(t, err)
	assert.Len(t, results, 1, "topK <= 0 uses the configured default")

	_, err = idx.HybridSearch(ctx, "  ", 5)
	assert.Error(t, err)
}

func TestInitializeDropsCachedSearches(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, dir, "a.js", addSource)

	idx := newTestIndex(t, Config{Root: dir})
	ctx := context.Background()
	_, _, err := idx.IndexProject(ctx)
	require.NoError(t, err)

	req := searcher.SearchRequest{Query: "add numbers", UseCache: true}
	_, err = idx.Search(ctx, req)
	require.NoError(t, err)
	cached, err := idx.Search(ctx, req)
	require.NoError(t, err)
	require.True(t, cached.CacheHit)

	require.NoError(t, idx.Initialize(ctx))
	resp, err := idx.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
	assert.Empty(t, resp.Results, "backend none starts empty after a reset")
}

func TestSnapshotRoundTrip(t *testing.T) {
	for _, backend := range []string{storage.BackendJSON, storage.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()
			createTestFile(t, dir, "a.js", addSource)
			createTestFile(t, dir, "b.js", totalSource)
			ctx := context.Background()

			first := newTestIndex(t, Config{Root: dir, StorageBackend: backend})
			root, _, err := first.IndexProject(ctx)
			require.NoError(t, err)
			require.NoError(t, first.Close())

			ext := newCountingExtractor()
			second := newTestIndex(t, Config{Root: dir, StorageBackend: backend}, WithExtractor(ext))

			got, err := second.MerkleRoot()
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, *root, *got)

			files, err := second.GetReferencingFiles("a.js")
			require.NoError(t, err)
			assert.Equal(t, []string{"b.js"}, files, "graph is rebuilt from snapshot content")

			_, stats, err := second.IndexProject(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, stats.FilesUnchanged)
			assert.Equal(t, int32(2), ext.calls.Load(), "only the snapshot restore parsed files")
		})
	}
}

func TestSnapshotForAnotherRootIsIgnored(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewJSONStore(filepath.Join(t.TempDir(), "index.json"))
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, &storage.Snapshot{
		Version: storage.SnapshotVersion,
		Root:    "/some/other/project",
		Files:   []storage.FileEntry{{Path: "x.js", Content: addSource}},
	}))

	idx := newTestIndex(t, Config{Root: dir}, WithStore(store))
	assert.Equal(t, 0, idx.Status().Files)
}

func TestCleanup(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, dir, "a.js", addSource)
	createTestFile(t, dir, "b.js", totalSource)

	idx := newTestIndex(t, Config{Root: dir})
	ctx := context.Background()
	_, _, err := idx.IndexProject(ctx)
	require.NoError(t, err)
	_, err = idx.HybridSearch(ctx, "add", 5)
	require.NoError(t, err)
	require.Positive(t, idx.Status().CachedVecs)

	require.NoError(t, idx.Cleanup(ctx))

	st := idx.Status()
	assert.True(t, st.Initialized)
	assert.Zero(t, st.Files)
	assert.Zero(t, st.Symbols)
	assert.Zero(t, st.CachedVecs)

	refs, err := idx.FindSymbolReferences("add")
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestWatchPipelineAppliesEvents(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, dir, "a.js", addSource)

	idx := newTestIndex(t, Config{Root: dir, Debounce: 20 * time.Millisecond})
	ctx := context.Background()
	_, _, err := idx.IndexProject(ctx)
	require.NoError(t, err)

	require.NoError(t, idx.StartWatching(ctx))
	require.NoError(t, idx.StartWatching(ctx), "second start is a no-op")
	assert.True(t, idx.Status().Watching)

	createTestFile(t, dir, "b.js", totalSource)
	require.True(t, idx.notify(watcher.Event{Path: "b.js", Op: watcher.OpAdd}))
	require.Eventually(t, func() bool {
		files, _ := idx.GetReferencingFiles("a.js")
		return len(files) == 1 && files[0] == "b.js"
	}, 2*time.Second, 10*time.Millisecond)

	require.True(t, idx.notify(watcher.Event{Path: "b.js", Op: watcher.OpUnlink}))
	require.Eventually(t, func() bool {
		files, _ := idx.GetReferencingFiles("a.js")
		return len(files) == 0
	}, 2*time.Second, 10*time.Millisecond)

	idx.StopWatching()
	assert.False(t, idx.Status().Watching)
	assert.False(t, idx.notify(watcher.Event{Path: "b.js", Op: watcher.OpAdd}))
}

func TestWatchPicksUpFilesystemChanges(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, dir, "a.js", addSource)

	idx := newTestIndex(t, Config{Root: dir, Debounce: 20 * time.Millisecond})
	ctx := context.Background()
	_, _, err := idx.IndexProject(ctx)
	require.NoError(t, err)
	require.NoError(t, idx.StartWatching(ctx))
	defer idx.StopWatching()

	createTestFile(t, dir, "c.js", "const c = add(2, 3)\n")
	require.Eventually(t, func() bool {
		_, ok := idx.files.Get("c.js")
		return ok
	}, 5*time.Second, 20*time.Millisecond)

	files, err := idx.GetReferencingFiles("a.js")
	require.NoError(t, err)
	assert.Equal(t, []string{"c.js"}, files)
}

func TestWatchDropsMovedDirectory(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, dir, "lib/a.js", addSource)
	createTestFile(t, dir, "b.js", totalSource)

	idx := newTestIndex(t, Config{Root: dir, Debounce: 20 * time.Millisecond})
	ctx := context.Background()
	_, _, err := idx.IndexProject(ctx)
	require.NoError(t, err)
	require.NoError(t, idx.StartWatching(ctx))
	defer idx.StopWatching()

	require.NoError(t, os.Rename(filepath.Join(dir, "lib"), filepath.Join(t.TempDir(), "lib")))
	require.Eventually(t, func() bool {
		refs, _ := idx.FindSymbolReferences("add")
		return len(refs) == 0
	}, 5*time.Second, 20*time.Millisecond)

	_, found, err := idx.GetFileContent(ctx, "lib/a.js")
	require.NoError(t, err)
	assert.False(t, found)
	files, err := idx.GetReferencedFiles("b.js")
	require.NoError(t, err)
	assert.Empty(t, files)
}
