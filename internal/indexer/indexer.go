package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/codegraph-mcp/internal/embedder"
	"github.com/dshills/codegraph-mcp/internal/graph"
	"github.com/dshills/codegraph-mcp/internal/merkle"
	"github.com/dshills/codegraph-mcp/internal/metrics"
	"github.com/dshills/codegraph-mcp/internal/parser"
	"github.com/dshills/codegraph-mcp/internal/searcher"
	"github.com/dshills/codegraph-mcp/internal/storage"
	"github.com/dshills/codegraph-mcp/internal/watcher"
	"github.com/dshills/codegraph-mcp/pkg/types"
)

// DefaultMaxFileSize is the largest file read during discovery
const DefaultMaxFileSize = 1 << 20

// BackendNone disables snapshot persistence
const BackendNone = "none"

// ErrIndexingInProgress is returned when IndexProject is already running
var ErrIndexingInProgress = errors.New("indexing already in progress")

// Config contains configuration for an Index
type Config struct {
	Root        string        // Project root directory
	Workers     int           // Concurrent readers (default: runtime.NumCPU())
	MaxFileSize int64         // Files above this size are skipped (default: 1MB)
	Ignore      []string      // Extra glob patterns to ignore
	Debounce    time.Duration // Watch debounce window (default: 1s)

	Weights     searcher.Weights // Zero value uses searcher.DefaultWeights
	DefaultTopK int              // Used when HybridSearch gets topK <= 0

	StorageBackend string // json, sqlite or none

	CacheSize int           // Embedding cache entries
	CacheTTL  time.Duration // Embedding cache entry lifetime
}

// Statistics contains statistics about an IndexProject run
type Statistics struct {
	FilesIndexed     int
	FilesUnchanged   int
	FilesSkipped     int
	FilesFailed      int
	FilesRemoved     int
	SymbolsExtracted int
	Duration         time.Duration
	ErrorMessages    []string
}

// Index owns every index structure of one project: file records and Merkle
// root, reference graph, embedding cache, searcher and watch pipeline.
type Index struct {
	cfg    Config
	root   string
	logger *slog.Logger

	extractor parser.Extractor
	embedder  embedder.Embedder
	store     storage.SnapshotStore
	metrics   *metrics.Metrics

	files    *merkle.Index
	graph    *graph.Graph
	cache    *embedder.Cache
	searcher *searcher.Searcher
	matcher  *watcher.Matcher

	lock        IndexLock
	initialized atomic.Bool
	// rootStale is set when records changed after the last Recompute
	rootStale atomic.Bool

	mu          sync.Mutex
	watch       *watchSession
	lastIndexed time.Time
}

// Option configures an Index
type Option func(*Index)

// WithExtractor replaces the default parser chain
func WithExtractor(e parser.Extractor) Option {
	return func(x *Index) {
		x.extractor = e
	}
}

// WithEmbedder sets the embedding backend (default: local provider)
func WithEmbedder(e embedder.Embedder) Option {
	return func(x *Index) {
		x.embedder = e
	}
}

// WithLogger sets the logger for the index and its components
func WithLogger(logger *slog.Logger) Option {
	return func(x *Index) {
		x.logger = logger
	}
}

// WithStore overrides the snapshot store selected by Config.StorageBackend
func WithStore(s storage.SnapshotStore) Option {
	return func(x *Index) {
		x.store = s
	}
}

// WithMetrics enables Prometheus collectors
func WithMetrics(m *metrics.Metrics) Option {
	return func(x *Index) {
		x.metrics = m
	}
}

// New creates an Index for cfg.Root. Call Initialize before querying it.
func New(cfg Config, opts ...Option) (*Index, error) {
	if cfg.Root == "" {
		return nil, errors.New("project root is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", root)
	}
	cfg.Root = root

	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.Weights == (searcher.Weights{}) {
		cfg.Weights = searcher.DefaultWeights()
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = searcher.DefaultLimit
	}

	x := &Index{
		cfg:    cfg,
		root:   root,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(x)
	}
	x.logger = x.logger.With(slog.String("root", root))

	if x.extractor == nil {
		x.extractor = parser.New(parser.WithLogger(x.logger))
	}
	if x.embedder == nil {
		local, err := embedder.NewLocalProvider()
		if err != nil {
			return nil, err
		}
		x.embedder = local
	}
	if x.store == nil && !strings.EqualFold(cfg.StorageBackend, BackendNone) {
		store, err := storage.Open(root, cfg.StorageBackend)
		if err != nil {
			return nil, fmt.Errorf("open snapshot store: %w", err)
		}
		x.store = store
	}

	x.files = merkle.NewIndex(root)
	x.graph = graph.New(graph.WithLogger(x.logger))
	x.matcher = watcher.NewMatcher(root, cfg.Ignore)

	cacheOpts := []embedder.CacheOption{embedder.WithCacheLogger(x.logger)}
	searchOpts := []searcher.Option{
		searcher.WithWeights(cfg.Weights),
		searcher.WithWorkers(cfg.Workers),
		searcher.WithLogger(x.logger),
	}
	if x.metrics != nil {
		cacheOpts = append(cacheOpts, embedder.WithRecorder(x.metrics))
		searchOpts = append(searchOpts, searcher.WithRecorder(x.metrics))
	}
	x.cache = embedder.NewCache(x.embedder, cfg.CacheSize, cfg.CacheTTL, cacheOpts...)
	x.searcher = searcher.NewSearcher(x.graph, x.cache, searchOpts...)

	return x, nil
}

// Root returns the absolute project root
func (x *Index) Root() string {
	return x.root
}

// Initialize loads the persisted snapshot, if any, and rebuilds the graph
// from its contents. Snapshots saved for another root are ignored. A
// missing snapshot is not an error; an unreadable one is.
func (x *Index) Initialize(ctx context.Context) error {
	x.files.Reset()
	x.graph.Clear()
	x.searcher.InvalidateCache()

	if x.store != nil {
		snap, err := x.store.Load(ctx)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			x.logger.Debug("no snapshot found", slog.String("location", x.store.Location()))
		case err != nil:
			return fmt.Errorf("load snapshot: %w", err)
		case snap.Root != "" && snap.Root != x.root:
			x.logger.Warn("ignoring snapshot for another root", slog.String("snapshot_root", snap.Root))
		default:
			if err := x.restore(ctx, snap); err != nil {
				return err
			}
		}
	}

	x.files.Recompute()
	x.rootStale.Store(false)
	x.metrics.SetTrackedFiles(x.files.Len())
	x.initialized.Store(true)
	return nil
}

func (x *Index) ready() error {
	if !x.initialized.Load() {
		return types.ErrNotInitialized
	}
	return nil
}

// scanResult is the outcome of reading one discovered file
type scanResult struct {
	rec       types.FileRecord
	symbols   []types.Symbol
	unchanged bool
	err       error
}

// IndexProject walks the project, re-indexes files whose content changed,
// removes files that disappeared and recomputes the Merkle root. Only one
// run may be active at a time.
func (x *Index) IndexProject(ctx context.Context) (*types.Digest, *Statistics, error) {
	if err := x.ready(); err != nil {
		return nil, nil, err
	}
	if !x.lock.TryAcquire() {
		return nil, nil, ErrIndexingInProgress
	}
	defer x.lock.Release()

	start := time.Now()
	stats := &Statistics{ErrorMessages: make([]string, 0)}

	paths, err := x.discoverFiles(ctx, stats)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to discover files: %w", err)
	}

	results := make([]scanResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.cfg.Workers)
	for i, path := range paths {
		g.Go(func() error {
			results[i] = x.scanFile(gctx, path)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("failed to index files: %w", err)
	}

	seen := make(map[string]struct{}, len(paths))
	for i, res := range results {
		switch {
		case res.err != nil:
			stats.FilesFailed++
			stats.ErrorMessages = append(stats.ErrorMessages, res.err.Error())
			if !errors.Is(res.err, fs.ErrNotExist) {
				seen[paths[i]] = struct{}{}
			}
		case res.unchanged:
			stats.FilesUnchanged++
			seen[res.rec.Path] = struct{}{}
		default:
			x.files.Put(res.rec)
			x.graph.UpdateFile(res.rec.Path, res.rec.Content, res.symbols)
			stats.FilesIndexed++
			stats.SymbolsExtracted += len(res.symbols)
			seen[res.rec.Path] = struct{}{}
		}
	}

	for _, path := range x.files.Paths() {
		if _, ok := seen[path]; ok {
			continue
		}
		x.files.Remove(path)
		x.graph.RemoveFile(path)
		stats.FilesRemoved++
	}

	root := x.files.Recompute()
	x.rootStale.Store(false)
	x.searcher.InvalidateCache()

	stats.Duration = time.Since(start)
	x.mu.Lock()
	x.lastIndexed = time.Now()
	x.mu.Unlock()

	x.metrics.ObserveIndexRun(stats.FilesIndexed, stats.FilesUnchanged, stats.FilesSkipped,
		stats.FilesFailed, stats.FilesRemoved, x.files.Len(), stats.Duration)
	x.logger.Info("project indexed",
		slog.Int("indexed", stats.FilesIndexed),
		slog.Int("unchanged", stats.FilesUnchanged),
		slog.Int("skipped", stats.FilesSkipped),
		slog.Int("failed", stats.FilesFailed),
		slog.Int("removed", stats.FilesRemoved),
		slog.Duration("duration", stats.Duration))

	if err := x.Save(ctx); err != nil {
		x.logger.Warn("failed to save snapshot", slog.Any("error", err))
	}

	return root, stats, nil
}

// discoverFiles returns the indexable files under the root as sorted
// root-relative paths. Unreadable directories are counted as failures.
func (x *Index) discoverFiles(ctx context.Context, stats *Statistics) ([]string, error) {
	var paths []string

	err := filepath.WalkDir(x.root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == x.root {
				return err
			}
			stats.FilesFailed++
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", path, err))
			x.logger.Warn("walk failed", slog.String("path", path), slog.Any("error", err))
			return nil
		}

		if d.IsDir() {
			if path != x.root && x.matcher.Ignored(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || x.matcher.Ignored(path) {
			return nil
		}
		if x.matcher.Binary(path) {
			stats.FilesSkipped++
			return nil
		}
		info, err := d.Info()
		if err != nil {
			stats.FilesFailed++
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", path, err))
			return nil
		}
		if info.Size() > x.cfg.MaxFileSize {
			stats.FilesSkipped++
			return nil
		}

		rel, err := x.files.RelPath(path)
		if err != nil {
			return err
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(paths)
	return paths, nil
}

// scanFile reads and hashes one file and extracts its symbols when the
// content differs from the stored record
func (x *Index) scanFile(ctx context.Context, path string) scanResult {
	rec, err := x.files.ReadFile(path)
	if err != nil {
		return scanResult{err: err}
	}
	if existing, ok := x.files.Get(rec.Path); ok && existing.ContentHash == rec.ContentHash {
		return scanResult{rec: rec, unchanged: true}
	}
	symbols, err := x.extract(ctx, rec)
	if err != nil {
		return scanResult{err: err}
	}
	return scanResult{rec: rec, symbols: symbols}
}

// extract returns the symbols of rec. Extraction failures yield no symbols;
// only cancellation is returned, and the record must then not be stored.
func (x *Index) extract(ctx context.Context, rec types.FileRecord) ([]types.Symbol, error) {
	symbols, err := x.extractor.Extract(ctx, rec.Path, []byte(rec.Content))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		x.logger.Debug("symbol extraction failed",
			slog.String("path", rec.Path),
			slog.Any("error", err))
		return []types.Symbol{}, nil
	}
	return symbols, nil
}

// relWithinRoot converts path to a record key, rejecting paths that
// escape the project root
func (x *Index) relWithinRoot(path string) (string, error) {
	rel, err := x.files.RelPath(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", types.ErrInvalidPath, path)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%w: %s is outside %s", types.ErrInvalidPath, path, x.root)
	}
	return rel, nil
}

// IndexFile re-indexes a single file. Unchanged content is a no-op, a file
// that no longer exists is removed, ignored and oversized files are left out.
// The Merkle root is not recomputed.
func (x *Index) IndexFile(ctx context.Context, path string) error {
	if err := x.ready(); err != nil {
		return err
	}
	rel, err := x.relWithinRoot(path)
	if err != nil {
		return err
	}
	if x.matcher.Ignored(rel) || x.matcher.Binary(rel) {
		return nil
	}

	rec, err := x.files.ReadFile(rel)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return x.RemoveFile(ctx, rel)
		}
		return err
	}
	if int64(len(rec.Content)) > x.cfg.MaxFileSize {
		x.logger.Debug("file exceeds size limit", slog.String("path", rel))
		return x.RemoveFile(ctx, rel)
	}
	if existing, ok := x.files.Get(rel); ok && existing.ContentHash == rec.ContentHash {
		return nil
	}

	symbols, err := x.extract(ctx, rec)
	if err != nil {
		return err
	}
	x.files.Put(rec)
	x.graph.UpdateFile(rec.Path, rec.Content, symbols)
	x.markChanged()
	return nil
}

// RemoveFile drops a file from every index. A path that is not a tracked
// file is treated as a directory and every file below it is dropped.
// Untracked paths are a no-op.
func (x *Index) RemoveFile(_ context.Context, path string) error {
	if err := x.ready(); err != nil {
		return err
	}
	rel, err := x.relWithinRoot(path)
	if err != nil {
		return err
	}

	removed := x.removeRecord(rel)
	if !removed {
		prefix := rel + "/"
		for _, tracked := range x.files.Paths() {
			if strings.HasPrefix(tracked, prefix) && x.removeRecord(tracked) {
				removed = true
			}
		}
	}
	if removed {
		x.markChanged()
	}
	return nil
}

func (x *Index) removeRecord(rel string) bool {
	removed := x.files.Remove(rel)
	return x.graph.RemoveFile(rel) || removed
}

func (x *Index) markChanged() {
	x.rootStale.Store(true)
	x.searcher.InvalidateCache()
	x.metrics.SetTrackedFiles(x.files.Len())
}

// MerkleRoot returns the root computed by the last IndexProject or
// Initialize. It is nil for an empty project.
func (x *Index) MerkleRoot() (*types.Digest, error) {
	if err := x.ready(); err != nil {
		return nil, err
	}
	return x.files.MerkleRoot(), nil
}

// RefreshRoot recomputes the Merkle root from the current records
func (x *Index) RefreshRoot() (*types.Digest, error) {
	if err := x.ready(); err != nil {
		return nil, err
	}
	root := x.files.Recompute()
	x.rootStale.Store(false)
	return root, nil
}

// FindSymbolReferences returns every declaration of name
func (x *Index) FindSymbolReferences(name string) ([]types.SymbolReference, error) {
	if err := x.ready(); err != nil {
		return nil, err
	}
	return x.graph.FindSymbolReferences(name), nil
}

// GetReferencingFiles returns the files whose content mentions a symbol
// declared in path
func (x *Index) GetReferencingFiles(path string) ([]string, error) {
	if err := x.ready(); err != nil {
		return nil, err
	}
	rel, err := x.files.RelPath(path)
	if err != nil {
		return []string{}, nil
	}
	return x.graph.ReferencingFiles(rel), nil
}

// GetReferencedFiles returns the files declaring symbols that path mentions
func (x *Index) GetReferencedFiles(path string) ([]string, error) {
	if err := x.ready(); err != nil {
		return nil, err
	}
	rel, err := x.files.RelPath(path)
	if err != nil {
		return []string{}, nil
	}
	return x.graph.ReferencedFiles(rel), nil
}

// SymbolsOf returns the symbols declared in path
func (x *Index) SymbolsOf(path string) ([]types.Symbol, error) {
	if err := x.ready(); err != nil {
		return nil, err
	}
	rel, err := x.files.RelPath(path)
	if err != nil {
		return []types.Symbol{}, nil
	}
	return x.graph.SymbolsOf(rel), nil
}

// HybridSearch ranks indexed files against query and returns at most topK
// results. topK <= 0 uses the configured default; values above
// searcher.MaxLimit are capped at it.
func (x *Index) HybridSearch(ctx context.Context, query string, topK int) ([]types.SearchResult, error) {
	resp, err := x.Search(ctx, searcher.SearchRequest{
		Query:    query,
		Limit:    topK,
		Mode:     searcher.SearchModeHybrid,
		UseCache: true,
	})
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Search runs a search request against the index
func (x *Index) Search(ctx context.Context, req searcher.SearchRequest) (*searcher.SearchResponse, error) {
	if err := x.ready(); err != nil {
		return nil, err
	}
	if req.Limit <= 0 {
		req.Limit = x.cfg.DefaultTopK
	}
	return x.searcher.Search(ctx, req)
}

// GetFileContent returns the indexed content of path. A file under the
// root that is not indexed yet is read from disk and indexed. found is
// false when the file does not exist or is excluded.
func (x *Index) GetFileContent(ctx context.Context, path string) (content string, found bool, err error) {
	if err := x.ready(); err != nil {
		return "", false, err
	}
	rel, err := x.relWithinRoot(path)
	if err != nil {
		return "", false, err
	}
	if rec, ok := x.files.Get(rel); ok {
		return rec.Content, true, nil
	}

	if err := x.IndexFile(ctx, rel); err != nil {
		var readErr *types.ReadError
		if errors.As(err, &readErr) {
			return "", false, nil
		}
		return "", false, err
	}
	if rec, ok := x.files.Get(rel); ok {
		return rec.Content, true, nil
	}
	return "", false, nil
}

// Cleanup stops watching and clears the file records, graph and embedding
// cache. The index stays initialized; the persisted snapshot is kept.
func (x *Index) Cleanup(_ context.Context) error {
	x.StopWatching()
	x.files.Reset()
	x.graph.Clear()
	x.cache.Clear()
	x.searcher.InvalidateCache()
	x.rootStale.Store(false)
	x.metrics.SetTrackedFiles(0)
	x.logger.Info("index cleaned up")
	return nil
}

// Close stops watching and releases the snapshot store and embedder
func (x *Index) Close() error {
	x.StopWatching()
	var errs []error
	if x.store != nil {
		errs = append(errs, x.store.Close())
	}
	if x.embedder != nil {
		errs = append(errs, x.embedder.Close())
	}
	return errors.Join(errs...)
}
