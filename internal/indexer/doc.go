// Package indexer owns the complete index of one project and keeps it
// current.
//
// An Index ties together the content-addressed file records and their
// Merkle root (merkle), the symbol reference graph (graph), the embedding
// cache (embedder), hybrid ranking (searcher), snapshot persistence
// (storage) and the debounced file watcher (watcher). There is no package
// level state; create one Index per project root.
//
// # Basic Usage
//
//	idx, err := indexer.New(indexer.Config{Root: "/path/to/project"})
//	if err != nil {
//	    return err
//	}
//	defer idx.Close()
//
//	if err := idx.Initialize(ctx); err != nil {
//	    return err
//	}
//	root, stats, err := idx.IndexProject(ctx)
//	fmt.Printf("root %s, %d files indexed in %v\n", root, stats.FilesIndexed, stats.Duration)
//
//	results, err := idx.HybridSearch(ctx, "parse config", 5)
//
// # Lifecycle
//
// Every query returns types.ErrNotInitialized until Initialize completes.
// Initialize loads the persisted snapshot and rebuilds the reference graph
// from the stored file contents, so a restart does not re-read the tree.
//
// # Incremental Indexing
//
// IndexProject discovers files in sorted order, reads and hashes them in
// parallel and applies the results in discovery order. Files whose digest
// matches the stored record are not parsed again. Files that disappeared
// since the last run are dropped from every structure. The Merkle root is
// recomputed once per run and the snapshot is saved.
//
// IndexFile and RemoveFile update a single file without recomputing the
// root; Status reports RootStale until the next IndexProject or RefreshRoot.
//
// # Watching
//
// StartWatching registers the project with fsnotify and feeds a watcher
// pipeline that re-indexes changed files after the debounce window.
// Deleted files are removed immediately.
package indexer
