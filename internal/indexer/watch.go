package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dshills/codegraph-mcp/internal/watcher"
)

// watchSession is one running fsnotify source feeding a pipeline
type watchSession struct {
	source   *watcher.FSNotifySource
	pipeline *watcher.Pipeline
	cancel   context.CancelFunc
	done     chan struct{}
}

// watchHandler applies pipeline batches to the index
type watchHandler struct {
	index *Index
}

func (h watchHandler) Reindex(ctx context.Context, path string) error {
	return h.index.IndexFile(ctx, path)
}

func (h watchHandler) Remove(ctx context.Context, path string) error {
	return h.index.RemoveFile(ctx, path)
}

// StartWatching keeps the index current with filesystem changes until
// StopWatching is called or ctx is cancelled. Calling it while already
// watching is a no-op.
func (x *Index) StartWatching(ctx context.Context) error {
	if err := x.ready(); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.watch != nil {
		return nil
	}

	source, err := watcher.NewFSNotifySource(x.root, x.matcher, x.logger)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	opts := watcher.Options{
		Debounce: x.cfg.Debounce,
		Logger:   x.logger,
	}
	if x.metrics != nil {
		opts.Recorder = x.metrics
	}
	pipeline := watcher.NewPipeline(watchHandler{index: x}, opts)

	wctx, cancel := context.WithCancel(ctx)
	session := &watchSession{
		source:   source,
		pipeline: pipeline,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	pipeline.Start(wctx)
	go func() {
		defer close(session.done)
		if err := source.Run(wctx, pipeline.Notify); err != nil && !errors.Is(err, context.Canceled) {
			x.logger.Warn("watch source stopped", slog.Any("error", err))
		}
	}()

	x.watch = session
	x.logger.Info("watching project", slog.Duration("debounce", x.cfg.Debounce))
	return nil
}

// StopWatching stops the watch pipeline. Pending changes are dropped;
// changes already applied are kept.
func (x *Index) StopWatching() {
	x.mu.Lock()
	session := x.watch
	x.watch = nil
	x.mu.Unlock()
	if session == nil {
		return
	}

	session.cancel()
	if err := session.source.Close(); err != nil {
		x.logger.Debug("close watcher", slog.Any("error", err))
	}
	<-session.done
	session.pipeline.Stop()
	x.logger.Info("stopped watching project")
}

// Status describes the current state of an Index
type Status struct {
	Root             string    `json:"root"`
	Initialized      bool      `json:"initialized"`
	Files            int       `json:"files"`
	Symbols          int       `json:"symbols"`
	Edges            int       `json:"edges"`
	MerkleRoot       string    `json:"merkle_root,omitempty"`
	RootStale        bool      `json:"root_stale"`
	Indexing         bool      `json:"indexing"`
	Watching         bool      `json:"watching"`
	WatchState       string    `json:"watch_state,omitempty"`
	CachedVecs       int       `json:"cached_embeddings"`
	Provider         string    `json:"embedding_provider"`
	Snapshot         string    `json:"snapshot,omitempty"`
	LastIndexed      time.Time `json:"last_indexed,omitempty"`
	SemanticWeight   float64   `json:"semantic_weight"`
	StructuralWeight float64   `json:"structural_weight"`
}

// Status returns a point-in-time summary of the index
func (x *Index) Status() Status {
	gs := x.graph.Stats()
	w := x.searcher.Weights()
	st := Status{
		Root:             x.root,
		Initialized:      x.initialized.Load(),
		Files:            x.files.Len(),
		Symbols:          gs.Symbols,
		Edges:            gs.Edges,
		RootStale:        x.rootStale.Load(),
		Indexing:         x.lock.Held(),
		CachedVecs:       x.cache.Len(),
		Provider:         x.embedder.Provider(),
		SemanticWeight:   w.Semantic,
		StructuralWeight: w.Structural,
	}
	if root := x.files.MerkleRoot(); root != nil {
		st.MerkleRoot = root.String()
	}
	if x.store != nil {
		st.Snapshot = x.store.Location()
	}

	x.mu.Lock()
	if x.watch != nil {
		st.Watching = true
		st.WatchState = x.watch.pipeline.State().String()
	}
	st.LastIndexed = x.lastIndexed
	x.mu.Unlock()
	return st
}
