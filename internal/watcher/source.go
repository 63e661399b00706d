package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Sink receives events from a source. It reports false when no more events
// are wanted.
type Sink func(Event) bool

// FSNotifySource emits events for files under a root using fsnotify.
// Directories are registered recursively, including ones created later.
type FSNotifySource struct {
	root    string
	matcher *Matcher
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	closeOnce sync.Once
}

// NewFSNotifySource creates a source for root
func NewFSNotifySource(root string, matcher *Matcher, logger *slog.Logger) (*FSNotifySource, error) {
	if matcher == nil {
		matcher = NewMatcher(root, nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	s := &FSNotifySource{
		root:    root,
		matcher: matcher,
		watcher: w,
		logger:  logger,
	}
	if err := s.addRecursive(root, nil); err != nil {
		_ = w.Close()
		return nil, err
	}
	return s, nil
}

// Run forwards file events to sink until ctx is cancelled, the source is
// closed or sink declines an event
func (s *FSNotifySource) Run(ctx context.Context, sink Sink) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			if !s.handle(event, sink) {
				return nil
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("file watcher error", slog.Any("error", err))
		}
	}
}

// Close releases the underlying watcher
func (s *FSNotifySource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.watcher.Close()
	})
	return err
}

func (s *FSNotifySource) handle(event fsnotify.Event, sink Sink) bool {
	if s.matcher.Ignored(event.Name) {
		return true
	}

	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Stat(event.Name)
		if err != nil {
			return true
		}
		if info.IsDir() {
			// files written before the directory was registered are
			// reported as adds
			cont := true
			_ = s.addRecursive(event.Name, func(path string) {
				if cont {
					cont = sink(Event{Path: path, Op: OpAdd})
				}
			})
			return cont
		}
		return sink(Event{Path: event.Name, Op: OpAdd})
	case event.Has(fsnotify.Write):
		return sink(Event{Path: event.Name, Op: OpChange})
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return sink(Event{Path: event.Name, Op: OpUnlink})
	default:
		return true
	}
}

// addRecursive registers dir and its subdirectories. onFile, when set, is
// called for every non-ignored file found.
func (s *FSNotifySource) addRecursive(dir string, onFile func(string)) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path != s.root && s.matcher.Ignored(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			if onFile != nil && d.Type().IsRegular() {
				onFile(path)
			}
			return nil
		}
		if err := s.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
