package watcher

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultDebounce is how long the pipeline waits after the last add/change
// before re-indexing
const DefaultDebounce = time.Second

// Op is a file system change kind
type Op int

const (
	OpAdd Op = iota
	OpChange
	OpUnlink
)

func (op Op) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpChange:
		return "change"
	case OpUnlink:
		return "unlink"
	default:
		return "unknown"
	}
}

// Event is one observed change
type Event struct {
	Path string
	Op   Op
}

// State is the pipeline lifecycle: Idle -> Pending -> Processing -> Idle
type State int32

const (
	StateIdle State = iota
	StatePending
	StateProcessing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateProcessing:
		return "processing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Handler applies changes to the index
type Handler interface {
	// Reindex re-reads and re-indexes path
	Reindex(ctx context.Context, path string) error
	// Remove drops path from the index
	Remove(ctx context.Context, path string) error
}

// Recorder observes processed batches
type Recorder interface {
	ObserveWatchBatch(files, failed int, d time.Duration)
}

// Options configures a Pipeline
type Options struct {
	Debounce   time.Duration
	BufferSize int
	Logger     *slog.Logger
	Recorder   Recorder
}

// Pipeline coalesces add/change events per path and re-indexes each path
// once the debounce window passes without new events. Unlinks bypass the
// debounce. All handler calls happen on one goroutine.
type Pipeline struct {
	handler  Handler
	debounce time.Duration
	logger   *slog.Logger
	recorder Recorder

	events   chan Event
	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	state    atomic.Int32
}

// NewPipeline creates a pipeline. Call Start to begin consuming events.
func NewPipeline(handler Handler, opts Options) *Pipeline {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{
		handler:  handler,
		debounce: opts.Debounce,
		logger:   opts.Logger,
		recorder: opts.Recorder,
		events:   make(chan Event, opts.BufferSize),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
}

// Start launches the consumer goroutine. Calling Start twice is a no-op.
func (p *Pipeline) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	go p.loop(ctx)
}

// Notify enqueues an event. It reports false once the pipeline is stopped.
func (p *Pipeline) Notify(ev Event) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.events <- ev:
		return true
	case <-p.done:
		return false
	}
}

// Stop halts consumption and waits for the consumer to exit. Pending paths
// are dropped; work already applied is kept.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		if p.started.Load() {
			<-p.exited
		}
		p.state.Store(int32(StateStopped))
	})
}

// State returns the current lifecycle state
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

func (p *Pipeline) loop(ctx context.Context) {
	defer close(p.exited)

	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerC <-chan time.Time

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}
	defer stopTimer()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case ev := <-p.events:
			switch ev.Op {
			case OpUnlink:
				delete(pending, ev.Path)
				p.remove(ctx, ev.Path)
				if len(pending) == 0 {
					stopTimer()
					p.state.Store(int32(StateIdle))
				}
			default:
				pending[ev.Path] = struct{}{}
				p.state.Store(int32(StatePending))
				if timer == nil {
					timer = time.NewTimer(p.debounce)
					timerC = timer.C
				} else {
					timer.Reset(p.debounce)
				}
			}
		case <-timerC:
			timer = nil
			timerC = nil
			p.flush(ctx, pending)
			pending = make(map[string]struct{})
			p.state.Store(int32(StateIdle))
		}
	}
}

func (p *Pipeline) remove(ctx context.Context, path string) {
	if err := p.handler.Remove(ctx, path); err != nil {
		p.logger.Warn("watch unlink failed",
			slog.String("path", path),
			slog.Any("error", err))
	}
}

// flush re-indexes each pending path once, in path order. Per-file errors
// are logged and do not stop the batch.
func (p *Pipeline) flush(ctx context.Context, pending map[string]struct{}) {
	if len(pending) == 0 {
		return
	}
	p.state.Store(int32(StateProcessing))

	paths := make([]string, 0, len(pending))
	for path := range pending {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	batchID := uuid.New().String()
	start := time.Now()
	logger := p.logger.With(slog.String("batch", batchID))
	logger.Debug("watch batch started", slog.Int("files", len(paths)))

	failed := 0
	processed := 0
	for _, path := range paths {
		select {
		case <-p.done:
			logger.Debug("watch batch interrupted", slog.Int("processed", processed))
			return
		default:
		}

		err := p.handler.Reindex(ctx, path)
		processed++
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		failed++
		logger.Warn("watch reindex failed",
			slog.String("path", path),
			slog.Any("error", err))
	}

	d := time.Since(start)
	if p.recorder != nil {
		p.recorder.ObserveWatchBatch(processed, failed, d)
	}
	logger.Info("watch batch complete",
		slog.Int("files", processed),
		slog.Int("failed", failed),
		slog.Duration("duration", d))
}
