// Package metrics exposes Prometheus collectors for indexing, watching,
// searching and embedding. Each Metrics owns its registry so several
// indexes can live in one process.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "codegraph"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	filesProcessed   *prometheus.CounterVec
	indexDuration    prometheus.Histogram
	trackedFiles     prometheus.Gauge
	watchBatches     prometheus.Counter
	watchFiles       *prometheus.CounterVec
	watchDuration    prometheus.Histogram
	searchLatency    *prometheus.HistogramVec
	embeddingLookups *prometheus.CounterVec
}

// New creates collectors on a fresh registry, including Go runtime and
// process collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// filesProcessed counts files seen by a full index pass.
		// Labels: result (indexed, unchanged, skipped, failed, removed)
		filesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "files_total",
			Help:      "Files processed by full index passes",
		}, []string{"result"}),

		indexDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "duration_seconds",
			Help:      "Full index pass duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),

		trackedFiles: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "tracked_files",
			Help:      "Files currently in the index",
		}),

		watchBatches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "batches_total",
			Help:      "Debounced watch batches processed",
		}),

		// watchFiles counts files re-indexed by watch batches.
		// Labels: result (ok, failed)
		watchFiles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "files_total",
			Help:      "Files re-indexed by watch batches",
		}, []string{"result"}),

		watchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "batch_duration_seconds",
			Help:      "Watch batch duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),

		// searchLatency measures hybrid search latency.
		// Labels: mode (hybrid, semantic, structural)
		searchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "latency_seconds",
			Help:      "Search latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"mode"}),

		// embeddingLookups counts embedding cache lookups.
		// Labels: result (hit, miss)
		embeddingLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "cache_lookups_total",
			Help:      "Embedding cache lookups",
		}, []string{"result"}),
	}
}

// Registry returns the registry holding every collector
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveIndexRun records one full index pass
func (m *Metrics) ObserveIndexRun(indexed, unchanged, skipped, failed, removed, tracked int, d time.Duration) {
	if m == nil {
		return
	}
	m.filesProcessed.WithLabelValues("indexed").Add(float64(indexed))
	m.filesProcessed.WithLabelValues("unchanged").Add(float64(unchanged))
	m.filesProcessed.WithLabelValues("skipped").Add(float64(skipped))
	m.filesProcessed.WithLabelValues("failed").Add(float64(failed))
	m.filesProcessed.WithLabelValues("removed").Add(float64(removed))
	m.indexDuration.Observe(d.Seconds())
	m.trackedFiles.Set(float64(tracked))
}

// SetTrackedFiles updates the tracked file gauge
func (m *Metrics) SetTrackedFiles(n int) {
	if m == nil {
		return
	}
	m.trackedFiles.Set(float64(n))
}

// ObserveWatchBatch records one debounced batch
func (m *Metrics) ObserveWatchBatch(files, failed int, d time.Duration) {
	if m == nil {
		return
	}
	m.watchBatches.Inc()
	m.watchFiles.WithLabelValues("ok").Add(float64(files - failed))
	m.watchFiles.WithLabelValues("failed").Add(float64(failed))
	m.watchDuration.Observe(d.Seconds())
}

// ObserveSearch records search latency
func (m *Metrics) ObserveSearch(mode string, d time.Duration) {
	if m == nil {
		return
	}
	m.searchLatency.WithLabelValues(mode).Observe(d.Seconds())
}

// ObserveEmbeddingLookup records a cache hit or miss
func (m *Metrics) ObserveEmbeddingLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.embeddingLookups.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is cancelled
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics endpoint listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
