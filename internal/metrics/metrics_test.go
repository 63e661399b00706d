package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveIndexRun(1, 2, 3, 4, 5, 6, time.Second)
		m.SetTrackedFiles(3)
		m.ObserveWatchBatch(2, 1, time.Millisecond)
		m.ObserveSearch("hybrid", time.Millisecond)
		m.ObserveEmbeddingLookup(true)
	})
}

func TestCollectors(t *testing.T) {
	m := New()

	m.ObserveIndexRun(3, 1, 2, 1, 0, 4, 100*time.Millisecond)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.filesProcessed.WithLabelValues("indexed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.filesProcessed.WithLabelValues("failed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.trackedFiles))

	m.ObserveWatchBatch(5, 2, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.watchBatches))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.watchFiles.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.watchFiles.WithLabelValues("failed")))

	m.ObserveEmbeddingLookup(true)
	m.ObserveEmbeddingLookup(false)
	m.ObserveEmbeddingLookup(false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.embeddingLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.embeddingLookups.WithLabelValues("miss")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveSearch("hybrid", 20*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `codegraph_search_latency_seconds_count{mode="hybrid"} 1`), body)
	assert.Contains(t, body, "go_goroutines")
}

func TestSeparateRegistries(t *testing.T) {
	a, b := New(), New()
	a.SetTrackedFiles(10)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.trackedFiles))
}
