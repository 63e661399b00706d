package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2,
	}
}

// embeddingServer answers with one vector per input, in reverse index order
func embeddingServer(t *testing.T, status *atomic.Int32, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		if code := int(status.Load()); code != 0 && code != http.StatusOK {
			w.WriteHeader(code)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
			return
		}

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		data := make([]item, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Index: i, Embedding: []float32{float32(i + 1), 0, 0}})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"model": req.Model,
			"data":  data,
		})
	}))
}

func TestRemoteProviders(t *testing.T) {
	constructors := []struct {
		name      string
		new       func(opts ...ProviderOption) (Embedder, error)
		dimension int
		model     string
	}{
		{
			name: ProviderJina,
			new: func(opts ...ProviderOption) (Embedder, error) {
				return NewJinaProvider("test-key", opts...)
			},
			dimension: JinaDimension,
			model:     DefaultJinaModel,
		},
		{
			name: ProviderOpenAI,
			new: func(opts ...ProviderOption) (Embedder, error) {
				return NewOpenAIProvider("test-key", opts...)
			},
			dimension: OpenAIDimension,
			model:     DefaultOpenAIModel,
		},
	}

	for _, tc := range constructors {
		t.Run(tc.name, func(t *testing.T) {
			var status, calls atomic.Int32
			server := embeddingServer(t, &status, &calls)
			defer server.Close()

			p, err := tc.new(WithEndpoint(server.URL), WithRetryConfig(fastRetry()), WithRateLimit(0))
			require.NoError(t, err)
			defer p.Close()

			assert.Equal(t, tc.name, p.Provider())
			assert.Equal(t, tc.dimension, p.Dimension())
			assert.Equal(t, tc.model, p.Model())

			resp, err := p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"a", "b", "c"}})
			require.NoError(t, err)
			require.Len(t, resp.Embeddings, 3)
			for i, emb := range resp.Embeddings {
				assert.Equal(t, float32(i+1), emb.Vector[0], "embeddings follow input order")
				assert.Equal(t, ComputeHash([]string{"a", "b", "c"}[i]), emb.Hash)
			}

			single, err := p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "x"})
			require.NoError(t, err)
			assert.Equal(t, []float32{1, 0, 0}, single.Vector)
		})
	}
}

func TestRemoteProviderRetries(t *testing.T) {
	var status, calls atomic.Int32
	status.Store(http.StatusServiceUnavailable)
	server := embeddingServer(t, &status, &calls)
	defer server.Close()

	p, err := NewJinaProvider("test-key", WithEndpoint(server.URL), WithRetryConfig(fastRetry()), WithRateLimit(0))
	require.NoError(t, err)

	_, err = p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRemoteProviderClientErrorNotRetried(t *testing.T) {
	var status, calls atomic.Int32
	status.Store(http.StatusUnauthorized)
	server := embeddingServer(t, &status, &calls)
	defer server.Close()

	p, err := NewOpenAIProvider("test-key", WithEndpoint(server.URL), WithRetryConfig(fastRetry()), WithRateLimit(0))
	require.NoError(t, err)

	_, err = p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "x"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRemoteProviderRateLimitHonorsContext(t *testing.T) {
	var status, calls atomic.Int32
	server := embeddingServer(t, &status, &calls)
	defer server.Close()

	p, err := NewJinaProvider("test-key", WithEndpoint(server.URL), WithRetryConfig(fastRetry()), WithRateLimit(0.001))
	require.NoError(t, err)

	// first request consumes the only token
	_, err = p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "x"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "y"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestMissingAPIKey(t *testing.T) {
	t.Setenv(EnvJinaAPIKey, "")
	t.Setenv(EnvOpenAIAPIKey, "")

	_, err := NewJinaProvider("")
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
	_, err = NewOpenAIProvider("")
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
}

func TestRetryWithBackoff(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		attempts := 0
		got, err := retryWithBackoff(context.Background(), fastRetry(), func() (int, error) {
			attempts++
			if attempts < 3 {
				return 0, errors.New("transient")
			}
			return 7, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 7, got)
		assert.Equal(t, 3, attempts)
	})

	t.Run("permanent error stops", func(t *testing.T) {
		attempts := 0
		sentinel := errors.New("bad request")
		_, err := retryWithBackoff(context.Background(), fastRetry(), func() (int, error) {
			attempts++
			return 0, permanent(sentinel)
		})
		assert.ErrorIs(t, err, sentinel)
		assert.Equal(t, 1, attempts)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := retryWithBackoff(ctx, fastRetry(), func() (int, error) {
			return 0, errors.New("transient")
		})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("default config", func(t *testing.T) {
		config := DefaultRetryConfig()
		assert.Equal(t, 3, config.MaxRetries)
		assert.Equal(t, 100*time.Millisecond, config.BaseDelay)
		assert.Equal(t, 5000*time.Millisecond, config.MaxDelay)
		assert.Equal(t, 2.0, config.Multiplier)
	})
}

func TestLocalProvider(t *testing.T) {
	p, err := NewLocalProvider()
	require.NoError(t, err)
	defer p.Close()
	ctx := context.Background()

	a1, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "add subtract"})
	require.NoError(t, err)
	a2, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "add subtract"})
	require.NoError(t, err)
	assert.Equal(t, a1.Vector, a2.Vector)
	assert.Len(t, a1.Vector, LocalDimension)

	near, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "add"})
	require.NoError(t, err)
	far, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "renderWidget"})
	require.NoError(t, err)
	assert.Greater(t, CosineSimilarity(a1.Vector, near.Vector), CosineSimilarity(a1.Vector, far.Vector))

	punct, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "+-*"})
	require.NoError(t, err)
	assert.False(t, isZero(punct.Vector))

	resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Len(t, resp.Embeddings, 2)
	assert.Equal(t, ProviderLocal, resp.Provider)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = p.GenerateEmbedding(cancelled, EmbeddingRequest{Text: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}
