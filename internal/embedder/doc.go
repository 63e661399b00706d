// Package embedder generates vector embeddings for symbol text and caches
// them by content hash.
//
// # Providers
//
// Three Embedder implementations are available:
//
//	Jina AI   1024 dimensions, remote, code-optimized
//	OpenAI    1536 dimensions, remote
//	Local      384 dimensions, offline hashed-token vectors
//
// Remote providers share one OpenAI-compatible HTTP client with exponential
// backoff on 429 and 5xx responses and a token-bucket rate limiter
// (golang.org/x/time/rate).
//
// # Provider Selection
//
// New with an empty Config.Provider detects the provider from the
// environment:
//
//  1. If CODEGRAPH_EMBEDDING_PROVIDER is set, use it
//  2. Else if JINA_API_KEY is set, use Jina AI
//  3. Else if OPENAI_API_KEY is set, use OpenAI
//  4. Else use the local provider
//
// # Caching
//
// Cache wraps any Embedder with an expiring LRU keyed by the SHA-256 of the
// input text:
//
//	emb, _ := embedder.New(embedder.Config{Provider: "local"})
//	cache := embedder.NewCache(emb, 10000, time.Hour)
//	vec, err := cache.GetOrCompute(ctx, "add subtract")
//	if errors.Is(err, types.ErrBackend) {
//	    // provider unavailable; callers degrade instead of failing
//	}
//
// Failures are never cached, so the next lookup retries the backend.
package embedder
