package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/codegraph-mcp/internal/embedder"
	"github.com/dshills/codegraph-mcp/pkg/types"
)

// Request limits
const (
	DefaultLimit = 5
	MaxLimit     = 100

	DefaultSemanticWeight   = 0.7
	DefaultStructuralWeight = 0.3
)

// ErrEmptyQuery is returned for blank queries
var ErrEmptyQuery = errors.New("query cannot be empty")

// SearchMode defines how scores are combined
type SearchMode string

const (
	SearchModeHybrid     SearchMode = "hybrid"     // weighted semantic + structural
	SearchModeSemantic   SearchMode = "semantic"   // embedding similarity only
	SearchModeStructural SearchMode = "structural" // symbol-name matching only
)

// Corpus is the indexed project the searcher ranks. graph.Graph implements it.
type Corpus interface {
	Files() []string
	SymbolsOf(path string) []types.Symbol
	Content(path string) (string, bool)
}

// Embeddings produces cached vectors for text. embedder.Cache implements it.
type Embeddings interface {
	GetOrCompute(ctx context.Context, text string) ([]float32, error)
}

// Recorder observes search latency
type Recorder interface {
	ObserveSearch(mode string, d time.Duration)
}

// Weights scale the two score components
type Weights struct {
	Semantic   float64
	Structural float64
}

// DefaultWeights favors semantic recall with structural precision
func DefaultWeights() Weights {
	return Weights{Semantic: DefaultSemanticWeight, Structural: DefaultStructuralWeight}
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query    string
	Limit    int
	Mode     SearchMode
	UseCache bool // Whether to use the response cache
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results      []types.SearchResult
	TotalResults int
	SearchMode   SearchMode
	Duration     time.Duration
	CacheHit     bool
	// Degraded is set when the query could not be embedded and ranking fell
	// back to structural scores
	Degraded bool
}

// Searcher ranks indexed files against a query
type Searcher struct {
	corpus     Corpus
	embeddings Embeddings
	weights    Weights
	workers    int
	cache      *lru.Cache[[32]byte, *SearchResponse]
	recorder   Recorder
	logger     *slog.Logger

	// cacheMu orders cache writes against InvalidateCache; generation
	// changes on every invalidation
	cacheMu    sync.Mutex
	generation uint64
}

// Option configures a Searcher
type Option func(*Searcher)

// WithWeights overrides the default 0.7/0.3 weighting
func WithWeights(w Weights) Option {
	return func(s *Searcher) {
		s.weights = w
	}
}

// WithWorkers bounds concurrent file embeddings
func WithWorkers(n int) Option {
	return func(s *Searcher) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithRecorder reports search latency
func WithRecorder(r Recorder) Option {
	return func(s *Searcher) {
		s.recorder = r
	}
}

// WithLogger sets the searcher logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSearcher creates a new Searcher instance
func NewSearcher(corpus Corpus, embeddings Embeddings, opts ...Option) *Searcher {
	cache, err := lru.New[[32]byte, *SearchResponse](1000)
	if err != nil {
		// This should never happen with valid size parameter
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}

	s := &Searcher{
		corpus:     corpus,
		embeddings: embeddings,
		weights:    DefaultWeights(),
		workers:    runtime.NumCPU(),
		cache:      cache,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Weights returns the active weighting
func (s *Searcher) Weights() Weights {
	return s.weights
}

// Search ranks every indexed file and returns the top Limit results.
// Limit defaults to DefaultLimit and is capped at MaxLimit. Files are scored in ascending path order and sorted stably, so equal
// scores keep path order.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	key := computeQueryHash(req)
	generation := s.currentGeneration()
	if req.UseCache {
		if cached, ok := s.cache.Get(key); ok {
			resp := copySearchResponse(cached)
			resp.CacheHit = true
			resp.Duration = time.Since(startTime)
			return resp, nil
		}
	}

	weights := s.weights
	switch req.Mode {
	case SearchModeSemantic:
		weights = Weights{Semantic: 1}
	case SearchModeStructural:
		weights = Weights{Structural: 1}
	}

	files := s.corpus.Files()
	response := &SearchResponse{
		Results:    []types.SearchResult{},
		SearchMode: req.Mode,
	}
	if len(files) == 0 {
		response.Duration = time.Since(startTime)
		return response, nil
	}

	var queryVec []float32
	if weights.Semantic != 0 {
		vec, err := s.embeddings.GetOrCompute(ctx, req.Query)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("query embedding failed, ranking by structure only",
				slog.String("query", req.Query),
				slog.Any("error", err))
			response.Degraded = true
		} else {
			queryVec = vec
		}
	}

	scored, err := s.scoreFiles(ctx, files, strings.ToLower(req.Query), queryVec, weights)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].CombinedScore > scored[j].CombinedScore
	})

	response.TotalResults = len(scored)
	if len(scored) > req.Limit {
		scored = scored[:req.Limit]
	}
	for i := range scored {
		scored[i].Rank = i + 1
		if content, ok := s.corpus.Content(scored[i].File); ok {
			scored[i].Content = content
		}
		if err := scored[i].Validate(); err != nil {
			return nil, fmt.Errorf("invalid search result for %q: %w", scored[i].File, err)
		}
	}
	response.Results = scored
	response.Duration = time.Since(startTime)

	if s.recorder != nil {
		s.recorder.ObserveSearch(string(req.Mode), response.Duration)
	}
	if req.UseCache && !response.Degraded && len(response.Results) > 0 {
		s.storeResponse(key, generation, response)
	}

	return response, nil
}

// scoreFiles computes per-file scores into position-indexed slots
func (s *Searcher) scoreFiles(ctx context.Context, files []string, lowerQuery string, queryVec []float32, weights Weights) ([]types.SearchResult, error) {
	results := make([]types.SearchResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, path := range files {
		g.Go(func() error {
			symbols := s.corpus.SymbolsOf(path)
			names := make([]string, len(symbols))
			for j, sym := range symbols {
				names[j] = sym.Name
			}

			structural := structuralScore(lowerQuery, names)
			var semantic float64
			if queryVec != nil && len(names) > 0 {
				vec, err := s.embeddings.GetOrCompute(gctx, strings.Join(names, " "))
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					s.logger.Debug("file embedding failed, semantic score set to 0",
						slog.String("path", path),
						slog.Any("error", err))
				} else {
					semantic = embedder.CosineSimilarity(queryVec, vec)
				}
			}

			results[i] = types.SearchResult{
				File:            path,
				CombinedScore:   weights.Semantic*semantic + weights.Structural*structural,
				SemanticScore:   semantic,
				StructuralScore: structural,
				Symbols:         names,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("score files: %w", err)
	}
	return results, nil
}

// structuralScore is the fraction of names that appear in the query,
// case-insensitively
func structuralScore(lowerQuery string, names []string) float64 {
	if len(names) == 0 {
		return 0
	}
	matched := 0
	for _, name := range names {
		if strings.Contains(lowerQuery, strings.ToLower(name)) {
			matched++
		}
	}
	return float64(matched) / float64(len(names))
}

// InvalidateCache drops cached responses. Call after any index mutation.
// Searches that started before the call do not cache their responses.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.generation++
	s.cache.Purge()
}

func (s *Searcher) currentGeneration() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.generation
}

// storeResponse caches resp unless the index changed since generation
func (s *Searcher) storeResponse(key [32]byte, generation uint64, resp *SearchResponse) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.generation != generation {
		return
	}
	s.cache.Add(key, copySearchResponse(resp))
}

// validateRequest ensures search request is valid
func (s *Searcher) validateRequest(req *SearchRequest) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return ErrEmptyQuery
	}

	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}

	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}

	switch req.Mode {
	case "":
		req.Mode = SearchModeHybrid
	case SearchModeHybrid, SearchModeSemantic, SearchModeStructural:
	default:
		return fmt.Errorf("unsupported search mode: %s", req.Mode)
	}

	return nil
}

// computeQueryHash keys the response cache
func computeQueryHash(req SearchRequest) [32]byte {
	return sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", req.Query, req.Limit, req.Mode)))
}

// copySearchResponse keeps cached responses immutable
func copySearchResponse(src *SearchResponse) *SearchResponse {
	dst := *src
	dst.Results = make([]types.SearchResult, len(src.Results))
	for i, r := range src.Results {
		r.Symbols = append([]string(nil), r.Symbols...)
		dst.Results[i] = r
	}
	return &dst
}
