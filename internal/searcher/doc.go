// Package searcher ranks indexed files by combining embedding similarity
// with symbol-name matching.
//
// For every indexed file:
//
//	structural = names found in the query / names declared   (0 without symbols)
//	semantic   = cosine(embed(query), embed(names joined by spaces))
//	combined   = 0.7*semantic + 0.3*structural
//
// The weights are defaults and can be changed with WithWeights. Results are
// sorted by combined score, descending, with ties kept in path order, and
// truncated to the request limit (default 5, max 100).
//
// # Basic Usage
//
//	s := searcher.NewSearcher(graph, cache)
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Query: "add numbers",
//	    Limit: 10,
//	})
//	for _, r := range resp.Results {
//	    fmt.Printf("[%d] %s %.3f\n", r.Rank, r.File, r.CombinedScore)
//	}
//
// # Search Modes
//
//   - hybrid: weighted combination (default)
//   - semantic: embedding similarity only
//   - structural: symbol-name matching only, no embedding calls
//
// # Degradation
//
// Embedding failures never fail a search. A file whose embedding cannot be
// computed gets semantic score 0. When the query itself cannot be embedded
// every semantic score is 0 and SearchResponse.Degraded is set.
package searcher
