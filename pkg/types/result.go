package types

// SearchResult is a single ranked hit from a hybrid search
type SearchResult struct {
	Rank            int      `json:"rank"` // 1-based
	File            string   `json:"file"`
	CombinedScore   float64  `json:"combined_score"`
	SemanticScore   float64  `json:"semantic_score"`
	StructuralScore float64  `json:"structural_score"`
	Symbols         []string `json:"symbols,omitempty"`
	Content         string   `json:"content"`
}

// Validate checks that a ranked result is well formed
func (sr *SearchResult) Validate() error {
	if sr.Rank < 1 {
		return ErrInvalidRank
	}

	if sr.File == "" {
		return ErrMissingFileInfo
	}

	if sr.StructuralScore < 0 || sr.StructuralScore > 1 {
		return ErrInvalidRelevanceScore
	}

	return nil
}
