package chunker

import (
	"crypto/sha256"
	"sort"
	"strings"

	"github.com/dshills/codegraph-mcp/pkg/types"
)

const (
	// MaxTokensPerChunk is the target maximum token count per chunk
	MaxTokensPerChunk = 1000

	// TokensPerChar is the heuristic for estimating tokens (chars/4)
	TokensPerChar = 4
)

// Chunk is a contiguous range of lines starting at a symbol declaration.
// The file header before the first declaration has an empty Symbol.
type Chunk struct {
	Symbol      string
	Kind        types.SymbolKind
	StartLine   int // 1-based, inclusive
	EndLine     int // 1-based, inclusive
	Content     string
	TokenCount  int
	ContentHash [32]byte
	Truncated   bool
}

// Chunker splits indexed files at symbol boundaries
type Chunker struct {
	maxTokens int
}

// Option configures a Chunker
type Option func(*Chunker)

// WithMaxTokens caps the estimated size of each chunk
func WithMaxTokens(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// New creates a new Chunker instance
func New(opts ...Option) *Chunker {
	c := &Chunker{maxTokens: MaxTokensPerChunk}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChunkFile splits content into one chunk per distinct declaration line,
// plus a header chunk for lines before the first declaration. A file
// without symbols becomes a single chunk. Chunks over the token cap are
// cut at a line boundary.
func (c *Chunker) ChunkFile(content string, symbols []types.Symbol) []Chunk {
	lines := splitLines(content)
	if len(lines) == 0 {
		return []Chunk{}
	}

	starts, owners := boundaries(symbols, len(lines))
	chunks := make([]Chunk, 0, len(starts)+1)

	if len(starts) == 0 || starts[0] > 1 {
		end := len(lines)
		if len(starts) > 0 {
			end = starts[0] - 1
		}
		chunks = append(chunks, c.newChunk(types.Symbol{}, lines, 1, end))
	}

	for i, start := range starts {
		end := len(lines)
		if i+1 < len(starts) {
			end = starts[i+1] - 1
		}
		chunks = append(chunks, c.newChunk(owners[start], lines, start, end))
	}
	return chunks
}

// Excerpt returns the chunks of symbols whose names occur in query,
// case-insensitively, in source order and within a token budget. When no
// symbol matches the first chunk is returned. At least one chunk is always
// returned for non-empty content.
func (c *Chunker) Excerpt(content string, symbols []types.Symbol, query string, budget int) []Chunk {
	chunks := c.ChunkFile(content, symbols)
	if len(chunks) == 0 {
		return chunks
	}
	if budget <= 0 {
		budget = c.maxTokens
	}

	matched := MatchNames(query, symbols)
	if len(matched) == 0 {
		return chunks[:1]
	}

	selected := make([]Chunk, 0, len(matched))
	used := 0
	for _, ch := range chunks {
		if _, ok := matched[ch.Symbol]; !ok || ch.Symbol == "" {
			continue
		}
		if len(selected) > 0 && used+ch.TokenCount > budget {
			break
		}
		selected = append(selected, ch)
		used += ch.TokenCount
	}
	if len(selected) == 0 {
		return chunks[:1]
	}
	return selected
}

// MatchNames returns the symbol names contained in query, ignoring case
func MatchNames(query string, symbols []types.Symbol) map[string]struct{} {
	lower := strings.ToLower(query)
	matched := make(map[string]struct{})
	for _, sym := range symbols {
		if sym.Name != "" && strings.Contains(lower, strings.ToLower(sym.Name)) {
			matched[sym.Name] = struct{}{}
		}
	}
	return matched
}

func (c *Chunker) newChunk(owner types.Symbol, lines []string, start, end int) Chunk {
	body := lines[start-1 : end]
	truncated := false

	content := strings.Join(body, "\n")
	if EstimateTokenCount(content) > c.maxTokens {
		size := 0
		keep := 0
		for keep < len(body) {
			next := size + len(body[keep]) + 1
			if keep > 0 && next/TokensPerChar > c.maxTokens {
				break
			}
			size = next
			keep++
		}
		body = body[:keep]
		end = start + keep - 1
		content = strings.Join(body, "\n")
		truncated = true
	}

	return Chunk{
		Symbol:      owner.Name,
		Kind:        owner.Kind,
		StartLine:   start,
		EndLine:     end,
		Content:     content,
		TokenCount:  EstimateTokenCount(content),
		ContentHash: ComputeChunkHash(content),
		Truncated:   truncated,
	}
}

// boundaries returns sorted distinct declaration lines within [1, n] and
// the first symbol declared on each
func boundaries(symbols []types.Symbol, n int) ([]int, map[int]types.Symbol) {
	owners := make(map[int]types.Symbol, len(symbols))
	for _, sym := range symbols {
		if sym.Line < 1 || sym.Line > n {
			continue
		}
		if _, ok := owners[sym.Line]; !ok {
			owners[sym.Line] = sym
		}
	}
	starts := make([]int, 0, len(owners))
	for line := range owners {
		starts = append(starts, line)
	}
	sort.Ints(starts)
	return starts, owners
}

// splitLines splits content into lines without a trailing empty line
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}

// ComputeChunkHash computes the SHA-256 hash for a chunk's content
func ComputeChunkHash(content string) [32]byte {
	return sha256.Sum256([]byte(content))
}

// EstimateTokenCount estimates the number of tokens in a string
func EstimateTokenCount(text string) int {
	return len(text) / TokensPerChar
}
