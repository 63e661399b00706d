package graph

import (
	"log/slog"
	"regexp"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/codegraph-mcp/pkg/types"
)

// DefaultPatternCacheSize bounds the number of memoized word-boundary patterns
const DefaultPatternCacheSize = 4096

// Graph is the symbol table and file reference graph of one project.
//
// An edge A -> B exists when A's content mentions, as a whole word, the name
// of a symbol declared in B (A != B). Resolution is by name only: two
// unrelated files declaring the same name both receive edges.
type Graph struct {
	mu sync.RWMutex

	// name -> declarations
	symbols map[string][]types.SymbolReference
	// path -> declared symbols, first declaration per name
	fileSymbols map[string][]types.Symbol
	// path -> last indexed content
	contents map[string]string
	// consumer path -> set of declaring paths
	refs map[string]map[string]struct{}

	patterns *lru.Cache[string, *regexp.Regexp]
	logger   *slog.Logger
}

// Stats summarizes graph size
type Stats struct {
	Files   int `json:"files"`
	Symbols int `json:"symbols"`
	Edges   int `json:"edges"`
}

// Option configures a Graph
type Option func(*Graph)

// WithLogger sets the graph logger
func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithPatternCacheSize sets how many compiled patterns are kept
func WithPatternCacheSize(size int) Option {
	return func(g *Graph) {
		if size <= 0 {
			return
		}
		if cache, err := lru.New[string, *regexp.Regexp](size); err == nil {
			g.patterns = cache
		}
	}
}

// New creates an empty graph
func New(opts ...Option) *Graph {
	// lru.New only fails on a non-positive size
	patterns, _ := lru.New[string, *regexp.Regexp](DefaultPatternCacheSize)
	g := &Graph{
		symbols:     make(map[string][]types.SymbolReference),
		fileSymbols: make(map[string][]types.Symbol),
		contents:    make(map[string]string),
		refs:        make(map[string]map[string]struct{}),
		patterns:    patterns,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// UpdateFile replaces everything the graph knows about path. The symbol
// entries, the file's outgoing edges and every other file's edges into path
// are recomputed in one critical section, so the final graph does not depend
// on the order in which files are updated.
func (g *Graph) UpdateFile(path, content string, symbols []types.Symbol) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.dropSymbolsLocked(path)

	declared := dedupe(path, symbols)
	g.fileSymbols[path] = declared
	g.contents[path] = content
	for _, sym := range declared {
		g.symbols[sym.Name] = append(g.symbols[sym.Name], types.SymbolReference{
			File: path,
			Line: sym.Line,
			Kind: sym.Kind,
		})
	}

	// outgoing: names declared elsewhere that path mentions
	out := make(map[string]struct{})
	for name, decls := range g.symbols {
		var elsewhere []string
		for _, d := range decls {
			if d.File != path {
				elsewhere = append(elsewhere, d.File)
			}
		}
		if len(elsewhere) == 0 || !g.mentionsLocked(content, name) {
			continue
		}
		for _, f := range elsewhere {
			out[f] = struct{}{}
		}
	}
	g.refs[path] = out

	// incoming: other files that mention one of path's names
	for other, otherContent := range g.contents {
		if other == path {
			continue
		}
		set := g.refs[other]
		if set == nil {
			set = make(map[string]struct{})
			g.refs[other] = set
		}
		delete(set, path)
		for _, sym := range declared {
			if g.mentionsLocked(otherContent, sym.Name) {
				set[path] = struct{}{}
				break
			}
		}
	}

	g.logger.Debug("graph file updated",
		slog.String("path", path),
		slog.Int("symbols", len(declared)),
		slog.Int("references", len(out)))
}

// RemoveFile deletes path's symbols, content and edges, and removes path
// from every other file's edge set. It reports false for untracked paths.
func (g *Graph) RemoveFile(path string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.contents[path]; !ok {
		return false
	}

	g.dropSymbolsLocked(path)
	delete(g.fileSymbols, path)
	delete(g.contents, path)
	delete(g.refs, path)
	for _, set := range g.refs {
		delete(set, path)
	}

	g.logger.Debug("graph file removed", slog.String("path", path))
	return true
}

// FindSymbolReferences returns every declaration of name ordered by file,
// then line
func (g *Graph) FindSymbolReferences(name string) []types.SymbolReference {
	g.mu.RLock()
	decls := g.symbols[name]
	out := make([]types.SymbolReference, len(decls))
	copy(out, decls)
	g.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		return out[i].Line < out[j].Line
	})
	return out
}

// ReferencingFiles returns the files whose edge set includes path
func (g *Graph) ReferencingFiles(path string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := []string{}
	for consumer, set := range g.refs {
		if _, ok := set[path]; ok {
			out = append(out, consumer)
		}
	}
	sort.Strings(out)
	return out
}

// ReferencedFiles returns the files that path depends on
func (g *Graph) ReferencedFiles(path string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	set := g.refs[path]
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// SymbolsOf returns the symbols declared in path
func (g *Graph) SymbolsOf(path string) []types.Symbol {
	g.mu.RLock()
	defer g.mu.RUnlock()

	syms := g.fileSymbols[path]
	out := make([]types.Symbol, len(syms))
	copy(out, syms)
	return out
}

// Content returns the content path was last updated with
func (g *Graph) Content(path string) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	content, ok := g.contents[path]
	return content, ok
}

// Files returns every tracked path in ascending order
func (g *Graph) Files() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]string, 0, len(g.contents))
	for path := range g.contents {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// Stats returns the current graph size
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Stats{Files: len(g.contents)}
	for _, decls := range g.symbols {
		s.Symbols += len(decls)
	}
	for _, set := range g.refs {
		s.Edges += len(set)
	}
	return s
}

// Clear drops all files, symbols and edges
func (g *Graph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.symbols = make(map[string][]types.SymbolReference)
	g.fileSymbols = make(map[string][]types.Symbol)
	g.contents = make(map[string]string)
	g.refs = make(map[string]map[string]struct{})
}

// dropSymbolsLocked removes path's entries from the name index
func (g *Graph) dropSymbolsLocked(path string) {
	for _, sym := range g.fileSymbols[path] {
		decls := g.symbols[sym.Name]
		kept := decls[:0]
		for _, d := range decls {
			if d.File != path {
				kept = append(kept, d)
			}
		}
		if len(kept) == 0 {
			delete(g.symbols, sym.Name)
		} else {
			g.symbols[sym.Name] = kept
		}
	}
}

// mentionsLocked reports whether content contains name as a whole word
func (g *Graph) mentionsLocked(content, name string) bool {
	re, ok := g.patterns.Get(name)
	if !ok {
		var err error
		re, err = regexp.Compile(`\b` + regexp.QuoteMeta(name) + `\b`)
		if err != nil {
			return false
		}
		g.patterns.Add(name, re)
	}
	return re.MatchString(content)
}

// dedupe keeps the first declaration of each name and stamps the file path
func dedupe(path string, symbols []types.Symbol) []types.Symbol {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]types.Symbol, 0, len(symbols))
	for _, sym := range symbols {
		if sym.Name == "" {
			continue
		}
		if _, ok := seen[sym.Name]; ok {
			continue
		}
		seen[sym.Name] = struct{}{}
		sym.File = path
		out = append(out, sym)
	}
	return out
}
