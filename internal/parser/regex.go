package parser

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dshills/codegraph-mcp/pkg/types"
)

// declPattern is a declaration scan for one family of languages.
// Group 1 captures the keyword, group 2 the declared name.
type declPattern struct {
	re   *regexp.Regexp
	kind func(keyword, rest string) types.SymbolKind
}

var (
	pythonPattern = declPattern{
		re:   regexp.MustCompile(`\b(def|class)\s+(\w+)`),
		kind: keywordKind,
	}
	cppPattern = declPattern{
		re:   regexp.MustCompile(`\b(class|struct|enum|void|int|float|double|char|bool)\s+(\w+)`),
		kind: typedKind,
	}
	javaPattern = declPattern{
		re:   regexp.MustCompile(`\b(class|interface|enum|void|int|float|double|char|boolean)\s+(\w+)`),
		kind: typedKind,
	}
	csPattern = declPattern{
		re:   regexp.MustCompile(`\b(class|interface|enum|void|int|float|double|char|bool)\s+(\w+)`),
		kind: typedKind,
	}
	goPattern = declPattern{
		re:   regexp.MustCompile(`(?m)^(func|type|var|const)\s+(?:\([^)]*\)\s*)?(\w+)`),
		kind: keywordKind,
	}
	defaultPattern = declPattern{
		re:   regexp.MustCompile(`\b(function|class|const|let|var)\s+(\w+)`),
		kind: keywordKind,
	}
)

// patternsByExt selects a declaration scan by file extension
var patternsByExt = map[string]declPattern{
	".py":   pythonPattern,
	".cpp":  cppPattern,
	".cc":   cppPattern,
	".cxx":  cppPattern,
	".hpp":  cppPattern,
	".h":    cppPattern,
	".c":    cppPattern,
	".java": javaPattern,
	".cs":   csPattern,
	".go":   goPattern,
}

// keywordKind maps a declaration keyword to a symbol kind
func keywordKind(keyword, _ string) types.SymbolKind {
	switch keyword {
	case "class", "struct", "enum", "interface", "type":
		return types.KindClass
	case "const", "let", "var":
		return types.KindVariable
	default:
		return types.KindFunction
	}
}

// typedKind treats "<type> name(" as a function and "<type> name" as a variable
func typedKind(keyword, rest string) types.SymbolKind {
	switch keyword {
	case "class", "struct", "enum", "interface":
		return types.KindClass
	}
	if strings.HasPrefix(strings.TrimLeft(rest, " \t"), "(") {
		return types.KindFunction
	}
	return types.KindVariable
}

// RegexParser scans for declaration keywords. It is the fallback used when
// structural parsing fails or is unavailable.
type RegexParser struct{}

// NewRegexParser creates the regex fallback extractor
func NewRegexParser() *RegexParser {
	return &RegexParser{}
}

// Name implements Extractor
func (p *RegexParser) Name() string {
	return "regex"
}

// Supports implements Extractor. Unknown languages use the generic pattern.
func (p *RegexParser) Supports(string) bool {
	return true
}

// Extract implements Extractor
func (p *RegexParser) Extract(ctx context.Context, path string, content []byte) ([]types.Symbol, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pattern, ok := patternsByExt[strings.ToLower(filepath.Ext(path))]
	if !ok {
		pattern = defaultPattern
	}

	lines := newLineIndex(content)
	matches := pattern.re.FindAllSubmatchIndex(content, -1)
	items := make([]positioned, 0, len(matches))
	for _, m := range matches {
		keyword := string(content[m[2]:m[3]])
		name := string(content[m[4]:m[5]])
		rest := string(content[m[5]:min(len(content), m[5]+8)])
		items = append(items, positioned{
			sym: types.Symbol{
				Name: name,
				Kind: pattern.kind(keyword, rest),
				File: path,
				Line: lines.lineAt(m[4]),
			},
			offset: m[4],
		})
	}

	return sortPositioned(items), nil
}

// lineIndex converts byte offsets to 1-based line numbers
type lineIndex struct {
	starts []int
}

func newLineIndex(content []byte) lineIndex {
	starts := []int{0}
	for i, b := range content {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return lineIndex{starts: starts}
}

func (li lineIndex) lineAt(offset int) int {
	lo, hi := 0, len(li.starts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if li.starts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1
}
