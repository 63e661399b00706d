package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/dshills/codegraph-mcp/pkg/types"
)

// Extractor turns source text into the symbols it declares
type Extractor interface {
	// Extract returns declared symbols in source declaration order.
	// Structural extractors return an error wrapping types.ErrParse when the
	// content cannot be parsed.
	Extract(ctx context.Context, path string, content []byte) ([]types.Symbol, error)

	// Supports reports whether the extractor handles files like path
	Supports(path string) bool

	// Name identifies the strategy in logs
	Name() string
}

// Chain tries structural extractors first and falls back to a regex scan.
// Parse failures never surface: on total failure the symbol list is empty.
// Only context cancellation is returned.
type Chain struct {
	structural []Extractor
	fallback   Extractor
	logger     *slog.Logger
}

// ChainOption configures a Chain
type ChainOption func(*Chain)

// WithStructural replaces the structural strategies
func WithStructural(extractors ...Extractor) ChainOption {
	return func(c *Chain) {
		c.structural = extractors
	}
}

// WithFallback replaces the fallback strategy
func WithFallback(fallback Extractor) ChainOption {
	return func(c *Chain) {
		c.fallback = fallback
	}
}

// WithLogger sets the logger used for parse failures
func WithLogger(logger *slog.Logger) ChainOption {
	return func(c *Chain) {
		c.logger = logger
	}
}

// New creates the default chain: Go AST and tree-sitter structural parsing
// with a regex fallback
func New(opts ...ChainOption) *Chain {
	c := &Chain{
		structural: []Extractor{NewGoParser(), NewTreeSitterParser()},
		fallback:   NewRegexParser(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements Extractor
func (c *Chain) Name() string {
	return "chain"
}

// Supports implements Extractor. Every file can go through the chain.
func (c *Chain) Supports(string) bool {
	return true
}

// Extract implements Extractor. Parse failures are swallowed; a cancelled
// context is returned as an error so callers never store a partial result.
func (c *Chain) Extract(ctx context.Context, path string, content []byte) ([]types.Symbol, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, ext := range c.structural {
		if !ext.Supports(path) {
			continue
		}
		symbols, err := ext.Extract(ctx, path, content)
		if err == nil {
			return symbols, nil
		}
		if isCancellation(err) {
			return nil, err
		}
		c.logger.Debug("structural parse failed, falling back",
			slog.String("path", path),
			slog.String("parser", ext.Name()),
			slog.Any("error", err))
		break
	}

	if c.fallback == nil {
		return []types.Symbol{}, nil
	}

	symbols, err := c.fallback.Extract(ctx, path, content)
	if err != nil {
		if isCancellation(err) {
			return nil, err
		}
		c.logger.Debug("fallback parse failed",
			slog.String("path", path),
			slog.String("parser", c.fallback.Name()),
			slog.Any("error", err))
		return []types.Symbol{}, nil
	}
	return symbols, nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// parseError wraps a structural parse failure
func parseError(path string, err error) error {
	return fmt.Errorf("%w: %s: %v", types.ErrParse, path, err)
}

// positioned pairs a symbol with its byte offset for ordering
type positioned struct {
	sym    types.Symbol
	offset int
}

func sortPositioned(items []positioned) []types.Symbol {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].sym.Line != items[j].sym.Line {
			return items[i].sym.Line < items[j].sym.Line
		}
		return items[i].offset < items[j].offset
	})
	out := make([]types.Symbol, len(items))
	for i, item := range items {
		out[i] = item.sym
	}
	return out
}
