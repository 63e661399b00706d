package parser

import (
	"context"
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"

	"github.com/dshills/codegraph-mcp/pkg/types"
)

// GoParser extracts symbols from Go source using go/ast
type GoParser struct{}

// NewGoParser creates a Go structural parser
func NewGoParser() *GoParser {
	return &GoParser{}
}

// Name implements Extractor
func (p *GoParser) Name() string {
	return "go-ast"
}

// Supports implements Extractor
func (p *GoParser) Supports(path string) bool {
	return filepath.Ext(path) == ".go"
}

// Extract implements Extractor. Syntax errors fail the parse so the caller
// can fall back instead of trusting a partial AST.
func (p *GoParser) Extract(ctx context.Context, path string, content []byte) ([]types.Symbol, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, content, parser.SkipObjectResolution)
	if err != nil {
		return nil, parseError(path, err)
	}

	e := &goExtractor{fset: fset, path: path}
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			e.extractFunction(d)
		case *ast.GenDecl:
			e.extractGenDecl(d)
		}
	}

	return sortPositioned(e.items), nil
}

// goExtractor collects top-level declarations of one file
type goExtractor struct {
	fset  *token.FileSet
	path  string
	items []positioned
}

func (e *goExtractor) add(name string, kind types.SymbolKind, pos token.Pos) {
	if name == "" || name == "_" {
		return
	}
	position := e.fset.Position(pos)
	e.items = append(e.items, positioned{
		sym: types.Symbol{
			Name: name,
			Kind: kind,
			File: e.path,
			Line: position.Line,
		},
		offset: position.Offset,
	})
}

// extractFunction extracts function and method declarations
func (e *goExtractor) extractFunction(funcDecl *ast.FuncDecl) {
	kind := types.KindFunction
	if funcDecl.Recv != nil && len(funcDecl.Recv.List) > 0 {
		kind = types.KindMethod
	}
	e.add(funcDecl.Name.Name, kind, funcDecl.Name.Pos())
}

// extractGenDecl extracts type, const, and var declarations
func (e *goExtractor) extractGenDecl(genDecl *ast.GenDecl) {
	for _, spec := range genDecl.Specs {
		switch s := spec.(type) {
		case *ast.TypeSpec:
			e.add(s.Name.Name, types.KindClass, s.Name.Pos())
		case *ast.ValueSpec:
			for _, name := range s.Names {
				e.add(name.Name, types.KindVariable, name.Pos())
			}
		}
	}
}
