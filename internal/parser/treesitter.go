package parser

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/dshills/codegraph-mcp/pkg/types"
)

// Supported tree-sitter languages
const (
	LangJavaScript = "javascript"
	LangTypeScript = "typescript"
	LangTSX        = "tsx"
	LangPython     = "python"
)

var errSyntaxTree = errors.New("syntax tree contains errors")

// languageByExt maps file extensions to tree-sitter grammars
var languageByExt = map[string]string{
	".js":  LangJavaScript,
	".jsx": LangJavaScript,
	".mjs": LangJavaScript,
	".cjs": LangJavaScript,
	".ts":  LangTypeScript,
	".mts": LangTypeScript,
	".cts": LangTypeScript,
	".tsx": LangTSX,
	".py":  LangPython,
}

// TreeSitterParser extracts symbols from JavaScript, TypeScript and Python
type TreeSitterParser struct{}

// NewTreeSitterParser creates a tree-sitter structural parser
func NewTreeSitterParser() *TreeSitterParser {
	return &TreeSitterParser{}
}

// Name implements Extractor
func (p *TreeSitterParser) Name() string {
	return "tree-sitter"
}

// Supports implements Extractor
func (p *TreeSitterParser) Supports(path string) bool {
	_, ok := languageByExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Language returns the grammar name used for path, or "" if unsupported
func Language(path string) string {
	return languageByExt[strings.ToLower(filepath.Ext(path))]
}

func grammar(lang string) *sitter.Language {
	switch lang {
	case LangJavaScript:
		return javascript.GetLanguage()
	case LangTypeScript:
		return typescript.GetLanguage()
	case LangTSX:
		return tsx.GetLanguage()
	case LangPython:
		return python.GetLanguage()
	default:
		return nil
	}
}

// Extract implements Extractor. A tree with error nodes fails the parse.
func (p *TreeSitterParser) Extract(ctx context.Context, path string, content []byte) ([]types.Symbol, error) {
	lang := Language(path)
	language := grammar(lang)
	if language == nil {
		return nil, parseError(path, errors.New("unsupported language"))
	}

	// Parsers are not safe for concurrent use, so each call gets its own
	sp := sitter.NewParser()
	defer sp.Close()
	sp.SetLanguage(language)

	tree, err := sp.ParseCtx(ctx, nil, content)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, parseError(path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || root.HasError() {
		return nil, parseError(path, errSyntaxTree)
	}

	w := &treeWalker{path: path, src: content, python: lang == LangPython}
	w.walk(root)
	return sortPositioned(w.items), nil
}

// treeWalker collects declarations in a depth-first, source-ordered walk
type treeWalker struct {
	path   string
	src    []byte
	python bool
	items  []positioned
}

func (w *treeWalker) add(nameNode *sitter.Node, kind types.SymbolKind) {
	if nameNode == nil {
		return
	}
	name := nameNode.Content(w.src)
	if name == "" {
		return
	}
	w.items = append(w.items, positioned{
		sym: types.Symbol{
			Name: name,
			Kind: kind,
			File: w.path,
			Line: int(nameNode.StartPoint().Row) + 1,
		},
		offset: int(nameNode.StartByte()),
	})
}

func (w *treeWalker) walk(n *sitter.Node) {
	if w.python {
		w.visitPython(n)
	} else {
		w.visitScript(n)
	}

	count := int(n.NamedChildCount())
	for i := 0; i < count; i++ {
		child := n.NamedChild(i)
		if child != nil {
			w.walk(child)
		}
	}
}

// visitScript handles JavaScript and TypeScript nodes
func (w *treeWalker) visitScript(n *sitter.Node) {
	switch n.Type() {
	case "function_declaration", "generator_function_declaration":
		w.add(n.ChildByFieldName("name"), types.KindFunction)
	case "class_declaration", "abstract_class_declaration":
		w.add(n.ChildByFieldName("name"), types.KindClass)
	case "method_definition":
		w.add(n.ChildByFieldName("name"), types.KindMethod)
	case "variable_declarator":
		name := n.ChildByFieldName("name")
		if name != nil && name.Type() == "identifier" && isTopLevelDeclarator(n) {
			w.add(name, types.KindVariable)
		}
	}
}

// isTopLevelDeclarator reports whether a declarator belongs to a
// program-level (optionally exported) declaration
func isTopLevelDeclarator(n *sitter.Node) bool {
	decl := n.Parent()
	if decl == nil {
		return false
	}
	switch decl.Type() {
	case "lexical_declaration", "variable_declaration":
	default:
		return false
	}
	parent := decl.Parent()
	if parent != nil && parent.Type() == "export_statement" {
		parent = parent.Parent()
	}
	return parent != nil && parent.Type() == "program"
}

// visitPython handles Python nodes
func (w *treeWalker) visitPython(n *sitter.Node) {
	switch n.Type() {
	case "function_definition":
		kind := types.KindFunction
		if insidePythonClass(n) {
			kind = types.KindMethod
		}
		w.add(n.ChildByFieldName("name"), kind)
	case "class_definition":
		w.add(n.ChildByFieldName("name"), types.KindClass)
	case "assignment":
		left := n.ChildByFieldName("left")
		if left == nil || left.Type() != "identifier" {
			return
		}
		stmt := n.Parent()
		if stmt != nil && stmt.Type() == "expression_statement" {
			if mod := stmt.Parent(); mod != nil && mod.Type() == "module" {
				w.add(left, types.KindVariable)
			}
		}
	}
}

// insidePythonClass reports whether a function is defined directly in a class body
func insidePythonClass(n *sitter.Node) bool {
	parent := n.Parent()
	if parent != nil && parent.Type() == "decorated_definition" {
		parent = parent.Parent()
	}
	if parent == nil || parent.Type() != "block" {
		return false
	}
	owner := parent.Parent()
	return owner != nil && owner.Type() == "class_definition"
}
