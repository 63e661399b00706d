// Package parser extracts declared symbols from source files.
//
// Extraction is a strategy with a fallback. Structural extractors build a
// syntax tree and walk it:
//
//   - GoParser uses go/ast for .go files
//   - TreeSitterParser uses tree-sitter grammars for JavaScript,
//     TypeScript (including TSX) and Python
//
// When the structural parse fails (syntax error, unsupported dialect) or no
// structural extractor supports the file, RegexParser scans for declaration
// keywords with a per-language pattern, or a generic
// function/class/const/let/var pattern for unknown languages.
//
// # Basic Usage
//
//	chain := parser.New()
//	symbols, _ := chain.Extract(ctx, "src/math.js", content)
//	for _, sym := range symbols {
//	    fmt.Printf("%s %s:%d\n", sym.Kind, sym.Name, sym.Line)
//	}
//
// The chain never fails: a file that defeats every strategy yields an empty
// symbol list and stays indexable for content search.
//
// # Symbol Kinds
//
// Every strategy maps declarations onto four kinds:
//
//	function  free functions
//	class     classes, structs, interfaces, enums, Go type declarations
//	method    functions declared on a class or receiver
//	variable  top-level identifier-bound variable and constant declarations
//
// # Determinism
//
// Output is ordered by line, then byte offset. Identical content and
// strategy availability always produce the identical list.
package parser
