// Package types provides shared type definitions for codegraph.
//
// These are the domain records exchanged between the index components:
// file records owned by the content-addressed index, symbols owned by the
// reference graph, and ranked search results.
//
// # Core Types
//
// FileRecord is the indexed state of a file, keyed by its path relative to
// the project root:
//
//	rec := types.FileRecord{
//	    Path:        "src/math.js",
//	    ContentHash: merkle.Hash(content),
//	    Content:     string(content),
//	}
//
// Symbol is a named declaration found in a file:
//
//	sym := types.Symbol{Name: "add", Kind: types.KindFunction, File: "src/math.js", Line: 1}
//
// Symbol names are matched against other files by word boundary, so two
// unrelated declarations with the same name are indistinguishable.
//
// # Errors
//
// ReadError is returned for files that could not be read. ErrParse and
// ErrBackend are degradations: callers log them and continue with reduced
// information. ErrNotInitialized guards queries issued before the index has
// loaded.
package types
