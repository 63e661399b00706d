// Package graph maintains the project symbol table and the file-to-file
// reference graph derived from it.
//
// Each file contributes its declared symbols to a name index. A file A
// references file B when A's text contains, on word boundaries, the name of
// a symbol B declares. Edges are recomputed in both directions whenever a
// file changes, so batch updates converge to the same graph in any order.
package graph
