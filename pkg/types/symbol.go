package types

import "errors"

// SymbolKind represents the kind of a declared symbol
type SymbolKind string

const (
	KindFunction SymbolKind = "function"
	KindClass    SymbolKind = "class"
	KindMethod   SymbolKind = "method"
	KindVariable SymbolKind = "variable"
)

// Symbol is a named declaration extracted from a source file.
// Symbols are keyed by (File, Name) in the reference graph.
type Symbol struct {
	Name string
	Kind SymbolKind
	File string // Relative to project root, slash separated
	Line int    // 1-based
}

// SymbolReference locates a declaration of a symbol name
type SymbolReference struct {
	File string     `json:"file"`
	Line int        `json:"line"`
	Kind SymbolKind `json:"kind"`
}

// ValidateKind checks if the symbol kind is valid
func (s *Symbol) ValidateKind() error {
	switch s.Kind {
	case KindFunction, KindClass, KindMethod, KindVariable:
		return nil
	default:
		return errors.New("invalid symbol kind")
	}
}

// Validate performs validation of the symbol
func (s *Symbol) Validate() error {
	if s.Name == "" {
		return errors.New("symbol name is required")
	}

	if err := s.ValidateKind(); err != nil {
		return err
	}

	if s.Line <= 0 {
		return errors.New("invalid position: line numbers must be positive")
	}

	return nil
}

// Key returns the symbol table key for this symbol
func (s *Symbol) Key() string {
	return s.File + ":" + s.Name
}
