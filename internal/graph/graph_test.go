package graph

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codegraph-mcp/pkg/types"
)

func fn(name string, line int) types.Symbol {
	return types.Symbol{Name: name, Kind: types.KindFunction, Line: line}
}

const (
	mathSrc = "function add(x, y) {\n  return x + y;\n}\n"
	mainSrc = "import { add } from './a';\nconsole.log(add(1, 2));\n"
)

func TestEndToEndAddThenDelete(t *testing.T) {
	g := New()
	g.UpdateFile("a.js", mathSrc, []types.Symbol{fn("add", 1)})
	g.UpdateFile("b.js", mainSrc, nil)

	refs := g.FindSymbolReferences("add")
	require.Len(t, refs, 1)
	assert.Equal(t, types.SymbolReference{File: "a.js", Line: 1, Kind: types.KindFunction}, refs[0])
	assert.Equal(t, []string{"b.js"}, g.ReferencingFiles("a.js"))
	assert.Equal(t, []string{"a.js"}, g.ReferencedFiles("b.js"))

	assert.True(t, g.RemoveFile("a.js"))
	assert.Empty(t, g.FindSymbolReferences("add"))
	assert.Empty(t, g.ReferencingFiles("a.js"))
	assert.Empty(t, g.ReferencedFiles("b.js"))
}

func TestOrderIndependence(t *testing.T) {
	forward := New()
	forward.UpdateFile("a.js", mathSrc, []types.Symbol{fn("add", 1)})
	forward.UpdateFile("b.js", mainSrc, nil)

	reverse := New()
	reverse.UpdateFile("b.js", mainSrc, nil)
	reverse.UpdateFile("a.js", mathSrc, []types.Symbol{fn("add", 1)})

	assert.Equal(t, forward.ReferencingFiles("a.js"), reverse.ReferencingFiles("a.js"))
	assert.Equal(t, forward.ReferencedFiles("b.js"), reverse.ReferencedFiles("b.js"))
	assert.Equal(t, forward.Stats(), reverse.Stats())
}

func TestWordBoundary(t *testing.T) {
	g := New()
	g.UpdateFile("a.js", mathSrc, []types.Symbol{fn("add", 1)})
	g.UpdateFile("c.js", "const address = padding + adder;\n", nil)
	g.UpdateFile("d.js", "result = add(2, 3)\n", nil)

	assert.Equal(t, []string{"d.js"}, g.ReferencingFiles("a.js"))
}

func TestSelfReferenceExcluded(t *testing.T) {
	g := New()
	g.UpdateFile("a.js", "function add() {}\nadd();\n", []types.Symbol{fn("add", 1)})

	assert.Empty(t, g.ReferencingFiles("a.js"))
	assert.Empty(t, g.ReferencedFiles("a.js"))
}

func TestUpdateReplacesSymbols(t *testing.T) {
	g := New()
	g.UpdateFile("a.js", "function add() {}\n", []types.Symbol{fn("add", 1)})
	g.UpdateFile("b.js", "add(); sub();\n", nil)
	require.Equal(t, []string{"b.js"}, g.ReferencingFiles("a.js"))

	g.UpdateFile("a.js", "\n\nfunction sub() {}\n", []types.Symbol{fn("sub", 3)})

	assert.Empty(t, g.FindSymbolReferences("add"))
	refs := g.FindSymbolReferences("sub")
	require.Len(t, refs, 1)
	assert.Equal(t, 3, refs[0].Line)
	assert.Equal(t, []string{"b.js"}, g.ReferencingFiles("a.js"))

	g.UpdateFile("b.js", "nothing here\n", nil)
	assert.Empty(t, g.ReferencingFiles("a.js"))
}

func TestNameCollision(t *testing.T) {
	g := New()
	g.UpdateFile("a.py", "def run(): pass\n", []types.Symbol{fn("run", 1)})
	g.UpdateFile("b.py", "def run(): pass\n", []types.Symbol{fn("run", 1)})
	g.UpdateFile("c.py", "run()\n", nil)

	refs := g.FindSymbolReferences("run")
	require.Len(t, refs, 2)
	assert.Equal(t, "a.py", refs[0].File)
	assert.Equal(t, "b.py", refs[1].File)

	// name-based resolution links the colliding files to each other too
	assert.Equal(t, []string{"b.py", "c.py"}, g.ReferencingFiles("a.py"))
	assert.Equal(t, []string{"a.py", "c.py"}, g.ReferencingFiles("b.py"))
}

func TestUniqueSymbolsResolveOnce(t *testing.T) {
	g := New()
	symbols := []types.Symbol{
		fn("alpha", 1),
		{Name: "Beta", Kind: types.KindClass, Line: 4},
		{Name: "gamma", Kind: types.KindVariable, Line: 9},
	}
	g.UpdateFile("m.js", "...", symbols)

	for _, sym := range symbols {
		refs := g.FindSymbolReferences(sym.Name)
		require.Len(t, refs, 1, sym.Name)
		assert.Equal(t, "m.js", refs[0].File)
		assert.Equal(t, sym.Line, refs[0].Line)
		assert.Equal(t, sym.Kind, refs[0].Kind)
	}
}

func TestDuplicateNamesKeepFirst(t *testing.T) {
	g := New()
	g.UpdateFile("a.js", "...", []types.Symbol{fn("dup", 2), fn("dup", 7)})

	refs := g.FindSymbolReferences("dup")
	require.Len(t, refs, 1)
	assert.Equal(t, 2, refs[0].Line)
	assert.Len(t, g.SymbolsOf("a.js"), 1)
}

func TestRemoveUntracked(t *testing.T) {
	g := New()
	assert.False(t, g.RemoveFile("missing.js"))
	assert.Equal(t, Stats{}, g.Stats())
}

func TestQueriesReturnEmptyNotNil(t *testing.T) {
	g := New()
	assert.NotNil(t, g.FindSymbolReferences("nope"))
	assert.NotNil(t, g.ReferencingFiles("nope"))
	assert.NotNil(t, g.ReferencedFiles("nope"))
	assert.NotNil(t, g.Files())
}

func TestSpecialCharacterNames(t *testing.T) {
	g := New()
	g.UpdateFile("a.js", "...", []types.Symbol{fn("a.b", 1)})
	g.UpdateFile("b.js", "axb\n", nil)

	assert.Empty(t, g.ReferencingFiles("a.js"))
}

func TestStatsAndClear(t *testing.T) {
	g := New()
	g.UpdateFile("a.js", mathSrc, []types.Symbol{fn("add", 1)})
	g.UpdateFile("b.js", mainSrc, nil)

	assert.Equal(t, Stats{Files: 2, Symbols: 1, Edges: 1}, g.Stats())
	assert.Equal(t, []string{"a.js", "b.js"}, g.Files())

	content, ok := g.Content("b.js")
	assert.True(t, ok)
	assert.Equal(t, mainSrc, content)

	g.Clear()
	assert.Equal(t, Stats{}, g.Stats())
	_, ok = g.Content("b.js")
	assert.False(t, ok)
}

func TestConcurrentUpdates(t *testing.T) {
	g := New(WithPatternCacheSize(8))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("f%d", i)
			content := fmt.Sprintf("function %s() {}\nf%d();\n", name, (i+1)%20)
			g.UpdateFile(name+".js", content, []types.Symbol{fn(name, 1)})
		}(i)
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		consumer := fmt.Sprintf("f%d.js", (i+19)%20)
		assert.Equal(t, []string{consumer}, g.ReferencingFiles(fmt.Sprintf("f%d.js", i)))
	}
}
