// Package chunker cuts indexed files into excerpts at symbol boundaries.
//
// A chunk starts at a declaration line and runs until the next one. Lines
// before the first declaration (imports, headers) form their own chunk.
// Sizes are estimated at four characters per token and chunks over the cap
// are cut at a line boundary.
//
// Search responses use Excerpt to return only the parts of a ranked file
// whose symbol names occur in the query:
//
//	c := chunker.New()
//	for _, ch := range c.Excerpt(content, symbols, "add numbers", 400) {
//	    fmt.Printf("%s lines %d-%d (~%d tokens)\n", ch.Symbol, ch.StartLine, ch.EndLine, ch.TokenCount)
//	}
package chunker
