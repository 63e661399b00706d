package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dshills/codegraph-mcp/internal/chunker"
	"github.com/dshills/codegraph-mcp/internal/searcher"
)

var (
	flagSearchMode    string
	flagSearchNoIndex bool
	flagSearchContent bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Rank project files against a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().Int("top-k", searcher.DefaultLimit, "Number of results to show")
	searchCmd.Flags().StringVar(&flagSearchMode, "mode", string(searcher.SearchModeHybrid), "Ranking: hybrid, semantic or structural")
	searchCmd.Flags().BoolVar(&flagSearchNoIndex, "no-index", false, "Search the persisted snapshot without re-indexing")
	searchCmd.Flags().BoolVar(&flagSearchContent, "content", false, "Print excerpts around matched symbols under each result")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	idx, err := a.initializedIndex(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = idx.Close() }()

	if !flagSearchNoIndex {
		if _, _, err := idx.IndexProject(ctx); err != nil {
			return err
		}
	}

	query := strings.Join(args, " ")
	resp, err := idx.Search(ctx, searcher.SearchRequest{
		Query: query,
		Limit: a.cfg.Search.TopK,
		Mode:  searcher.SearchMode(flagSearchMode),
	})
	if err != nil {
		return err
	}
	if resp.Degraded {
		fmt.Fprintln(os.Stderr, "warning: query embedding failed, ranking by symbol names only")
	}
	if len(resp.Results) == 0 {
		fmt.Println("No results.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tSCORE\tSEMANTIC\tSTRUCTURAL\tFILE")
	for _, r := range resp.Results {
		fmt.Fprintf(w, "%d\t%.3f\t%.3f\t%.3f\t%s\n",
			r.Rank, r.CombinedScore, r.SemanticScore, r.StructuralScore, r.File)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if !flagSearchContent {
		return nil
	}
	c := chunker.New()
	for _, r := range resp.Results {
		symbols, err := idx.SymbolsOf(r.File)
		if err != nil {
			return err
		}
		for _, ch := range c.Excerpt(r.Content, symbols, query, 0) {
			fmt.Printf("\n== %s:%d-%d ==\n%s\n", r.File, ch.StartLine, ch.EndLine, ch.Content)
		}
	}
	return nil
}
