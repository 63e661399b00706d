package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flagIndexJSON bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the project and print the Merkle root",
	Args:  cobra.NoArgs,
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&flagIndexJSON, "json", false, "Print statistics as JSON")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
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

	root, stats, err := idx.IndexProject(ctx)
	if err != nil {
		return err
	}

	rootHex := ""
	if root != nil {
		rootHex = root.String()
	}

	if flagIndexJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"merkle_root": rootHex,
			"statistics":  stats,
		})
	}

	fmt.Printf("Merkle root: %s\n", rootHex)
	fmt.Printf("Indexed %d, unchanged %d, skipped %d, removed %d, failed %d files in %v\n",
		stats.FilesIndexed, stats.FilesUnchanged, stats.FilesSkipped,
		stats.FilesRemoved, stats.FilesFailed, stats.Duration)
	for _, msg := range stats.ErrorMessages {
		fmt.Fprintf(os.Stderr, "  %s\n", msg)
	}
	return nil
}
