package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var flagRefsFile bool

var refsCmd = &cobra.Command{
	Use:   "refs <symbol|file>",
	Short: "Show where a symbol is declared and which files reference it",
	Args:  cobra.ExactArgs(1),
	RunE:  runRefs,
}

func init() {
	refsCmd.Flags().BoolVar(&flagRefsFile, "file", false, "Treat the argument as a file path")
	rootCmd.AddCommand(refsCmd)
}

func runRefs(cmd *cobra.Command, args []string) error {
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

	if _, _, err := idx.IndexProject(ctx); err != nil {
		return err
	}

	if flagRefsFile {
		return printFileRefs(idx, args[0])
	}

	decls, err := idx.FindSymbolReferences(args[0])
	if err != nil {
		return err
	}
	if len(decls) == 0 {
		fmt.Printf("%s: no declarations\n", args[0])
		return nil
	}
	for _, d := range decls {
		fmt.Printf("%s:%d  %s %s\n", d.File, d.Line, d.Kind, args[0])
		users, err := idx.GetReferencingFiles(d.File)
		if err != nil {
			return err
		}
		for _, u := range users {
			fmt.Printf("    referenced by %s\n", u)
		}
	}
	return nil
}

type fileRefs interface {
	GetReferencingFiles(path string) ([]string, error)
	GetReferencedFiles(path string) ([]string, error)
}

func printFileRefs(idx fileRefs, file string) error {
	incoming, err := idx.GetReferencingFiles(file)
	if err != nil {
		return err
	}
	outgoing, err := idx.GetReferencedFiles(file)
	if err != nil {
		return err
	}

	fmt.Printf("%s\n  referenced by:\n", file)
	for _, f := range incoming {
		fmt.Printf("    %s\n", f)
	}
	fmt.Printf("  references:\n")
	for _, f := range outgoing {
		fmt.Printf("    %s\n", f)
	}
	return nil
}
