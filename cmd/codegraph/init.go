package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/codegraph-mcp/internal/config"
)

var flagInitForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default .codegraph/config.yaml",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVar(&flagInitForce, "force", false, "Overwrite an existing config")
	rootCmd.AddCommand(initCmd)
}

func runInit(_ *cobra.Command, _ []string) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}
	path := config.Path(root)
	if flagConfig != "" {
		path = flagConfig
	}
	if err := config.WriteDefault(path, flagInitForce); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}
