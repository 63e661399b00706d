package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Index the project and keep it current until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().Duration("debounce", 0, "Wait this long after the last change before re-indexing (default 1s)")
	watchCmd.Flags().String("metrics-addr", "", "Expose Prometheus metrics on this address, e.g. :9090")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	a.serveMetrics(ctx)

	idx, err := a.initializedIndex(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = idx.Close() }()

	if _, _, err := idx.IndexProject(ctx); err != nil {
		return err
	}
	if err := idx.StartWatching(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	idx.StopWatching()

	// Persist changes applied by watch batches; the signal context is done
	if _, err := idx.RefreshRoot(); err != nil {
		return err
	}
	if err := idx.Save(cmd.Context()); err != nil {
		a.logger.Warn("failed to save snapshot", slog.Any("error", err))
	}
	return nil
}
