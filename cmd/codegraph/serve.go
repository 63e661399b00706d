package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/codegraph-mcp/internal/indexer"
	"github.com/dshills/codegraph-mcp/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the MCP tools over stdio",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("metrics-addr", "", "Expose Prometheus metrics on this address, e.g. :9090")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	a.serveMetrics(ctx)

	// Each project root gets its own config so per-project settings apply
	open := func(root string) (*indexer.Index, error) {
		cfg, err := loadConfig(cmd, root)
		if err != nil {
			return nil, err
		}
		return a.openIndex(root, cfg)
	}

	server, err := mcp.NewServer(open, mcp.WithDefaultRoot(a.root), mcp.WithLogger(a.logger))
	if err != nil {
		return err
	}

	a.logger.Info("MCP server ready, listening on stdio",
		slog.String("version", version),
		slog.String("root", a.root))

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Serve(ctx)
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
		return server.Close()
	case err := <-errChan:
		return err
	}
}

// signalContext cancels on interrupt or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
