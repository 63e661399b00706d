package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/codegraph-mcp/internal/config"
	"github.com/dshills/codegraph-mcp/internal/embedder"
	"github.com/dshills/codegraph-mcp/internal/indexer"
	"github.com/dshills/codegraph-mcp/internal/metrics"
)

var (
	flagRoot   string
	flagConfig string
)

var rootCmd = &cobra.Command{
	Use:          "codegraph",
	Short:        "Incremental code index with hybrid semantic and structural search",
	SilenceUsage: true, // don't print usage on operational errors
	Long: `codegraph keeps a content-addressed index of a source tree: file digests
and a Merkle root, declared symbols, cross-file references and cached
embeddings. It answers ranked relevance queries from the CLI or over MCP.`,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagRoot, "root", ".", "Project root directory")
	pf.StringVarP(&flagConfig, "config", "c", "", "Config file (default <root>/.codegraph/config.yaml)")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("log-format", "text", "Log format: text or json")
	pf.String("backend", "json", "Snapshot storage: json, sqlite or none")
	pf.String("provider", "", "Embedding provider: jina, openai or local (default auto-detect)")
	pf.Int("workers", 0, "Concurrent file readers (default number of CPUs)")
	pf.Int64("max-file-size", indexer.DefaultMaxFileSize, "Skip files larger than this many bytes")
}

// projectRoot resolves --root to an absolute path
func projectRoot() (string, error) {
	root, err := filepath.Abs(flagRoot)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	return root, nil
}

// loadConfig resolves configuration for root with cmd's flags applied
func loadConfig(cmd *cobra.Command, root string) (*config.Config, error) {
	return config.Load(root, flagConfig, cmd.Flags())
}

// newLogger builds the process logger. Logs always go to stderr; stdout
// is reserved for command output and the MCP protocol.
func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// app bundles what every command needs for one project
type app struct {
	root    string
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func newApp(cmd *cobra.Command) (*app, error) {
	root, err := projectRoot()
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(cmd, root)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	a := &app{root: root, cfg: cfg, logger: logger}
	if cfg.Metrics.Addr != "" {
		a.metrics = metrics.New()
	}
	return a, nil
}

// serveMetrics exposes /metrics in the background when configured
func (a *app) serveMetrics(ctx context.Context) {
	if a.metrics == nil {
		return
	}
	go func() {
		if err := a.metrics.Serve(ctx, a.cfg.Metrics.Addr, a.logger); err != nil {
			a.logger.Error("metrics endpoint failed", slog.Any("error", err))
		}
	}()
}

// openIndex creates an uninitialized index for root using cfg
func (a *app) openIndex(root string, cfg *config.Config) (*indexer.Index, error) {
	emb, err := embedder.New(cfg.EmbedderConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	idx, err := indexer.New(cfg.IndexerConfig(root),
		indexer.WithEmbedder(emb),
		indexer.WithLogger(a.logger),
		indexer.WithMetrics(a.metrics),
	)
	if err != nil {
		_ = emb.Close()
		return nil, err
	}
	return idx, nil
}

// initializedIndex opens and initializes the index for the app's root
func (a *app) initializedIndex(ctx context.Context) (*indexer.Index, error) {
	idx, err := a.openIndex(a.root, a.cfg)
	if err != nil {
		return nil, err
	}
	if err := idx.Initialize(ctx); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return idx, nil
}
