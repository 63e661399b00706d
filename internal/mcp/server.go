package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/codegraph-mcp/internal/chunker"
	"github.com/dshills/codegraph-mcp/internal/indexer"
)

const (
	// ServerName is the MCP server name
	ServerName = "codegraph-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// IndexFactory creates an uninitialized Index for a project root
type IndexFactory func(root string) (*indexer.Index, error)

// Server wraps the MCP server and the per-project indexes it has opened
type Server struct {
	mcp         *server.MCPServer
	open        IndexFactory
	defaultRoot string
	logger      *slog.Logger
	chunker     *chunker.Chunker

	mu      sync.Mutex
	indexes map[string]*indexer.Index
}

// Option configures a Server
type Option func(*Server)

// WithDefaultRoot sets the project used when a tool call omits path
func WithDefaultRoot(root string) Option {
	return func(s *Server) {
		s.defaultRoot = root
	}
}

// WithLogger sets the server logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP server instance
func NewServer(open IndexFactory, opts ...Option) (*Server, error) {
	if open == nil {
		return nil, errors.New("index factory is required")
	}

	s := &Server{
		open:    open,
		logger:  slog.Default(),
		chunker: chunker.New(),
		indexes: make(map[string]*indexer.Index),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.defaultRoot != "" {
		root, err := filepath.Abs(s.defaultRoot)
		if err != nil {
			return nil, fmt.Errorf("resolve default root: %w", err)
		}
		s.defaultRoot = root
	}

	s.mcp = server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
	)

	// Register tools
	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.Close() }()
	return server.ServeStdio(s.mcp)
}

// Close releases every opened index
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for root, idx := range s.indexes {
		if err := idx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", root, err))
		}
		delete(s.indexes, root)
	}
	return errors.Join(errs...)
}

// index returns the initialized Index for root, opening it on first use
func (s *Server) index(ctx context.Context, root string) (*indexer.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.indexes[root]; ok {
		return idx, nil
	}

	idx, err := s.open(root)
	if err != nil {
		return nil, err
	}
	if err := idx.Initialize(ctx); err != nil {
		_ = idx.Close()
		return nil, err
	}
	s.indexes[root] = idx
	s.logger.Info("project opened", slog.String("root", root))
	return idx, nil
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(indexProjectTool(), s.handleIndexProject)
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(findSymbolTool(), s.handleFindSymbol)
	s.mcp.AddTool(referencingFilesTool(), s.handleReferencingFiles)
	s.mcp.AddTool(getFileTool(), s.handleGetFile)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(watchProjectTool(), s.handleWatchProject)
	return nil
}
