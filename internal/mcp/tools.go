package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/codegraph-mcp/internal/chunker"
	"github.com/dshills/codegraph-mcp/internal/indexer"
	"github.com/dshills/codegraph-mcp/internal/searcher"
	"github.com/dshills/codegraph-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeProjectNotFound    = -32001 // Specified path is not a usable project root
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeNotIndexed         = -32003 // Project not initialized
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
)

// maxReportedErrors caps per-file errors echoed back by index_project
const maxReportedErrors = 5

// handleIndexProject handles the index_project tool invocation
func (s *Server) handleIndexProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	idx, _, err := s.projectFromRequest(ctx, request)
	if err != nil {
		return nil, err
	}

	root, stats, err := idx.IndexProject(ctx)
	if err != nil {
		return nil, toolError(err, "indexing failed")
	}

	response := map[string]interface{}{
		"indexed":           true,
		"merkle_root":       digestString(root),
		"files_indexed":     stats.FilesIndexed,
		"files_unchanged":   stats.FilesUnchanged,
		"files_skipped":     stats.FilesSkipped,
		"files_failed":      stats.FilesFailed,
		"files_removed":     stats.FilesRemoved,
		"symbols_extracted": stats.SymbolsExtracted,
		"duration_ms":       stats.Duration.Milliseconds(),
	}

	if len(stats.ErrorMessages) > 0 {
		errorCount := len(stats.ErrorMessages)
		if errorCount > maxReportedErrors {
			response["errors"] = stats.ErrorMessages[:maxReportedErrors]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	idx, args, err := s.projectFromRequest(ctx, request)
	if err != nil {
		return nil, err
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", 0)
	if limit < 0 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	mode := searcher.SearchMode(getStringDefault(args, "search_mode", string(searcher.SearchModeHybrid)))
	switch mode {
	case searcher.SearchModeHybrid, searcher.SearchModeSemantic, searcher.SearchModeStructural:
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid search_mode", map[string]interface{}{
			"param":   "search_mode",
			"value":   mode,
			"allowed": []string{"hybrid", "semantic", "structural"},
		})
	}

	resp, err := idx.Search(ctx, searcher.SearchRequest{
		Query:    query,
		Limit:    limit,
		Mode:     mode,
		UseCache: true,
	})
	if err != nil {
		return nil, toolError(err, "search failed")
	}

	snippets := getBoolDefault(args, "snippets", false)
	budget := getIntDefault(args, "snippet_tokens", chunker.MaxTokensPerChunk)

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		entry := map[string]interface{}{
			"rank":             r.Rank,
			"file":             r.File,
			"score":            r.CombinedScore,
			"semantic_score":   r.SemanticScore,
			"structural_score": r.StructuralScore,
			"symbols":          r.Symbols,
		}
		if snippets {
			symbols, err := idx.SymbolsOf(r.File)
			if err != nil {
				return nil, toolError(err, "search failed")
			}
			entry["snippets"] = formatChunks(s.chunker.Excerpt(r.Content, symbols, query, budget))
		} else {
			entry["content"] = r.Content
		}
		results = append(results, entry)
	}

	response := map[string]interface{}{
		"results":       results,
		"total_results": resp.TotalResults,
		"search_mode":   resp.SearchMode,
		"duration_ms":   resp.Duration.Milliseconds(),
		"cache_hit":     resp.CacheHit,
	}
	if resp.Degraded {
		response["degraded"] = true
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleFindSymbol handles the find_symbol tool invocation
func (s *Server) handleFindSymbol(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	idx, args, err := s.projectFromRequest(ctx, request)
	if err != nil {
		return nil, err
	}

	name, err := requireString(args, "name")
	if err != nil {
		return nil, err
	}

	refs, err := idx.FindSymbolReferences(name)
	if err != nil {
		return nil, toolError(err, "symbol lookup failed")
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"name":         name,
		"declarations": refs,
	})), nil
}

// handleReferencingFiles handles the referencing_files tool invocation
func (s *Server) handleReferencingFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	idx, args, err := s.projectFromRequest(ctx, request)
	if err != nil {
		return nil, err
	}

	file, err := requireString(args, "file")
	if err != nil {
		return nil, err
	}

	direction := getStringDefault(args, "direction", "incoming")
	var files []string
	switch direction {
	case "incoming":
		files, err = idx.GetReferencingFiles(file)
	case "outgoing":
		files, err = idx.GetReferencedFiles(file)
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid direction", map[string]interface{}{
			"param":   "direction",
			"value":   direction,
			"allowed": []string{"incoming", "outgoing"},
		})
	}
	if err != nil {
		return nil, toolError(err, "reference lookup failed")
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"file":      file,
		"direction": direction,
		"files":     files,
	})), nil
}

// handleGetFile handles the get_file tool invocation
func (s *Server) handleGetFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	idx, args, err := s.projectFromRequest(ctx, request)
	if err != nil {
		return nil, err
	}

	file, err := requireString(args, "file")
	if err != nil {
		return nil, err
	}

	content, found, err := idx.GetFileContent(ctx, file)
	if err != nil {
		return nil, toolError(err, "failed to read file")
	}

	response := map[string]interface{}{
		"file":  file,
		"found": found,
	}
	if found {
		response["content"] = content
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	idx, _, err := s.projectFromRequest(ctx, request)
	if err != nil {
		return nil, err
	}

	st := idx.Status()
	response := map[string]interface{}{
		"project": map[string]interface{}{
			"path":        st.Root,
			"initialized": st.Initialized,
			"merkle_root": st.MerkleRoot,
			"root_stale":  st.RootStale,
			"snapshot":    st.Snapshot,
		},
		"statistics": map[string]interface{}{
			"files_count":       st.Files,
			"symbols_count":     st.Symbols,
			"edges_count":       st.Edges,
			"cached_embeddings": st.CachedVecs,
		},
		"activity": map[string]interface{}{
			"indexing":    st.Indexing,
			"watching":    st.Watching,
			"watch_state": st.WatchState,
		},
		"search": map[string]interface{}{
			"embedding_provider": st.Provider,
			"semantic_weight":    st.SemanticWeight,
			"structural_weight":  st.StructuralWeight,
		},
	}
	if !st.LastIndexed.IsZero() {
		response["project"].(map[string]interface{})["last_indexed_at"] = st.LastIndexed.Format(time.RFC3339)
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleWatchProject handles the watch_project tool invocation
func (s *Server) handleWatchProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	idx, args, err := s.projectFromRequest(ctx, request)
	if err != nil {
		return nil, err
	}

	if getBoolDefault(args, "enabled", true) {
		// The watch outlives this request
		if err := idx.StartWatching(context.WithoutCancel(ctx)); err != nil {
			return nil, toolError(err, "failed to start watching")
		}
	} else {
		idx.StopWatching()
	}

	st := idx.Status()
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"path":        st.Root,
		"watching":    st.Watching,
		"watch_state": st.WatchState,
	})), nil
}

// Helper functions

// projectFromRequest resolves the project root of a tool call and returns
// its index together with the call arguments
func (s *Server) projectFromRequest(ctx context.Context, request mcp.CallToolRequest) (*indexer.Index, map[string]interface{}, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		if request.Params.Arguments != nil {
			return nil, nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
		}
		args = map[string]interface{}{}
	}

	path := getStringDefault(args, "path", s.defaultRoot)
	if path == "" {
		return nil, nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	if err := validatePath(path); err != nil {
		return nil, nil, newMCPError(ErrorCodeProjectNotFound, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	idx, err := s.index(ctx, filepath.Clean(path))
	if err != nil {
		return nil, nil, newMCPError(ErrorCodeInternalError, "failed to open project", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return idx, args, nil
}

// toolError maps index errors to MCP error codes
func toolError(err error, message string) error {
	code := ErrorCodeInternalError
	switch {
	case errors.Is(err, indexer.ErrIndexingInProgress):
		code = ErrorCodeIndexingInProgress
	case errors.Is(err, types.ErrNotInitialized):
		code = ErrorCodeNotIndexed
	case errors.Is(err, searcher.ErrEmptyQuery):
		code = ErrorCodeEmptyQuery
	case errors.Is(err, types.ErrInvalidPath):
		code = ErrorCodeInvalidParams
	}
	return newMCPError(code, message, map[string]interface{}{
		"error": err.Error(),
	})
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks that a project root exists and is a readable directory
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

func requireString(args map[string]interface{}, key string) (string, error) {
	val, ok := args[key].(string)
	if !ok || val == "" {
		return "", newMCPError(ErrorCodeInvalidParams, key+" parameter is required", map[string]interface{}{
			"param":  key,
			"reason": "missing or empty",
		})
	}
	return val, nil
}

func formatChunks(chunks []chunker.Chunk) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(chunks))
	for _, ch := range chunks {
		out = append(out, map[string]interface{}{
			"symbol":     ch.Symbol,
			"start_line": ch.StartLine,
			"end_line":   ch.EndLine,
			"tokens":     ch.TokenCount,
			"truncated":  ch.Truncated,
			"content":    ch.Content,
		})
	}
	return out
}

func digestString(d *types.Digest) string {
	if d == nil {
		return ""
	}
	return d.String()
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok && val != "" {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
