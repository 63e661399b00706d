package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codegraph-mcp/internal/indexer"
)

func newTestProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"math.js": "function add(a, b) {\n  return a + b\n}\n",
		"app.js":  "const total = add(1, 2)\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func newTestServer(t *testing.T, root string) *Server {
	t.Helper()
	open := func(root string) (*indexer.Index, error) {
		return indexer.New(indexer.Config{Root: root, StorageBackend: indexer.BackendNone})
	}
	s, err := NewServer(open, WithDefaultRoot(root))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func decodeResult(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func requireMCPError(t *testing.T, err error, code int) {
	t.Helper()
	var mcpErr *MCPError
	require.True(t, errors.As(err, &mcpErr), "expected MCPError, got %v", err)
	assert.Equal(t, code, mcpErr.Code)
}

func TestNewServerRequiresFactory(t *testing.T) {
	_, err := NewServer(nil)
	assert.Error(t, err)
}

func TestToolsEndToEnd(t *testing.T) {
	root := newTestProject(t)
	s := newTestServer(t, root)
	ctx := context.Background()

	result, err := s.handleIndexProject(ctx, callRequest("index_project", nil))
	require.NoError(t, err)
	out := decodeResult(t, result)
	assert.Equal(t, true, out["indexed"])
	assert.Equal(t, float64(2), out["files_indexed"])
	assert.Len(t, out["merkle_root"], 64)

	result, err = s.handleSearchCode(ctx, callRequest("search_code", map[string]interface{}{
		"query": "add numbers",
		"limit": float64(1),
	}))
	require.NoError(t, err)
	out = decodeResult(t, result)
	results := out["results"].([]interface{})
	require.Len(t, results, 1)
	assert.Equal(t, "math.js", results[0].(map[string]interface{})["file"])

	result, err = s.handleSearchCode(ctx, callRequest("search_code", map[string]interface{}{
		"query":    "add numbers",
		"limit":    float64(1),
		"snippets": true,
	}))
	require.NoError(t, err)
	out = decodeResult(t, result)
	first := out["results"].([]interface{})[0].(map[string]interface{})
	assert.NotContains(t, first, "content")
	snippets := first["snippets"].([]interface{})
	require.Len(t, snippets, 1)
	assert.Equal(t, "add", snippets[0].(map[string]interface{})["symbol"])

	result, err = s.handleFindSymbol(ctx, callRequest("find_symbol", map[string]interface{}{"name": "add"}))
	require.NoError(t, err)
	out = decodeResult(t, result)
	decls := out["declarations"].([]interface{})
	require.Len(t, decls, 1)
	assert.Equal(t, "math.js", decls[0].(map[string]interface{})["file"])

	result, err = s.handleReferencingFiles(ctx, callRequest("referencing_files", map[string]interface{}{"file": "math.js"}))
	require.NoError(t, err)
	out = decodeResult(t, result)
	assert.Equal(t, []interface{}{"app.js"}, out["files"])

	result, err = s.handleReferencingFiles(ctx, callRequest("referencing_files", map[string]interface{}{
		"file":      "app.js",
		"direction": "outgoing",
	}))
	require.NoError(t, err)
	out = decodeResult(t, result)
	assert.Equal(t, []interface{}{"math.js"}, out["files"])

	result, err = s.handleGetFile(ctx, callRequest("get_file", map[string]interface{}{"file": "app.js"}))
	require.NoError(t, err)
	out = decodeResult(t, result)
	assert.Equal(t, true, out["found"])
	assert.Equal(t, "const total = add(1, 2)\n", out["content"])

	result, err = s.handleGetStatus(ctx, callRequest("get_status", map[string]interface{}{"path": root}))
	require.NoError(t, err)
	out = decodeResult(t, result)
	stats := out["statistics"].(map[string]interface{})
	assert.Equal(t, float64(2), stats["files_count"])
}

func TestWatchProjectTool(t *testing.T) {
	s := newTestServer(t, newTestProject(t))
	ctx := context.Background()

	result, err := s.handleWatchProject(ctx, callRequest("watch_project", nil))
	require.NoError(t, err)
	assert.Equal(t, true, decodeResult(t, result)["watching"])

	result, err = s.handleWatchProject(ctx, callRequest("watch_project", map[string]interface{}{"enabled": false}))
	require.NoError(t, err)
	assert.Equal(t, false, decodeResult(t, result)["watching"])
}

func TestToolValidation(t *testing.T) {
	root := newTestProject(t)
	s := newTestServer(t, root)
	ctx := context.Background()

	_, err := s.handleSearchCode(ctx, callRequest("search_code", map[string]interface{}{"query": ""}))
	requireMCPError(t, err, ErrorCodeEmptyQuery)

	_, err = s.handleSearchCode(ctx, callRequest("search_code", map[string]interface{}{
		"query":       "add",
		"search_mode": "vector",
	}))
	requireMCPError(t, err, ErrorCodeInvalidParams)

	_, err = s.handleSearchCode(ctx, callRequest("search_code", map[string]interface{}{
		"query": "add",
		"limit": float64(500),
	}))
	requireMCPError(t, err, ErrorCodeInvalidParams)

	_, err = s.handleFindSymbol(ctx, callRequest("find_symbol", map[string]interface{}{}))
	requireMCPError(t, err, ErrorCodeInvalidParams)

	_, err = s.handleGetFile(ctx, callRequest("get_file", map[string]interface{}{"file": "../outside.js"}))
	requireMCPError(t, err, ErrorCodeInvalidParams)

	_, err = s.handleGetStatus(ctx, callRequest("get_status", map[string]interface{}{"path": "relative/path"}))
	requireMCPError(t, err, ErrorCodeProjectNotFound)

	_, err = s.handleGetStatus(ctx, callRequest("get_status", map[string]interface{}{"path": filepath.Join(root, "missing")}))
	requireMCPError(t, err, ErrorCodeProjectNotFound)
}

func TestPathRequiredWithoutDefaultRoot(t *testing.T) {
	s, err := NewServer(func(root string) (*indexer.Index, error) {
		return indexer.New(indexer.Config{Root: root, StorageBackend: indexer.BackendNone})
	})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.handleGetStatus(context.Background(), callRequest("get_status", nil))
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestIndexesAreCachedPerRoot(t *testing.T) {
	root := newTestProject(t)
	opened := 0
	s, err := NewServer(func(r string) (*indexer.Index, error) {
		opened++
		return indexer.New(indexer.Config{Root: r, StorageBackend: indexer.BackendNone})
	}, WithDefaultRoot(root))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := s.handleGetStatus(ctx, callRequest("get_status", nil))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, opened)

	require.NoError(t, s.Close())
	_, err = s.handleGetStatus(ctx, callRequest("get_status", nil))
	require.NoError(t, err)
	assert.Equal(t, 2, opened, "closed indexes are reopened on demand")
}

func TestValidatePath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	tests := []struct {
		name string
		path string
		want error
	}{
		{"empty", "", ErrPathRequired},
		{"relative", "some/dir", ErrPathNotAbsolute},
		{"missing", filepath.Join(dir, "nope"), ErrPathNotFound},
		{"file", file, ErrNotDirectory},
		{"ok", dir, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePath(tt.path)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
