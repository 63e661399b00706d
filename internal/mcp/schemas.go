package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// pathProperty is shared by every tool; it may be omitted when the server
// has a default project root
var pathProperty = map[string]interface{}{
	"type":        "string",
	"description": "Absolute path to the project root (defaults to the server's project)",
}

// indexProjectTool returns the tool definition for index_project
func indexProjectTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_project",
		Description: "Index or incrementally re-index a project and return its Merkle root",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty,
			},
		},
	}
}

// searchCodeTool returns the tool definition for search_code
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_code",
		Description: "Rank project files by relevance to a natural language or keyword query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty,
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or symbol names)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     5,
					"minimum":     1,
					"maximum":     100,
				},
				"search_mode": map[string]interface{}{
					"type":        "string",
					"description": "Ranking: hybrid (semantic + structural), semantic (embeddings only) or structural (symbol names only)",
					"enum":        []string{"hybrid", "semantic", "structural"},
					"default":     "hybrid",
				},
				"snippets": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, return excerpts around the matched symbols instead of whole files",
					"default":     false,
				},
				"snippet_tokens": map[string]interface{}{
					"type":        "integer",
					"description": "Approximate token budget for the excerpts of each file",
					"default":     1000,
					"minimum":     1,
				},
			},
			Required: []string{"query"},
		},
	}
}

// findSymbolTool returns the tool definition for find_symbol
func findSymbolTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_symbol",
		Description: "List every declaration of a symbol name with file, line and kind",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty,
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Exact symbol name",
				},
			},
			Required: []string{"name"},
		},
	}
}

// referencingFilesTool returns the tool definition for referencing_files
func referencingFilesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "referencing_files",
		Description: "List files that mention symbols declared in a file, or files a file depends on",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty,
				"file": map[string]interface{}{
					"type":        "string",
					"description": "File path relative to the project root",
				},
				"direction": map[string]interface{}{
					"type":        "string",
					"description": "incoming: files referencing this file; outgoing: files this file references",
					"enum":        []string{"incoming", "outgoing"},
					"default":     "incoming",
				},
			},
			Required: []string{"file"},
		},
	}
}

// getFileTool returns the tool definition for get_file
func getFileTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_file",
		Description: "Return the indexed content of a file, indexing it first if needed",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty,
				"file": map[string]interface{}{
					"type":        "string",
					"description": "File path relative to the project root",
				},
			},
			Required: []string{"file"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Query index status and statistics for a project",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty,
			},
		},
	}
}

// watchProjectTool returns the tool definition for watch_project
func watchProjectTool() mcp.Tool {
	return mcp.Tool{
		Name:        "watch_project",
		Description: "Start or stop keeping the index current with file changes",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty,
				"enabled": map[string]interface{}{
					"type":        "boolean",
					"description": "true starts watching, false stops",
					"default":     true,
				},
			},
		},
	}
}
