// Package mcp implements the Model Context Protocol (MCP) server for codegraph.
//
// The MCP server exposes these tools to code generation clients:
//   - index_project: index or incrementally re-index a project
//   - search_code: rank files by hybrid semantic and structural relevance
//   - find_symbol: list every declaration of a symbol name
//   - referencing_files: files mentioning a file's symbols, or the reverse
//   - get_file: indexed content of a file
//   - get_status: index statistics and watch state
//   - watch_project: start or stop live re-indexing
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Stdout carries protocol messages only; logs go to stderr.
//
// # Basic Usage
//
// The MCP server is typically started via the serve command:
//
//	codegraph serve --root /path/to/project
//
// Every tool accepts an optional absolute "path". When it is omitted the
// server's default root is used. Each project root gets its own index,
// opened and initialized on first use and kept until the server exits.
//
// # Tool: search_code
//
//	Request:
//	{
//	  "name": "search_code",
//	  "arguments": {
//	    "query": "parse configuration file",
//	    "limit": 5,
//	    "search_mode": "hybrid"
//	  }
//	}
//
//	Response:
//	{
//	  "results": [
//	    {
//	      "rank": 1,
//	      "file": "internal/config/config.go",
//	      "score": 0.83,
//	      "semantic_score": 0.76,
//	      "structural_score": 1,
//	      "symbols": ["Load", "Parse"],
//	      "content": "package config ..."
//	    }
//	  ],
//	  "total_results": 1,
//	  "search_mode": "hybrid",
//	  "duration_ms": 4,
//	  "cache_hit": false
//	}
//
// # Error Handling
//
// Failures are returned as *MCPError with JSON-RPC style codes:
//
//	-32602  invalid parameters (including paths outside the project)
//	-32603  internal error
//	-32001  path is not a usable project root
//	-32002  another index_project run is in progress
//	-32003  project not initialized
//	-32004  empty query
package mcp
