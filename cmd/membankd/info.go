package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// runInfo handles the "membankd info" subcommand.
func runInfo(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	opencode := fs.Bool("opencode", false, "show OpenCode MCP client configuration")
	claude := fs.Bool("claude", false, "show Claude Desktop MCP client configuration")
	cursor := fs.Bool("cursor", false, "show Cursor MCP client configuration")
	fs.Parse(args)

	switch {
	case *opencode:
		printClientConfig("OpenCode", ".opencode.json or opencode.json")
	case *claude:
		printClientConfig("Claude Desktop", "claude_desktop_config.json")
	case *cursor:
		printClientConfig("Cursor", ".cursor/mcp.json")
	default:
		printGeneralInfo()
	}
}

func printGeneralInfo() {
	fmt.Fprintf(os.Stdout, `membankd %s — structured memory bank MCP server

membankd stores typed, linked memory blocks in a branched, versioned
SQL backend (Dolt-compatible) and exposes them to MCP clients through
a tool-call API: create/read/query/update/delete blocks, link them
into a typed graph, search them semantically, and manage branches,
commits, and merges.

TRANSPORT MODES

  stdio (default)
    Communicates over stdin/stdout using JSON-RPC 2.0. Used when
    launched as a subprocess by an MCP client.

  http
    Runs as a standalone HTTP server (MCP Streamable HTTP transport,
    spec 2025-03-26). Clients send a Bearer token with each request;
    the token is placed in the request context. The author of a write
    is the created_by/author argument of the tool call.

    Endpoint:      POST /mcp
    Health check:  GET /health
    Configure with: MEMBANK_TRANSPORT=http, MEMBANK_PORT

TOOLS (17)

  Memory (5):    create_memory_block, get_memory_block,
                 query_memory_blocks, update_memory_block,
                 delete_memory_block
  Links (3):     create_block_link, delete_block_link, get_linked_blocks
  Search (1):    semantic_search
  Branch (5):    list_branches, create_branch, checkout_branch,
                 commit, merge_branches
  Namespace (2): list_namespaces, create_namespace
  Health (1):    health_check

PROMPTS (1)

  usage-guide              Orientation guide for branches, blocks, links, search

RESOURCES (2)

  memory://block-types     Registered block types and schema versions
  memory://tool-reference  Tool usage quick reference

GETTING STARTED

  1. Bootstrap the backend:   membank-admin (applies schema, seeds
                               the default namespace and block types)
  2. Start the server:        membankd
  3. Create a namespace:      create_namespace
  4. Write your first block:  create_memory_block

CLIENT CONFIGURATION

  To see configuration for a specific MCP client, run:

    membankd info --opencode    OpenCode (.opencode.json)
    membankd info --claude      Claude Desktop (claude_desktop_config.json)
    membankd info --cursor      Cursor (.cursor/mcp.json)
`, Version)
}

func printClientConfig(client, file string) {
	fmt.Fprintf(os.Stdout, `%s — stdio mode
%s

Add to %s:

{
  "mcpServers": {
    "membank": {
      "command": "membankd"
    }
  }
}

membankd runs as a subprocess and connects to the backend configured
via MEMBANK_BACKEND_HOST and friends (or membank.toml) — no separate
server process needed.

%s — HTTP mode (remote server)
%s

Add to %s:

{
  "mcpServers": {
    "membank": {
      "type": "streamable-http",
      "url": "http://your-membankd-host:7452/mcp",
      "headers": {
        "Authorization": "Bearer your-token-here"
      }
    }
  }
}

The bearer token from the Authorization header is placed in the
request context; the author of a write is the created_by/author
argument of the tool call.
`, client, strings.Repeat("─", len(client)+14), file, client, strings.Repeat("─", len(client)+30), file)
}
