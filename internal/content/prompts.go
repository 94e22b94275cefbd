// Package content provides MCP prompts and resources for the memory bank
// server.
package content

import "github.com/cognisys/memorybank/internal/mcp"

// --- usage-guide prompt ---

// UsageGuidePrompt orients a new MCP client on the branch/commit/namespace
// model and the tool surface for reading and writing memory blocks.
type UsageGuidePrompt struct{}

func (p *UsageGuidePrompt) Definition() mcp.PromptDefinition {
	return mcp.PromptDefinition{
		Name:        "usage-guide",
		Description: "Orientation guide for working with the memory bank: branches, commits, namespaces, blocks, links, and search.",
		Arguments:   []mcp.PromptArgument{},
	}
}

func (p *UsageGuidePrompt) Get(arguments map[string]string) (*mcp.PromptsGetResult, error) {
	return &mcp.PromptsGetResult{
		Description: "How to work with the memory bank",
		Messages: []mcp.PromptMessage{
			{Role: "user", Content: mcp.TextContent(usageGuideContent)},
		},
	}, nil
}

const usageGuideContent = `# Working With the Memory Bank

The memory bank stores structured, typed "memory blocks" in a versioned
SQL backend. Every read and write happens against a **branch** — an
isolated line of history you can checkout, commit to, and merge, the
same way you would with a source repository.

## Step 1: Know your branch

Most tools take an optional ` + "`branch`" + ` parameter. If you omit it, the
default branch is used. Use ` + "`list_branches`" + ` to see what exists, and
` + "`create_branch`" + ` to fork a new line of work off an existing branch's
head:

` + "```" + `
create_branch { "name": "experiment-1", "from": "main" }
` + "```" + `

` + "`checkout_branch`" + ` rebinds one pooled persistent connection to a
different branch. Reads that name no branch still use the configured
default branch.

## Step 2: Pick a namespace

Namespaces scope blocks so unrelated projects don't collide. List what's
registered with ` + "`list_namespaces`" + `, or create one with
` + "`create_namespace`" + ` before writing your first block into it.

## Step 3: Create memory blocks

` + "`create_memory_block`" + ` writes a new typed block. ` + "`type`" + ` must be a
block type registered in the schema registry (see the
` + "`memory://block-types`" + ` resource for the current list and their JSON
Schemas); the block's metadata is validated against that schema before
anything is written. Every successful block write produces a commit and
a proof row recording the block, the operation, and the commit hash.

` + "```" + `
create_memory_block {
  "type": "knowledge",
  "text": "Connection pooling uses ephemeral vs persistent modes...",
  "tags": ["pooling", "architecture"]
}
` + "```" + `

Use ` + "`get_memory_block`" + ` to fetch one block by ID, and
` + "`query_memory_blocks`" + ` to page through blocks filtered by namespace,
type, tags, or state.

## Step 4: Update and delete

` + "`update_memory_block`" + ` applies a partial patch (text, tags, metadata,
state, visibility, ...). Pass ` + "`expected_version`" + ` to get an optimistic
concurrency check — the update fails if the block has moved on since you
read it. ` + "`delete_memory_block`" + ` removes a block outright; both
operations commit and, where relevant, re-validate against the schema.

## Step 5: Link blocks together

Blocks form a typed directed graph. ` + "`create_block_link`" + ` connects two
blocks with a relation such as ` + "`depends_on`" + `, ` + "`blocks`" + `,
` + "`child_of`" + `, ` + "`related_to`" + `, ` + "`references`" + `, or ` + "`duplicates`" + ` (aliases
are accepted and canonicalized). Set ` + "`bidirectional: true`" + ` to also
insert the relation's declared inverse in one call.

Links that would create a cycle in the ` + "`depends_on`" + `/` + "`blocks`" + `
subgraph are rejected — dependency chains must stay acyclic. Use
` + "`get_linked_blocks`" + ` to walk a block's neighbors, optionally filtered
by relation and direction (outbound, inbound, or both).

## Step 6: Search semantically

` + "`semantic_search`" + ` runs a similarity search over indexed blocks and
returns scored snippets, filterable by namespace, type, and tags. The
index is kept in sync with writes on a best-effort basis; if a write
reports success but indexing failed, the block is still durably
committed and a background reconciler will catch the index up.

## Step 7: Commit and merge

Writes auto-commit as part of their envelope, but you can also commit
directly with ` + "`commit`" + ` (useful after several related writes land on a
scratch branch) and fold a branch back in with ` + "`merge_branches`" + `. A
merge the backend cannot resolve automatically is reported as a commit
failure rather than left half-applied.

## Common Mistakes

- Forgetting that ` + "`type`" + ` must already be registered — check
  ` + "`memory://block-types`" + ` before inventing a new type.
- Writing to a protected branch (commonly the default branch) without
  realizing writes there may be rejected; branch off first.
- Ignoring ` + "`expected_version`" + ` on updates and silently clobbering a
  concurrent change.
- Treating a partial success (written and committed, but not yet
  indexed) as a failure — check the ` + "`ok`" + ` flag and the error kind
  before retrying a write that already landed.

## Start Now!

Call ` + "`health_check`" + ` first to confirm the backend is reachable and see
what block types are registered, then create your first namespace and
block.
`
