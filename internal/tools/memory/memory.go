// Package memory implements the memory-block tool surface (spec §4.4,
// §4.3, §6): create_memory_block, update_memory_block,
// delete_memory_block, get_memory_block, query_memory_blocks.
package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cognisys/memorybank/internal/bank"
	"github.com/cognisys/memorybank/internal/mcp"
	"github.com/cognisys/memorybank/internal/reader"
	"github.com/cognisys/memorybank/internal/writer"
)

// result renders a bank.Result as the tool's ToolsCallResult, setting
// IsError when the call failed rather than surfacing a transport-level
// error — the caller always gets a structured envelope back.
func result(r bank.Result) (*mcp.ToolsCallResult, error) {
	res, err := mcp.JSONResult(r)
	if err != nil {
		return nil, err
	}
	res.IsError = !r.OK
	return res, nil
}

// --- create_memory_block ---

type createParams struct {
	Branch      string         `json:"branch,omitempty"`
	NamespaceID string         `json:"namespace_id,omitempty"`
	Type        string         `json:"type"`
	Text        string         `json:"text"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	ParentID    *string        `json:"parent_id,omitempty"`
	Visibility  string         `json:"visibility,omitempty"`
	SourceFile  *string        `json:"source_file,omitempty"`
	SourceURI   *string        `json:"source_uri,omitempty"`
	CreatedBy   string         `json:"created_by,omitempty"`
	Message     string         `json:"commit_message,omitempty"`
}

type CreateMemoryBlock struct{ bank *bank.Bank }

func NewCreateMemoryBlock(b *bank.Bank) *CreateMemoryBlock { return &CreateMemoryBlock{bank: b} }

func (t *CreateMemoryBlock) Name() string { return "create_memory_block" }
func (t *CreateMemoryBlock) Description() string {
	return "Create a new memory block of the given type, validated against its registered schema, committed to the versioned backend, and indexed for semantic search."
}
func (t *CreateMemoryBlock) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "branch": {"type": "string", "description": "Branch to write to; defaults to the configured default branch"},
    "namespace_id": {"type": "string", "description": "Namespace to scope the block to; defaults to the configured default namespace"},
    "type": {"type": "string", "description": "Registered block type (e.g. task, note, doc, bug)"},
    "text": {"type": "string", "description": "The block's primary content"},
    "tags": {"type": "array", "items": {"type": "string"}},
    "metadata": {"type": "object", "description": "Typed metadata validated against the type's schema"},
    "parent_id": {"type": "string", "description": "Optional parent block id"},
    "visibility": {"type": "string", "enum": ["internal", "public", "restricted"]},
    "source_file": {"type": "string"},
    "source_uri": {"type": "string"},
    "created_by": {"type": "string"},
    "commit_message": {"type": "string"}
  },
  "required": ["type", "text"]
}`)
}

func (t *CreateMemoryBlock) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p createParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.Type == "" || p.Text == "" {
		return mcp.ErrorResult("type and text are required"), nil
	}

	res := t.bank.CreateMemoryBlock(ctx, bank.CreateMemoryBlockParams{
		Branch: p.Branch, NamespaceID: p.NamespaceID, Type: p.Type, Text: p.Text,
		Tags: p.Tags, Metadata: p.Metadata, ParentID: p.ParentID, Visibility: p.Visibility,
		SourceFile: p.SourceFile, SourceURI: p.SourceURI, CreatedBy: p.CreatedBy, Message: p.Message,
	})
	return result(res)
}

// --- get_memory_block ---

type getParams struct {
	Branch string `json:"branch,omitempty"`
	ID     string `json:"id"`
}

type GetMemoryBlock struct{ bank *bank.Bank }

func NewGetMemoryBlock(b *bank.Bank) *GetMemoryBlock { return &GetMemoryBlock{bank: b} }

func (t *GetMemoryBlock) Name() string        { return "get_memory_block" }
func (t *GetMemoryBlock) Description() string { return "Load a single memory block by id." }
func (t *GetMemoryBlock) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "branch": {"type": "string"},
    "id": {"type": "string"}
  },
  "required": ["id"]
}`)
}

func (t *GetMemoryBlock) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p getParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.ID == "" {
		return mcp.ErrorResult("id is required"), nil
	}
	return result(t.bank.GetMemoryBlock(ctx, p.Branch, p.ID))
}

// --- query_memory_blocks ---

type queryParams struct {
	Branch       string `json:"branch,omitempty"`
	Type         string `json:"type,omitempty"`
	State        string `json:"state,omitempty"`
	Visibility   string `json:"visibility,omitempty"`
	NamespaceID  string `json:"namespace_id,omitempty"`
	Tag          string `json:"tag,omitempty"`
	ParentID     string `json:"parent_id,omitempty"`
	CreatedAfter string `json:"created_after,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	Cursor       string `json:"cursor,omitempty"`
}

type QueryMemoryBlocks struct{ bank *bank.Bank }

func NewQueryMemoryBlocks(b *bank.Bank) *QueryMemoryBlocks { return &QueryMemoryBlocks{bank: b} }

func (t *QueryMemoryBlocks) Name() string { return "query_memory_blocks" }
func (t *QueryMemoryBlocks) Description() string {
	return "List memory blocks matching a filter, cursor-paginated by creation order."
}
func (t *QueryMemoryBlocks) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "branch": {"type": "string"},
    "type": {"type": "string"},
    "state": {"type": "string", "enum": ["draft", "published", "archived"]},
    "visibility": {"type": "string", "enum": ["internal", "public", "restricted"]},
    "namespace_id": {"type": "string"},
    "tag": {"type": "string"},
    "parent_id": {"type": "string"},
    "created_after": {"type": "string", "description": "RFC3339 timestamp"},
    "limit": {"type": "integer"},
    "cursor": {"type": "string"}
  }
}`)
}

func (t *QueryMemoryBlocks) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p queryParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	res := t.bank.QueryBlocks(ctx, bank.QueryMemoryBlocksParams{
		Branch: p.Branch,
		ListBlocksParams: reader.ListBlocksParams{
			Type: p.Type, State: p.State, Visibility: p.Visibility, NamespaceID: p.NamespaceID,
			Tag: p.Tag, ParentID: p.ParentID, CreatedAfter: p.CreatedAfter, Limit: p.Limit, Cursor: p.Cursor,
		},
	})
	return result(res)
}

// --- update_memory_block ---

type updateParams struct {
	Branch          string         `json:"branch,omitempty"`
	ID              string         `json:"id"`
	Text            *string        `json:"text,omitempty"`
	State           *string        `json:"state,omitempty"`
	Visibility      *string        `json:"visibility,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	SourceFile      *string        `json:"source_file,omitempty"`
	SourceURI       *string        `json:"source_uri,omitempty"`
	ExpectedVersion int            `json:"expected_version,omitempty"`
	Type            string         `json:"type,omitempty"`
	Author          string         `json:"author,omitempty"`
	Message         string         `json:"commit_message,omitempty"`
}

type UpdateMemoryBlock struct{ bank *bank.Bank }

func NewUpdateMemoryBlock(b *bank.Bank) *UpdateMemoryBlock { return &UpdateMemoryBlock{bank: b} }

func (t *UpdateMemoryBlock) Name() string { return "update_memory_block" }
func (t *UpdateMemoryBlock) Description() string {
	return "Apply a partial update to a memory block, optionally re-validating against its schema, using optimistic concurrency on expected_version when supplied."
}
func (t *UpdateMemoryBlock) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "branch": {"type": "string"},
    "id": {"type": "string"},
    "text": {"type": "string"},
    "state": {"type": "string", "enum": ["draft", "published", "archived"]},
    "visibility": {"type": "string", "enum": ["internal", "public", "restricted"]},
    "tags": {"type": "array", "items": {"type": "string"}},
    "metadata": {"type": "object"},
    "source_file": {"type": "string"},
    "source_uri": {"type": "string"},
    "expected_version": {"type": "integer"},
    "type": {"type": "string", "description": "Re-validate against this type's schema after applying the patch"},
    "author": {"type": "string"},
    "commit_message": {"type": "string"}
  },
  "required": ["id"]
}`)
}

func (t *UpdateMemoryBlock) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p updateParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.ID == "" {
		return mcp.ErrorResult("id is required"), nil
	}

	res := t.bank.UpdateMemoryBlock(ctx, bank.UpdateMemoryBlockParams{
		Branch: p.Branch,
		ID:     p.ID,
		Patch: writer.Patch{
			Text: p.Text, State: p.State, Visibility: p.Visibility, Tags: p.Tags, Metadata: p.Metadata,
			SourceFile: p.SourceFile, SourceURI: p.SourceURI, ExpectedVersion: p.ExpectedVersion,
		},
		Author:  p.Author,
		Message: p.Message,
		Type:    p.Type,
	})
	return result(res)
}

// --- delete_memory_block ---

type deleteParams struct {
	Branch  string `json:"branch,omitempty"`
	ID      string `json:"id"`
	Author  string `json:"author,omitempty"`
	Message string `json:"commit_message,omitempty"`
}

type DeleteMemoryBlock struct{ bank *bank.Bank }

func NewDeleteMemoryBlock(b *bank.Bank) *DeleteMemoryBlock { return &DeleteMemoryBlock{bank: b} }

func (t *DeleteMemoryBlock) Name() string { return "delete_memory_block" }
func (t *DeleteMemoryBlock) Description() string {
	return "Hard-delete a memory block, its properties, and incident links, leaving a final proof row."
}
func (t *DeleteMemoryBlock) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "branch": {"type": "string"},
    "id": {"type": "string"},
    "author": {"type": "string"},
    "commit_message": {"type": "string"}
  },
  "required": ["id"]
}`)
}

func (t *DeleteMemoryBlock) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p deleteParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.ID == "" {
		return mcp.ErrorResult("id is required"), nil
	}
	return result(t.bank.DeleteMemoryBlock(ctx, p.Branch, p.ID, p.Author, p.Message))
}
