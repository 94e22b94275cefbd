// Package links implements the link tool surface (spec §4.5):
// create_block_link, delete_block_link, get_linked_blocks.
package links

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cognisys/memorybank/internal/bank"
	linkmgr "github.com/cognisys/memorybank/internal/links"
	"github.com/cognisys/memorybank/internal/mcp"
)

func result(r bank.Result) (*mcp.ToolsCallResult, error) {
	res, err := mcp.JSONResult(r)
	if err != nil {
		return nil, err
	}
	res.IsError = !r.OK
	return res, nil
}

// --- create_block_link ---

type createParams struct {
	Branch        string         `json:"branch,omitempty"`
	From          string         `json:"from_id"`
	To            string         `json:"to_id"`
	Relation      string         `json:"relation"`
	Bidirectional bool           `json:"bidirectional,omitempty"`
	Priority      int            `json:"priority,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedBy     string         `json:"created_by,omitempty"`
}

type CreateBlockLink struct{ bank *bank.Bank }

func NewCreateBlockLink(b *bank.Bank) *CreateBlockLink { return &CreateBlockLink{bank: b} }

func (t *CreateBlockLink) Name() string { return "create_block_link" }
func (t *CreateBlockLink) Description() string {
	return "Create a typed directed link between two memory blocks, optionally inserting the declared inverse relation too. Rejects links that would create a dependency cycle."
}
func (t *CreateBlockLink) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "branch": {"type": "string"},
    "from_id": {"type": "string"},
    "to_id": {"type": "string"},
    "relation": {"type": "string", "description": "depends_on, blocks, child_of, parent_of, related_to, references, duplicates (or a known alias)"},
    "bidirectional": {"type": "boolean", "description": "Also insert the declared inverse relation"},
    "priority": {"type": "integer"},
    "metadata": {"type": "object"},
    "created_by": {"type": "string"}
  },
  "required": ["from_id", "to_id", "relation"]
}`)
}

func (t *CreateBlockLink) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p createParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.From == "" || p.To == "" || p.Relation == "" {
		return mcp.ErrorResult("from_id, to_id, and relation are required"), nil
	}

	rel, err := linkmgr.Canonicalize(p.Relation)
	if err != nil {
		return mcp.ErrorResult(err.Error()), nil
	}

	res := t.bank.CreateLink(ctx, p.Branch, linkmgr.Params{
		From: p.From, To: p.To, Relation: rel, Bidirectional: p.Bidirectional,
		Priority: p.Priority, Metadata: p.Metadata, CreatedBy: p.CreatedBy,
	})
	return result(res)
}

// --- delete_block_link ---

type deleteParams struct {
	Branch   string `json:"branch,omitempty"`
	From     string `json:"from_id"`
	To       string `json:"to_id"`
	Relation string `json:"relation"`
	Author   string `json:"author,omitempty"`
}

type DeleteBlockLink struct{ bank *bank.Bank }

func NewDeleteBlockLink(b *bank.Bank) *DeleteBlockLink { return &DeleteBlockLink{bank: b} }

func (t *DeleteBlockLink) Name() string        { return "delete_block_link" }
func (t *DeleteBlockLink) Description() string { return "Remove exactly the given (from, to, relation) link." }
func (t *DeleteBlockLink) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "branch": {"type": "string"},
    "from_id": {"type": "string"},
    "to_id": {"type": "string"},
    "relation": {"type": "string"},
    "author": {"type": "string"}
  },
  "required": ["from_id", "to_id", "relation"]
}`)
}

func (t *DeleteBlockLink) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p deleteParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.From == "" || p.To == "" || p.Relation == "" {
		return mcp.ErrorResult("from_id, to_id, and relation are required"), nil
	}

	rel, err := linkmgr.Canonicalize(p.Relation)
	if err != nil {
		return mcp.ErrorResult(err.Error()), nil
	}

	return result(t.bank.DeleteLink(ctx, p.Branch, p.From, p.To, rel, p.Author))
}

// --- get_linked_blocks ---

type neighborsParams struct {
	Branch    string   `json:"branch,omitempty"`
	BlockID   string   `json:"block_id"`
	Relations []string `json:"relations,omitempty"`
	Direction string   `json:"direction,omitempty"`
}

type GetLinkedBlocks struct{ bank *bank.Bank }

func NewGetLinkedBlocks(b *bank.Bank) *GetLinkedBlocks { return &GetLinkedBlocks{bank: b} }

func (t *GetLinkedBlocks) Name() string { return "get_linked_blocks" }
func (t *GetLinkedBlocks) Description() string {
	return "List the links touching a block, optionally filtered by relation and direction."
}
func (t *GetLinkedBlocks) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "branch": {"type": "string"},
    "block_id": {"type": "string"},
    "relations": {"type": "array", "items": {"type": "string"}},
    "direction": {"type": "string", "enum": ["outbound", "inbound", "both"]}
  },
  "required": ["block_id"]
}`)
}

func (t *GetLinkedBlocks) Execute(ctx context.Context, params json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p neighborsParams
	if err := json.Unmarshal(params, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.BlockID == "" {
		return mcp.ErrorResult("block_id is required"), nil
	}

	rels := make([]linkmgr.Relation, 0, len(p.Relations))
	for _, r := range p.Relations {
		canon, err := linkmgr.Canonicalize(r)
		if err != nil {
			return mcp.ErrorResult(err.Error()), nil
		}
		rels = append(rels, canon)
	}

	direction := linkmgr.Direction(p.Direction)
	if direction == "" {
		direction = linkmgr.Both
	}

	res := t.bank.GetLinkedBlocks(ctx, p.Branch, linkmgr.NeighborsParams{
		BlockID: p.BlockID, Relations: rels, Direction: direction,
	})
	return result(res)
}
