// Package search implements the semantic_search tool over C6 (spec
// §4.6).
package search

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cognisys/memorybank/internal/bank"
	"github.com/cognisys/memorybank/internal/index"
	"github.com/cognisys/memorybank/internal/mcp"
)

type params struct {
	Text        string   `json:"text"`
	NamespaceID string   `json:"namespace_id,omitempty"`
	Type        string   `json:"type,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	K           int      `json:"k,omitempty"`
}

type SemanticSearch struct{ bank *bank.Bank }

func NewSemanticSearch(b *bank.Bank) *SemanticSearch { return &SemanticSearch{bank: b} }

func (t *SemanticSearch) Name() string { return "semantic_search" }
func (t *SemanticSearch) Description() string {
	return "Run a cosine-similarity search over indexed memory blocks, optionally filtered by namespace, type, and tags."
}
func (t *SemanticSearch) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "text": {"type": "string", "description": "Query text to embed and search for"},
    "namespace_id": {"type": "string"},
    "type": {"type": "string"},
    "tags": {"type": "array", "items": {"type": "string"}},
    "k": {"type": "integer", "description": "Number of results to return (default 10)"}
  },
  "required": ["text"]
}`)
}

func (t *SemanticSearch) Execute(ctx context.Context, raw json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p params
	if err := json.Unmarshal(raw, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.Text == "" {
		return mcp.ErrorResult("text is required"), nil
	}

	k := p.K
	if k <= 0 {
		k = 10
	}

	res := t.bank.SemanticSearch(ctx, index.QueryParams{
		Text: p.Text,
		Filters: index.Filters{
			NamespaceID: p.NamespaceID,
			Type:        p.Type,
			Tags:        p.Tags,
		},
		K: k,
	})

	out, err := mcp.JSONResult(res)
	if err != nil {
		return nil, err
	}
	out.IsError = !res.OK
	return out, nil
}
