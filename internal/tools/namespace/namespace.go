// Package namespace implements list_namespaces and create_namespace
// (spec §4.3, §3 Namespace).
package namespace

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cognisys/memorybank/internal/bank"
	"github.com/cognisys/memorybank/internal/mcp"
	"github.com/cognisys/memorybank/internal/store"
)

func result(r bank.Result) (*mcp.ToolsCallResult, error) {
	res, err := mcp.JSONResult(r)
	if err != nil {
		return nil, err
	}
	res.IsError = !r.OK
	return res, nil
}

// --- list_namespaces ---

type ListNamespaces struct{ bank *bank.Bank }

func NewListNamespaces(b *bank.Bank) *ListNamespaces { return &ListNamespaces{bank: b} }

func (t *ListNamespaces) Name() string        { return "list_namespaces" }
func (t *ListNamespaces) Description() string { return "List every registered namespace." }
func (t *ListNamespaces) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {"branch": {"type": "string"}}}`)
}

func (t *ListNamespaces) Execute(ctx context.Context, raw json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p struct {
		Branch string `json:"branch,omitempty"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	return result(t.bank.ListNamespaces(ctx, p.Branch))
}

// --- create_namespace ---

type createParams struct {
	Branch      string `json:"branch,omitempty"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	OwnerID     string `json:"owner_id,omitempty"`
	Description string `json:"description,omitempty"`
}

type CreateNamespace struct{ bank *bank.Bank }

func NewCreateNamespace(b *bank.Bank) *CreateNamespace { return &CreateNamespace{bank: b} }

func (t *CreateNamespace) Name() string        { return "create_namespace" }
func (t *CreateNamespace) Description() string { return "Register a new namespace to scope memory blocks within." }
func (t *CreateNamespace) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "branch": {"type": "string"},
    "id": {"type": "string"},
    "name": {"type": "string"},
    "slug": {"type": "string"},
    "owner_id": {"type": "string"},
    "description": {"type": "string"}
  },
  "required": ["id", "name", "slug"]
}`)
}

func (t *CreateNamespace) Execute(ctx context.Context, raw json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p createParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.ID == "" || p.Name == "" || p.Slug == "" {
		return mcp.ErrorResult("id, name, and slug are required"), nil
	}

	ns := store.Namespace{ID: p.ID, Name: p.Name, Slug: p.Slug, OwnerID: p.OwnerID}
	if p.Description != "" {
		ns.Description = &p.Description
	}
	return result(t.bank.CreateNamespace(ctx, p.Branch, ns))
}
