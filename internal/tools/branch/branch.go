// Package branch implements the branch/commit tool surface (spec
// §4.4, §4.3): list_branches, create_branch, checkout_branch, commit,
// merge_branches.
package branch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cognisys/memorybank/internal/bank"
	"github.com/cognisys/memorybank/internal/mcp"
	"github.com/cognisys/memorybank/internal/writer"
)

func result(r bank.Result) (*mcp.ToolsCallResult, error) {
	res, err := mcp.JSONResult(r)
	if err != nil {
		return nil, err
	}
	res.IsError = !r.OK
	return res, nil
}

// --- list_branches ---

type ListBranches struct{ bank *bank.Bank }

func NewListBranches(b *bank.Bank) *ListBranches { return &ListBranches{bank: b} }

func (t *ListBranches) Name() string        { return "list_branches" }
func (t *ListBranches) Description() string { return "List every branch in the versioned backend." }
func (t *ListBranches) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {"branch": {"type": "string"}}}`)
}

func (t *ListBranches) Execute(ctx context.Context, raw json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p struct {
		Branch string `json:"branch,omitempty"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	return result(t.bank.ListBranches(ctx, p.Branch))
}

// --- create_branch ---

type CreateBranch struct{ bank *bank.Bank }

func NewCreateBranch(b *bank.Bank) *CreateBranch { return &CreateBranch{bank: b} }

func (t *CreateBranch) Name() string        { return "create_branch" }
func (t *CreateBranch) Description() string { return "Create a new branch from an existing one's head." }
func (t *CreateBranch) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "name": {"type": "string"},
    "from": {"type": "string", "description": "Branch to branch from; defaults to the current branch's head"}
  },
  "required": ["name"]
}`)
}

func (t *CreateBranch) Execute(ctx context.Context, raw json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p struct {
		Name string `json:"name"`
		From string `json:"from,omitempty"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.Name == "" {
		return mcp.ErrorResult("name is required"), nil
	}
	return result(t.bank.CreateBranch(ctx, p.Name, p.From))
}

// --- checkout_branch ---

type CheckoutBranch struct{ bank *bank.Bank }

func NewCheckoutBranch(b *bank.Bank) *CheckoutBranch { return &CheckoutBranch{bank: b} }

func (t *CheckoutBranch) Name() string { return "checkout_branch" }
func (t *CheckoutBranch) Description() string {
	return "Rebind the current session's persistent connection to a different branch."
}
func (t *CheckoutBranch) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "current_branch": {"type": "string"},
    "branch": {"type": "string"}
  },
  "required": ["branch"]
}`)
}

func (t *CheckoutBranch) Execute(ctx context.Context, raw json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p struct {
		CurrentBranch string `json:"current_branch,omitempty"`
		Branch        string `json:"branch"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.Branch == "" {
		return mcp.ErrorResult("branch is required"), nil
	}
	return result(t.bank.CheckoutBranch(ctx, p.CurrentBranch, p.Branch))
}

// --- commit ---

type Commit struct{ bank *bank.Bank }

func NewCommit(b *bank.Bank) *Commit { return &Commit{bank: b} }

func (t *Commit) Name() string        { return "commit" }
func (t *Commit) Description() string { return "Commit whatever is staged on the given branch." }
func (t *Commit) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "branch": {"type": "string"},
    "message": {"type": "string"},
    "author": {"type": "string"}
  },
  "required": ["message"]
}`)
}

func (t *Commit) Execute(ctx context.Context, raw json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p struct {
		Branch  string `json:"branch,omitempty"`
		Message string `json:"message"`
		Author  string `json:"author,omitempty"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.Message == "" {
		return mcp.ErrorResult("message is required"), nil
	}
	return result(t.bank.CommitChanges(ctx, p.Branch, p.Message, p.Author))
}

// --- merge_branches ---

type MergeBranches struct{ bank *bank.Bank }

func NewMergeBranches(b *bank.Bank) *MergeBranches { return &MergeBranches{bank: b} }

func (t *MergeBranches) Name() string { return "merge_branches" }
func (t *MergeBranches) Description() string {
	return "Merge source into target. A conflict the backend cannot resolve is reported as a commit failure."
}
func (t *MergeBranches) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "source": {"type": "string"},
    "target": {"type": "string"},
    "strategy": {"type": "string", "enum": ["fast_forward_or_fail", "three_way"]}
  },
  "required": ["source", "target"]
}`)
}

func (t *MergeBranches) Execute(ctx context.Context, raw json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p struct {
		Source   string `json:"source"`
		Target   string `json:"target"`
		Strategy string `json:"strategy,omitempty"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return mcp.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if p.Source == "" || p.Target == "" {
		return mcp.ErrorResult("source and target are required"), nil
	}
	strategy := writer.MergeStrategy(p.Strategy)
	if strategy == "" {
		strategy = writer.FastForwardOrFail
	}
	return result(t.bank.MergeBranches(ctx, p.Source, p.Target, strategy))
}
