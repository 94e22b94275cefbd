package content

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cognisys/memorybank/internal/mcp"
	"github.com/cognisys/memorybank/internal/schema"
)

// --- memory://block-types resource ---

// BlockTypesResource reflects the schema registry's currently registered
// block types and their latest versions back to the client.
type BlockTypesResource struct {
	registry *schema.Registry
}

func NewBlockTypesResource(r *schema.Registry) *BlockTypesResource {
	return &BlockTypesResource{registry: r}
}

func (r *BlockTypesResource) Definition() mcp.ResourceDefinition {
	return mcp.ResourceDefinition{
		URI:         "memory://block-types",
		Name:        "Registered Block Types",
		Description: "Every block type registered with the schema registry and the version currently enforced for new writes",
		MimeType:    "text/markdown",
	}
}

func (r *BlockTypesResource) Read() (*mcp.ResourcesReadResult, error) {
	types := r.registry.AvailableTypes()

	var b strings.Builder
	b.WriteString("# Registered Block Types\n\n")
	if len(types) == 0 {
		b.WriteString("No block types are registered yet.\n")
	} else {
		b.WriteString("| Type | Latest Version |\n|------|----------------|\n")
		for _, t := range types {
			fmt.Fprintf(&b, "| %s | %d |\n", t.Type, t.Version)
		}
		b.WriteString("\nWrites to `create_memory_block` validate the block's metadata against ")
		b.WriteString("the latest registered version of its type's JSON Schema. Passing a ")
		b.WriteString("type not in this list fails validation.\n")
	}

	return &mcp.ResourcesReadResult{
		Contents: []mcp.ResourceContent{
			{URI: "memory://block-types", MimeType: "text/markdown", Text: b.String()},
		},
	}, nil
}

// --- memory://tool-reference resource ---

// ToolReferenceResource exposes a quick-reference card for every tool
// registered with the MCP tool registry.
type ToolReferenceResource struct {
	tools *mcp.Registry
}

func NewToolReferenceResource(tools *mcp.Registry) *ToolReferenceResource {
	return &ToolReferenceResource{tools: tools}
}

func (r *ToolReferenceResource) Definition() mcp.ResourceDefinition {
	return mcp.ResourceDefinition{
		URI:         "memory://tool-reference",
		Name:        "Tool Reference",
		Description: "Quick-reference card listing every memory bank tool with its description and input schema",
		MimeType:    "text/markdown",
	}
}

func (r *ToolReferenceResource) Read() (*mcp.ResourcesReadResult, error) {
	defs := r.tools.List()

	var b strings.Builder
	b.WriteString("# Memory Bank Tool Reference\n\n")
	for _, d := range defs {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", d.Name, d.Description)
		pretty, err := indentJSON(d.InputSchema)
		if err != nil {
			pretty = string(d.InputSchema)
		}
		fmt.Fprintf(&b, "```json\n%s\n```\n\n", pretty)
	}

	return &mcp.ResourcesReadResult{
		Contents: []mcp.ResourceContent{
			{URI: "memory://tool-reference", MimeType: "text/markdown", Text: b.String()},
		},
	}, nil
}

func indentJSON(raw json.RawMessage) (string, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}
