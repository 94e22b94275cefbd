// Package health implements health_check: pool occupancy, registered
// schema types, and backend reachability (spec §4.1, §4.2).
package health

import (
	"context"
	"encoding/json"

	"github.com/cognisys/memorybank/internal/bank"
	"github.com/cognisys/memorybank/internal/mcp"
)

type HealthCheck struct{ bank *bank.Bank }

func NewHealthCheck(b *bank.Bank) *HealthCheck { return &HealthCheck{bank: b} }

func (t *HealthCheck) Name() string { return "health_check" }
func (t *HealthCheck) Description() string {
	return "Report connection pool occupancy, registered block types, and backend reachability."
}
func (t *HealthCheck) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *HealthCheck) Execute(ctx context.Context, _ json.RawMessage) (*mcp.ToolsCallResult, error) {
	res := t.bank.Health(ctx)
	out, err := mcp.JSONResult(res)
	if err != nil {
		return nil, err
	}
	out.IsError = !res.OK
	return out, nil
}
