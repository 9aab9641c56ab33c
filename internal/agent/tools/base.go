// Package tools implements the three BaseTool values the AgentRuntime
// offers the model. Each tool is a Go struct embedding BaseTool for its
// static name/description/schema plus an Execute method.
package tools

import (
	"context"
	"encoding/json"

	"github.com/veridesk/platform/internal/types"
)

// Tool names exposed by the AgentRuntime.
const (
	NameSearchKnowledgeBase = "search_knowledge_base"
	NameLookupPricing       = "lookup_pricing"
	NameTransferToHuman     = "transfer_to_human"
)

// Tool is one function the AgentRuntime can offer the model and, on a
// matching tool_call, invoke.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, args json.RawMessage) (*types.ToolResult, error)
}

// BaseTool carries a tool's static metadata; concrete tools embed it and
// add their own Execute.
type BaseTool struct {
	name        string
	description string
	schema      json.RawMessage
}

func (t BaseTool) Name() string            { return t.name }
func (t BaseTool) Description() string     { return t.description }
func (t BaseTool) Schema() json.RawMessage { return t.schema }
