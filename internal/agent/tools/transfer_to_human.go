package tools

import (
	"context"
	"encoding/json"

	"github.com/veridesk/platform/internal/types"
	"github.com/veridesk/platform/internal/utils"
)

var transferToHumanTool = BaseTool{
	name: NameTransferToHuman,
	description: `Hand the conversation off to a human agent. Call this when the user
explicitly asks for a human, expresses frustration the bot cannot resolve,
or the request is outside what the knowledge base and pricing lookup can
answer. This tool takes no arguments.`,
	schema: utils.GenerateSchema[TransferToHumanInput](),
}

// TransferToHumanInput is the (empty) argument shape for transfer_to_human.
type TransferToHumanInput struct{}

// TransferToHumanTool records a handoff request. The AgentRuntime loop
// detects this tool's invocation by name to set AgentResult.RequiresHuman;
// Execute itself only acknowledges the call.
type TransferToHumanTool struct {
	BaseTool
}

// NewTransferToHumanTool builds the transfer_to_human tool.
func NewTransferToHumanTool() *TransferToHumanTool {
	return &TransferToHumanTool{BaseTool: transferToHumanTool}
}

// Execute always succeeds; the handoff flag itself is set by the runtime.
func (t *TransferToHumanTool) Execute(ctx context.Context, args json.RawMessage) (*types.ToolResult, error) {
	return &types.ToolResult{
		Success: true,
		Output:  "This conversation has been flagged for a human agent.",
	}, nil
}
