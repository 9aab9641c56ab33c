package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/veridesk/platform/internal/logger"
	"github.com/veridesk/platform/internal/types"
	"github.com/veridesk/platform/internal/types/interfaces"
	"github.com/veridesk/platform/internal/utils"
)

var searchKnowledgeBaseTool = BaseTool{
	name: NameSearchKnowledgeBase,
	description: `Search the tenant's knowledge base for passages relevant to a question and
return a grounded answer.

Use this whenever the user asks something that might be answered by the
tenant's documents (product details, policies, how-to questions). Do not
use it for small talk or for pricing questions - use lookup_pricing for
those instead.`,
	schema: utils.GenerateSchema[SearchKnowledgeBaseInput](),
}

// SearchKnowledgeBaseInput is the model-supplied argument for
// search_knowledge_base.
type SearchKnowledgeBaseInput struct {
	Query string `json:"query" jsonschema:"The question to search the knowledge base for."`
}

// SearchKnowledgeBaseTool calls RAGEngine.Query for the tenant/session
// carried on the call context.
type SearchKnowledgeBaseTool struct {
	BaseTool
	rag interfaces.RAGEngine
}

// NewSearchKnowledgeBaseTool builds the search_knowledge_base tool backed
// by rag.
func NewSearchKnowledgeBaseTool(rag interfaces.RAGEngine) *SearchKnowledgeBaseTool {
	return &SearchKnowledgeBaseTool{BaseTool: searchKnowledgeBaseTool, rag: rag}
}

// Execute runs the knowledge base query for the tenant/session found on ctx.
func (t *SearchKnowledgeBaseTool) Execute(ctx context.Context, args json.RawMessage) (*types.ToolResult, error) {
	var input SearchKnowledgeBaseInput
	if err := json.Unmarshal(args, &input); err != nil {
		logger.Errorf(ctx, "[Tool][SearchKnowledgeBase] failed to parse args: %v", err)
		return &types.ToolResult{Success: false, Error: fmt.Sprintf("failed to parse args: %v", err)}, err
	}
	if input.Query == "" {
		return &types.ToolResult{Success: false, Error: "missing 'query' parameter"}, fmt.Errorf("missing query parameter")
	}

	tenantID, _ := ctx.Value(types.TenantIDContextKey).(uint64)
	sessionID, _ := ctx.Value(types.SessionIDContextKey).(string)

	// The agent always asks for the highest-quality retrieval path; the
	// cheaper no-HyDE/no-rerank path is reserved for the direct RAG query
	// route that bypasses the agent entirely. ComplexityScore is set to
	// force the engine's intent routing down the retrieval path: calling
	// this tool at all is itself the agent's intent-routing decision, so
	// the engine must never fall back to its small-talk shortcut here.
	answer, referencesUsed, err := t.rag.Query(ctx, interfaces.RAGQueryRequest{
		TenantID:        tenantID,
		Query:           input.Query,
		SessionID:       sessionID,
		UseHyDE:         true,
		UseRerank:       true,
		ComplexityScore: 1,
	})
	if err != nil {
		logger.Errorf(ctx, "[Tool][SearchKnowledgeBase] query failed: %v", err)
		return &types.ToolResult{Success: false, Error: fmt.Sprintf("knowledge base search failed: %v", err)}, err
	}

	return &types.ToolResult{
		Success: true,
		Output:  answer,
		Data:    map[string]interface{}{"references_used": referencesUsed},
	}, nil
}
