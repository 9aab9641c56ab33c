// Package agent implements the bounded tool-using reasoning loop:
// INIT → MODEL_CALL → (tool_calls? → TOOL_EXEC → MODEL_CALL)
// | (final text → DONE), bounded at maxIterations to guarantee
// termination. The loop is an explicit bounded for-loop rather than open
// recursion, since the number of hops here is driven by the model's tool
// calls rather than a fixed stage chain.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/veridesk/platform/internal/agent/tools"
	"github.com/veridesk/platform/internal/logger"
	"github.com/veridesk/platform/internal/types"
	"github.com/veridesk/platform/internal/types/interfaces"
)

// maxIterations bounds the MODEL_CALL/TOOL_EXEC loop.
const maxIterations = 6

// ModelResolver resolves a model name to the LLMProvider that serves it.
// Runtime keeps every resolved provider in its own per-model map for the
// Runtime's lifetime, so the resolver is called at most once per model name
// (the "cached per model" requirement).
type ModelResolver func(ctx context.Context, modelName string) (interfaces.LLMProvider, error)

// Runtime is the AgentRuntime implementation: one instance serves every
// tenant and every configured model, since the tools it offers only
// depend on values carried per-call on ctx (tenant id, session id).
type Runtime struct {
	resolve ModelResolver
	tools   []tools.Tool

	mu        sync.RWMutex
	providers map[string]interfaces.LLMProvider
}

var _ interfaces.AgentRuntime = (*Runtime)(nil)

// New builds a Runtime that resolves models via resolve and offers
// toolset on every run.
func New(resolve ModelResolver, toolset []tools.Tool) *Runtime {
	return &Runtime{
		resolve:   resolve,
		tools:     toolset,
		providers: make(map[string]interfaces.LLMProvider),
	}
}

func (r *Runtime) providerFor(ctx context.Context, modelName string) (interfaces.LLMProvider, error) {
	r.mu.RLock()
	p, ok := r.providers[modelName]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := r.resolve(ctx, modelName)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.providers[modelName] = p
	r.mu.Unlock()
	return p, nil
}

func (r *Runtime) toolSpecs() []types.ToolSpec {
	specs := make([]types.ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		specs = append(specs, types.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			Schema:      []byte(t.Schema()),
		})
	}
	return specs
}

func (r *Runtime) findTool(name string) (tools.Tool, bool) {
	for _, t := range r.tools {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// Run drives one bounded tool-using turn for tenantID/sessionID.
func (r *Runtime) Run(
	ctx context.Context, tenantID uint64, sessionID string, modelName string, userTurn string,
) (interfaces.AgentResult, error) {
	llm, err := r.providerFor(ctx, modelName)
	if err != nil {
		return interfaces.AgentResult{}, fmt.Errorf("resolve model %q: %w", modelName, err)
	}

	ctx = context.WithValue(ctx, types.TenantIDContextKey, tenantID)
	ctx = context.WithValue(ctx, types.SessionIDContextKey, sessionID)

	messages := []types.Message{{Role: "user", Content: userTurn}}
	opts := &types.ChatOptions{Tools: r.toolSpecs()}

	var (
		finalText      string
		requiresHuman  bool
		referencesUsed bool
	)

	for iter := 0; iter < maxIterations; iter++ {
		result, err := llm.Chat(ctx, messages, interfaces.StepAgent, opts)
		if err != nil {
			return interfaces.AgentResult{}, fmt.Errorf("agent model call: %w", err)
		}

		if len(result.ToolCalls) == 0 {
			finalText = result.Text
			break
		}

		messages = append(messages, types.Message{
			Role:      "assistant",
			Content:   result.Text,
			ToolCalls: result.ToolCalls,
		})

		for _, call := range result.ToolCalls {
			if call.Name == tools.NameTransferToHuman {
				requiresHuman = true
			}

			toolResult := r.execute(ctx, call)
			if call.Name == tools.NameSearchKnowledgeBase && toolResult.Success {
				if used, ok := toolResult.Data["references_used"].(bool); ok && used {
					referencesUsed = true
				}
			}

			messages = append(messages, types.Message{
				Role:    "tool",
				Name:    call.Name,
				Content: toolResultContent(toolResult),
			})
		}

		if iter == maxIterations-1 {
			logger.Warnf(ctx, "[AgentRuntime] max iterations reached for session %s", sessionID)
			finalText = "I wasn't able to finish that within my step budget. Could you rephrase or simplify the request?"
		}
	}

	return interfaces.AgentResult{
		Text:           finalText,
		RequiresHuman:  requiresHuman,
		ReferencesUsed: referencesUsed,
	}, nil
}

func (r *Runtime) execute(ctx context.Context, call types.ToolCall) *types.ToolResult {
	tool, ok := r.findTool(call.Name)
	if !ok {
		logger.Warnf(ctx, "[AgentRuntime] model requested unknown tool %q", call.Name)
		return &types.ToolResult{Success: false, Error: fmt.Sprintf("unknown tool %q", call.Name)}
	}

	result, err := tool.Execute(ctx, json.RawMessage(call.Arguments))
	if result == nil {
		result = &types.ToolResult{Success: false}
	}
	if err != nil && result.Error == "" {
		result.Error = err.Error()
	}
	return result
}

func toolResultContent(result *types.ToolResult) string {
	if result.Success {
		return result.Output
	}
	return fmt.Sprintf("error: %s", result.Error)
}
