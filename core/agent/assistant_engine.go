package agent

import (
	"context"

	"assistant_server/core/agent/tools"
	"assistant_server/core/domain"
)

// EngineStep is one engine invocation: the per-turn instructions, the session
// transcript so far, and the tools on offer.
type EngineStep struct {
	SystemPrompt string
	History      []domain.Message
	Tools        []tools.ToolDefinition
}

// EngineDecision is the engine's structured verdict for a step. Exactly one
// of ToolCalls or Message is meaningful; Routing says what the controller
// does next. RouteAwaitInput carries the question to put to the user in
// Prompt — the controller never inspects message text to detect it.
type EngineDecision struct {
	ToolCalls []tools.ToolCall
	Message   string
	Routing   domain.RoutingFlag
	Prompt    string
}

// Engine produces the next decision for a conversation. Implementations hide
// any provider-specific signaling behind the structured decision.
type Engine interface {
	Step(ctx context.Context, step *EngineStep) (*EngineDecision, error)
}
