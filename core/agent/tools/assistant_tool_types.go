package tools

import (
	"context"

	"github.com/google/uuid"
)

// Tool is a single capability the agent can invoke.
type Tool interface {
	Name() string
	Description() string
	Category() string
	Parameters() *ToolParameters
	Execute(ctx context.Context, userID uuid.UUID, args map[string]any) (*ToolResult, error)
}

// ToolResult is what a tool hands back to the agent. A failed call sets
// Success=false with an Error the agent can show the user verbatim.
type ToolResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Link    string `json:"link,omitempty"`
}

// ToolCall is a tool invocation requested by the engine.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolParameters describes a tool's argument schema (JSON Schema subset).
type ToolParameters struct {
	Type       string                       `json:"type"`
	Properties map[string]ParameterProperty `json:"properties"`
	Required   []string                     `json:"required,omitempty"`
}

// ParameterProperty describes one argument.
type ParameterProperty struct {
	Type        string             `json:"type"`
	Description string             `json:"description"`
	Enum        []string           `json:"enum,omitempty"`
	Items       *ParameterProperty `json:"items,omitempty"`
}

// ToolDefinition is the function-call schema handed to the LLM.
type ToolDefinition struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction is the function portion of a ToolDefinition.
type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  *ToolParameters `json:"parameters"`
}

// ConvertToDefinition builds the LLM-facing schema for a tool.
func ConvertToDefinition(t Tool) ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}
