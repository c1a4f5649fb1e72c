package llm

import (
	"testing"

	"github.com/sashabaranov/go-openai"

	"assistant_server/core/agent/tools"
	"assistant_server/core/domain"
)

func TestToChatMessagesSynthesizesToolCalls(t *testing.T) {
	history := []domain.Message{
		{Role: domain.RoleUser, Content: "list my events"},
		{Role: domain.RoleTool, Content: `{"success":true}`, ToolCallID: "call-1", ToolName: "list_calendar_events", ToolArgs: `{"start_datetime":"2025-01-26T00:00:00"}`},
		{Role: domain.RoleAssistant, Content: "here they are"},
	}

	messages := toChatMessages("system text", history)
	// system, user, synthesized assistant, tool, assistant
	if len(messages) != 5 {
		t.Fatalf("got %d messages, want 5", len(messages))
	}
	if messages[0].Role != openai.ChatMessageRoleSystem || messages[0].Content != "system text" {
		t.Errorf("message 0 = %+v", messages[0])
	}
	synthesized := messages[2]
	if synthesized.Role != openai.ChatMessageRoleAssistant || len(synthesized.ToolCalls) != 1 {
		t.Fatalf("expected a synthesized assistant tool-call message, got %+v", synthesized)
	}
	if synthesized.ToolCalls[0].ID != "call-1" || synthesized.ToolCalls[0].Function.Name != "list_calendar_events" {
		t.Errorf("tool call = %+v", synthesized.ToolCalls[0])
	}
	toolMsg := messages[3]
	if toolMsg.Role != openai.ChatMessageRoleTool || toolMsg.ToolCallID != "call-1" {
		t.Errorf("tool message = %+v", toolMsg)
	}
}

func TestToChatToolsAppendsAskUser(t *testing.T) {
	defs := []tools.ToolDefinition{{
		Type: "function",
		Function: tools.ToolFunction{
			Name:        "list_calendar_events",
			Description: "lists events",
			Parameters:  &tools.ToolParameters{Type: "object"},
		},
	}}

	chatTools := toChatTools(defs)
	if len(chatTools) != 2 {
		t.Fatalf("got %d tools, want 2", len(chatTools))
	}
	if chatTools[0].Function.Name != "list_calendar_events" {
		t.Errorf("tool 0 = %s", chatTools[0].Function.Name)
	}
	if chatTools[1].Function.Name != askUserToolName {
		t.Errorf("tool 1 = %s, want %s", chatTools[1].Function.Name, askUserToolName)
	}
}
