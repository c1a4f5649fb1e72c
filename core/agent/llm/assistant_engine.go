package llm

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/sashabaranov/go-openai"

	"assistant_server/core/agent"
	"assistant_server/core/agent/tools"
	"assistant_server/core/domain"
)

// askUserToolName is an engine-internal pseudo tool. The model calls it when
// it needs an answer from the human; the engine translates the call into a
// structured await-input decision instead of executing anything.
const askUserToolName = "ask_user"

// Engine adapts the OpenAI chat API to the agent engine contract.
type Engine struct {
	client *Client
}

// NewEngine wraps a client as an agent engine.
func NewEngine(client *Client) *Engine {
	return &Engine{client: client}
}

var _ agent.Engine = (*Engine)(nil)

// Step runs one engine invocation and maps the model output to a structured
// decision.
func (e *Engine) Step(ctx context.Context, step *agent.EngineStep) (*agent.EngineDecision, error) {
	messages := toChatMessages(step.SystemPrompt, step.History)
	chatTools := toChatTools(step.Tools)

	msg, err := e.client.ChatWithTools(ctx, messages, chatTools)
	if err != nil {
		return nil, err
	}

	if len(msg.ToolCalls) == 0 {
		return &agent.EngineDecision{
			Message: msg.Content,
			Routing: domain.RouteEnd,
		}, nil
	}

	// An ask_user call takes precedence over everything else in the batch.
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name != askUserToolName {
			continue
		}
		var args struct {
			Question string `json:"question"`
		}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			return nil, fmt.Errorf("decode %s arguments: %w", askUserToolName, err)
		}
		return &agent.EngineDecision{
			Routing: domain.RouteAwaitInput,
			Prompt:  args.Question,
		}, nil
	}

	calls := make([]tools.ToolCall, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		args := make(map[string]any)
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("decode %s arguments: %w", tc.Function.Name, err)
			}
		}
		calls = append(calls, tools.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return &agent.EngineDecision{
		ToolCalls: calls,
		Routing:   domain.RouteContinue,
	}, nil
}

// toChatMessages replays the session transcript in the wire shape the model
// expects. Runs of tool messages are preceded by a synthesized assistant
// message carrying the originating calls.
func toChatMessages(system string, history []domain.Message) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	i := 0
	for i < len(history) {
		msg := history[i]
		switch msg.Role {
		case domain.RoleTool:
			j := i
			var calls []openai.ToolCall
			for j < len(history) && history[j].Role == domain.RoleTool {
				calls = append(calls, openai.ToolCall{
					ID:   history[j].ToolCallID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      history[j].ToolName,
						Arguments: history[j].ToolArgs,
					},
				})
				j++
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:      openai.ChatMessageRoleAssistant,
				ToolCalls: calls,
			})
			for ; i < j; i++ {
				messages = append(messages, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					ToolCallID: history[i].ToolCallID,
					Name:       history[i].ToolName,
					Content:    history[i].Content,
				})
			}
		case domain.RoleAssistant:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			})
			i++
		default:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
			i++
		}
	}
	return messages
}

func toChatTools(defs []tools.ToolDefinition) []openai.Tool {
	chatTools := make([]openai.Tool, 0, len(defs)+1)
	for _, def := range defs {
		chatTools = append(chatTools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionDefinition{
				Name:        def.Function.Name,
				Description: def.Function.Description,
				Parameters:  def.Function.Parameters,
			},
		})
	}
	chatTools = append(chatTools, openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: openai.FunctionDefinition{
			Name:        askUserToolName,
			Description: "Ask the user a clarifying question when required information is missing. The conversation pauses until the user answers.",
			Parameters: &tools.ToolParameters{
				Type: "object",
				Properties: map[string]tools.ParameterProperty{
					"question": {Type: "string", Description: "The question to put to the user"},
				},
				Required: []string{"question"},
			},
		},
	})
	return chatTools
}
