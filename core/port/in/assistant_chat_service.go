package in

import (
	"context"

	"github.com/google/uuid"

	"assistant_server/core/domain"
)

// ChatRequest starts or continues a conversation turn.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// ResumeRequest answers a pending question on a suspended turn.
type ResumeRequest struct {
	Ticket string `json:"ticket"`
	Answer string `json:"answer"`
}

// ChatResponse is the outcome of one turn.
type ChatResponse struct {
	SessionID string             `json:"session_id"`
	Message   string             `json:"message"`
	Routing   domain.RoutingFlag `json:"routing"`
	Ticket    string             `json:"ticket,omitempty"`
	Prompt    string             `json:"prompt,omitempty"`
}

// ChatService drives conversation turns through the agent.
type ChatService interface {
	// Chat runs one turn on a session, creating the session if needed.
	Chat(ctx context.Context, userID uuid.UUID, req *ChatRequest) (*ChatResponse, error)
	// Resume answers a suspended turn identified by its ticket.
	Resume(ctx context.Context, userID uuid.UUID, req *ResumeRequest) (*ChatResponse, error)
	// Reply runs a single stateless turn and returns just the assistant text.
	Reply(ctx context.Context, userID uuid.UUID, message string) (string, error)
}
