package chat

import (
	"context"

	"github.com/google/uuid"

	"assistant_server/core/agent"
	"assistant_server/core/port/in"
	"assistant_server/pkg/apperr"
	"assistant_server/pkg/logger"
)

// Service exposes the turn controller as the chat use case.
type Service struct {
	orchestrator *agent.Orchestrator
	log          *logger.Logger
}

// NewService builds the chat service.
func NewService(orchestrator *agent.Orchestrator) *Service {
	return &Service{
		orchestrator: orchestrator,
		log:          logger.Default().WithField("component", "chat"),
	}
}

var _ in.ChatService = (*Service)(nil)

// Chat runs one turn on a session.
func (s *Service) Chat(ctx context.Context, userID uuid.UUID, req *in.ChatRequest) (*in.ChatResponse, error) {
	if req.Message == "" {
		return nil, apperr.MissingField("message")
	}

	result, err := s.orchestrator.RunTurn(ctx, &agent.TurnRequest{
		SessionID: req.SessionID,
		UserID:    userID,
		Message:   req.Message,
	})
	if err != nil {
		return nil, err
	}
	return toResponse(result), nil
}

// Resume answers a suspended turn.
func (s *Service) Resume(ctx context.Context, userID uuid.UUID, req *in.ResumeRequest) (*in.ChatResponse, error) {
	if req.Ticket == "" {
		return nil, apperr.MissingField("ticket")
	}
	if req.Answer == "" {
		return nil, apperr.MissingField("answer")
	}

	result, err := s.orchestrator.Resume(ctx, userID, req.Ticket, req.Answer)
	if err != nil {
		return nil, err
	}
	return toResponse(result), nil
}

// Reply runs a single stateless turn on a fresh session and returns the
// assistant text. If the turn suspends, the pending question is the reply.
func (s *Service) Reply(ctx context.Context, userID uuid.UUID, message string) (string, error) {
	if message == "" {
		return "", apperr.MissingField("message")
	}

	result, err := s.orchestrator.RunTurn(ctx, &agent.TurnRequest{
		UserID:  userID,
		Message: message,
	})
	if err != nil {
		return "", err
	}
	return result.Message, nil
}

func toResponse(result *agent.TurnResult) *in.ChatResponse {
	resp := &in.ChatResponse{
		SessionID: result.SessionID,
		Message:   result.Message,
		Routing:   result.Routing,
	}
	if result.Ticket != nil {
		resp.Ticket = result.Ticket.ID
		resp.Prompt = result.Ticket.Prompt
	}
	return resp
}
