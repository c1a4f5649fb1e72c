package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"assistant_server/core/agent/session"
	"assistant_server/core/agent/tools"
	"assistant_server/core/domain"
	"assistant_server/core/port/out"
	"assistant_server/pkg/apperr"
	"assistant_server/pkg/logger"
)

const assistantPromptTemplate = `You are a personal calendar assistant.
Today is %s. All times are in the %s timezone.

You manage the user's calendar through the available tools:
- create_calendar_event to add events
- list_calendar_events to look up events in a time window
- update_calendar_event to change an existing event
- delete_calendar_event to remove an event

Datetime arguments use the format 2006-01-02T15:04:05. When the user asks
about a whole day, list from 00:00:00 to 23:59:59 of that day. When you
create, update or delete an event, include its link in your reply. Keep
replies short and concrete.`

const schedulingPromptTemplate = `You are a personal calendar assistant that turns to-do lists into a schedule.
Today is %s. All times are in the %s timezone.

Break the user's to-do items into individual calendar events spread over the
day. First call list_calendar_events to see what is already booked, then
create one event per item with create_calendar_event, avoiding conflicts.
Datetime arguments use the format 2006-01-02T15:04:05. Summarize the
resulting schedule with a link per created event.`

var todoKeywords = []string{"todo", "to-do", "task list", "my tasks"}

// TurnRequest is one inbound user message for a session.
type TurnRequest struct {
	SessionID string
	UserID    uuid.UUID
	Message   string
}

// TurnResult is what a completed or suspended turn produced.
type TurnResult struct {
	SessionID string
	Message   string
	Routing   domain.RoutingFlag
	Ticket    *session.Ticket
}

// Orchestrator drives conversation turns: it invokes the engine, executes
// requested tool calls one at a time, and moves the turn machine between
// running, suspended and done. All conversation writes happen here, under the
// conversation's turn lock.
type Orchestrator struct {
	engine        Engine
	registry      *tools.Registry
	store         *session.Store
	gate          *session.Gate
	archive       out.ConversationArchivePort
	log           *logger.Logger
	timezone      string
	maxToolRounds int
	now           func() time.Time
}

// NewOrchestrator wires a turn controller. archive may be nil.
func NewOrchestrator(
	engine Engine,
	registry *tools.Registry,
	store *session.Store,
	gate *session.Gate,
	archive out.ConversationArchivePort,
	timezone string,
	maxToolRounds int,
) *Orchestrator {
	o := &Orchestrator{
		engine:        engine,
		registry:      registry,
		store:         store,
		gate:          gate,
		archive:       archive,
		log:           logger.Default().WithField("component", "orchestrator"),
		timezone:      timezone,
		maxToolRounds: maxToolRounds,
		now:           time.Now,
	}
	// A lapsed ticket releases its conversation so new turns (and eviction)
	// can proceed.
	gate.OnExpire(func(sessionID string) {
		if conv, ok := store.Get(sessionID); ok {
			conv.EndSuspension()
		}
	})
	return o
}

// RunTurn appends the user message to the session and runs the turn to
// completion or suspension.
func (o *Orchestrator) RunTurn(ctx context.Context, req *TurnRequest) (*TurnResult, error) {
	conv := o.store.GetOrCreate(req.SessionID, req.UserID)
	conv.BeginTurn()
	defer conv.EndTurn()

	if conv.State() == domain.TurnSuspended {
		if _, ok := o.gate.Pending(conv.ID); ok {
			return nil, apperr.ValidationError("a question is pending for this conversation; answer it to continue")
		}
		// The pending question lapsed; start a fresh turn.
		conv.EndSuspension()
	}

	conv.SetState(domain.TurnRunning)
	conv.Append(domain.Message{Role: domain.RoleUser, Content: req.Message})

	return o.run(ctx, conv, req.Message), nil
}

// Resume redeems a suspension ticket, appends the user's answer and continues
// the turn.
func (o *Orchestrator) Resume(ctx context.Context, userID uuid.UUID, ticketID, answer string) (*TurnResult, error) {
	ticket, err := o.gate.Resume(ticketID, userID)
	if err != nil {
		return nil, err
	}
	conv, ok := o.store.Get(ticket.SessionID)
	if !ok {
		return nil, apperr.NotFound("conversation")
	}

	conv.BeginTurn()
	defer conv.EndTurn()

	if conv.State() != domain.TurnSuspended {
		return nil, apperr.ValidationError("conversation is not awaiting input")
	}

	conv.SetState(domain.TurnRunning)
	conv.Append(domain.Message{Role: domain.RoleAssistant, Content: ticket.Prompt})
	conv.Append(domain.Message{Role: domain.RoleUser, Content: answer})

	return o.run(ctx, conv, answer), nil
}

// run is the engine loop. At most one tool call completes between engine
// invocations, and cancellation is honored at those boundaries.
func (o *Orchestrator) run(ctx context.Context, conv *session.Conversation, latestUserMessage string) *TurnResult {
	systemPrompt := o.buildSystemPrompt(o.now(), isTodoRequest(latestUserMessage))
	defs := o.registry.Definitions()

	for round := 0; round <= o.maxToolRounds; round++ {
		if err := ctx.Err(); err != nil {
			return o.finish(conv, "The request was canceled before it finished.")
		}

		decision, err := o.engine.Step(ctx, &EngineStep{
			SystemPrompt: systemPrompt,
			History:      conv.Messages(),
			Tools:        defs,
		})
		if err != nil {
			stepErr := apperr.AgentEngineError(err)
			o.log.WithField("session_id", conv.ID).WithError(stepErr).Error("engine step failed")
			return o.finish(conv, fmt.Sprintf("I ran into a problem while processing that request: %v. Please try again.", err))
		}

		switch decision.Routing {
		case domain.RouteAwaitInput:
			ticket := o.gate.Suspend(conv.ID, conv.UserID, decision.Prompt)
			conv.SetRouting(domain.RouteAwaitInput)
			conv.SetState(domain.TurnSuspended)
			return &TurnResult{
				SessionID: conv.ID,
				Message:   decision.Prompt,
				Routing:   domain.RouteAwaitInput,
				Ticket:    ticket,
			}

		case domain.RouteContinue:
			if len(decision.ToolCalls) == 0 {
				return o.finish(conv, decision.Message)
			}
			if err := ctx.Err(); err != nil {
				return o.finish(conv, "The request was canceled before it finished.")
			}
			o.executeToolCall(ctx, conv, decision.ToolCalls[0])

		default:
			return o.finish(conv, decision.Message)
		}
	}

	return o.finish(conv, "I could not finish the request within the allowed number of steps. Please try a smaller request.")
}

// executeToolCall runs one tool call and appends its result to the log.
func (o *Orchestrator) executeToolCall(ctx context.Context, conv *session.Conversation, call tools.ToolCall) {
	result, err := o.registry.Execute(ctx, conv.UserID, call.Name, call.Arguments)
	if err != nil {
		result = &tools.ToolResult{Success: false, Error: err.Error()}
	}
	if !result.Success {
		o.log.WithField("session_id", conv.ID).WithField("tool", call.Name).
			Warn("tool call failed: %s", result.Error)
	}

	content, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		content = []byte(fmt.Sprintf(`{"success":false,"error":%q}`, marshalErr.Error()))
	}
	argsJSON, marshalErr := json.Marshal(call.Arguments)
	if marshalErr != nil {
		argsJSON = []byte("{}")
	}

	conv.Append(domain.Message{
		Role:       domain.RoleTool,
		Content:    string(content),
		ToolCallID: call.ID,
		ToolName:   call.Name,
		ToolArgs:   string(argsJSON),
	})
}

// finish appends the closing assistant message, marks the turn done and
// archives the transcript.
func (o *Orchestrator) finish(conv *session.Conversation, message string) *TurnResult {
	conv.Append(domain.Message{Role: domain.RoleAssistant, Content: message})
	conv.SetRouting(domain.RouteEnd)
	conv.SetState(domain.TurnDone)
	o.archiveTranscript(conv)
	return &TurnResult{
		SessionID: conv.ID,
		Message:   message,
		Routing:   domain.RouteEnd,
	}
}

// archiveTranscript snapshots the conversation to durable storage.
// Best-effort; failures are logged and do not affect the turn.
func (o *Orchestrator) archiveTranscript(conv *session.Conversation) {
	if o.archive == nil {
		return
	}
	messages := conv.Messages()
	record := &out.TranscriptRecord{
		SessionID: conv.ID,
		UserID:    conv.UserID.String(),
		Routing:   string(conv.Routing()),
		UpdatedAt: time.Now(),
	}
	for _, msg := range messages {
		record.Messages = append(record.Messages, out.TranscriptMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
			Time:    msg.Time,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.archive.SaveTranscript(ctx, record); err != nil {
		o.log.WithField("session_id", conv.ID).WithError(err).Warn("transcript archive failed")
	}
}

// buildSystemPrompt renders the per-turn instructions with the current date
// in the service timezone. Rebuilt on every turn.
func (o *Orchestrator) buildSystemPrompt(now time.Time, todoMode bool) string {
	loc, err := time.LoadLocation(o.timezone)
	if err != nil {
		loc = time.UTC
	}
	date := now.In(loc).Format("Monday, 2006-01-02")
	if todoMode {
		return fmt.Sprintf(schedulingPromptTemplate, date, o.timezone)
	}
	return fmt.Sprintf(assistantPromptTemplate, date, o.timezone)
}

// isTodoRequest selects the scheduling instructions when the latest user
// message looks like a to-do list.
func isTodoRequest(message string) bool {
	lowered := strings.ToLower(message)
	for _, keyword := range todoKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}
