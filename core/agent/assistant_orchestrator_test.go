package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"assistant_server/core/agent/session"
	"assistant_server/core/agent/tools"
	"assistant_server/core/domain"
)

type fakeEngine struct {
	decisions []*EngineDecision
	steps     []*EngineStep
	err       error
	calls     int
}

func (f *fakeEngine) Step(ctx context.Context, step *EngineStep) (*EngineDecision, error) {
	f.steps = append(f.steps, step)
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.decisions) {
		return &EngineDecision{Message: "done", Routing: domain.RouteEnd}, nil
	}
	decision := f.decisions[f.calls]
	f.calls++
	return decision, nil
}

type recordingTool struct {
	name  string
	calls []map[string]any
}

func (r *recordingTool) Name() string        { return r.name }
func (r *recordingTool) Description() string { return "records calls" }
func (r *recordingTool) Category() string    { return "calendar" }
func (r *recordingTool) Parameters() *tools.ToolParameters {
	return &tools.ToolParameters{Type: "object", Properties: map[string]tools.ParameterProperty{}}
}

func (r *recordingTool) Execute(ctx context.Context, userID uuid.UUID, args map[string]any) (*tools.ToolResult, error) {
	r.calls = append(r.calls, args)
	return &tools.ToolResult{Success: true, Data: []string{}}, nil
}

func newTestOrchestrator(engine Engine) (*Orchestrator, *recordingTool, *session.Store, *session.Gate) {
	listTool := &recordingTool{name: "list_calendar_events"}
	registry := tools.NewRegistry()
	registry.Register(listTool)

	store := session.NewStore(time.Minute)
	gate := session.NewGate(time.Minute)
	o := NewOrchestrator(engine, registry, store, gate, nil, "America/Los_Angeles", 4)
	o.now = func() time.Time {
		return time.Date(2025, 1, 26, 9, 0, 0, 0, time.UTC)
	}
	return o, listTool, store, gate
}

func countRole(messages []domain.Message, role domain.Role) int {
	n := 0
	for _, msg := range messages {
		if msg.Role == role {
			n++
		}
	}
	return n
}

func TestListTurnMakesExactlyOneToolCall(t *testing.T) {
	engine := &fakeEngine{decisions: []*EngineDecision{
		{
			Routing: domain.RouteContinue,
			ToolCalls: []tools.ToolCall{{
				ID:   "call-1",
				Name: "list_calendar_events",
				Arguments: map[string]any{
					"start_datetime": "2025-01-26T00:00:00",
					"end_datetime":   "2025-01-26T23:59:59",
				},
			}},
		},
		{Routing: domain.RouteEnd, Message: "You have no events on that day."},
	}}
	o, listTool, store, _ := newTestOrchestrator(engine)
	defer store.Close()

	result, err := o.RunTurn(context.Background(), &TurnRequest{
		SessionID: "s1",
		UserID:    uuid.New(),
		Message:   "Can you list all the events I have on 2025-01-26?",
	})
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}

	if len(listTool.calls) != 1 {
		t.Fatalf("tool called %d times, want 1", len(listTool.calls))
	}
	args := listTool.calls[0]
	if args["start_datetime"] != "2025-01-26T00:00:00" {
		t.Errorf("start_datetime = %v", args["start_datetime"])
	}
	if args["end_datetime"] != "2025-01-26T23:59:59" {
		t.Errorf("end_datetime = %v", args["end_datetime"])
	}

	conv, _ := store.Get("s1")
	if got := countRole(conv.Messages(), domain.RoleAssistant); got != 1 {
		t.Errorf("appended %d assistant messages, want 1", got)
	}
	if result.Message != "You have no events on that day." {
		t.Errorf("result message = %q", result.Message)
	}
	if result.Routing != domain.RouteEnd {
		t.Errorf("routing = %s, want %s", result.Routing, domain.RouteEnd)
	}
	if conv.State() != domain.TurnDone {
		t.Errorf("state = %s, want %s", conv.State(), domain.TurnDone)
	}
}

func TestAwaitInputSuspendsTurn(t *testing.T) {
	engine := &fakeEngine{decisions: []*EngineDecision{
		{Routing: domain.RouteAwaitInput, Prompt: "Which calendar should I use?"},
	}}
	o, _, store, _ := newTestOrchestrator(engine)
	defer store.Close()

	result, err := o.RunTurn(context.Background(), &TurnRequest{
		SessionID: "s1",
		UserID:    uuid.New(),
		Message:   "Book a meeting tomorrow",
	})
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}

	if result.Routing != domain.RouteAwaitInput {
		t.Errorf("routing = %s, want %s", result.Routing, domain.RouteAwaitInput)
	}
	if result.Ticket == nil {
		t.Fatal("expected a suspension ticket")
	}
	if result.Ticket.Prompt != "Which calendar should I use?" {
		t.Errorf("ticket prompt = %q", result.Ticket.Prompt)
	}
	if result.Message != result.Ticket.Prompt {
		t.Errorf("result message %q should equal the prompt", result.Message)
	}

	conv, _ := store.Get("s1")
	if conv.State() != domain.TurnSuspended {
		t.Errorf("state = %s, want %s", conv.State(), domain.TurnSuspended)
	}
	if got := countRole(conv.Messages(), domain.RoleAssistant); got != 0 {
		t.Errorf("suspended turn appended %d assistant messages, want 0", got)
	}
}

func TestResumeAppendsAnswerAfterPrompt(t *testing.T) {
	engine := &fakeEngine{decisions: []*EngineDecision{
		{Routing: domain.RouteAwaitInput, Prompt: "What time works for you?"},
		{Routing: domain.RouteEnd, Message: "Booked for 3pm."},
	}}
	o, _, store, _ := newTestOrchestrator(engine)
	defer store.Close()

	userID := uuid.New()
	suspended, err := o.RunTurn(context.Background(), &TurnRequest{
		SessionID: "s1",
		UserID:    userID,
		Message:   "Book a meeting tomorrow",
	})
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}

	resumed, err := o.Resume(context.Background(), userID, suspended.Ticket.ID, "3pm works")
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if resumed.Message != "Booked for 3pm." {
		t.Errorf("resume message = %q", resumed.Message)
	}

	conv, _ := store.Get("s1")
	messages := conv.Messages()
	// user question, assistant prompt, user answer, assistant reply
	if len(messages) != 4 {
		t.Fatalf("got %d messages, want 4", len(messages))
	}
	if messages[1].Role != domain.RoleAssistant || messages[1].Content != "What time works for you?" {
		t.Errorf("message 1 = %+v", messages[1])
	}
	if messages[2].Role != domain.RoleUser || messages[2].Content != "3pm works" {
		t.Errorf("answer not appended right after the prompt: %+v", messages[2])
	}
	if conv.State() != domain.TurnDone {
		t.Errorf("state = %s, want %s", conv.State(), domain.TurnDone)
	}
}

func TestResumeWithWrongUserRejected(t *testing.T) {
	engine := &fakeEngine{decisions: []*EngineDecision{
		{Routing: domain.RouteAwaitInput, Prompt: "Which day?"},
		{Routing: domain.RouteEnd, Message: "Booked for Monday."},
	}}
	o, _, store, _ := newTestOrchestrator(engine)
	defer store.Close()

	userID := uuid.New()
	suspended, err := o.RunTurn(context.Background(), &TurnRequest{
		SessionID: "s1",
		UserID:    userID,
		Message:   "Book something",
	})
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}

	if _, err := o.Resume(context.Background(), uuid.New(), suspended.Ticket.ID, "Monday"); err == nil {
		t.Fatal("resume with a different user must fail")
	}

	// The rejected attempt must not consume the ticket.
	resumed, err := o.Resume(context.Background(), userID, suspended.Ticket.ID, "Monday")
	if err != nil {
		t.Fatalf("owner resume after a rejected attempt failed: %v", err)
	}
	if resumed.Message != "Booked for Monday." {
		t.Errorf("resume message = %q", resumed.Message)
	}
}

func TestNewTurnSucceedsAfterTicketExpiry(t *testing.T) {
	engine := &fakeEngine{decisions: []*EngineDecision{
		{Routing: domain.RouteAwaitInput, Prompt: "Which day?"},
		{Routing: domain.RouteEnd, Message: "Here is your calendar."},
	}}
	registry := tools.NewRegistry()
	registry.Register(&recordingTool{name: "list_calendar_events"})
	store := session.NewStore(time.Minute)
	defer store.Close()
	// Every ticket is born expired.
	gate := session.NewGate(-time.Second)
	defer gate.Close()
	o := NewOrchestrator(engine, registry, store, gate, nil, "America/Los_Angeles", 4)

	userID := uuid.New()
	suspended, err := o.RunTurn(context.Background(), &TurnRequest{
		SessionID: "s1",
		UserID:    userID,
		Message:   "Book something",
	})
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}

	if _, err := o.Resume(context.Background(), userID, suspended.Ticket.ID, "Monday"); err == nil {
		t.Fatal("resuming an expired ticket must fail")
	}

	// The session survives the lapsed question and takes a fresh turn.
	result, err := o.RunTurn(context.Background(), &TurnRequest{
		SessionID: "s1",
		UserID:    userID,
		Message:   "What's on my calendar?",
	})
	if err != nil {
		t.Fatalf("new turn after ticket expiry failed: %v", err)
	}
	if result.Message != "Here is your calendar." {
		t.Errorf("result message = %q", result.Message)
	}
	conv, _ := store.Get("s1")
	if conv.State() != domain.TurnDone {
		t.Errorf("state = %s, want %s", conv.State(), domain.TurnDone)
	}
}

func TestNewTurnWhileSuspendedRejected(t *testing.T) {
	engine := &fakeEngine{decisions: []*EngineDecision{
		{Routing: domain.RouteAwaitInput, Prompt: "Which day?"},
	}}
	o, _, store, _ := newTestOrchestrator(engine)
	defer store.Close()

	userID := uuid.New()
	if _, err := o.RunTurn(context.Background(), &TurnRequest{SessionID: "s1", UserID: userID, Message: "Book something"}); err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if _, err := o.RunTurn(context.Background(), &TurnRequest{SessionID: "s1", UserID: userID, Message: "Hello?"}); err == nil {
		t.Error("a new message on a suspended conversation must be rejected")
	}
}

func TestEngineFailureAppendsVisibleMessage(t *testing.T) {
	engine := &fakeEngine{err: errors.New("model unavailable")}
	o, _, store, _ := newTestOrchestrator(engine)
	defer store.Close()

	result, err := o.RunTurn(context.Background(), &TurnRequest{
		SessionID: "s1",
		UserID:    uuid.New(),
		Message:   "Hi",
	})
	if err != nil {
		t.Fatalf("engine failures must not bubble up: %v", err)
	}
	if !strings.Contains(result.Message, "model unavailable") {
		t.Errorf("result message should mention the failure, got %q", result.Message)
	}

	conv, _ := store.Get("s1")
	if got := countRole(conv.Messages(), domain.RoleAssistant); got != 1 {
		t.Errorf("appended %d assistant messages, want 1", got)
	}
	if conv.State() != domain.TurnDone {
		t.Errorf("state = %s, want %s", conv.State(), domain.TurnDone)
	}
}

func TestCancellationEndsTurn(t *testing.T) {
	engine := &fakeEngine{}
	o, _, store, _ := newTestOrchestrator(engine)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := o.RunTurn(ctx, &TurnRequest{SessionID: "s1", UserID: uuid.New(), Message: "Hi"})
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if !strings.Contains(result.Message, "canceled") {
		t.Errorf("result message = %q", result.Message)
	}
	if len(engine.steps) != 0 {
		t.Errorf("engine invoked %d times after cancellation, want 0", len(engine.steps))
	}
	conv, _ := store.Get("s1")
	if conv.State() != domain.TurnDone {
		t.Errorf("state = %s, want %s", conv.State(), domain.TurnDone)
	}
}

func TestToolRoundsAreBounded(t *testing.T) {
	loop := &EngineDecision{
		Routing: domain.RouteContinue,
		ToolCalls: []tools.ToolCall{{
			ID: "call-n", Name: "list_calendar_events", Arguments: map[string]any{},
		}},
	}
	engine := &fakeEngine{decisions: []*EngineDecision{loop, loop, loop, loop, loop, loop, loop, loop}}
	o, _, store, _ := newTestOrchestrator(engine)
	defer store.Close()

	result, err := o.RunTurn(context.Background(), &TurnRequest{SessionID: "s1", UserID: uuid.New(), Message: "Hi"})
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if !strings.Contains(result.Message, "could not finish") {
		t.Errorf("result message = %q", result.Message)
	}
}

func TestSystemPromptEmbedsDateAndTimezone(t *testing.T) {
	engine := &fakeEngine{}
	o, _, store, _ := newTestOrchestrator(engine)
	defer store.Close()

	if _, err := o.RunTurn(context.Background(), &TurnRequest{SessionID: "s1", UserID: uuid.New(), Message: "Hi"}); err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if len(engine.steps) == 0 {
		t.Fatal("engine was not invoked")
	}
	prompt := engine.steps[0].SystemPrompt
	if !strings.Contains(prompt, "2025-01-26") {
		t.Errorf("prompt missing current date: %q", prompt)
	}
	if !strings.Contains(prompt, "America/Los_Angeles") {
		t.Errorf("prompt missing timezone: %q", prompt)
	}
}

func TestTodoMessageSelectsSchedulingPrompt(t *testing.T) {
	engine := &fakeEngine{}
	o, _, store, _ := newTestOrchestrator(engine)
	defer store.Close()

	if _, err := o.RunTurn(context.Background(), &TurnRequest{
		SessionID: "s1",
		UserID:    uuid.New(),
		Message:   "Here is my todo list: gym, groceries, call mom",
	}); err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	prompt := engine.steps[0].SystemPrompt
	if !strings.Contains(prompt, "to-do") {
		t.Errorf("expected the scheduling instructions, got %q", prompt)
	}
}

func TestPlainMessageSelectsAssistantPrompt(t *testing.T) {
	engine := &fakeEngine{}
	o, _, store, _ := newTestOrchestrator(engine)
	defer store.Close()

	if _, err := o.RunTurn(context.Background(), &TurnRequest{
		SessionID: "s1",
		UserID:    uuid.New(),
		Message:   "What's on my calendar today?",
	}); err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	prompt := engine.steps[0].SystemPrompt
	if strings.Contains(prompt, "to-do") {
		t.Errorf("plain request should not get the scheduling instructions: %q", prompt)
	}
}

func TestTranscriptIsAppendOnlyAcrossTurns(t *testing.T) {
	engine := &fakeEngine{}
	o, _, store, _ := newTestOrchestrator(engine)
	defer store.Close()

	userID := uuid.New()
	if _, err := o.RunTurn(context.Background(), &TurnRequest{SessionID: "s1", UserID: userID, Message: "first"}); err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	conv, _ := store.Get("s1")
	before := conv.Messages()

	if _, err := o.RunTurn(context.Background(), &TurnRequest{SessionID: "s1", UserID: userID, Message: "second"}); err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	after := conv.Messages()

	if len(after) <= len(before) {
		t.Fatalf("log did not grow: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if after[i].Role != before[i].Role || after[i].Content != before[i].Content {
			t.Errorf("message %d changed between turns", i)
		}
	}
}
