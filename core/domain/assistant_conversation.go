package domain

import "time"

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// RoutingFlag decides what happens after a turn completes. It is recomputed
// on every turn and never derived from message text.
type RoutingFlag string

const (
	RouteContinue   RoutingFlag = "continue"
	RouteAwaitInput RoutingFlag = "await_input"
	RouteEnd        RoutingFlag = "end"
)

// TurnState tracks the per-session turn machine.
type TurnState string

const (
	TurnIdle      TurnState = "idle"
	TurnRunning   TurnState = "running"
	TurnSuspended TurnState = "suspended"
	TurnDone      TurnState = "done"
)

// Message is a single conversation entry. Immutable once appended; ordering
// within a session is chronological and append-only. Tool messages carry the
// originating call so the transcript can be replayed to the engine.
type Message struct {
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
	ToolName   string    `json:"tool_name,omitempty"`
	ToolArgs   string    `json:"tool_args,omitempty"`
	Time       time.Time `json:"time"`
}
