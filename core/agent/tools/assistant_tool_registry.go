package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Registry holds the tools exposed to the agent.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Later registrations with the same name win.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name])
	}
	return out
}

// Definitions returns the LLM-facing schemas for every tool.
func (r *Registry) Definitions() []ToolDefinition {
	list := r.List()
	defs := make([]ToolDefinition, 0, len(list))
	for _, t := range list {
		defs = append(defs, ConvertToDefinition(t))
	}
	return defs
}

// Execute runs a tool by name after checking required parameters. Argument
// problems come back as a failed ToolResult, not an error, so the agent can
// correct itself on the next round.
func (r *Registry) Execute(ctx context.Context, userID uuid.UUID, name string, args map[string]any) (*ToolResult, error) {
	t, ok := r.Get(name)
	if !ok {
		return &ToolResult{Success: false, Error: fmt.Sprintf("unknown tool: %s", name)}, nil
	}
	if params := t.Parameters(); params != nil {
		for _, required := range params.Required {
			if _, present := args[required]; !present {
				return &ToolResult{
					Success: false,
					Error:   fmt.Sprintf("missing required parameter: %s", required),
				}, nil
			}
		}
	}
	return t.Execute(ctx, userID, args)
}
