package workflow

import (
	"context"
	"sync"

	"github.com/BaSui01/agentcoord/types"
)

// ToolHandler executes a named tool. Errors returned here become step
// failures governed by the engine's retry policy.
type ToolHandler func(ctx context.Context, args map[string]any) (any, error)

// Tool is a named handler with a human-readable description.
type Tool struct {
	Name        string
	Description string
	Handler     ToolHandler
}

// ToolRegistry maps tool names to handlers. Registration is
// last-write-wins: re-registering a name replaces the handler.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool by name.
func (r *ToolRegistry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
}

// Unregister removes a tool. Removing an unknown name is a no-op.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns the named tool.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Invoke looks up and executes a tool in one call.
func (r *ToolRegistry) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, types.NewErrorf(types.ErrToolNotFound, "tool %q not found", name)
	}
	return t.Handler(ctx, args)
}

// Names returns the registered tool names.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}
