// Package tool defines the agent's capability contract and its built-in
// tools: workspace file operations, Python code execution, a web search
// seam, and a termination signal.
package tool

import (
	"context"
	"sort"
	"sync"
)

// Args holds loosely-typed tool arguments. Accessors never fail: a missing
// key or a value of the wrong shape yields the caller-supplied default.
type Args map[string]any

// String returns the string at key, or def.
func (a Args) String(key, def string) string {
	if v, ok := a[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Int returns the integer at key, or def. JSON numbers arrive as float64
// and are truncated.
func (a Args) Int(key string, def int) int {
	v, ok := a[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

// Bool returns the boolean at key, or def.
func (a Args) Bool(key string, def bool) bool {
	if v, ok := a[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Float returns the float at key, or def.
func (a Args) Float(key string, def float64) float64 {
	v, ok := a[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return def
	}
}

// Tool is a named capability the agent loop can invoke.
type Tool interface {
	// Name returns the tool's dispatch name.
	Name() string

	// Description returns a one-line summary for the system prompt.
	Description() string

	// Schema returns a JSON-Schema-shaped description of the tool's
	// parameters. It documents the tool for prompts and UIs; arguments
	// are not validated against it at dispatch time.
	Schema() map[string]any

	// Execute runs the tool and returns its textual result. An error
	// means the underlying operation failed; the loop records it as a
	// failed tool result and continues.
	Execute(ctx context.Context, args Args) (string, error)
}

// Registry manages tool registration and lookup.
type Registry struct {
	tools map[string]Tool
	mu    sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool in the registry.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Unregister removes a tool from the registry.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a registered tool by name, or nil if not found.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns the sorted names of all registered tools.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns all registered tools ordered by name.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
