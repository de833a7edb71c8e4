package tools

import (
	"slices"
	"sync"

	"google.golang.org/adk/tool"

	"finvisor/pkg/errors"
)

// Registry stores tools by name for discovery and lookup.
type Registry struct {
	tools map[string]tool.Tool
	mu    sync.RWMutex
}

// NewRegistry constructs an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]tool.Tool),
	}
}

// Register adds or replaces a tool under its own name.
func (r *Registry) Register(t tool.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get retrieves a tool by name if registered.
func (r *Registry) Get(name string) (tool.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns the names of all registered tools, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)

	return names
}

// Select returns the registered tools of the given categories in catalog order.
// Tools that were not registered (missing dependency) are skipped.
func (r *Registry) Select(categories ...Category) []tool.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []tool.Tool
	for _, def := range toolDefinitions {
		if !slices.Contains(categories, def.Category) {
			continue
		}
		if t, ok := r.tools[def.Name]; ok {
			out = append(out, t)
		}
	}
	return out
}

// MustHave fails when any named tool is missing
func (r *Registry) MustHave(names ...string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []string
	for _, name := range names {
		if _, ok := r.tools[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return errors.Wrapf(errors.ErrNotFound, "tools not registered: %v", missing)
	}
	return nil
}
