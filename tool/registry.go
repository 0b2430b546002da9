package tool

import (
	"fmt"

	"github.com/hupe1980/realtimemesh/core"
)

// Registry is an ordered, name-indexed tool set. It is immutable after
// construction and safe for concurrent reads.
type Registry struct {
	order []Tool
	index map[string]Tool
}

// NewRegistry builds a registry. Duplicate names are rejected.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{index: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if t == nil {
			continue
		}
		if _, dup := r.index[t.Name()]; dup {
			return nil, fmt.Errorf("duplicate tool name %q", t.Name())
		}
		r.index[t.Name()] = t
		r.order = append(r.order, t)
	}
	return r, nil
}

// Lookup returns the tool with the given name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.index[name]
	return t, ok
}

// Tools returns the tools in registration order.
func (r *Registry) Tools() []Tool {
	if r == nil {
		return nil
	}
	return append([]Tool(nil), r.order...)
}

// Names returns the tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.Tools()))
	for _, t := range r.Tools() {
		names = append(names, t.Name())
	}
	return names
}

// Specs converts all tools into provider-facing declarations.
func (r *Registry) Specs() ([]core.ToolSpec, error) {
	specs := make([]core.ToolSpec, 0, len(r.Tools()))
	for _, t := range r.Tools() {
		s, err := Spec(t)
		if err != nil {
			return nil, err
		}
		specs = append(specs, s)
	}
	return specs, nil
}
