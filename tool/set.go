package tool

import (
	"fmt"

	"github.com/hupe1980/agentdesk/model"
)

// Set is an ordered, name-indexed table of tools. It is built once and then
// only read, so lookups need no locking.
type Set struct {
	order []string
	tools map[string]Tool
}

// NewSet creates a set from tools. Duplicate names are rejected.
func NewSet(tools ...Tool) (*Set, error) {
	s := &Set{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if err := s.Add(t); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add registers t. Names must be unique within the set.
func (s *Set) Add(t Tool) error {
	if t == nil {
		return fmt.Errorf("tool: nil tool")
	}
	if _, exists := s.tools[t.Name()]; exists {
		return fmt.Errorf("tool: duplicate tool name %q", t.Name())
	}
	s.order = append(s.order, t.Name())
	s.tools[t.Name()] = t
	return nil
}

// Get returns the tool registered under name.
func (s *Set) Get(name string) (Tool, bool) {
	if s == nil {
		return nil, false
	}
	t, ok := s.tools[name]
	return t, ok
}

// Names returns tool names in registration order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.order...)
}

// Len returns the number of tools.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Definitions returns the model-facing declarations in registration order.
func (s *Set) Definitions() []model.ToolDefinition {
	if s == nil {
		return nil
	}
	defs := make([]model.ToolDefinition, 0, len(s.order))
	for _, name := range s.order {
		defs = append(defs, Definition(s.tools[name]))
	}
	return defs
}
