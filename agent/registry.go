package agent

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/hupe1980/agentdesk/core"
	"github.com/hupe1980/agentdesk/logging"
	"github.com/hupe1980/agentdesk/model"
	"github.com/hupe1980/agentdesk/tool"
	"gopkg.in/yaml.v3"
)

// SupervisorName is the reserved definition name carrying the supervisor
// preamble. It is loaded as a definition but never built into a worker.
const SupervisorName = "supervisor"

// Definition is one worker entry of the agents file.
//
//	# agents.yaml
//	- name: google_tasks
//	  description: Manages Google Tasks
//	  system_prompt: |
//	    You manage the user's task lists ...
type Definition struct {
	Name         string `yaml:"name"`
	Description  string `yaml:"description,omitempty"`
	SystemPrompt string `yaml:"system_prompt"`
}

// Factory builds the worker for a definition.
type Factory func(def Definition, llm model.Model) (core.Agent, error)

// ToolFactory returns a Factory that builds a ModelAgent with the given tools
// and the definition's system prompt as instruction.
func ToolFactory(tools []tool.Tool, optFns ...func(o *ModelAgentOptions)) Factory {
	return func(def Definition, llm model.Model) (core.Agent, error) {
		fns := make([]func(o *ModelAgentOptions), 0, len(optFns)+1)
		fns = append(fns, optFns...)
		fns = append(fns, func(o *ModelAgentOptions) {
			o.Instruction = NewInstructionFromText(def.SystemPrompt)
			o.Description = def.Description
			o.Tools = tools
		})
		return NewModelAgent(def.Name, llm, fns...)
	}
}

// Diagnostic describes an agents file entry that was not loaded.
type Diagnostic struct {
	Source string
	Index  int // -1 when the whole source failed
	Name   string
	Reason string
}

func (d Diagnostic) String() string {
	if d.Index < 0 {
		return fmt.Sprintf("%s: %s", d.Source, d.Reason)
	}
	if d.Name != "" {
		return fmt.Sprintf("%s: entry %d (%s): %s", d.Source, d.Index, d.Name, d.Reason)
	}
	return fmt.Sprintf("%s: entry %d: %s", d.Source, d.Index, d.Reason)
}

// Agents is the insertion-ordered result of loading an agents file.
type Agents struct {
	order       []string
	agents      map[string]core.Agent
	definitions map[string]Definition
	skipped     []Diagnostic
}

func newAgents() *Agents {
	return &Agents{
		agents:      make(map[string]core.Agent),
		definitions: make(map[string]Definition),
	}
}

// NewAgents builds an Agents set directly from constructed agents, in order.
// Agents with duplicate names are ignored after the first.
func NewAgents(list ...core.Agent) *Agents {
	a := newAgents()
	for _, ag := range list {
		if _, dup := a.agents[ag.Name()]; dup {
			continue
		}
		a.order = append(a.order, ag.Name())
		a.agents[ag.Name()] = ag
		a.definitions[ag.Name()] = Definition{Name: ag.Name(), Description: ag.Description()}
	}
	return a
}

// Get returns the worker registered under name.
func (a *Agents) Get(name string) (core.Agent, bool) {
	if a == nil {
		return nil, false
	}
	ag, ok := a.agents[name]
	return ag, ok
}

// Names returns worker names in file order.
func (a *Agents) Names() []string {
	if a == nil {
		return nil
	}
	return append([]string(nil), a.order...)
}

// List returns workers in file order.
func (a *Agents) List() []core.Agent {
	if a == nil {
		return nil
	}
	out := make([]core.Agent, 0, len(a.order))
	for _, name := range a.order {
		out = append(out, a.agents[name])
	}
	return out
}

// Len returns the number of workers.
func (a *Agents) Len() int {
	if a == nil {
		return 0
	}
	return len(a.order)
}

// Definition returns the loaded definition for name, including reserved
// entries such as the supervisor.
func (a *Agents) Definition(name string) (Definition, bool) {
	if a == nil {
		return Definition{}, false
	}
	d, ok := a.definitions[name]
	return d, ok
}

// Skipped returns diagnostics for entries that were not loaded.
func (a *Agents) Skipped() []Diagnostic {
	if a == nil {
		return nil
	}
	return append([]Diagnostic(nil), a.skipped...)
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// Reserved names are kept as definitions but not built into workers.
	Reserved []string
	// AgentOptions are applied to workers built by the default factory.
	AgentOptions []func(o *ModelAgentOptions)
	Logger       logging.Logger
}

// Registry maps worker names to factories. Names without a registered
// factory get a bare ModelAgent without tools.
type Registry struct {
	llm       model.Model
	mu        sync.RWMutex
	factories map[string]Factory
	fallback  Factory
	reserved  map[string]bool
	logger    logging.Logger
}

// NewRegistry creates a registry whose workers are bound to llm.
func NewRegistry(llm model.Model, optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{
		Reserved: []string{SupervisorName},
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	reserved := make(map[string]bool, len(opts.Reserved))
	for _, name := range opts.Reserved {
		reserved[name] = true
	}

	return &Registry{
		llm:       llm,
		factories: make(map[string]Factory),
		fallback:  ToolFactory(nil, opts.AgentOptions...),
		reserved:  reserved,
		logger:    opts.Logger,
	}
}

// Register binds a factory to a worker name, replacing any previous one.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) factory(name string) Factory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.factories[name]; ok {
		return f
	}
	return r.fallback
}

// LoadFile reads and loads an agents file. A missing or unreadable file
// yields an empty set with a diagnostic; it never fails.
func (r *Registry) LoadFile(path string) *Agents {
	data, err := os.ReadFile(path)
	if err != nil {
		agents := newAgents()
		r.skip(agents, Diagnostic{Source: path, Index: -1, Reason: err.Error()})
		return agents
	}
	return r.Load(data, path)
}

// Load parses a YAML list of definitions and builds one worker per valid
// entry. Malformed entries, duplicates and factory failures are skipped
// with a diagnostic; the remaining entries are still loaded.
func (r *Registry) Load(data []byte, source string) *Agents {
	agents := newAgents()

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		r.skip(agents, Diagnostic{Source: source, Index: -1, Reason: fmt.Sprintf("parse error: %v", err)})
		return agents
	}

	entries, ok := doc.([]any)
	if !ok {
		r.skip(agents, Diagnostic{Source: source, Index: -1, Reason: fmt.Sprintf("expected a list of agents, got %T", doc)})
		return agents
	}

	for i, entry := range entries {
		def, reason := parseDefinition(entry)
		if reason != "" {
			r.skip(agents, Diagnostic{Source: source, Index: i, Name: def.Name, Reason: reason})
			continue
		}
		if _, dup := agents.definitions[def.Name]; dup {
			r.skip(agents, Diagnostic{Source: source, Index: i, Name: def.Name, Reason: "duplicate name"})
			continue
		}

		if r.reserved[def.Name] {
			agents.definitions[def.Name] = def
			continue
		}

		ag, err := r.factory(def.Name)(def, r.llm)
		if err != nil {
			r.skip(agents, Diagnostic{Source: source, Index: i, Name: def.Name, Reason: err.Error()})
			continue
		}

		agents.definitions[def.Name] = def
		agents.order = append(agents.order, def.Name)
		agents.agents[def.Name] = ag

		r.logger.Debug("registry.entry.loaded", "source", source, "name", def.Name)
	}

	r.logger.Info("registry.loaded", "source", source, "workers", agents.Len(), "skipped", len(agents.skipped))

	return agents
}

func (r *Registry) skip(agents *Agents, d Diagnostic) {
	agents.skipped = append(agents.skipped, d)
	r.logger.Warn("registry.entry.skipped", "diagnostic", d.String())
}

// parseDefinition validates one decoded YAML entry. A non-empty reason
// means the entry must be skipped.
func parseDefinition(entry any) (Definition, string) {
	m, ok := entry.(map[string]any)
	if !ok {
		return Definition{}, fmt.Sprintf("expected a mapping, got %T", entry)
	}

	name, _ := m["name"].(string)
	name = strings.TrimSpace(name)
	def := Definition{Name: name}

	if name == "" {
		return def, "missing required field \"name\""
	}

	prompt, ok := m["system_prompt"].(string)
	if !ok || strings.TrimSpace(prompt) == "" {
		return def, "missing required field \"system_prompt\""
	}
	if err := ValidateTemplate(prompt); err != nil {
		return def, fmt.Sprintf("invalid system_prompt template: %v", err)
	}
	def.SystemPrompt = prompt

	if desc, ok := m["description"].(string); ok {
		def.Description = desc
	}

	return def, ""
}
