// Package agentdesk wires the supervisor graph, the worker registry and a
// transcript store into a single entry point. Most applications:
//  1. Create a Desk via New (or FromConfig) with a model and an agents file
//  2. Call Ask with a session id and the user's text
//  3. Show Result.Answer to the user
//
// All defaults are safe for local development: transcripts stay in memory
// and logging is disabled.
package agentdesk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hupe1980/agentdesk/agent"
	"github.com/hupe1980/agentdesk/core"
	"github.com/hupe1980/agentdesk/logging"
	"github.com/hupe1980/agentdesk/metrics"
	"github.com/hupe1980/agentdesk/model"
	"github.com/hupe1980/agentdesk/session"
	"github.com/hupe1980/agentdesk/supervisor"
	"github.com/hupe1980/agentdesk/tool"
)

// routingFooter is appended to a configured supervisor preamble so the
// model always sees the live worker list.
const routingFooter = `

Available workers: {{join ", " .workers}}.
Current time: {{.now}}.
Choose "__end__" when the request is complete and put the final answer in "reason".`

// ErrNoWorkers is returned when no worker could be loaded.
var ErrNoWorkers = errors.New("agentdesk: no workers loaded")

// Options configures a Desk.
type Options struct {
	// AgentsFile is the YAML worker definition list.
	AgentsFile string
	// AgentsYAML takes precedence over AgentsFile when set.
	AgentsYAML []byte
	// Tools bind worker names to their tool sets. Unknown names build a
	// bare worker without tools.
	Tools map[string]ToolProvider
	// Factories bind worker names to custom constructors and win over Tools.
	Factories map[string]agent.Factory

	Store   session.Store
	Metrics *metrics.Metrics
	Logger  logging.Logger

	MaxCycles    int
	MaxRounds    int
	EnhancerName string

	// RetryAttempts and RetryCooldown configure the transient-error retry
	// wrapper around the model. Zero values keep the RetryModel defaults.
	RetryAttempts int
	RetryCooldown time.Duration
	// RetrySleep replaces the cooldown wait (tests).
	RetrySleep func(ctx context.Context, d time.Duration) error
}

// ToolProvider supplies the tools of one worker. It is called while the
// agents file loads; an error skips that worker with a diagnostic.
type ToolProvider func() ([]tool.Tool, error)

// Desk answers user requests by running the supervisor graph over a
// session's transcript.
type Desk struct {
	graph   *supervisor.Graph
	workers *agent.Agents
	store   session.Store
	metrics *metrics.Metrics
	logger  logging.Logger

	locksMu sync.Mutex
	locks   map[string]*sessionLock
}

// New builds a Desk whose supervisor and workers share llm.
func New(llm model.Model, optFns ...func(o *Options)) (*Desk, error) {
	opts := Options{
		AgentsFile:   "agents.yaml",
		MaxCycles:    supervisor.DefaultMaxCycles,
		MaxRounds:    agent.DefaultMaxRounds,
		EnhancerName: supervisor.DefaultEnhancerName,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Store == nil {
		opts.Store = session.NewInMemoryStore()
	}
	if llm == nil {
		return nil, fmt.Errorf("agentdesk: model is required")
	}

	name := llm.Info().Name
	llm = model.NewRetryModel(llm, func(o *model.RetryOptions) {
		if opts.RetryAttempts > 0 {
			o.MaxAttempts = opts.RetryAttempts
		}
		if opts.RetryCooldown > 0 {
			o.Cooldown = opts.RetryCooldown
		}
		if opts.RetrySleep != nil {
			o.Sleep = opts.RetrySleep
		}
		o.Logger = opts.Logger
		o.OnRetry = func(int, error) { opts.Metrics.ModelRetry(name) }
	})

	agentOpts := func(o *agent.ModelAgentOptions) {
		o.MaxRounds = opts.MaxRounds
		o.Logger = opts.Logger
		o.Metrics = opts.Metrics
	}

	registry := agent.NewRegistry(llm, func(o *agent.RegistryOptions) {
		o.AgentOptions = append(o.AgentOptions, agentOpts)
		o.Logger = opts.Logger
	})
	for name, provide := range opts.Tools {
		registry.Register(name, toolFactory(provide, agentOpts))
	}
	for name, f := range opts.Factories {
		registry.Register(name, f)
	}

	var workers *agent.Agents
	if opts.AgentsYAML != nil {
		workers = registry.Load(opts.AgentsYAML, "inline")
	} else {
		workers = registry.LoadFile(opts.AgentsFile)
	}
	if workers.Len() == 0 {
		return nil, fmt.Errorf("%w (%d entries skipped)", ErrNoWorkers, len(workers.Skipped()))
	}

	descriptions := make(map[string]string, workers.Len())
	for _, w := range workers.List() {
		if d := w.Description(); d != "" {
			descriptions[w.Name()] = d
		}
	}

	var preamble agent.Instruction
	if def, ok := workers.Definition(agent.SupervisorName); ok {
		text := def.SystemPrompt + routingFooter
		if err := agent.ValidateTemplate(text); err != nil {
			return nil, fmt.Errorf("agentdesk: supervisor prompt: %w", err)
		}
		preamble = agent.NewInstructionFromText(text)
	}

	node, err := supervisor.NewNode(llm, workers.Names(), func(o *supervisor.NodeOptions) {
		if !preamble.IsZero() {
			o.Instruction = preamble
		}
		o.EnhancerName = opts.EnhancerName
		o.Descriptions = descriptions
		o.Logger = opts.Logger
		o.Metrics = opts.Metrics
	})
	if err != nil {
		return nil, err
	}

	graph, err := supervisor.NewGraph(node, workers, func(o *supervisor.GraphOptions) {
		o.MaxCycles = opts.MaxCycles
		o.Logger = opts.Logger
		o.Metrics = opts.Metrics
	})
	if err != nil {
		return nil, err
	}

	return &Desk{
		graph:   graph,
		workers: workers,
		store:   opts.Store,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		locks:   make(map[string]*sessionLock),
	}, nil
}

// Workers returns the loaded workers, including skipped-entry diagnostics.
func (d *Desk) Workers() *agent.Agents { return d.workers }

// Store returns the transcript store.
func (d *Desk) Store() session.Store { return d.store }

// Metrics returns the collectors, or nil when metrics are disabled.
func (d *Desk) Metrics() *metrics.Metrics { return d.metrics }

// Logger returns the logger shared by the graph and workers.
func (d *Desk) Logger() logging.Logger { return d.logger }

// Close releases the transcript store when it holds resources.
func (d *Desk) Close() error {
	if c, ok := d.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Ask appends text to the session transcript and runs the supervisor graph
// until it answers. Every message produced by the run is persisted as it
// is appended. Calls for the same session are serialized; different
// sessions run concurrently, each on its own State.
func (d *Desk) Ask(ctx context.Context, sessionID, text string) (supervisor.Result, error) {
	if sessionID == "" {
		return supervisor.Result{}, session.ErrEmptySessionID
	}
	if text == "" {
		return supervisor.Result{}, agent.ErrEmptyInput
	}

	unlock := d.lock(sessionID)
	defer unlock()

	history, err := session.Load(ctx, d.store, sessionID)
	if err != nil {
		return supervisor.Result{}, fmt.Errorf("agentdesk: load session: %w", err)
	}

	runID := core.NewID()
	ctx = core.ContextWithRunID(ctx, runID)

	user := core.NewUserMessage(text)
	if err := d.store.Append(ctx, sessionID, user); err != nil {
		return supervisor.Result{}, fmt.Errorf("agentdesk: store request: %w", err)
	}

	d.logger.Debug("agentdesk.ask", "session_id", sessionID, "run_id", runID, "history", history.Len())

	return d.graph.Run(ctx, history.Append(user), func(o *supervisor.RunOptions) {
		o.RunID = runID
		o.Recorder = supervisor.RecorderFunc(func(ctx context.Context, _ string, msgs ...core.Message) error {
			return d.store.Append(ctx, sessionID, msgs...)
		})
	})
}

// sessionLock serializes runs of one session. refs counts holders and
// waiters; the entry is dropped when it reaches zero.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func (d *Desk) lock(sessionID string) func() {
	d.locksMu.Lock()
	l, ok := d.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		d.locks[sessionID] = l
	}
	l.refs++
	d.locksMu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		d.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(d.locks, sessionID)
		}
		d.locksMu.Unlock()
	}
}

func toolFactory(provide ToolProvider, agentOpts func(o *agent.ModelAgentOptions)) agent.Factory {
	return func(def agent.Definition, llm model.Model) (core.Agent, error) {
		tools, err := provide()
		if err != nil {
			return nil, err
		}
		return agent.ToolFactory(tools, agentOpts)(def, llm)
	}
}
