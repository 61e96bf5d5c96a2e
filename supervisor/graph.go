package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentdesk/agent"
	"github.com/hupe1980/agentdesk/core"
	"github.com/hupe1980/agentdesk/logging"
	"github.com/hupe1980/agentdesk/metrics"
)

// Name is the author recorded on supervisor messages.
const Name = "supervisor"

// DefaultMaxCycles bounds supervisor decisions per run.
const DefaultMaxCycles = 25

// ErrWorkerFailed wraps errors returned by a worker invocation.
var ErrWorkerFailed = errors.New("supervisor: worker failed")

// TerminationReason explains why a run ended.
type TerminationReason string

const (
	// TerminationSupervisor means the supervisor chose Terminal.
	TerminationSupervisor TerminationReason = "supervisor"
	// TerminationMaxCycles means the cycle guard forced the run to end.
	TerminationMaxCycles TerminationReason = "max_cycles"
)

// Result is the outcome of one run.
type Result struct {
	RunID  string
	Answer string
	// State is the full conversation at the end of the run.
	State core.State
	// Messages are the messages appended during the run, in order.
	Messages    []core.Message
	Cycles      int
	WorkerCalls int
	Reason      TerminationReason
	Duration    time.Duration
}

// Recorder receives every message appended during a run.
type Recorder interface {
	Record(ctx context.Context, runID string, msgs ...core.Message) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, runID string, msgs ...core.Message) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, runID string, msgs ...core.Message) error {
	return f(ctx, runID, msgs...)
}

// GraphOptions configures a Graph.
type GraphOptions struct {
	// MaxCycles caps supervisor decisions. When exceeded the run ends with a
	// diagnostic answer and TerminationMaxCycles, not an error.
	MaxCycles int
	// SliceSize is how many trailing messages a worker receives.
	SliceSize int
	Recorder  Recorder
	Logger    logging.Logger
	Metrics   *metrics.Metrics
	NewRunID  func() string
}

// RunOptions configures a single Run.
type RunOptions struct {
	RunID    string
	Recorder Recorder
}

// Graph is the cyclic supervisor -> worker -> supervisor state machine.
// It holds no per-run state; concurrent runs each own their State.
type Graph struct {
	node    *Node
	workers *agent.Agents
	opts    GraphOptions
	logger  logging.Logger
}

// NewGraph wires node to workers. Every non-terminal destination of node
// must have a worker.
func NewGraph(node *Node, workers *agent.Agents, optFns ...func(o *GraphOptions)) (*Graph, error) {
	opts := GraphOptions{
		MaxCycles: DefaultMaxCycles,
		SliceSize: 1,
		Logger:    logging.NoOpLogger{},
		NewRunID:  core.NewID,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxCycles <= 0 {
		opts.MaxCycles = DefaultMaxCycles
	}
	if opts.SliceSize <= 0 {
		opts.SliceSize = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.NewRunID == nil {
		opts.NewRunID = core.NewID
	}

	if node == nil {
		return nil, fmt.Errorf("supervisor: node is required")
	}
	for _, dest := range node.workers {
		if _, ok := workers.Get(dest); !ok {
			return nil, fmt.Errorf("supervisor: no worker for destination %q", dest)
		}
	}

	return &Graph{node: node, workers: workers, opts: opts, logger: opts.Logger}, nil
}

// Node returns the decision node.
func (g *Graph) Node() *Node { return g.node }

// Run executes cycles until the supervisor chooses Terminal or the cycle
// guard trips. Worker and decision failures abort the run; the returned
// Result then holds the state reached so far.
func (g *Graph) Run(ctx context.Context, input core.State, optFns ...func(o *RunOptions)) (Result, error) {
	ropts := RunOptions{Recorder: g.opts.Recorder}
	for _, fn := range optFns {
		fn(&ropts)
	}
	if ropts.RunID == "" {
		ropts.RunID = g.opts.NewRunID()
	}

	ctx = core.ContextWithRunID(ctx, ropts.RunID)
	logger := logging.With(g.logger, "run_id", ropts.RunID)
	start := time.Now()

	r := &run{
		graph:    g,
		recorder: ropts.Recorder,
		logger:   logger,
		res:      Result{RunID: ropts.RunID, State: input},
		base:     input.Version(),
	}

	logger.Info("graph.run.start", "messages", input.Len(), "max_cycles", g.opts.MaxCycles)

	err := r.loop(ctx)

	r.res.Messages = r.res.State.Since(r.base)
	r.res.Duration = time.Since(start)

	if err != nil {
		logger.Error("graph.run.error", "cycles", r.res.Cycles, "error", err.Error())
		return r.res, err
	}

	g.opts.Metrics.RunFinished(string(r.res.Reason), r.res.Cycles)
	logger.Info("graph.run.complete",
		"reason", r.res.Reason,
		"cycles", r.res.Cycles,
		"worker_calls", r.res.WorkerCalls,
		"duration_ms", r.res.Duration.Milliseconds(),
	)

	return r.res, nil
}

// run carries the mutable bookkeeping of one Run.
type run struct {
	graph    *Graph
	recorder Recorder
	logger   logging.Logger
	res      Result
	base     int
}

func (r *run) loop(ctx context.Context) error {
	g := r.graph
	limiter := core.NewLimiter("supervisor cycles", g.opts.MaxCycles)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := limiter.Increment(); err != nil {
			answer := fmt.Sprintf(
				"I could not finish this request within %d supervisor cycles. Please narrow the request and try again.",
				g.opts.MaxCycles)
			r.logger.Warn("graph.max_cycles", "max_cycles", g.opts.MaxCycles)
			r.append(ctx, core.NewAgentMessage(Name, answer))
			r.res.Answer = answer
			r.res.Reason = TerminationMaxCycles
			return nil
		}
		r.res.Cycles++

		decision, err := g.node.Decide(ctx, r.res.State)
		if err != nil {
			return fmt.Errorf("cycle %d: %w", r.res.Cycles, err)
		}

		r.append(ctx, core.NewAgentMessage(Name, decision.Reason))

		if decision.IsTerminal() {
			r.res.Answer = decision.Reason
			r.res.Reason = TerminationSupervisor
			return nil
		}

		if err := r.invokeWorker(ctx, decision.Next); err != nil {
			return fmt.Errorf("cycle %d: %w", r.res.Cycles, err)
		}
	}
}

// invokeWorker hands the trailing slice of state to the worker and appends
// its answer attributed to the worker's name.
func (r *run) invokeWorker(ctx context.Context, name string) error {
	g := r.graph

	worker, ok := g.workers.Get(name)
	if !ok {
		return fmt.Errorf("%w: %q has no worker", ErrUnknownDestination, name)
	}

	slice := r.res.State.Last(g.opts.SliceSize)
	r.logger.Debug("graph.worker.start", "worker", name, "slice", slice.Len())

	start := time.Now()
	out, err := worker.Invoke(ctx, slice)
	g.opts.Metrics.WorkerInvocation(name, time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWorkerFailed, name, err)
	}
	r.res.WorkerCalls++

	var text string
	if last, ok := out.LastMessage(); ok {
		text = last.Text()
	}

	r.append(ctx, core.NewAgentMessage(name, text))
	r.logger.Debug("graph.worker.complete", "worker", name, "duration_ms", time.Since(start).Milliseconds())

	return nil
}

func (r *run) append(ctx context.Context, msgs ...core.Message) {
	r.res.State = r.res.State.Append(msgs...)
	if r.recorder == nil {
		return
	}
	if err := r.recorder.Record(ctx, r.res.RunID, msgs...); err != nil {
		r.logger.Warn("graph.record.error", "error", err.Error())
	}
}
